package claude

import (
	"reflect"
	"testing"
)

func TestBuildUnixLaunchCommand_NewSession(t *testing.T) {
	name, args := buildUnixLaunchCommand(LaunchOptions{
		Binary:    "claude",
		SessionID: "abc-123",
	})

	if name != "/bin/sh" {
		t.Errorf("expected /bin/sh, got %q", name)
	}
	want := []string{"-c", "'claude' '--session-id' 'abc-123'"}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("expected %v, got %v", want, args)
	}
}

func TestBuildUnixLaunchCommand_ResumeAndFork(t *testing.T) {
	_, args := buildUnixLaunchCommand(LaunchOptions{
		Binary:          "claude",
		ResumeSessionID: "abc-123",
		ForkSession:     true,
	})

	want := []string{"-c", "'claude' '--resume' 'abc-123' '--fork-session'"}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("expected %v, got %v", want, args)
	}
}

func TestBuildUnixLaunchCommand_QuotesPrompt(t *testing.T) {
	_, args := buildUnixLaunchCommand(LaunchOptions{
		Binary:        "claude",
		SessionID:     "s1",
		InitialPrompt: "fix the O'Brien bug; rm -rf is not the answer",
	})

	cmdline := args[1]
	want := `'claude' '--session-id' 's1' 'fix the O'\''Brien bug; rm -rf is not the answer'`
	if cmdline != want {
		t.Errorf("expected %q, got %q", want, cmdline)
	}
}

func TestBuildUnixLaunchCommand_ModelAndPermissionMode(t *testing.T) {
	_, args := buildUnixLaunchCommand(LaunchOptions{
		Binary:         "/usr/local/bin/claude",
		SessionID:      "s1",
		Model:          "opus",
		PermissionMode: "plan",
	})

	want := "'/usr/local/bin/claude' '--session-id' 's1' '--model' 'opus' '--permission-mode' 'plan'"
	if args[1] != want {
		t.Errorf("expected %q, got %q", want, args[1])
	}
}

func TestBuildWindowsLaunchCommand(t *testing.T) {
	name, args := buildWindowsLaunchCommand(LaunchOptions{
		Binary:        "claude",
		SessionID:     "s1",
		InitialPrompt: `say "hello"`,
	})

	if name != "cmd.exe" {
		t.Errorf("expected cmd.exe, got %q", name)
	}
	want := []string{"/d", "/s", "/c", `"claude" "--session-id" "s1" "say ""hello"""`}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("expected %v, got %v", want, args)
	}
}
