package claude

import (
	"runtime"
	"strings"
)

// LaunchOptions describes one spawn of the Claude CLI. Exactly one of
// SessionID (new session) or ResumeSessionID (resume/fork) is set.
type LaunchOptions struct {
	Binary          string
	WorkingDir      string
	SessionID       string
	ResumeSessionID string
	ForkSession     bool
	Model           string
	PermissionMode  string
	InitialPrompt   string
}

// cliArgs assembles the argument list passed to the Claude binary
func cliArgs(opts LaunchOptions) []string {
	var args []string
	if opts.ResumeSessionID != "" {
		args = append(args, "--resume", opts.ResumeSessionID)
		if opts.ForkSession {
			args = append(args, "--fork-session")
		}
	} else if opts.SessionID != "" {
		args = append(args, "--session-id", opts.SessionID)
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", opts.PermissionMode)
	}
	if opts.InitialPrompt != "" {
		args = append(args, opts.InitialPrompt)
	}
	return args
}

// BuildLaunchCommand returns the program and argument list used to spawn the
// CLI inside a shell for the current platform. Running through a shell keeps
// PATH resolution and the user's profile behavior consistent with launching
// from a terminal.
func BuildLaunchCommand(opts LaunchOptions) (string, []string) {
	if runtime.GOOS == "windows" {
		return buildWindowsLaunchCommand(opts)
	}
	return buildUnixLaunchCommand(opts)
}

func buildUnixLaunchCommand(opts LaunchOptions) (string, []string) {
	parts := []string{shellQuote(opts.Binary)}
	for _, arg := range cliArgs(opts) {
		parts = append(parts, shellQuote(arg))
	}
	return "/bin/sh", []string{"-c", strings.Join(parts, " ")}
}

func buildWindowsLaunchCommand(opts LaunchOptions) (string, []string) {
	parts := []string{cmdQuote(opts.Binary)}
	for _, arg := range cliArgs(opts) {
		parts = append(parts, cmdQuote(arg))
	}
	return "cmd.exe", []string{"/d", "/s", "/c", strings.Join(parts, " ")}
}

// shellQuote wraps s in single quotes for POSIX sh, escaping embedded single
// quotes with the '\'' idiom.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// cmdQuote double-quotes s for cmd.exe, doubling embedded double quotes
func cmdQuote(s string) string {
	if s == "" {
		return `""`
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
