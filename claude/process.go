package claude

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"

	"github.com/xiaoyuanzhu-com/claude-deck/log"
)

// Status is the lifecycle state of a session's CLI process
type Status string

const (
	StatusIdle     Status = "idle"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

const (
	// Sent to the PTY on graceful stop: interrupt any in-flight turn, then
	// signal end-of-input at the prompt.
	gracefulExitSequence = "\x03\x04"

	gracefulStopTimeout = 1500 * time.Millisecond
	forcedStopTimeout   = 500 * time.Millisecond
)

// ProcessCallbacks receives process output and lifecycle transitions.
// All callbacks are invoked without internal locks held; a callback never
// fires for a spawn that has since been superseded by a newer one.
type ProcessCallbacks struct {
	OnData   func(chunk string)
	OnStatus func(status Status)
	OnError  func(message string)
	OnExit   func(exitCode int)
}

// Process owns at most one live CLI child at a time, attached through a PTY.
// Each spawn is stamped with a monotonically increasing generation; reader
// and waiter goroutines from earlier spawns carry their stamp and are
// silently discarded once a newer spawn exists, so a rapid stop/start cycle
// can never interleave callbacks from two children.
type Process struct {
	mu         sync.Mutex
	generation uint64
	cmd        *exec.Cmd
	ptmx       *os.File
	status     Status
	exited     chan struct{}

	callbacks ProcessCallbacks
}

func NewProcess(callbacks ProcessCallbacks) *Process {
	return &Process{
		status:    StatusIdle,
		callbacks: callbacks,
	}
}

// Status returns the current lifecycle state
func (p *Process) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Start validates the working directory and spawns the CLI in a PTY sized to
// cols x rows. It fails synchronously, without spawning, if the directory is
// missing or not a directory. On success the process is left in the starting
// state; it transitions to running when the child produces its first output.
func (p *Process) Start(opts LaunchOptions, cols, rows uint16) error {
	info, err := os.Stat(opts.WorkingDir)
	if err != nil || !info.IsDir() {
		return ErrInvalidWorkingDir
	}
	if cols == 0 {
		cols = 80
	}
	if rows == 0 {
		rows = 24
	}

	name, args := BuildLaunchCommand(opts)
	cmd := exec.Command(name, args...)
	cmd.Dir = opts.WorkingDir
	cmd.Env = os.Environ()

	p.mu.Lock()
	p.generation++
	gen := p.generation

	// At most one live child: a new spawn supersedes and kills any old one.
	// Its waiter reaps it, sees a stale generation and stays silent.
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	if p.ptmx != nil {
		p.ptmx.Close()
	}
	p.cmd = nil
	p.ptmx = nil

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		p.status = StatusError
		p.cmd = nil
		p.ptmx = nil
		p.mu.Unlock()
		p.emitStatus(StatusError)
		p.emitError(fmt.Sprintf("failed to start claude: %v", err))
		return fmt.Errorf("failed to start claude: %w", err)
	}

	exited := make(chan struct{})
	readDone := make(chan struct{})
	p.cmd = cmd
	p.ptmx = ptmx
	p.status = StatusStarting
	p.exited = exited
	p.mu.Unlock()

	log.Debug().
		Uint64("generation", gen).
		Str("cwd", opts.WorkingDir).
		Msg("claude process spawned")
	p.emitStatus(StatusStarting)

	go p.readLoop(gen, ptmx, readDone)
	go p.waitLoop(gen, cmd, ptmx, exited, readDone)
	return nil
}

// readLoop pumps PTY output to OnData. The first chunk of a still-current
// spawn flips starting to running.
func (p *Process) readLoop(gen uint64, ptmx *os.File, readDone chan struct{}) {
	defer close(readDone)
	buf := make([]byte, 4096)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 {
			chunk := string(buf[:n])
			p.mu.Lock()
			if gen != p.generation {
				p.mu.Unlock()
				return
			}
			becameRunning := p.status == StatusStarting
			if becameRunning {
				p.status = StatusRunning
			}
			p.mu.Unlock()

			if becameRunning {
				p.emitStatus(StatusRunning)
			}
			p.emitData(chunk)
		}
		if err != nil {
			// PTY read errors (EIO on child exit included) end the loop;
			// the waiter reports the exit.
			return
		}
	}
}

// waitLoop reaps the child and emits the single exit notification for this
// spawn. Exit code 127 from the wrapping shell means the binary was not
// found on PATH and is reported as an error instead of a normal stop.
func (p *Process) waitLoop(gen uint64, cmd *exec.Cmd, ptmx *os.File, exited, readDone chan struct{}) {
	err := cmd.Wait()

	// Let the reader drain whatever the child left in the PTY before the
	// exit is reported, so output and status events stay ordered.
	select {
	case <-readDone:
	case <-time.After(time.Second):
	}
	ptmx.Close()
	close(exited)

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	} else if err != nil {
		exitCode = -1
	}

	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		log.Debug().Uint64("generation", gen).Msg("discarding exit of superseded claude process")
		return
	}
	p.cmd = nil
	p.ptmx = nil
	if exitCode == 127 {
		p.status = StatusError
	} else {
		p.status = StatusStopped
	}
	status := p.status
	p.mu.Unlock()

	log.Info().
		Uint64("generation", gen).
		Int("exit_code", exitCode).
		Msg("claude process exited")

	if exitCode == 127 {
		p.emitError("claude executable not found; install the Claude CLI or set CLAUDE_DECK_CLAUDE_BIN")
	}
	p.emitStatus(status)
	if p.callbacks.OnExit != nil {
		p.callbacks.OnExit(exitCode)
	}
}

// Write sends input to the PTY. A no-op when no child is attached.
func (p *Process) Write(data string) {
	p.mu.Lock()
	ptmx := p.ptmx
	p.mu.Unlock()
	if ptmx == nil {
		return
	}
	if _, err := ptmx.Write([]byte(data)); err != nil {
		log.Debug().Err(err).Msg("pty write failed")
	}
}

// Resize updates the PTY window size. A no-op when no child is attached.
func (p *Process) Resize(cols, rows uint16) {
	p.mu.Lock()
	ptmx := p.ptmx
	p.mu.Unlock()
	if ptmx == nil || cols == 0 || rows == 0 {
		return
	}
	if err := pty.Setsize(ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
		log.Debug().Err(err).Msg("pty resize failed")
	}
}

// Stop performs a graceful-then-forced shutdown of the current child: it
// writes the graceful exit sequence, waits up to the graceful window, then
// kills and waits up to the forced window. The exit itself is reported by
// the waiter exactly once. Stop returns once the child has been reaped or
// both windows have elapsed.
func (p *Process) Stop() {
	p.mu.Lock()
	cmd := p.cmd
	ptmx := p.ptmx
	exited := p.exited
	p.mu.Unlock()

	if cmd == nil || ptmx == nil {
		return
	}

	if _, err := ptmx.Write([]byte(gracefulExitSequence)); err != nil {
		log.Debug().Err(err).Msg("graceful exit write failed")
	}

	select {
	case <-exited:
		return
	case <-time.After(gracefulStopTimeout):
	}

	log.Warn().Msg("claude process did not exit gracefully, killing")
	if cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil {
			log.Debug().Err(err).Msg("kill failed")
		}
	}

	select {
	case <-exited:
	case <-time.After(forcedStopTimeout):
		log.Error().Msg("claude process survived kill; abandoning")
	}
}

// Dispose force-kills any attached child without waiting for it to be
// reaped. Used on teardown paths where blocking is unacceptable.
func (p *Process) Dispose() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	if p.cmd != nil && p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	if p.ptmx != nil {
		p.ptmx.Close()
	}
	p.cmd = nil
	p.ptmx = nil
	p.status = StatusStopped
}

func (p *Process) emitData(chunk string) {
	if p.callbacks.OnData != nil {
		p.callbacks.OnData(chunk)
	}
}

func (p *Process) emitStatus(status Status) {
	if p.callbacks.OnStatus != nil {
		p.callbacks.OnStatus(status)
	}
}

func (p *Process) emitError(message string) {
	if p.callbacks.OnError != nil {
		p.callbacks.OnError(message)
	}
}
