// Package proc owns the full lifecycle of one spawned MCP server process:
// start, stdin writes, line-buffered stdout/stderr, kill, and a deadline
// watchdog. Every instance emits exactly one exit event, whether the process
// terminated naturally, was killed, or hit its deadline.
package proc

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/deanluus/mcpscan/internal/logger"
)

var (
	ErrAlreadyStarted = errors.New("process already started")
	ErrNotRunning     = errors.New("process not running")
	// ErrSpawn marks failures where the OS refused or failed to launch the
	// command.
	ErrSpawn = errors.New("spawn failed")
)

// DefaultTimeout bounds a process that the caller gave no explicit deadline.
const DefaultTimeout = 10 * time.Second

const (
	stateCreated int32 = iota
	stateRunning
	stateExited
)

// lineChanSize must absorb short bursts between the reader goroutine and a
// consumer that is busy parsing.
const lineChanSize = 256

const maxLineSize = 1024 * 1024

type Options struct {
	Command string
	Args    []string
	Env     map[string]string // overlaid onto the inherited environment
	Dir     string
	Timeout time.Duration
}

// ExitEvent is the sole finalization signal. Exactly one is delivered per
// Process instance.
type ExitEvent struct {
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

type Process struct {
	opts Options
	log  *slog.Logger

	cmd   *exec.Cmd
	stdin io.WriteCloser

	stdoutCh chan string
	stderrCh chan string
	exitCh   chan ExitEvent

	// killCh unblocks line forwarding once termination has been requested,
	// so a flooding child cannot wedge the reader goroutines.
	killCh   chan struct{}
	killOnce sync.Once

	ioWG sync.WaitGroup

	state     atomic.Int32
	timedOut  atomic.Bool
	timer     *time.Timer
	startedAt time.Time

	bufMu     sync.Mutex
	stdoutBuf strings.Builder
	stderrBuf strings.Builder
}

func New(opts Options) *Process {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Process{
		opts:     opts,
		log:      logger.ForComponent("proc"),
		stdoutCh: make(chan string, lineChanSize),
		stderrCh: make(chan string, lineChanSize),
		exitCh:   make(chan ExitEvent, 1),
		killCh:   make(chan struct{}),
	}
}

// Start spawns the process and arms the deadline watchdog. Calling Start a
// second time on the same instance is a state error; instances are never
// reused.
func (p *Process) Start() error {
	if !p.state.CompareAndSwap(stateCreated, stateRunning) {
		return ErrAlreadyStarted
	}

	cmd := exec.Command(p.opts.Command, p.opts.Args...)
	cmd.Dir = p.opts.Dir
	cmd.Env = mergedEnv(p.opts.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		p.state.Store(stateExited)
		return errors.Mark(errors.Wrap(err, "stdin pipe"), ErrSpawn)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		p.state.Store(stateExited)
		return errors.Mark(errors.Wrap(err, "stdout pipe"), ErrSpawn)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		p.state.Store(stateExited)
		return errors.Mark(errors.Wrap(err, "stderr pipe"), ErrSpawn)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		p.state.Store(stateExited)
		return errors.Mark(errors.Wrapf(err, "start %s", p.opts.Command), ErrSpawn)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.startedAt = time.Now()

	p.ioWG.Add(2)
	go p.forward(stdout, p.stdoutCh, &p.stdoutBuf)
	go p.forward(stderr, p.stderrCh, &p.stderrBuf)

	p.timer = time.AfterFunc(p.opts.Timeout, func() {
		p.log.Debug("deadline expired, killing process", "command", p.opts.Command)
		p.timedOut.Store(true)
		p.Kill()
	})

	go p.wait()

	return nil
}

// forward buffers one output stream by line and publishes each line on ch.
// The bufio reader holds an incomplete trailing line until the next read;
// the stream is never assumed to arrive one line per read.
func (p *Process) forward(r io.Reader, ch chan string, buf *strings.Builder) {
	defer p.ioWG.Done()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for sc.Scan() {
		line := sc.Text()

		p.bufMu.Lock()
		buf.WriteString(line)
		buf.WriteByte('\n')
		p.bufMu.Unlock()

		select {
		case ch <- line:
		case <-p.killCh:
			// Termination requested; keep draining so Wait can finish, but
			// stop publishing to a consumer that has moved on.
			p.drain(sc, buf)
			return
		}
	}
}

func (p *Process) drain(sc *bufio.Scanner, buf *strings.Builder) {
	for sc.Scan() {
		p.bufMu.Lock()
		buf.WriteString(sc.Text())
		buf.WriteByte('\n')
		p.bufMu.Unlock()
	}
}

// wait is the single producer of the exit event.
func (p *Process) wait() {
	p.ioWG.Wait()
	err := p.cmd.Wait()

	p.timer.Stop()
	p.state.Store(stateExited)

	exitCode := -1
	if p.cmd.ProcessState != nil {
		exitCode = p.cmd.ProcessState.ExitCode()
	}
	if err != nil {
		p.log.Debug("process exited", "command", p.opts.Command, "error", err)
	}

	close(p.stdoutCh)
	close(p.stderrCh)

	p.exitCh <- ExitEvent{
		ExitCode: exitCode,
		Duration: time.Since(p.startedAt),
		TimedOut: p.timedOut.Load(),
	}
}

// Write sends raw bytes to the process's stdin.
func (p *Process) Write(data []byte) error {
	if p.state.Load() != stateRunning {
		return ErrNotRunning
	}
	if _, err := p.stdin.Write(data); err != nil {
		return errors.Wrap(err, "write stdin")
	}
	return nil
}

// Kill requests termination. It is idempotent and a no-op once the process
// has exited or was never started.
func (p *Process) Kill() error {
	var err error
	p.killOnce.Do(func() {
		close(p.killCh)
		if p.cmd != nil && p.cmd.Process != nil && p.state.Load() == stateRunning {
			p.stdin.Close()
			err = p.cmd.Process.Kill()
		}
	})
	return err
}

// Signal delivers sig to the running process.
func (p *Process) Signal(sig os.Signal) error {
	if p.state.Load() != stateRunning || p.cmd == nil || p.cmd.Process == nil {
		return ErrNotRunning
	}
	return p.cmd.Process.Signal(sig)
}

// Stdout yields stdout line events. The channel closes after the last line,
// before the exit event is delivered.
func (p *Process) Stdout() <-chan string { return p.stdoutCh }

// Stderr yields stderr line events.
func (p *Process) Stderr() <-chan string { return p.stderrCh }

// Exit delivers the single exit event.
func (p *Process) Exit() <-chan ExitEvent { return p.exitCh }

func (p *Process) StartedAt() time.Time { return p.startedAt }

func (p *Process) TimedOut() bool { return p.timedOut.Load() }

// StdoutBuffer returns everything read from stdout so far.
func (p *Process) StdoutBuffer() string {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	return p.stdoutBuf.String()
}

// StderrBuffer returns everything read from stderr so far.
func (p *Process) StderrBuffer() string {
	p.bufMu.Lock()
	defer p.bufMu.Unlock()
	return p.stderrBuf.String()
}

// StderrTail returns up to n trailing stderr lines for error messages.
func (p *Process) StderrTail(n int) string {
	lines := strings.Split(strings.TrimRight(p.StderrBuffer(), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func mergedEnv(overlay map[string]string) []string {
	env := os.Environ()
	for k, v := range overlay {
		env = append(env, k+"="+v)
	}
	return env
}
