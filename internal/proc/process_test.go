package proc

import (
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is re-executed as the child process by helperOptions.
// It is not a real test.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "helper: no mode")
		os.Exit(2)
	}

	switch args[0] {
	case "emit":
		for _, line := range args[1:] {
			fmt.Println(line)
		}
	case "emit-stderr":
		for _, line := range args[1:] {
			fmt.Fprintln(os.Stderr, line)
		}
	case "partial":
		// No trailing newline; the scanner must still deliver it at EOF.
		fmt.Print("incomplete")
	case "sleep":
		time.Sleep(time.Minute)
	case "exit":
		code, _ := strconv.Atoi(args[1])
		os.Exit(code)
	case "echo-stdin":
		var line string
		fmt.Scanln(&line)
		fmt.Println("echo:" + line)
		time.Sleep(100 * time.Millisecond)
	default:
		fmt.Fprintln(os.Stderr, "helper: unknown mode "+args[0])
		os.Exit(2)
	}
}

func helperOptions(timeout time.Duration, mode string, args ...string) Options {
	return Options{
		Command: os.Args[0],
		Args:    append([]string{"-test.run=TestHelperProcess", "--", mode}, args...),
		Env:     map[string]string{"GO_WANT_HELPER_PROCESS": "1"},
		Timeout: timeout,
	}
}

func collect(ch <-chan string) []string {
	var lines []string
	for line := range ch {
		lines = append(lines, line)
	}
	return lines
}

func TestStdoutLines(t *testing.T) {
	p := New(helperOptions(5*time.Second, "emit", "one", "two", "three"))
	require.NoError(t, p.Start())

	assert.Equal(t, []string{"one", "two", "three"}, collect(p.Stdout()))

	ev := <-p.Exit()
	assert.Equal(t, 0, ev.ExitCode)
	assert.False(t, ev.TimedOut)
	assert.Contains(t, p.StdoutBuffer(), "two\n")
}

func TestStderrLines(t *testing.T) {
	p := New(helperOptions(5*time.Second, "emit-stderr", "diag"))
	require.NoError(t, p.Start())

	assert.Equal(t, []string{"diag"}, collect(p.Stderr()))
	<-p.Exit()
	assert.Equal(t, "diag", p.StderrTail(5))
}

func TestPartialTrailingLineDelivered(t *testing.T) {
	p := New(helperOptions(5*time.Second, "partial"))
	require.NoError(t, p.Start())

	assert.Equal(t, []string{"incomplete"}, collect(p.Stdout()))
	<-p.Exit()
}

func TestStartTwiceFails(t *testing.T) {
	p := New(helperOptions(5*time.Second, "emit", "x"))
	require.NoError(t, p.Start())
	err := p.Start()
	assert.True(t, errors.Is(err, ErrAlreadyStarted))
	<-p.Exit()
}

func TestSpawnFailure(t *testing.T) {
	p := New(Options{Command: "mcpscan-no-such-binary-xyz", Args: nil, Timeout: time.Second})
	err := p.Start()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSpawn))
}

func TestExitCode(t *testing.T) {
	p := New(helperOptions(5*time.Second, "exit", "3"))
	require.NoError(t, p.Start())

	ev := <-p.Exit()
	assert.Equal(t, 3, ev.ExitCode)
	assert.False(t, ev.TimedOut)
}

func TestWriteRoundTrip(t *testing.T) {
	p := New(helperOptions(5*time.Second, "echo-stdin"))
	require.NoError(t, p.Start())

	require.NoError(t, p.Write([]byte("ping\n")))
	assert.Equal(t, []string{"echo:ping"}, collect(p.Stdout()))
	<-p.Exit()
}

func TestWriteAfterExitFails(t *testing.T) {
	p := New(helperOptions(5*time.Second, "exit", "0"))
	require.NoError(t, p.Start())
	<-p.Exit()

	err := p.Write([]byte("late\n"))
	assert.True(t, errors.Is(err, ErrNotRunning))
}

func TestTimeoutTerminality(t *testing.T) {
	p := New(helperOptions(150*time.Millisecond, "sleep"))
	require.NoError(t, p.Start())

	start := time.Now()
	ev := <-p.Exit()

	assert.True(t, ev.TimedOut)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, p.TimedOut())

	// The exit event is the sole finalization signal; no second event may
	// ever arrive.
	select {
	case ev, ok := <-p.Exit():
		if ok {
			t.Fatalf("unexpected second exit event: %+v", ev)
		}
	case <-time.After(200 * time.Millisecond):
	}
}

func TestKillIdempotent(t *testing.T) {
	p := New(helperOptions(10*time.Second, "sleep"))
	require.NoError(t, p.Start())

	require.NoError(t, p.Kill())
	require.NoError(t, p.Kill())

	ev := <-p.Exit()
	assert.False(t, ev.TimedOut)
	assert.Equal(t, -1, ev.ExitCode)

	// Killing an already-exited process stays a no-op.
	require.NoError(t, p.Kill())
}

func TestKillBeforeStartIsNoop(t *testing.T) {
	p := New(helperOptions(time.Second, "emit"))
	require.NoError(t, p.Kill())
}
