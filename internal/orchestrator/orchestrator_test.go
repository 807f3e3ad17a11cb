package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deanluus/mcpscan/internal/client"
	"github.com/deanluus/mcpscan/internal/config"
	"github.com/deanluus/mcpscan/internal/report"
	"github.com/deanluus/mcpscan/pkg/protocol"
)

// stubProber stands in for a spawned server: optional delay, fixed outcome.
type stubProber struct {
	tools []protocol.Tool
	delay time.Duration
	err   error
}

func (s *stubProber) wait(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	select {
	case <-time.After(s.delay):
		return time.Since(start), s.err
	case <-ctx.Done():
		return time.Since(start), errors.Mark(ctx.Err(), client.ErrTimeout)
	}
}

func (s *stubProber) HealthCheck(ctx context.Context) (time.Duration, error) {
	return s.wait(ctx)
}

func (s *stubProber) ListTools(ctx context.Context) ([]protocol.Tool, time.Duration, error) {
	elapsed, err := s.wait(ctx)
	if err != nil {
		return nil, elapsed, err
	}
	return s.tools, elapsed, nil
}

func tools(names ...string) []protocol.Tool {
	out := make([]protocol.Tool, 0, len(names))
	for _, name := range names {
		out = append(out, protocol.Tool{Name: name})
	}
	return out
}

func stubOrchestrator(stubs map[string]*stubProber) *Orchestrator {
	return New(Options{
		WorkspaceRoot: "/tmp/ws",
		NewProber: func(cfg config.ServerConfig) Prober {
			return stubs[cfg.Name]
		},
	})
}

func configFor(stubs map[string]*stubProber) *config.Config {
	cfg := &config.Config{Servers: make(map[string]config.ServerConfig, len(stubs))}
	for name := range stubs {
		cfg.Servers[name] = config.ServerConfig{Name: name, Command: "npx", Args: []string{name}}
	}
	return cfg
}

func TestDiscoverAllStatuses(t *testing.T) {
	stubs := map[string]*stubProber{
		"github":  {tools: tools("create_issue", "search")},
		"broken":  {err: errors.Mark(errors.New("ECONNREFUSED"), client.ErrServer)},
		"missing": {err: errors.Mark(errors.New("spawn failed"), client.ErrSpawn)},
		"stuck":   {err: errors.Mark(errors.New("initialize timed out"), client.ErrTimeout)},
	}

	rep := stubOrchestrator(stubs).DiscoverAll(context.Background(), configFor(stubs))

	require.Len(t, rep.Servers, 4)
	assert.Equal(t, report.StatusHealthy, rep.Servers["github"].Status)
	assert.Equal(t, 2, rep.Servers["github"].ToolCount)

	assert.Equal(t, report.StatusError, rep.Servers["broken"].Status)
	assert.Equal(t, "ECONNREFUSED", rep.Servers["broken"].ErrorMessage)

	assert.Equal(t, report.StatusFailed, rep.Servers["missing"].Status)
	assert.Equal(t, report.StatusTimeout, rep.Servers["stuck"].Status)

	assert.False(t, rep.AllHealthy())
	assert.Equal(t, 4, rep.Summary.ServersQueried)
	assert.Equal(t, 2, rep.Summary.ToolsFound)
}

func TestServersQueriedInParallel(t *testing.T) {
	stubs := make(map[string]*stubProber)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		stubs[name] = &stubProber{delay: 150 * time.Millisecond, tools: tools(name + "_tool")}
	}

	start := time.Now()
	rep := stubOrchestrator(stubs).DiscoverAll(context.Background(), configFor(stubs))
	elapsed := time.Since(start)

	// Five sequential probes would take 750ms.
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.True(t, rep.AllHealthy())
}

func TestHangingServerDoesNotBlockOthers(t *testing.T) {
	stubs := map[string]*stubProber{
		"fast":  {delay: 10 * time.Millisecond, tools: tools("search")},
		"stuck": {delay: time.Hour},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	rep := stubOrchestrator(stubs).DiscoverAll(ctx, configFor(stubs))

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, report.StatusHealthy, rep.Servers["fast"].Status)
	assert.Equal(t, report.StatusTimeout, rep.Servers["stuck"].Status)
}

func TestOverlapDetection(t *testing.T) {
	stubs := map[string]*stubProber{
		"github":     {tools: tools("search", "create_issue")},
		"filesystem": {tools: tools("search", "read_file")},
		"fetch":      {tools: tools("fetch")},
	}

	rep := stubOrchestrator(stubs).DiscoverAll(context.Background(), configFor(stubs))

	require.Contains(t, rep.Overlaps, "search")
	assert.Equal(t, []string{"filesystem", "github"}, rep.Overlaps["search"])
	assert.NotContains(t, rep.Overlaps, "fetch")
	assert.NotContains(t, rep.Overlaps, "read_file")
	assert.Equal(t, 1, rep.Summary.OverlappingNames)
}

func TestHealthCheckAllRecordsNoTools(t *testing.T) {
	stubs := map[string]*stubProber{
		"github": {tools: tools("unused")},
	}

	rep := stubOrchestrator(stubs).HealthCheckAll(context.Background(), configFor(stubs))

	require.Len(t, rep.Servers, 1)
	assert.Equal(t, report.StatusHealthy, rep.Servers["github"].Status)
	assert.Zero(t, rep.Servers["github"].ToolCount)
	assert.Empty(t, rep.Servers["github"].Tools)
}

func TestEveryServerGetsAResult(t *testing.T) {
	stubs := map[string]*stubProber{
		"a": {err: errors.Mark(errors.New("boom"), client.ErrSpawn)},
		"b": {err: errors.New("bad handshake")},
		"c": {err: errors.Mark(errors.New("too slow"), client.ErrTimeout)},
	}

	rep := stubOrchestrator(stubs).DiscoverAll(context.Background(), configFor(stubs))

	require.Len(t, rep.Servers, 3)
	for name, res := range rep.Servers {
		assert.Equal(t, name, res.ServerName)
		assert.NotEmpty(t, res.ErrorMessage)
		assert.NotEqual(t, report.StatusHealthy, res.Status)
	}
	assert.False(t, rep.AllHealthy())
}
