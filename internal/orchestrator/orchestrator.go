// Package orchestrator fans protocol-client operations out across every
// configured server concurrently and assembles the discovery report. One
// server's failure or timeout never blocks or invalidates another's result;
// total wall-clock time tracks the slowest server, not the sum.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/deanluus/mcpscan/internal/client"
	"github.com/deanluus/mcpscan/internal/config"
	"github.com/deanluus/mcpscan/internal/logger"
	"github.com/deanluus/mcpscan/internal/report"
	"github.com/deanluus/mcpscan/internal/resolver"
	"github.com/deanluus/mcpscan/pkg/protocol"
)

// Prober is the per-server protocol exchange. The concrete implementation
// spawns a process; tests substitute their own.
type Prober interface {
	HealthCheck(ctx context.Context) (time.Duration, error)
	ListTools(ctx context.Context) ([]protocol.Tool, time.Duration, error)
}

type Options struct {
	WorkspaceRoot string
	InitTimeout   time.Duration
	ListTimeout   time.Duration
	ClientVersion string

	// NewProber overrides prober construction; nil uses the real client.
	NewProber func(cfg config.ServerConfig) Prober
}

type Orchestrator struct {
	opts Options
	log  *slog.Logger
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		opts: opts,
		log:  logger.ForComponent("orchestrator"),
	}
	if o.opts.NewProber == nil {
		o.opts.NewProber = o.newClient
	}
	return o
}

// newClient resolves placeholders once, then builds the real protocol
// client for one server.
func (o *Orchestrator) newClient(cfg config.ServerConfig) Prober {
	return client.New(client.Config{
		ServerName:    cfg.Name,
		Command:       cfg.Command,
		Args:          resolver.ExpandArgs(cfg.Args, o.opts.WorkspaceRoot),
		Env:           resolver.ExpandEnv(cfg.Env, o.opts.WorkspaceRoot),
		Dir:           o.opts.WorkspaceRoot,
		InitTimeout:   o.opts.InitTimeout,
		ListTimeout:   o.opts.ListTimeout,
		ClientVersion: o.opts.ClientVersion,
	}, o.log)
}

// HealthCheckAll runs the initialize-only exchange against every server in
// parallel.
func (o *Orchestrator) HealthCheckAll(ctx context.Context, cfg *config.Config) *report.Report {
	return o.fanOut(ctx, cfg, func(ctx context.Context, p Prober) ([]protocol.Tool, time.Duration, error) {
		elapsed, err := p.HealthCheck(ctx)
		return nil, elapsed, err
	})
}

// DiscoverAll runs the full initialize + tools/list sequence against every
// server in parallel.
func (o *Orchestrator) DiscoverAll(ctx context.Context, cfg *config.Config) *report.Report {
	return o.fanOut(ctx, cfg, func(ctx context.Context, p Prober) ([]protocol.Tool, time.Duration, error) {
		return p.ListTools(ctx)
	})
}

type probeFunc func(ctx context.Context, p Prober) ([]protocol.Tool, time.Duration, error)

func (o *Orchestrator) fanOut(ctx context.Context, cfg *config.Config, probe probeFunc) *report.Report {
	rep := report.New()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, name := range cfg.SortedNames() {
		server := cfg.Servers[name]

		wg.Add(1)
		go func() {
			defer wg.Done()

			res := o.probeServer(ctx, server, probe)

			// Each server has exactly one in-flight operation, so the map
			// write is single-writer-per-key; the mutex guards the map
			// structure itself.
			mu.Lock()
			rep.Servers[res.ServerName] = res
			mu.Unlock()
		}()
	}

	wg.Wait()
	rep.Finalize()

	o.log.Info("run complete",
		"servers", rep.Summary.ServersQueried,
		"tools", rep.Summary.ToolsFound,
		"overlaps", rep.Summary.OverlappingNames)

	return rep
}

func (o *Orchestrator) probeServer(ctx context.Context, server config.ServerConfig, probe probeFunc) report.DiscoveryResult {
	start := time.Now()
	o.log.Debug("querying server", "server", server.Name)

	tools, elapsed, err := probe(ctx, o.opts.NewProber(server))
	if elapsed == 0 {
		elapsed = time.Since(start)
	}

	res := report.DiscoveryResult{
		ServerName: server.Name,
		DurationMs: elapsed.Milliseconds(),
	}

	if err != nil {
		res.Status = statusFromError(err)
		res.ErrorMessage = err.Error()
		o.log.Warn("server query failed",
			"server", server.Name, "status", res.Status, "error", err)
		return res
	}

	res.Status = report.StatusHealthy
	res.Tools = tools
	res.ToolCount = len(tools)
	return res
}

func statusFromError(err error) report.Status {
	switch {
	case errors.Is(err, client.ErrTimeout):
		return report.StatusTimeout
	case errors.Is(err, client.ErrSpawn):
		return report.StatusFailed
	default:
		return report.StatusError
	}
}
