// Package client performs the two-phase MCP handshake (initialize, then
// tools/list) against a single server process and reports either the
// discovered tool list or a typed failure.
package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/deanluus/mcpscan/internal/proc"
	"github.com/deanluus/mcpscan/pkg/protocol"
)

var (
	// ErrSpawn re-exports the process-level mark so callers can classify
	// failures with a single import.
	ErrSpawn = proc.ErrSpawn
	// ErrTimeout marks per-phase and run-deadline expiries.
	ErrTimeout = errors.New("request timed out")
	// ErrServer marks JSON-RPC error responses; the error text is the
	// server's message verbatim.
	ErrServer = errors.New("server returned error")
	// ErrProtocol marks malformed exchanges, such as a response carrying
	// neither result nor error.
	ErrProtocol = errors.New("protocol violation")
)

const (
	DefaultInitTimeout = 5 * time.Second
	DefaultListTimeout = 10 * time.Second

	// settleDelay gives the interpreter (node, python) a moment to wire up
	// its stdio loop before the first request lands.
	settleDelay = 300 * time.Millisecond
)

type Config struct {
	ServerName  string
	Command     string
	Args        []string
	Env         map[string]string
	Dir         string
	InitTimeout time.Duration
	ListTimeout time.Duration

	ClientName    string
	ClientVersion string
}

// Client runs the handshake against one server. Request IDs are sequential
// and scoped to the instance; instances are never shared across servers.
type Client struct {
	cfg    Config
	nextID atomic.Int64
	log    *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Client {
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	if cfg.ListTimeout <= 0 {
		cfg.ListTimeout = DefaultListTimeout
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "mcpscan"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{cfg: cfg, log: log.With("server", cfg.ServerName)}
}

// HealthCheck performs the initialize exchange only.
func (c *Client) HealthCheck(ctx context.Context) (time.Duration, error) {
	_, elapsed, err := c.run(ctx, false)
	return elapsed, err
}

// ListTools performs the full initialize + tools/list sequence.
func (c *Client) ListTools(ctx context.Context) ([]protocol.Tool, time.Duration, error) {
	return c.run(ctx, true)
}

func (c *Client) run(ctx context.Context, listTools bool) ([]protocol.Tool, time.Duration, error) {
	start := time.Now()
	elapsed := func() time.Duration { return time.Since(start) }

	procTimeout := settleDelay + c.cfg.InitTimeout + time.Second
	if listTools {
		procTimeout += c.cfg.ListTimeout
	}

	p := proc.New(proc.Options{
		Command: c.cfg.Command,
		Args:    c.cfg.Args,
		Env:     c.cfg.Env,
		Dir:     c.cfg.Dir,
		Timeout: procTimeout,
	})
	if err := p.Start(); err != nil {
		return nil, elapsed(), err
	}
	defer p.Kill()

	select {
	case <-time.After(settleDelay):
	case <-ctx.Done():
		return nil, elapsed(), errors.Mark(errors.New("run deadline exceeded"), ErrTimeout)
	}

	if err := c.call(p, "initialize", protocol.InitializeParams{
		ProtocolVersion: protocol.Version,
		Capabilities:    map[string]any{},
		ClientInfo: protocol.ClientInfo{
			Name:    c.cfg.ClientName,
			Version: c.cfg.ClientVersion,
		},
	}); err != nil {
		return nil, elapsed(), err
	}
	resp, err := c.await(ctx, p, c.nextID.Load(), c.cfg.InitTimeout, "initialize")
	if err != nil {
		return nil, elapsed(), err
	}
	c.log.Debug("initialize complete", "elapsed", elapsed())

	if !listTools {
		return nil, elapsed(), nil
	}

	if err := c.call(p, "tools/list", map[string]any{}); err != nil {
		return nil, elapsed(), err
	}
	resp, err = c.await(ctx, p, c.nextID.Load(), c.cfg.ListTimeout, "tools/list")
	if err != nil {
		return nil, elapsed(), err
	}

	var result protocol.ListToolsResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, elapsed(), errors.Mark(errors.Wrap(err, "malformed tools/list result"), ErrProtocol)
	}

	c.log.Debug("discovery complete", "tools", len(result.Tools), "elapsed", elapsed())
	return result.Tools, elapsed(), nil
}

// call serializes a request with the next sequential ID and writes it,
// newline-terminated, to the server's stdin.
func (c *Client) call(p *proc.Process, method string, params any) error {
	req := protocol.Request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", method)
	}
	if err := p.Write(append(data, '\n')); err != nil {
		// The process died before the handshake got anywhere.
		return errors.Mark(errors.Wrapf(err, "send %s", method), ErrSpawn)
	}
	return nil
}

// await scans stdout line events for the response with the given ID. Lines
// that are not valid JSON are diagnostic output and are silently discarded;
// responses with a different ID keep buffering.
func (c *Client) await(ctx context.Context, p *proc.Process, id int64, timeout time.Duration, phase string) (*protocol.Response, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case line, ok := <-p.Stdout():
			if !ok {
				return nil, c.exitedEarly(p, phase)
			}
			var resp protocol.Response
			if err := json.Unmarshal([]byte(line), &resp); err != nil {
				c.log.Debug("ignoring non-protocol output", "phase", phase, "line", line)
				continue
			}
			if resp.ID != id {
				continue
			}
			if resp.Error != nil {
				return nil, errors.Mark(errors.Newf("%s", resp.Error.Message), ErrServer)
			}
			if resp.Result == nil {
				return nil, errors.Mark(
					errors.Newf("%s response carried neither result nor error", phase),
					ErrProtocol)
			}
			return &resp, nil

		case <-timer.C:
			return nil, errors.Mark(errors.Newf("%s timed out after %s", phase, timeout), ErrTimeout)

		case <-ctx.Done():
			return nil, errors.Mark(errors.Newf("%s aborted: run deadline exceeded", phase), ErrTimeout)
		}
	}
}

// exitedEarly classifies a server that closed stdout before answering.
func (c *Client) exitedEarly(p *proc.Process, phase string) error {
	ev := <-p.Exit()
	if ev.TimedOut {
		return errors.Mark(errors.Newf("%s timed out", phase), ErrTimeout)
	}
	err := errors.Newf("server exited with code %d before %s response", ev.ExitCode, phase)
	if tail := p.StderrTail(3); tail != "" {
		err = errors.WithDetail(err, tail)
	}
	return errors.Mark(err, ErrSpawn)
}
