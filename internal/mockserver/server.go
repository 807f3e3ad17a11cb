// Package mockserver implements a minimal MCP server over stdio, used by the
// hidden `mcpscan mock` subcommand and by integration tests. It answers the
// initialize and tools/list methods and can be configured to misbehave in
// the ways real servers do: JSON-RPC errors, hangs, diagnostic noise on
// stdout, and malformed responses.
package mockserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/deanluus/mcpscan/pkg/protocol"
)

type Options struct {
	Name  string
	Tools []protocol.Tool

	// FailInitialize, when non-empty, answers initialize with a JSON-RPC
	// error carrying this message.
	FailInitialize string
	// HangInitialize and HangList never answer the respective request.
	HangInitialize bool
	HangList       bool
	// NoiseLines are written to stdout before serving, imitating servers
	// that log diagnostics to the protocol stream.
	NoiseLines []string
	// Violate answers every request with a response carrying neither
	// result nor error.
	Violate bool
	// Delay is applied before answering each request.
	Delay time.Duration
}

type rwc struct {
	io.ReadCloser
	io.WriteCloser
}

func (s rwc) Close() error {
	rerr := s.ReadCloser.Close()
	werr := s.WriteCloser.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}

// Run serves until the peer disconnects or ctx is cancelled.
func Run(ctx context.Context, opts Options, stdin io.ReadCloser, stdout io.WriteCloser) error {
	for _, line := range opts.NoiseLines {
		fmt.Fprintln(stdout, line)
	}

	if opts.Violate {
		return runViolating(stdin, stdout)
	}

	stream := jsonrpc2.NewBufferedStream(rwc{stdin, stdout}, jsonrpc2.PlainObjectCodec{})
	h := &handler{opts: opts}
	conn := jsonrpc2.NewConn(ctx, stream, jsonrpc2.HandlerWithError(h.handle))

	select {
	case <-conn.DisconnectNotify():
	case <-ctx.Done():
		conn.Close()
	}
	return nil
}

type handler struct {
	opts Options
}

func (h *handler) handle(ctx context.Context, _ *jsonrpc2.Conn, req *jsonrpc2.Request) (any, error) {
	if h.opts.Delay > 0 {
		time.Sleep(h.opts.Delay)
	}

	switch req.Method {
	case "initialize":
		if h.opts.HangInitialize {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		if h.opts.FailInitialize != "" {
			return nil, &jsonrpc2.Error{Code: -32000, Message: h.opts.FailInitialize}
		}
		return protocol.InitializeResult{
			ProtocolVersion: protocol.Version,
			Capabilities:    map[string]any{"tools": map[string]any{}},
			ServerInfo:      map[string]string{"name": h.opts.Name, "version": "0.0.1"},
		}, nil

	case "tools/list":
		if h.opts.HangList {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		tools := h.opts.Tools
		if tools == nil {
			tools = []protocol.Tool{}
		}
		return protocol.ListToolsResult{Tools: tools}, nil

	default:
		return nil, &jsonrpc2.Error{Code: jsonrpc2.CodeMethodNotFound, Message: "method not found"}
	}
}

// runViolating echoes each request ID back in a response with neither
// result nor error, which a conforming client must reject.
func runViolating(stdin io.Reader, stdout io.Writer) error {
	sc := bufio.NewScanner(stdin)
	for sc.Scan() {
		var req protocol.Request
		if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
			continue
		}
		fmt.Fprintf(stdout, "{\"jsonrpc\":\"2.0\",\"id\":%d}\n", req.ID)
	}
	return sc.Err()
}

// MakeTools fabricates n schema-described tools, optionally prefixed, for
// demos and tests.
func MakeTools(prefix string, names ...string) []protocol.Tool {
	tools := make([]protocol.Tool, 0, len(names))
	for _, name := range names {
		full := name
		if prefix != "" {
			full = prefix + "_" + name
		}
		tools = append(tools, protocol.Tool{
			Name:        full,
			Description: "mock tool " + full,
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		})
	}
	return tools
}
