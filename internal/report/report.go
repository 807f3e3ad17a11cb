// Package report holds the aggregate discovery report: one terminal outcome
// per configured server, the cross-server tool-name overlap index, and the
// run summary.
package report

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/deanluus/mcpscan/pkg/protocol"
)

type Status string

const (
	StatusHealthy Status = "healthy"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
	StatusFailed  Status = "failed"
)

// DiscoveryResult is produced exactly once per server per run and is
// immutable afterwards.
type DiscoveryResult struct {
	ServerName   string          `json:"serverName"`
	Status       Status          `json:"status"`
	DurationMs   int64           `json:"durationMs"`
	ToolCount    int             `json:"toolCount"`
	Tools        []protocol.Tool `json:"tools,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

type Summary struct {
	ServersQueried   int `json:"serversQueried"`
	ToolsFound       int `json:"toolsFound"`
	OverlappingNames int `json:"overlappingNames"`
}

type Report struct {
	GeneratedAt time.Time                  `json:"generatedAt"`
	Servers     map[string]DiscoveryResult `json:"servers"`
	Overlaps    map[string][]string        `json:"overlaps,omitempty"`
	Summary     Summary                    `json:"summary"`
}

func New() *Report {
	return &Report{
		GeneratedAt: time.Now().UTC(),
		Servers:     make(map[string]DiscoveryResult),
	}
}

// Finalize computes the overlap index and summary once every server has a
// terminal outcome. Tool names are compared by exact string equality.
func (r *Report) Finalize() {
	owners := make(map[string][]string)
	totalTools := 0

	for _, name := range r.SortedServerNames() {
		res := r.Servers[name]
		totalTools += res.ToolCount
		seen := make(map[string]bool, len(res.Tools))
		for _, tool := range res.Tools {
			if seen[tool.Name] {
				continue
			}
			seen[tool.Name] = true
			owners[tool.Name] = append(owners[tool.Name], name)
		}
	}

	overlaps := make(map[string][]string)
	for toolName, servers := range owners {
		if len(servers) >= 2 {
			sort.Strings(servers)
			overlaps[toolName] = servers
		}
	}
	if len(overlaps) > 0 {
		r.Overlaps = overlaps
	}

	r.Summary = Summary{
		ServersQueried:   len(r.Servers),
		ToolsFound:       totalTools,
		OverlappingNames: len(overlaps),
	}
}

// AllHealthy reports whether every queried server reached healthy status;
// it drives the process exit code.
func (r *Report) AllHealthy() bool {
	if len(r.Servers) == 0 {
		return false
	}
	for _, res := range r.Servers {
		if res.Status != StatusHealthy {
			return false
		}
	}
	return true
}

func (r *Report) SortedServerNames() []string {
	names := make([]string, 0, len(r.Servers))
	for name := range r.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Report) MarshalIndent() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal report")
	}
	return append(data, '\n'), nil
}

func (r *Report) WriteFile(path string) error {
	data, err := r.MarshalIndent()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "write report %s", path)
	}
	return nil
}
