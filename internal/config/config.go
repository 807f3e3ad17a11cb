// Package config loads and validates the MCP server configuration file.
// Validation is fail-fast: a malformed entry aborts loading before any
// server process is spawned.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/deanluus/mcpscan/internal/logger"
)

// ErrConfiguration marks fatal configuration failures. Per-server runtime
// failures never carry this mark.
var ErrConfiguration = errors.New("invalid mcp configuration")

// knownCommands are the launchers MCP servers are normally distributed
// with. Anything else still loads but is logged as unusual.
var knownCommands = []string{"npx", "uvx", "node", "python", "python3"}

type ServerConfig struct {
	Name    string            `json:"-"`
	Command string            `json:"command"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
}

type Config struct {
	Servers map[string]ServerConfig `json:"servers"`
}

// SortedNames returns the configured server names in lexical order.
func (c *Config) SortedNames() []string {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read config %s", path), ErrConfiguration)
	}
	return Parse(data)
}

type rawServer struct {
	Command *string           `json:"command"`
	Args    *[]string         `json:"args"`
	Env     map[string]string `json:"env"`
}

type rawConfig struct {
	Servers map[string]rawServer `json:"servers"`
}

// Parse decodes and validates a configuration document. All violations are
// collected so a broken file is reported in one pass.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parse config"), ErrConfiguration)
	}

	if raw.Servers == nil {
		return nil, errors.Mark(errors.New("missing required field 'servers'"), ErrConfiguration)
	}
	if len(raw.Servers) == 0 {
		return nil, errors.Mark(errors.New("no servers configured"), ErrConfiguration)
	}

	log := logger.ForComponent("config")

	var problems []string
	cfg := &Config{Servers: make(map[string]ServerConfig, len(raw.Servers))}

	for _, name := range sortedKeys(raw.Servers) {
		server := raw.Servers[name]

		if server.Command == nil {
			problems = append(problems, fmt.Sprintf("server %q: missing required field 'command'", name))
		} else if *server.Command == "" {
			problems = append(problems, fmt.Sprintf("server %q: 'command' must be a non-empty string", name))
		} else if !isKnownCommand(*server.Command) {
			log.Warn("unusual server command",
				"server", name,
				"command", *server.Command,
				"expected", strings.Join(knownCommands, ", "))
		}

		if server.Args == nil {
			problems = append(problems, fmt.Sprintf("server %q: missing required field 'args'", name))
		}

		if len(problems) > 0 {
			continue
		}

		entry := ServerConfig{
			Name:    name,
			Command: *server.Command,
			Args:    *server.Args,
			Env:     server.Env,
		}
		cfg.Servers[name] = entry
	}

	if len(problems) > 0 {
		return nil, errors.Mark(errors.Newf("%s", strings.Join(problems, "; ")), ErrConfiguration)
	}

	return cfg, nil
}

func isKnownCommand(command string) bool {
	for _, c := range knownCommands {
		if c == command {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]rawServer) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
