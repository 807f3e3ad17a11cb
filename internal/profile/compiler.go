// Package profile compiles named server subsets into deterministic
// profiles: canonical server ordering, tool counts, and a token-usage
// estimate expressed as a low–high range. Identical inputs always produce
// byte-identical output, which downstream diffing relies on.
package profile

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/deanluus/mcpscan/internal/config"
	"github.com/deanluus/mcpscan/internal/logger"
)

const (
	// TokensPerTool is the average cost of one tool definition: name,
	// description, and input schema.
	TokensPerTool = 180
	// TokensPerServer covers server metadata and connection info.
	TokensPerServer = 50

	// rangeSpread is the ±15% variance applied to the point estimate.
	rangeSpread = 0.15

	// defaultToolCount is assumed for servers absent from both the live
	// catalog and the known-counts table.
	defaultToolCount = 10
)

// DefaultPriority lists the servers that must occupy the first two ordering
// positions of every profile that includes them.
var DefaultPriority = []string{"github", "filesystem"}

// knownToolCounts carries tool counts observed in prior discovery runs,
// used when a profile is compiled without a live catalog.
var knownToolCounts = map[string]int{
	"playwright": 32,
	"github":     26,
	"filesystem": 14,
	"git":        12,
	"memory":     9,
	"puppeteer":  7,
	"sqlite":     5,
	"postgres":   1,
	"fetch":      1,
}

type TokenRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type Profile struct {
	Name      string     `json:"name"`
	Servers   []string   `json:"servers"`
	ToolCount int        `json:"toolCount"`
	Estimated TokenRange `json:"estimatedTokens"`
}

type Compiler struct {
	priority []string
	// catalog maps server name to discovered tool count; servers missing
	// from it fall back to known counts, then to defaultToolCount.
	catalog map[string]int
}

func NewCompiler(priority []string) *Compiler {
	if priority == nil {
		priority = DefaultPriority
	}
	return &Compiler{priority: priority}
}

// WithCatalog supplies live per-server tool counts from a discovery run.
func (c *Compiler) WithCatalog(catalog map[string]int) *Compiler {
	c.catalog = catalog
	return c
}

// Compile derives one profile from its definition. Servers named in the
// definition but absent from the configuration are skipped with a warning
// rather than failing the whole run.
func (c *Compiler) Compile(def config.ProfileDefinition, cfg *config.Config) (Profile, error) {
	log := logger.ForComponent("profile")

	subset := make([]string, 0, len(def.Servers))
	for _, name := range def.Servers {
		if _, ok := cfg.Servers[name]; !ok {
			log.Warn("profile lists unconfigured server", "profile", def.Name, "server", name)
			continue
		}
		subset = append(subset, name)
	}
	if len(subset) == 0 {
		return Profile{}, errors.Newf("profile %q matches no configured servers", def.Name)
	}

	ordered := orderServers(subset, c.priority)

	toolCount := 0
	for _, name := range ordered {
		toolCount += c.toolCountFor(name)
	}

	return Profile{
		Name:      def.Name,
		Servers:   ordered,
		ToolCount: toolCount,
		Estimated: Estimate(toolCount, len(ordered)),
	}, nil
}

// CompileAll compiles every definition in order.
func (c *Compiler) CompileAll(defs []config.ProfileDefinition, cfg *config.Config) ([]Profile, error) {
	profiles := make([]Profile, 0, len(defs))
	for _, def := range defs {
		p, err := c.Compile(def, cfg)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (c *Compiler) toolCountFor(server string) int {
	if n, ok := c.catalog[server]; ok {
		return n
	}
	if n, ok := knownToolCounts[server]; ok {
		return n
	}
	return defaultToolCount
}

// orderServers applies the canonical ordering invariant: priority servers
// first, in priority order, regardless of subset order; the rest follow in
// subset order.
func orderServers(subset, priority []string) []string {
	present := make(map[string]bool, len(subset))
	for _, name := range subset {
		present[name] = true
	}

	ordered := make([]string, 0, len(subset))
	isPriority := make(map[string]bool, len(priority))
	for _, name := range priority {
		isPriority[name] = true
		if present[name] {
			ordered = append(ordered, name)
		}
	}
	for _, name := range subset {
		if !isPriority[name] {
			ordered = append(ordered, name)
		}
	}
	return ordered
}

// Estimate converts tool and server counts into a token range. The spread
// communicates that the per-tool weight is an approximation.
func Estimate(toolCount, serverCount int) TokenRange {
	total := toolCount*TokensPerTool + serverCount*TokensPerServer
	return TokenRange{
		Min: int(float64(total) * (1 - rangeSpread)),
		Max: int(float64(total) * (1 + rangeSpread)),
	}
}

// Comparison reports the token and tool deltas between two profiles.
type Comparison struct {
	Current        Profile `json:"current"`
	Other          Profile `json:"other"`
	ToolDifference int     `json:"toolDifference"`
	TokenDiffMin   int     `json:"tokenDifferenceMin"`
	TokenDiffMax   int     `json:"tokenDifferenceMax"`
}

func Compare(current, other Profile) Comparison {
	return Comparison{
		Current:        current,
		Other:          other,
		ToolDifference: other.ToolCount - current.ToolCount,
		TokenDiffMin:   other.Estimated.Min - current.Estimated.Min,
		TokenDiffMax:   other.Estimated.Max - current.Estimated.Max,
	}
}

// Marshal renders profiles as stable, indented JSON.
func Marshal(profiles []Profile) ([]byte, error) {
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal profiles")
	}
	return append(data, '\n'), nil
}
