package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deanluus/mcpscan/internal/config"
)

func testConfig(names ...string) *config.Config {
	cfg := &config.Config{Servers: make(map[string]config.ServerConfig, len(names))}
	for _, name := range names {
		cfg.Servers[name] = config.ServerConfig{Name: name, Command: "npx", Args: []string{name}}
	}
	return cfg
}

func TestPriorityServersOrderedFirst(t *testing.T) {
	cfg := testConfig("github", "filesystem", "fetch")
	def := config.ProfileDefinition{Name: "dev", Servers: []string{"fetch", "filesystem", "github"}}

	p, err := NewCompiler(nil).Compile(def, cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"github", "filesystem", "fetch"}, p.Servers)
}

func TestMissingPriorityServerSkipped(t *testing.T) {
	cfg := testConfig("github", "fetch", "memory")
	def := config.ProfileDefinition{Name: "dev", Servers: []string{"memory", "fetch", "github"}}

	p, err := NewCompiler(nil).Compile(def, cfg)
	require.NoError(t, err)

	// filesystem is priority but not in the subset; the rest keep subset order.
	assert.Equal(t, []string{"github", "memory", "fetch"}, p.Servers)
}

func TestCompileIsDeterministic(t *testing.T) {
	cfg := testConfig("github", "filesystem", "git", "fetch")
	defs := []config.ProfileDefinition{
		{Name: "minimal", Servers: []string{"fetch"}},
		{Name: "dev", Servers: []string{"git", "fetch", "github", "filesystem"}},
	}

	first, err := NewCompiler(nil).CompileAll(defs, cfg)
	require.NoError(t, err)
	second, err := NewCompiler(nil).CompileAll(defs, cfg)
	require.NoError(t, err)

	a, err := Marshal(first)
	require.NoError(t, err)
	b, err := Marshal(second)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestTokenEstimate(t *testing.T) {
	cfg := testConfig("github")
	def := config.ProfileDefinition{Name: "gh", Servers: []string{"github"}}

	p, err := NewCompiler(nil).Compile(def, cfg)
	require.NoError(t, err)

	// 26 tools * 180 + 1 server * 50 = 4730, ±15%.
	assert.Equal(t, 26, p.ToolCount)
	assert.InDelta(t, 4730*0.85, p.Estimated.Min, 1)
	assert.InDelta(t, 4730*1.15, p.Estimated.Max, 1)
	assert.Less(t, p.Estimated.Min, p.Estimated.Max)
}

func TestUnknownServerUsesDefaultCount(t *testing.T) {
	cfg := testConfig("homegrown")
	def := config.ProfileDefinition{Name: "custom", Servers: []string{"homegrown"}}

	p, err := NewCompiler(nil).Compile(def, cfg)
	require.NoError(t, err)

	assert.Equal(t, defaultToolCount, p.ToolCount)
}

func TestCatalogOverridesKnownCounts(t *testing.T) {
	cfg := testConfig("github")
	def := config.ProfileDefinition{Name: "gh", Servers: []string{"github"}}

	p, err := NewCompiler(nil).WithCatalog(map[string]int{"github": 30}).Compile(def, cfg)
	require.NoError(t, err)

	assert.Equal(t, 30, p.ToolCount)
}

func TestUnconfiguredServerSkipped(t *testing.T) {
	cfg := testConfig("fetch")
	def := config.ProfileDefinition{Name: "dev", Servers: []string{"fetch", "ghost"}}

	p, err := NewCompiler(nil).Compile(def, cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"fetch"}, p.Servers)
}

func TestProfileWithNoConfiguredServersFails(t *testing.T) {
	cfg := testConfig("fetch")
	def := config.ProfileDefinition{Name: "dev", Servers: []string{"ghost", "phantom"}}

	_, err := NewCompiler(nil).Compile(def, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dev")
}

func TestCustomPriorityList(t *testing.T) {
	cfg := testConfig("fetch", "memory", "git")
	def := config.ProfileDefinition{Name: "dev", Servers: []string{"git", "fetch", "memory"}}

	p, err := NewCompiler([]string{"memory"}).Compile(def, cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"memory", "git", "fetch"}, p.Servers)
}

func TestCompare(t *testing.T) {
	cfg := testConfig("github", "fetch")

	current, err := NewCompiler(nil).Compile(config.ProfileDefinition{Name: "minimal", Servers: []string{"fetch"}}, cfg)
	require.NoError(t, err)
	other, err := NewCompiler(nil).Compile(config.ProfileDefinition{Name: "full", Servers: []string{"fetch", "github"}}, cfg)
	require.NoError(t, err)

	cmp := Compare(current, other)
	assert.Equal(t, 26, cmp.ToolDifference)
	assert.Positive(t, cmp.TokenDiffMin)
	assert.Positive(t, cmp.TokenDiffMax)
	assert.Equal(t, other.Estimated.Max-current.Estimated.Max, cmp.TokenDiffMax)
}

func TestEstimateScalesWithServers(t *testing.T) {
	small := Estimate(10, 1)
	large := Estimate(10, 3)

	assert.Greater(t, large.Min, small.Min)
	assert.Greater(t, large.Max, small.Max)
}
