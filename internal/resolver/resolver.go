// Package resolver substitutes configuration placeholders before a server
// process is spawned. Supported tokens are ${workspaceFolder}, replaced with
// the workspace root, and ${env:NAME}, replaced with the value of the NAME
// environment variable (empty string when unset). Malformed placeholder
// syntax is left untouched.
package resolver

import (
	"os"
	"regexp"
	"strings"
)

const workspaceToken = "${workspaceFolder}"

var envToken = regexp.MustCompile(`\$\{env:([A-Za-z_][A-Za-z0-9_]*)\}`)

// Expand resolves all placeholder tokens in s against the given workspace
// root and the current process environment.
func Expand(s, workspaceRoot string) string {
	return expand(s, workspaceRoot, os.Getenv)
}

func expand(s, workspaceRoot string, lookup func(string) string) string {
	out := strings.ReplaceAll(s, workspaceToken, workspaceRoot)
	return envToken.ReplaceAllStringFunc(out, func(match string) string {
		name := envToken.FindStringSubmatch(match)[1]
		return lookup(name)
	})
}

// ExpandArgs resolves every element of args, returning a new slice. The
// input is never modified.
func ExpandArgs(args []string, workspaceRoot string) []string {
	return expandArgs(args, workspaceRoot, os.Getenv)
}

func expandArgs(args []string, workspaceRoot string, lookup func(string) string) []string {
	if args == nil {
		return nil
	}
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = expand(a, workspaceRoot, lookup)
	}
	return out
}

// ExpandEnv resolves every value of env, returning a new map. Keys are
// never rewritten.
func ExpandEnv(env map[string]string, workspaceRoot string) map[string]string {
	return expandEnv(env, workspaceRoot, os.Getenv)
}

func expandEnv(env map[string]string, workspaceRoot string, lookup func(string) string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = expand(v, workspaceRoot, lookup)
	}
	return out
}
