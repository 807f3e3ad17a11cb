package config

import (
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// ProfileDefinition names an explicit subset of configured servers. The
// compiler derives ordering and token estimates from it; nothing here is
// hand-ordered output.
type ProfileDefinition struct {
	Name    string   `yaml:"name"`
	Servers []string `yaml:"servers"`
}

type profileFile struct {
	Profiles []ProfileDefinition `yaml:"profiles"`
}

// LoadProfiles reads profile definitions from a YAML file.
func LoadProfiles(path string) ([]ProfileDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read profiles %s", path), ErrConfiguration)
	}
	return ParseProfiles(data)
}

func ParseProfiles(data []byte) ([]ProfileDefinition, error) {
	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parse profiles"), ErrConfiguration)
	}
	if len(file.Profiles) == 0 {
		return nil, errors.Mark(errors.New("no profiles defined"), ErrConfiguration)
	}

	seen := make(map[string]bool, len(file.Profiles))
	for _, def := range file.Profiles {
		if def.Name == "" {
			return nil, errors.Mark(errors.New("profile with empty name"), ErrConfiguration)
		}
		if seen[def.Name] {
			return nil, errors.Mark(errors.Newf("duplicate profile %q", def.Name), ErrConfiguration)
		}
		seen[def.Name] = true
		if len(def.Servers) == 0 {
			return nil, errors.Mark(errors.Newf("profile %q lists no servers", def.Name), ErrConfiguration)
		}
	}

	return file.Profiles, nil
}
