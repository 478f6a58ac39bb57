package utils

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// Source is one CalDAV account to pull from and push to.
type Source struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// name of the env var holding the password; wins over password
	PasswordEnv string `yaml:"password_env"`
}

type sourcesFile struct {
	Sources []Source `yaml:"sources"`
}

// LoadSources reads the YAML sources file and resolves each entry's
// name and credentials.
func LoadSources(path string) ([]Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadSources: %w", err)
	}
	var parsed sourcesFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("LoadSources: can't parse %s: %w", path, err)
	}
	if len(parsed.Sources) == 0 {
		return nil, fmt.Errorf("LoadSources: no sources in %s", path)
	}
	for i := range parsed.Sources {
		if err := parsed.Sources[i].normalize(i); err != nil {
			return nil, fmt.Errorf("LoadSources: %w", err)
		}
	}
	return parsed.Sources, nil
}

func (s *Source) normalize(index int) error {
	if s.URL == "" {
		return fmt.Errorf("source #%d has no url", index)
	}
	if s.Name == "" {
		u, err := url.Parse(s.URL)
		if err != nil {
			return fmt.Errorf("source #%d has an unparseable url: %w", index, err)
		}
		s.Name = u.Host
	}
	if s.PasswordEnv != "" {
		if v := os.Getenv(s.PasswordEnv); v != "" {
			s.Password = v
		}
	}
	return nil
}
