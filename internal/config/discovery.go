package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvConfig names the environment variable that points at a config file.
const EnvConfig = "AUTOMATON_CONFIG"

// Discover resolves the configuration file. Priority order: explicit path,
// $AUTOMATON_CONFIG, ./automaton.yaml, ~/.config/automaton/automaton.yaml,
// /etc/automaton/automaton.yaml.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p := os.Getenv(EnvConfig); p != "" {
		return p, nil
	}

	candidates := []string{DefaultFilename}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "automaton", DefaultFilename))
	}
	candidates = append(candidates, filepath.Join("/etc", "automaton", DefaultFilename))

	for _, c := range candidates {
		if fileExists(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("no config found (checked: $%s, ./%s, ~/.config/automaton, /etc/automaton)", EnvConfig, DefaultFilename)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
