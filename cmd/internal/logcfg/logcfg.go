package logcfg

import (
	"os"
	"path/filepath"

	logs "github.com/danmuck/smplog"
)

const (
	envConfigPath = "SMPLOG_CONFIG"
	configFile    = "smplog.config.toml"
)

// Load returns file-backed logging configuration when available, otherwise
// defaults. The env var wins, then the working directory, then ./local, then
// each of dirs in order (a save directory usually).
func Load(dirs ...string) logs.Config {
	if path := os.Getenv(envConfigPath); path != "" {
		if cfg, err := logs.ConfigFromFile(path); err == nil {
			return cfg
		}
	}
	for _, path := range candidates(dirs) {
		if cfg, err := logs.ConfigFromFile(path); err == nil {
			return cfg
		}
	}
	return logs.DefaultConfig()
}

func candidates(dirs []string) []string {
	paths := []string{
		"./" + configFile,
		"./local/" + configFile,
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		paths = append(paths, filepath.Join(dir, configFile))
	}
	return paths
}
