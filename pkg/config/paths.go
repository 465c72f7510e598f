package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvBridgeConfig = "DIALOGBRIDGE_CONFIG"
	EnvBridgeHome   = "DIALOGBRIDGE_HOME"
)

type RuntimePaths struct {
	HomeDir    string
	ConfigPath string
	AuditPath  string
}

// ResolveRuntimePaths honours DIALOGBRIDGE_CONFIG, then DIALOGBRIDGE_HOME,
// then ~/.dialogbridge.
func ResolveRuntimePaths() RuntimePaths {
	if configPath := expandHome(strings.TrimSpace(os.Getenv(EnvBridgeConfig))); configPath != "" {
		return buildRuntimePaths(filepath.Dir(configPath), configPath)
	}

	homeDir := expandHome(strings.TrimSpace(os.Getenv(EnvBridgeHome)))
	if homeDir == "" {
		homeDir = defaultHome()
	}

	return buildRuntimePaths(homeDir, filepath.Join(homeDir, "config.json"))
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".dialogbridge"
	}
	return filepath.Join(home, ".dialogbridge")
}

func buildRuntimePaths(homeDir, configPath string) RuntimePaths {
	return RuntimePaths{
		HomeDir:    homeDir,
		ConfigPath: configPath,
		AuditPath:  filepath.Join(homeDir, "dialogs.log"),
	}
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && (path[1] == '/' || path[1] == '\\') {
			return filepath.Join(home, path[2:])
		}
		return home
	}
	return path
}
