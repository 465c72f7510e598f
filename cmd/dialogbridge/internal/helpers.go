package internal

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/sipeed/dialogbridge/pkg/config"
	"github.com/sipeed/dialogbridge/pkg/ipc"
	"github.com/sipeed/dialogbridge/pkg/logger"
	"github.com/sipeed/dialogbridge/pkg/redaction"
)

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

const DialTimeout = 5 * time.Second

func GetConfigPath() string {
	return config.ResolveRuntimePaths().ConfigPath
}

// LoadConfig loads the config and applies its logging settings.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(GetConfigPath())
	if err != nil {
		return nil, err
	}
	ApplyLogging(cfg.Logging)
	return cfg, nil
}

func ApplyLogging(lc config.LoggingConfig) {
	logger.SetLevel(logger.ParseLevel(lc.Level))
	rc := redaction.DefaultConfig()
	rc.Enabled = lc.Redact
	logger.ConfigureRedaction(rc)
	if lc.File != "" {
		if err := logger.EnableFileLogging(lc.File); err != nil {
			logger.WarnCF("cli", "File logging disabled", map[string]any{"error": err.Error()})
		}
	}
}

// ParsePID parses a pid argument. "auto" and "0" select the only running
// bridge.
func ParsePID(arg string) (int, error) {
	if arg == "auto" {
		return 0, nil
	}
	pid, err := strconv.Atoi(arg)
	if err != nil || pid < 0 {
		return 0, fmt.Errorf("invalid pid %q", arg)
	}
	return pid, nil
}

// DialSession connects to the bridge in process pidArg.
func DialSession(ctx context.Context, cfg *config.Config, pidArg string) (*ipc.Client, error) {
	pid, err := ParsePID(pidArg)
	if err != nil {
		return nil, err
	}
	endpoint, err := ipc.ResolveEndpoint(ipc.OptionsFromConfig(cfg.Remote), pid)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()
	return ipc.Dial(ctx, endpoint)
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

func GetVersion() string {
	return version
}
