package flags

import (
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

const (
	// Env vars
	EnvVarPort      = "MCP_PORTAL_PORT"
	EnvVarHost      = "MCP_PORTAL_HOST"
	EnvVarLogLevel  = "MCP_PORTAL_LOG_LEVEL"
	EnvVarLogPath   = "MCP_PORTAL_LOG_PATH"
	EnvVarConfigDir = "MCP_PORTAL_CONFIG_DIR"

	// Defaults
	DefaultPort     = 8020
	DefaultHost     = "0.0.0.0"
	DefaultLogLevel = "info"
	DefaultLogPath  = ""

	// Flag names
	FlagNamePort      = "port"
	FlagNameHost      = "host"
	FlagNameLogLevel  = "log-level"
	FlagNameLogPath   = "log-path"
	FlagNameConfigDir = "config-dir"
)

var (
	Port      int
	Host      string
	LogLevel  string
	LogPath   string
	ConfigDir string
)

// InitFlags registers the global gateway flags, seeding each default from its
// MCP_PORTAL_* environment variable when set.
func InitFlags(fs *pflag.FlagSet) {
	initListen(fs)
	initLogger(fs)
	initConfigDir(fs)
}

func initListen(fs *pflag.FlagSet) {
	if Port == 0 {
		Port = DefaultPort
		if env := strings.TrimSpace(os.Getenv(EnvVarPort)); env != "" {
			if p, err := strconv.Atoi(env); err == nil && p > 0 && p < 65536 {
				Port = p
			}
		}
	}
	fs.IntVar(&Port, FlagNamePort, Port, "port for the gateway to listen on")

	if Host == "" {
		if env := strings.TrimSpace(os.Getenv(EnvVarHost)); env != "" {
			Host = env
		} else {
			Host = DefaultHost
		}
	}
	fs.StringVar(&Host, FlagNameHost, Host, "host interface for the gateway to bind")
}

func initLogger(fs *pflag.FlagSet) {
	if LogLevel == "" {
		if env := strings.TrimSpace(os.Getenv(EnvVarLogLevel)); env != "" {
			LogLevel = strings.ToLower(env)
		} else {
			LogLevel = DefaultLogLevel
		}
	}
	fs.StringVar(&LogLevel, FlagNameLogLevel, LogLevel, "log level (trace, debug, info, warn, error)")

	if LogPath == "" {
		LogPath = strings.TrimSpace(os.Getenv(EnvVarLogPath))
	}
	fs.StringVar(&LogPath, FlagNameLogPath, LogPath, "path to generated log file")
}

func initConfigDir(fs *pflag.FlagSet) {
	if ConfigDir == "" {
		ConfigDir = strings.TrimSpace(os.Getenv(EnvVarConfigDir))
	}
	fs.StringVar(&ConfigDir, FlagNameConfigDir, ConfigDir, "directory holding the gateway's own configuration")
}
