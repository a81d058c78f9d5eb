// Package config loads anypod's two configuration surfaces: global process
// settings from environment variables (spec §6.1), and the per-feed YAML
// document pointed to by CONFIG_FILE.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/thurstonsan/anypod/internal/apperrors"
)

// Global holds the process-wide settings sourced from environment variables.
type Global struct {
	LogFormat            string // human|json
	LogLevel             string
	LogIncludeStacktrace bool
	BaseURL              string
	DataDir              string
	ServerHost           string
	ServerPort           int
	TrustedProxies       []string
	TZ                   string
	ConfigFile           string
	CookiesPath          string
	DebugMode            bool
	YtDlpUpdateSchedule  string
}

// LoadGlobal reads process-wide settings from the environment, the way the
// teacher's config.Load reads SLIPSTREAM_-prefixed env vars via viper —
// here unprefixed, matching the literal names in spec §6.1.
func LoadGlobal() (*Global, error) {
	v := viper.New()
	v.SetDefault("LOG_FORMAT", "human")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_INCLUDE_STACKTRACE", false)
	v.SetDefault("BASE_URL", "http://localhost:8080")
	v.SetDefault("DATA_DIR", "/data")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("TZ", "UTC")
	v.SetDefault("CONFIG_FILE", "/config/feeds.yaml")
	v.SetDefault("COOKIES_PATH", "")
	v.SetDefault("DEBUG_MODE", false)
	v.SetDefault("YTDLP_UPDATE_SCHEDULE", "0 4 * * *")
	v.AutomaticEnv()

	port, err := parsePort(v.GetString("SERVER_PORT"))
	if err != nil {
		return nil, apperrors.NewConfigLoadError("invalid SERVER_PORT", err)
	}

	return &Global{
		LogFormat:            v.GetString("LOG_FORMAT"),
		LogLevel:             v.GetString("LOG_LEVEL"),
		LogIncludeStacktrace: v.GetBool("LOG_INCLUDE_STACKTRACE"),
		BaseURL:              strings.TrimRight(v.GetString("BASE_URL"), "/"),
		DataDir:              v.GetString("DATA_DIR"),
		ServerHost:           v.GetString("SERVER_HOST"),
		ServerPort:           port,
		TrustedProxies:       splitNonEmpty(v.GetString("TRUSTED_PROXIES"), ","),
		TZ:                   v.GetString("TZ"),
		ConfigFile:           v.GetString("CONFIG_FILE"),
		CookiesPath:          v.GetString("COOKIES_PATH"),
		DebugMode:            v.GetBool("DEBUG_MODE"),
		YtDlpUpdateSchedule:  v.GetString("YTDLP_UPDATE_SCHEDULE"),
	}, nil
}

func parsePort(raw string) (int, error) {
	p, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if p < 1 || p > 65535 {
		return 0, fmt.Errorf("port %d out of range", p)
	}
	return p, nil
}

func splitNonEmpty(raw, sep string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, sep) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Address returns the host:port the HTTP server binds.
func (g *Global) Address() string {
	return net.JoinHostPort(g.ServerHost, strconv.Itoa(g.ServerPort))
}
