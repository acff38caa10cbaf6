// Package config loads process configuration from the environment into an
// explicit struct. Constructors receive the struct; nothing reads the
// environment after startup, so tests stay deterministic and parallel.
package config

import (
	"os"
	"strings"
	"time"

	"hearth/internal/uia"
)

// Server captures the runtime settings for the registration server.
type Server struct {
	Addr          string
	ServerName    string
	JWTSigningKey string
	AllowGuests   bool
	UIAFlows      []uia.Flow
	UIASessionTTL time.Duration
	// DatabaseDSN selects the postgres store when set; empty means the
	// in-memory store.
	DatabaseDSN string
	// RedisAddr selects the redis UIA session store when set.
	RedisAddr string
}

// FromEnv builds a Server config from environment variables so main stays
// lean.
func FromEnv() Server {
	cfg := Server{
		Addr:          envOr("HEARTH_ADDR", ":8008"),
		ServerName:    envOr("HEARTH_SERVER_NAME", "localhost"),
		JWTSigningKey: envOr("HEARTH_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		AllowGuests:   os.Getenv("HEARTH_ALLOW_GUESTS") != "false",
		UIAFlows:      parseFlows(os.Getenv("HEARTH_UIA_FLOWS")),
		UIASessionTTL: parseDuration(os.Getenv("HEARTH_UIA_SESSION_TTL"), 5*time.Minute),
		DatabaseDSN:   os.Getenv("HEARTH_DATABASE_DSN"),
		RedisAddr:     os.Getenv("HEARTH_REDIS_ADDR"),
	}
	return cfg
}

// parseFlows decodes "stage,stage|stage" into acceptable flows: flows split
// on '|', stages within a flow on ','. Empty input yields the default
// password-only flow.
func parseFlows(raw string) []uia.Flow {
	if strings.TrimSpace(raw) == "" {
		return []uia.Flow{{Stages: []uia.StageType{uia.StagePassword}}}
	}

	var flows []uia.Flow
	for _, flowSpec := range strings.Split(raw, "|") {
		var stages []uia.StageType
		for _, stage := range strings.Split(flowSpec, ",") {
			if stage = strings.TrimSpace(stage); stage != "" {
				stages = append(stages, uia.StageType(stage))
			}
		}
		if len(stages) > 0 {
			flows = append(flows, uia.Flow{Stages: stages})
		}
	}
	if len(flows) == 0 {
		return []uia.Flow{{Stages: []uia.StageType{uia.StagePassword}}}
	}
	return flows
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
