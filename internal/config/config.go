package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"portfolio-copilot/internal/integrations/agent"
)

const apiKeyParamSuffix = "/agent-api-key"

type Config struct {
	// SSM parameter prefix; the agent API key lives at <prefix>/agent-api-key.
	ParamPrefix string
	GateTable   string
	GateLease   time.Duration

	AgentEndpoint string
	AgentID       string
	AgentUserID   string
	// Static key for local runs. Lambda always reads the key from SSM.
	AgentAPIKey  string
	AgentTimeout time.Duration

	MaxMessageLength int
	AllowedOrigin    string

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, after loading an optional
// .env file from the working directory. Variables already set in the
// environment win over the file.
func Load() Config {
	_ = godotenv.Load()
	return Config{
		ParamPrefix:      strings.TrimRight(strings.TrimSpace(os.Getenv("PARAM_PREFIX")), "/"),
		GateTable:        strings.TrimSpace(os.Getenv("GATE_TABLE")),
		GateLease:        envDuration("GATE_LEASE", 60*time.Second),
		AgentEndpoint:    envDefault("AGENT_ENDPOINT", agent.DefaultEndpoint),
		AgentID:          strings.TrimSpace(os.Getenv("AGENT_ID")),
		AgentUserID:      strings.TrimSpace(os.Getenv("AGENT_USER_ID")),
		AgentAPIKey:      strings.TrimSpace(os.Getenv("AGENT_API_KEY")),
		AgentTimeout:     envDuration("AGENT_TIMEOUT", 30*time.Second),
		MaxMessageLength: envInt("MAX_MESSAGE_LENGTH", 1000),
		AllowedOrigin:    envDefault("ALLOWED_ORIGIN", "*"),
		LogLevel:         envDefault("LOG_LEVEL", "info"),
		LogFormat:        envDefault("LOG_FORMAT", "json"),
	}
}

// APIKeyParam is the SSM parameter holding {"token": "..."} for the agent.
func (c Config) APIKeyParam() string {
	if c.ParamPrefix == "" {
		return ""
	}
	return c.ParamPrefix + apiKeyParamSuffix
}

// ValidateLambda reports every variable the Lambda entry point needs but
// does not have.
func (c Config) ValidateLambda() error {
	return missing(map[string]string{
		"PARAM_PREFIX":  c.ParamPrefix,
		"GATE_TABLE":    c.GateTable,
		"AGENT_ID":      c.AgentID,
		"AGENT_USER_ID": c.AgentUserID,
	})
}

// ValidateTerminal checks the terminal client configuration. The API key
// comes from AGENT_API_KEY or, failing that, from SSM under PARAM_PREFIX.
func (c Config) ValidateTerminal() error {
	required := map[string]string{
		"AGENT_ID":      c.AgentID,
		"AGENT_USER_ID": c.AgentUserID,
	}
	if c.AgentAPIKey == "" {
		required["AGENT_API_KEY or PARAM_PREFIX"] = c.ParamPrefix
	}
	return missing(required)
}

func missing(vars map[string]string) error {
	var names []string
	for name, v := range vars {
		if v == "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)
	return fmt.Errorf("config: missing required environment: %s", strings.Join(names, ", "))
}

func envDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// envDuration accepts Go durations ("45s") or plain seconds ("45").
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
