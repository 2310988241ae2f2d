// Package config provides application configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/semihsipahi/climblearn-api/internal/workflow"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string

	StoreDriver   string
	DBPath        string
	MongoURI      string
	MongoDatabase string

	Workflow WorkflowConfig

	DefaultTopic       string
	DefaultStudentName string

	// Empty keys disable the corresponding guard.
	ClientAPIKey string
	AdminAPIKey  string

	NATSURL           string
	NATSSubjectPrefix string
	PublishTimeout    time.Duration
}

// WorkflowConfig controls the workflow engine client.
type WorkflowConfig struct {
	BaseURL     string
	Keys        workflow.Keys
	RequireKeys bool
	Timeout     time.Duration
}

// flowKeyEnv maps each flow to the variable holding its API key.
var flowKeyEnv = map[workflow.Flow]string{
	workflow.FlowWelcoming:  "DIFY_KEY_WELCOMING",
	workflow.FlowReadyCheck: "DIFY_KEY_READY_CHECK",
	workflow.FlowTopicInit:  "DIFY_KEY_TOPIC_INIT",
	workflow.FlowSeparation: "DIFY_KEY_SEPARATION",
	workflow.FlowQuestion:   "DIFY_KEY_QUESTION",
	workflow.FlowAnswer:     "DIFY_KEY_ANSWER",
	workflow.FlowReLesson:   "DIFY_KEY_RELESSON",
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	keys := make(workflow.Keys, len(flowKeyEnv))
	for flow, env := range flowKeyEnv {
		keys[flow] = strings.TrimSpace(getEnv(env, ""))
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		FrontendURL:   getEnv("FRONTEND_URL", ""),
		StoreDriver:   strings.ToLower(strings.TrimSpace(getEnv("STORE_DRIVER", DriverSQLite))),
		DBPath:        getEnv("DB_PATH", "./data/climblearn.db"),
		MongoURI:      getEnv("MONGO_URI", ""),
		MongoDatabase: getEnv("MONGO_DATABASE", "climblearn"),
		Workflow: WorkflowConfig{
			BaseURL:     getEnv("DIFY_BASE_URL", workflow.DefaultBaseURL),
			Keys:        keys,
			RequireKeys: getEnvBool("WORKFLOW_REQUIRE_KEYS", false),
			Timeout:     getEnvDuration("WORKFLOW_TIMEOUT", workflow.DefaultTimeout),
		},
		DefaultTopic:       getEnv("DEFAULT_TOPIC", "Temel İlk Yardım Eğitimi"),
		DefaultStudentName: getEnv("DEFAULT_STUDENT_NAME", "Öğrenci"),
		ClientAPIKey:       getEnv("CLIENT_API_KEY", ""),
		AdminAPIKey:        getEnv("ADMIN_API_KEY", ""),
		NATSURL:            getEnv("NATS_URL", ""),
		NATSSubjectPrefix:  getEnv("NATS_SUBJECT_PREFIX", "interactions"),
		PublishTimeout:     getEnvDuration("PUBLISH_TIMEOUT", 2*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.StoreDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI cannot be empty when STORE_DRIVER=mongo")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of sqlite, mongo, memory (got %q)", c.StoreDriver)
	}
	if c.Workflow.BaseURL == "" {
		return fmt.Errorf("DIFY_BASE_URL cannot be empty")
	}
	if c.Workflow.Timeout <= 0 {
		return fmt.Errorf("WORKFLOW_TIMEOUT must be > 0")
	}
	if c.PublishTimeout <= 0 {
		return fmt.Errorf("PUBLISH_TIMEOUT must be > 0")
	}
	if err := c.Workflow.Keys.Validate(c.Workflow.RequireKeys); err != nil {
		return err
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origin list.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// WebSocketOriginPatterns returns AllowedOrigins reduced to the host
// patterns websocket.Accept matches against.
func (c *Config) WebSocketOriginPatterns() []string {
	var patterns []string
	for _, o := range c.AllowedOrigins() {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// getEnvDuration accepts Go duration strings ("90s") or plain seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
