package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Matching    MatchingConfig
	Presence    PresenceConfig
	Sweep       SweepConfig
	Connections ConnectionsConfig
	Rewards     RewardsConfig
	WebSocket   WebSocketConfig
}

type ServerConfig struct {
	Host            string
	Port            string
	Env             string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Type string // "sqlite" or "postgres"
	DSN  string
	Path string // For SQLite: file path
}

type RedisConfig struct {
	URL          string
	RosterTTL    time.Duration
	RewardsAsync bool
}

// MatchingConfig holds the scoring weights and request bounds of the match engine.
type MatchingConfig struct {
	BaseWeight        int `yaml:"base_weight"`
	IndustryWeight    int `yaml:"industry_weight"`
	GoalWeight        int `yaml:"goal_weight"`
	GoalCap           int `yaml:"goal_cap"`
	ProximityWeight   int `yaml:"proximity_weight"`
	DefaultMaxMatches int `yaml:"default_max_matches"`
	MaxMaxMatches     int `yaml:"max_max_matches"`
	// RequestTTL is fixed at 30 minutes; it is not read from the environment.
	RequestTTL     time.Duration `yaml:"-"`
	SuggestionLead time.Duration `yaml:"-"`
}

type PresenceConfig struct {
	StaleAfter time.Duration
}

type SweepConfig struct {
	Interval time.Duration
}

type ConnectionsConfig struct {
	TTL              time.Duration
	MaxMessageLength int
}

type RewardsConfig struct {
	AcceptPoints  int `yaml:"accept_points"`
	DeclinePoints int `yaml:"decline_points"`
}

type WebSocketConfig struct {
	SendBuffer int
	PingPeriod time.Duration
	PongWait   time.Duration
	ReadLimit  int64
	// AllowedOrigins lists browser origins that may open a socket besides
	// the server's own host. "*" allows any origin.
	AllowedOrigins []string
}

// fileOverrides is the shape of the optional YAML file named by LIVEMESH_CONFIG.
type fileOverrides struct {
	Matching *MatchingConfig `yaml:"matching"`
	Rewards  *RewardsConfig  `yaml:"rewards"`
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dbType := getEnv("DB_TYPE", "sqlite") // Default to SQLite for development
	dsn, dbPath := buildDSN(dbType)

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			Env:             getEnv("ENV", "development"),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			Type: dbType,
			DSN:  dsn,
			Path: dbPath,
		},
		Redis: RedisConfig{
			URL:          getEnv("REDIS_URL", ""),
			RosterTTL:    getEnvDuration("ROSTER_CACHE_TTL", 15*time.Second),
			RewardsAsync: getEnvBool("REWARDS_ASYNC", false),
		},
		Matching:    DefaultMatching(),
		Presence:    PresenceConfig{StaleAfter: getEnvDuration("PRESENCE_STALE_AFTER", 10*time.Minute)},
		Sweep:       SweepConfig{Interval: getEnvDuration("SWEEP_INTERVAL", time.Minute)},
		Connections: ConnectionsConfig{
			TTL:              getEnvDuration("CONNECTION_REQUEST_TTL", 7*24*time.Hour),
			MaxMessageLength: getEnvInt("CONNECTION_MESSAGE_MAX", 500),
		},
		Rewards: RewardsConfig{
			AcceptPoints:  getEnvInt("REWARD_ACCEPT_POINTS", 25),
			DeclinePoints: getEnvInt("REWARD_DECLINE_POINTS", 5),
		},
		WebSocket: WebSocketConfig{
			SendBuffer: getEnvInt("WS_SEND_BUFFER", 64),
			PingPeriod: getEnvDuration("WS_PING_PERIOD", 54*time.Second),
			PongWait:   getEnvDuration("WS_PONG_WAIT", 60*time.Second),
			ReadLimit:  int64(getEnvInt("WS_READ_LIMIT", 64*1024)),
		},
	}

	// Any origin is accepted in development unless a list is given.
	defaultOrigins := ""
	if cfg.Server.Env == "development" {
		defaultOrigins = "*"
	}
	cfg.WebSocket.AllowedOrigins = getEnvList("WS_ALLOWED_ORIGINS", defaultOrigins)

	cfg.Matching.DefaultMaxMatches = getEnvInt("MATCH_DEFAULT_MAX", cfg.Matching.DefaultMaxMatches)
	cfg.Matching.MaxMaxMatches = getEnvInt("MATCH_MAX", cfg.Matching.MaxMaxMatches)

	if path := getEnv("LIVEMESH_CONFIG", ""); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultMatching returns the stock scoring weights. They sum to 100 so a
// candidate matching on every signal scores exactly 100.
func DefaultMatching() MatchingConfig {
	return MatchingConfig{
		BaseWeight:        40,
		IndustryWeight:    25,
		GoalWeight:        8,
		GoalCap:           24,
		ProximityWeight:   11,
		DefaultMaxMatches: 5,
		MaxMaxMatches:     20,
		RequestTTL:        30 * time.Minute,
		SuggestionLead:    10 * time.Minute,
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var overrides fileOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if m := overrides.Matching; m != nil {
		ttl, lead := c.Matching.RequestTTL, c.Matching.SuggestionLead
		merged := c.Matching
		if m.BaseWeight != 0 {
			merged.BaseWeight = m.BaseWeight
		}
		if m.IndustryWeight != 0 {
			merged.IndustryWeight = m.IndustryWeight
		}
		if m.GoalWeight != 0 {
			merged.GoalWeight = m.GoalWeight
		}
		if m.GoalCap != 0 {
			merged.GoalCap = m.GoalCap
		}
		if m.ProximityWeight != 0 {
			merged.ProximityWeight = m.ProximityWeight
		}
		if m.DefaultMaxMatches != 0 {
			merged.DefaultMaxMatches = m.DefaultMaxMatches
		}
		if m.MaxMaxMatches != 0 {
			merged.MaxMaxMatches = m.MaxMaxMatches
		}
		merged.RequestTTL, merged.SuggestionLead = ttl, lead
		c.Matching = merged
	}
	if r := overrides.Rewards; r != nil {
		if r.AcceptPoints != 0 {
			c.Rewards.AcceptPoints = r.AcceptPoints
		}
		if r.DeclinePoints != 0 {
			c.Rewards.DeclinePoints = r.DeclinePoints
		}
	}
	return nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	m := c.Matching
	for name, w := range map[string]int{
		"base_weight":      m.BaseWeight,
		"industry_weight":  m.IndustryWeight,
		"goal_weight":      m.GoalWeight,
		"goal_cap":         m.GoalCap,
		"proximity_weight": m.ProximityWeight,
	} {
		if w < 0 {
			return fmt.Errorf("matching %s must not be negative", name)
		}
	}
	if total := m.BaseWeight + m.IndustryWeight + m.GoalCap + m.ProximityWeight; total > 100 {
		return fmt.Errorf("matching weights sum to %d, must be at most 100", total)
	}
	if m.DefaultMaxMatches < 1 || m.DefaultMaxMatches > m.MaxMaxMatches {
		return fmt.Errorf("default max matches %d out of range 1..%d", m.DefaultMaxMatches, m.MaxMaxMatches)
	}
	if c.Database.Type != "sqlite" && c.Database.Type != "postgres" {
		return fmt.Errorf("unsupported DB_TYPE %q", c.Database.Type)
	}
	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	return nil
}

func buildDSN(dbType string) (string, string) {
	if dbType == "postgres" {
		// PostgreSQL configuration
		dbHost := getEnv("DB_HOST", "localhost")
		dbPort := getEnv("DB_PORT", "5432")
		dbUser := getEnv("DB_USER", "postgres")
		dbPassword := getEnv("DB_PASSWORD", "postgres")
		dbName := getEnv("DB_NAME", "livemesh")
		sslMode := getEnv("DB_SSLMODE", "disable")

		dsn := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			dbHost, dbPort, dbUser, dbPassword, dbName, sslMode,
		)
		return dsn, ""
	}

	// SQLite configuration (default for development)
	dbPath := getEnv("SQLITE_PATH", "./data/livemesh.db")
	dsn := dbPath + "?mode=rwc&_busy_timeout=5000&_journal_mode=WAL"
	return dsn, dbPath
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks. An empty
// value counts as unset.
func getEnvList(key, defaultValue string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		raw = defaultValue
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
