// File: internal/config/config.go
// Quiz Engine - Configuration Management

package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the quiz server.
type Config struct {
	// Server settings
	ServerName    string
	ServerVersion string
	ServerHost    string // Host/IP to bind to (empty string = all interfaces, "localhost" = local only)
	ServerPort    int

	// Database settings
	DBType           string // "sqlite" or "postgres"
	DBHost           string // For PostgreSQL
	DBPort           int    // For PostgreSQL
	DBName           string // Database name or file path for SQLite
	DBUser           string // For PostgreSQL
	DBPassword       string // For PostgreSQL
	DBMaxConnections int
	DBMaxIdleConns   int

	// Redis settings (question-template cache)
	RedisEnabled bool
	RedisHost    string
	RedisPort    int
	RedisDB      int

	// Game behavior
	MaxPlayersPerGame        int
	MaxAnswerBuffer          int
	GlobalConnCap            int
	BatchSize                int
	BatchTimeoutMS           int
	LatencyPingIntervalSecs  int
	DisconnectTTLMinutes     int
	AbandonedGameIdleMinutes int
	StoreReapAgeHours        int
	LeaderboardBroadcastTopN int

	ShutdownTimeoutSecs int

	// TLS settings (for future use)
	TLSEnabled  bool
	TLSCertFile string
	TLSKeyFile  string
}

// Default configuration values
var defaultConfig = Config{
	ServerName:    "Quiz Engine",
	ServerVersion: "0.1.0",
	ServerHost:    "", // Empty = bind to all interfaces (0.0.0.0)
	ServerPort:    8080,

	DBType:           "sqlite",
	DBHost:           "localhost",
	DBPort:           5432,
	DBName:           "data/quiz.db",
	DBUser:           "quizuser",
	DBPassword:       "",
	DBMaxConnections: 25,
	DBMaxIdleConns:   5,

	RedisEnabled: false,
	RedisHost:    "localhost",
	RedisPort:    6379,
	RedisDB:      0,

	MaxPlayersPerGame:        300,
	MaxAnswerBuffer:          500,
	GlobalConnCap:            1000,
	BatchSize:                50,
	BatchTimeoutMS:           100,
	LatencyPingIntervalSecs:  5,
	DisconnectTTLMinutes:     10,
	AbandonedGameIdleMinutes: 30,
	StoreReapAgeHours:        24,
	LeaderboardBroadcastTopN: 10,

	ShutdownTimeoutSecs: 30,

	TLSEnabled:  false,
	TLSCertFile: "certs/server.crt",
	TLSKeyFile:  "certs/server.key",
}

// LoadConfig loads configuration from an environment file.
// Command line flag -env can specify a custom .env file.
func LoadConfig() (*Config, error) {
	// Parse command line flags
	envFile := flag.String("env", ".env", "Path to environment configuration file")
	flag.Parse()

	log.Printf("Loading configuration from: %s", *envFile)

	config := defaultConfig

	// godotenv populates the process environment from the file; missing
	// file is not fatal, we bootstrap a default one instead.
	if err := godotenv.Load(*envFile); err != nil {
		if os.IsNotExist(err) {
			log.Printf("Configuration file %s not found, creating with defaults...", *envFile)
			if err := createDefaultEnvFile(*envFile); err != nil {
				return nil, fmt.Errorf("failed to create default config: %w", err)
			}
			log.Printf("Created default configuration file: %s", *envFile)
		} else {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	applyEnvironment(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Println("Configuration loaded successfully")
	return &config, nil
}

// applyEnvironment overlays key=value settings from the process
// environment (populated by godotenv.Load, or set directly by the caller)
// onto config.
func applyEnvironment(config *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("Warning: invalid integer for %s: %s", key, v)
			return
		}
		*dst = n
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v == "true" || v == "1"
		}
	}

	str("SERVER_NAME", &config.ServerName)
	str("SERVER_VERSION", &config.ServerVersion)
	str("SERVER_HOST", &config.ServerHost)
	num("SERVER_PORT", &config.ServerPort)

	str("DB_TYPE", &config.DBType)
	str("DB_HOST", &config.DBHost)
	num("DB_PORT", &config.DBPort)
	str("DB_NAME", &config.DBName)
	str("DB_USER", &config.DBUser)
	str("DB_PASSWORD", &config.DBPassword)
	num("DB_MAX_CONNECTIONS", &config.DBMaxConnections)
	num("DB_MAX_IDLE_CONNS", &config.DBMaxIdleConns)

	boolean("REDIS_ENABLED", &config.RedisEnabled)
	str("REDIS_HOST", &config.RedisHost)
	num("REDIS_PORT", &config.RedisPort)
	num("REDIS_DB", &config.RedisDB)

	num("MAX_PLAYERS_PER_GAME", &config.MaxPlayersPerGame)
	num("MAX_ANSWER_BUFFER", &config.MaxAnswerBuffer)
	num("GLOBAL_CONN_CAP", &config.GlobalConnCap)
	num("BATCH_SIZE", &config.BatchSize)
	num("BATCH_TIMEOUT_MS", &config.BatchTimeoutMS)
	num("LATENCY_PING_INTERVAL_SECS", &config.LatencyPingIntervalSecs)
	num("DISCONNECT_TTL_MINUTES", &config.DisconnectTTLMinutes)
	num("ABANDONED_GAME_IDLE_MINUTES", &config.AbandonedGameIdleMinutes)
	num("STORE_REAP_AGE_HOURS", &config.StoreReapAgeHours)
	num("LEADERBOARD_BROADCAST_TOP_N", &config.LeaderboardBroadcastTopN)

	num("SHUTDOWN_TIMEOUT_SECS", &config.ShutdownTimeoutSecs)

	boolean("TLS_ENABLED", &config.TLSEnabled)
	str("TLS_CERT_FILE", &config.TLSCertFile)
	str("TLS_KEY_FILE", &config.TLSKeyFile)
}

// createDefaultEnvFile creates a default .env file with comments
func createDefaultEnvFile(filename string) error {
	content := `# Quiz Engine Configuration File
# This file contains bootstrap configuration for the quiz server
# It will be automatically created with defaults if missing

# ==============================================================================
# SERVER SETTINGS
# ==============================================================================
SERVER_NAME=Quiz Engine
SERVER_VERSION=0.1.0

# Host/IP to bind to:
#   (empty)      = Bind to all interfaces (0.0.0.0) - accessible from network
#   localhost    = Bind to localhost only (127.0.0.1) - local connections only
#   192.168.1.10 = Bind to specific IP address
SERVER_HOST=

SERVER_PORT=8080

# ==============================================================================
# DATABASE SETTINGS
# ==============================================================================
# DB_TYPE: "sqlite" or "postgres"
DB_TYPE=sqlite

# For SQLite (single file database)
# DB_NAME is the path to the database file
DB_NAME=data/quiz.db

# For PostgreSQL (uncomment and configure for a shared deployment)
# DB_HOST=localhost
# DB_PORT=5432
# DB_USER=quizuser
# DB_PASSWORD=your_secure_password_here

# Database connection pool settings
DB_MAX_CONNECTIONS=25
DB_MAX_IDLE_CONNS=5

# ==============================================================================
# REDIS SETTINGS (question-template cache)
# ==============================================================================
REDIS_ENABLED=false
REDIS_HOST=localhost
REDIS_PORT=6379
REDIS_DB=0

# ==============================================================================
# GAME BEHAVIOR
# ==============================================================================
MAX_PLAYERS_PER_GAME=300
MAX_ANSWER_BUFFER=500
GLOBAL_CONN_CAP=1000
BATCH_SIZE=50
BATCH_TIMEOUT_MS=100
LATENCY_PING_INTERVAL_SECS=5
DISCONNECT_TTL_MINUTES=10
ABANDONED_GAME_IDLE_MINUTES=30
STORE_REAP_AGE_HOURS=24
LEADERBOARD_BROADCAST_TOP_N=10

SHUTDOWN_TIMEOUT_SECS=30

# ==============================================================================
# TLS/SSL SETTINGS (Future Use)
# ==============================================================================
TLS_ENABLED=false
TLS_CERT_FILE=certs/server.crt
TLS_KEY_FILE=certs/server.key
`

	return os.WriteFile(filename, []byte(content), 0644)
}

// validateConfig checks if configuration values are valid
func validateConfig(config *Config) error {
	if config.ServerPort < 1 || config.ServerPort > 65535 {
		return fmt.Errorf("invalid SERVER_PORT: must be between 1 and 65535")
	}

	if config.DBType != "sqlite" && config.DBType != "postgres" {
		return fmt.Errorf("invalid DB_TYPE: must be 'sqlite' or 'postgres'")
	}

	if config.DBName == "" {
		return fmt.Errorf("DB_NAME cannot be empty")
	}

	if config.DBType == "postgres" {
		if config.DBHost == "" {
			return fmt.Errorf("DB_HOST required for PostgreSQL")
		}
		if config.DBUser == "" {
			return fmt.Errorf("DB_USER required for PostgreSQL")
		}
	}

	if config.MaxPlayersPerGame < 1 {
		return fmt.Errorf("MAX_PLAYERS_PER_GAME must be at least 1")
	}

	if config.MaxAnswerBuffer < 1 {
		return fmt.Errorf("MAX_ANSWER_BUFFER must be at least 1")
	}

	if config.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be at least 1")
	}

	if config.ShutdownTimeoutSecs < 5 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT_SECS must be at least 5 seconds")
	}

	return nil
}

// GetConnectionString returns the database connection string
func (c *Config) GetConnectionString() string {
	switch c.DBType {
	case "sqlite":
		return c.DBName
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName,
		)
	default:
		return ""
	}
}

// GetBindAddress returns the address to bind the server to
func (c *Config) GetBindAddress() string {
	if c.ServerHost == "" {
		return "0.0.0.0" // All interfaces
	}
	return c.ServerHost
}

// GetListenAddress returns the full listen address (host:port)
func (c *Config) GetListenAddress() string {
	return fmt.Sprintf("%s:%d", c.GetBindAddress(), c.ServerPort)
}

// RedisAddr returns the host:port the redis client should dial.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// LogConfig logs the current configuration (without sensitive data)
func (c *Config) LogConfig() {
	log.Println("=== Server Configuration ===")
	log.Printf("Server: %s v%s", c.ServerName, c.ServerVersion)
	log.Printf("Bind Address: %s:%d", c.GetBindAddress(), c.ServerPort)
	log.Printf("Database Type: %s", c.DBType)
	if c.DBType == "sqlite" {
		log.Printf("Database File: %s", c.DBName)
	} else {
		log.Printf("Database Host: %s:%d", c.DBHost, c.DBPort)
		log.Printf("Database Name: %s", c.DBName)
	}
	log.Printf("Max Players/Game: %d", c.MaxPlayersPerGame)
	log.Printf("Redis: %v", c.RedisEnabled)
	log.Printf("TLS: %v", c.TLSEnabled)
	log.Println(strings.Repeat("=", 27))
}
