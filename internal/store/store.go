// File: internal/store/store.go
// Quiz Engine - Persistence Store connection management

package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"quizengine/internal/config"
)

// Store is the transactional home of Games, Questions, Players, and
// Answers. One Store is constructed in the composition root and passed
// explicitly to everything that needs durable state; there is no
// package-level global connection.
type Store struct {
	db     *sql.DB
	dbType string

	stmts preparedStatements

	// cache is the optional question-template cache. Per-PIN game state
	// never goes through it; templates are the one store-backed
	// resource shared across restarts and processes.
	cache *redis.Client
}

// preparedStatements holds every statement reused across calls, per the
// design notes in 4.1: prepare once, execute many.
type preparedStatements struct {
	getGameByPin      *sql.Stmt
	insertGame        *sql.Stmt
	insertQuestion    *sql.Stmt
	deleteQuestions   *sql.Stmt
	updateGameState   *sql.Stmt
	validateByToken   *sql.Stmt
	insertPlayer      *sql.Stmt
	getPlayerByToken  *sql.Stmt
	setPlayerConn     *sql.Stmt
	updatePlayerScore *sql.Stmt
	insertAnswer      *sql.Stmt
	getAnswer         *sql.Stmt
	deletePlayers     *sql.Stmt
	deletePlayer      *sql.Stmt
	deleteOldGames    *sql.Stmt
}

// New opens and initializes the store's database connection.
func New(cfg *config.Config) (*Store, error) {
	log.Println("Initializing database connection...")

	s := &Store{dbType: cfg.DBType}

	var err error
	switch cfg.DBType {
	case "sqlite":
		err = s.openSQLite(cfg)
	case "postgres":
		err = s.openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DBType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := s.db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s.db.SetMaxOpenConns(cfg.DBMaxConnections)
	s.db.SetMaxIdleConns(cfg.DBMaxIdleConns)

	log.Printf("Database connection established (%s)", cfg.DBType)

	needsInit, err := s.needsInitialization()
	if err != nil {
		return nil, fmt.Errorf("failed to check initialization status: %w", err)
	}
	if needsInit {
		log.Println("Database appears to be new, initializing schema...")
		if err := s.initializeSchema(); err != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		log.Println("Database schema initialized successfully")
	} else {
		log.Println("Database schema already exists")
	}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	if cfg.RedisEnabled {
		s.cache = redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr(),
			DB:   cfg.RedisDB,
		})
		log.Printf("Question template cache enabled (redis %s)", cfg.RedisAddr())
	}

	return s, nil
}

func (s *Store) openSQLite(cfg *config.Config) error {
	dbDir := filepath.Dir(cfg.DBName)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	var err error
	s.db, err = sql.Open("sqlite3", cfg.DBName)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := s.db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Printf("Warning: failed to set WAL mode: %v", err)
	}

	return nil
}

func (s *Store) openPostgres(cfg *config.Config) error {
	connStr := cfg.GetConnectionString()
	var err error
	s.db, err = sql.Open("postgres", connStr)
	if err != nil {
		return fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}
	return nil
}

// needsInitialization checks whether the schema has been created yet.
func (s *Store) needsInitialization() (bool, error) {
	var tableName string
	query := `SELECT name FROM sqlite_master WHERE type='table' AND name='games'`
	if s.dbType == "postgres" {
		query = `SELECT table_name FROM information_schema.tables WHERE table_name='games'`
	}

	err := s.db.QueryRow(query).Scan(&tableName)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// placeholder returns the positional placeholder for this driver: SQLite
// and the sqlite3 driver accept "?", lib/pq requires "$1", "$2", ...
func (s *Store) placeholder(n int) string {
	if s.dbType == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Close closes the database connection and, if present, the cache client.
func (s *Store) Close() error {
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			log.Printf("Warning: error closing template cache: %v", err)
		}
	}
	if s.db != nil {
		log.Println("Closing database connection...")
		return s.db.Close()
	}
	return nil
}
