package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"healthmate/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database for the given driver type.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				username TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				name TEXT,
				gender TEXT,
				birth_date DATETIME,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS health_metrics (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				weight REAL,
				height REAL,
				bmi REAL,
				blood_pressure_systolic INTEGER,
				blood_pressure_diastolic INTEGER,
				heart_rate INTEGER,
				blood_sugar REAL,
				temperature REAL,
				oxygen_saturation INTEGER,
				sleep_hours REAL,
				steps INTEGER,
				recorded_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS dietary_restrictions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				restriction TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				UNIQUE(user_id, restriction),
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS feature_history (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				feature TEXT NOT NULL,
				payload TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS conversation_sessions (
				conversation_id TEXT PRIMARY KEY,
				user_id INTEGER NOT NULL,
				session_type TEXT NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS conversation_messages (
				message_id TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL,
				sender TEXT NOT NULL,
				text TEXT NOT NULL,
				is_important INTEGER NOT NULL DEFAULT 0,
				entities TEXT,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(conversation_id) REFERENCES conversation_sessions(conversation_id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS conversation_summaries (
				summary_id TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL,
				summary_text TEXT NOT NULL,
				key_points TEXT,
				health_entities TEXT,
				message_count INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(conversation_id) REFERENCES conversation_sessions(conversation_id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token TEXT PRIMARY KEY,
				user_id INTEGER NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_health_metrics_user_time ON health_metrics(user_id, recorded_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_feature_history_user ON feature_history(user_id, feature, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_sessions_user_type ON conversation_sessions(user_id, session_type, is_active)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON conversation_messages(conversation_id, created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_summaries_conversation ON conversation_summaries(conversation_id, created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(user_id)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				username VARCHAR(255) NOT NULL UNIQUE,
				password_hash VARCHAR(255) NOT NULL,
				name VARCHAR(255),
				gender VARCHAR(32),
				birth_date DATETIME,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS health_metrics (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				user_id BIGINT UNSIGNED NOT NULL,
				weight DOUBLE,
				height DOUBLE,
				bmi DOUBLE,
				blood_pressure_systolic INT,
				blood_pressure_diastolic INT,
				heart_rate INT,
				blood_sugar DOUBLE,
				temperature DOUBLE,
				oxygen_saturation INT,
				sleep_hours DOUBLE,
				steps INT,
				recorded_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_health_metrics_user_time (user_id, recorded_at),
				CONSTRAINT fk_metrics_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS dietary_restrictions (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				user_id BIGINT UNSIGNED NOT NULL,
				restriction VARCHAR(255) NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				UNIQUE KEY uniq_user_restriction (user_id, restriction),
				CONSTRAINT fk_restrictions_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS feature_history (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				user_id BIGINT UNSIGNED NOT NULL,
				feature VARCHAR(64) NOT NULL,
				payload MEDIUMTEXT NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_feature_history_user (user_id, feature, created_at),
				CONSTRAINT fk_history_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS conversation_sessions (
				conversation_id VARCHAR(36) NOT NULL,
				user_id BIGINT UNSIGNED NOT NULL,
				session_type VARCHAR(64) NOT NULL,
				is_active TINYINT(1) NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (conversation_id),
				INDEX idx_sessions_user_type (user_id, session_type, is_active),
				CONSTRAINT fk_sessions_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS conversation_messages (
				message_id VARCHAR(36) NOT NULL,
				conversation_id VARCHAR(36) NOT NULL,
				sender VARCHAR(16) NOT NULL,
				text MEDIUMTEXT NOT NULL,
				is_important TINYINT(1) NOT NULL DEFAULT 0,
				entities MEDIUMTEXT,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (message_id),
				INDEX idx_messages_conversation (conversation_id, created_at),
				CONSTRAINT fk_messages_session FOREIGN KEY (conversation_id) REFERENCES conversation_sessions(conversation_id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS conversation_summaries (
				summary_id VARCHAR(36) NOT NULL,
				conversation_id VARCHAR(36) NOT NULL,
				summary_text MEDIUMTEXT NOT NULL,
				key_points MEDIUMTEXT,
				health_entities MEDIUMTEXT,
				message_count INT NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (summary_id),
				INDEX idx_summaries_conversation (conversation_id, created_at),
				CONSTRAINT fk_summaries_session FOREIGN KEY (conversation_id) REFERENCES conversation_sessions(conversation_id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token VARCHAR(255) NOT NULL,
				user_id BIGINT UNSIGNED NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				PRIMARY KEY (token),
				INDEX idx_user_tokens_user (user_id),
				CONSTRAINT fk_user_tokens_user FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
