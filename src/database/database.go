package database

import (
	"database/sql"
	stdlog "log"

	"github.com/username/sharepool/src/logger"
	_ "modernc.org/sqlite"
)

var DB *sql.DB

func InitDB(databasePath string) {
	db, err := sql.Open("sqlite", databasePath)
	if err != nil {
		stdlog.Fatalf("failed to open database at %s: %v", databasePath, err)
	}

	DB = db

	if logger.L != nil {
		logger.L.Info("Checking database migrations", "databasePath", databasePath)
	} else {
		stdlog.Println("Checking database migrations for:", databasePath)
	}
	migrateEventsTable()

	createTableStatement := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		user_agent TEXT,
		client_ip TEXT,
		is_blocked BOOLEAN DEFAULT FALSE,
		expires_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY(user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		date TEXT NOT NULL,
		quantity REAL NOT NULL,
		unit_price_gbp REAL,
		unit_price_usd REAL,
		fx_rate REAL,
		grant_id TEXT,
		order_type TEXT,
		security_type TEXT,
		source TEXT NOT NULL,
		hash_id TEXT,
		FOREIGN KEY(user_id) REFERENCES users(id),
		UNIQUE(user_id, hash_id)
	);
	`

	_, err = DB.Exec(createTableStatement)
	if err != nil {
		if logger.L != nil {
			logger.L.Error("failed to create tables", "error", err)
		}
		stdlog.Fatalf("failed to create tables: %v", err)
	}
	if logger.L != nil {
		logger.L.Info("Database tables ensured/created.")
	} else {
		stdlog.Println("Database tables ensured/created.")
	}
}

// migrateEventsTable adds columns introduced after the first release to an
// existing events table.
func migrateEventsTable() {
	var tableName string
	err := DB.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='events'").Scan(&tableName)
	if err != nil {
		if err == sql.ErrNoRows {
			return // table will be created with the full schema
		}
		if logger.L != nil {
			logger.L.Error("Error checking for 'events' table", "error", err)
		} else {
			stdlog.Printf("Error checking for 'events' table: %v", err)
		}
		return
	}

	rows, err := DB.Query("PRAGMA table_info(events)")
	if err != nil {
		if logger.L != nil {
			logger.L.Error("Error querying table schema for 'events'", "error", err)
		} else {
			stdlog.Printf("Error querying table schema for 'events': %v", err)
		}
		return
	}
	defer rows.Close()

	columnExists := make(map[string]bool)
	for rows.Next() {
		var cid, pk int
		var name, dataType string
		var notnullVal int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &dataType, &notnullVal, &dfltValue, &pk); err != nil {
			if logger.L != nil {
				logger.L.Error("Error scanning column info for 'events'", "error", err)
			} else {
				stdlog.Printf("Error scanning column info for 'events': %v", err)
			}
			return
		}
		columnExists[name] = true
	}
	if err = rows.Err(); err != nil {
		if logger.L != nil {
			logger.L.Error("Error iterating over column info for 'events'", "error", err)
		} else {
			stdlog.Printf("Error iterating over column info for 'events': %v", err)
		}
		return
	}

	addColumn := func(name, definition string) {
		if columnExists[name] {
			return
		}
		if _, err := DB.Exec("ALTER TABLE events ADD COLUMN " + name + " " + definition); err != nil {
			logger.L.Error("Error adding column to 'events' table", "column", name, "error", err)
		} else {
			logger.L.Info("Added column to 'events' table", "column", name)
		}
	}

	addColumn("order_type", "TEXT")
	addColumn("security_type", "TEXT")
	addColumn("hash_id", "TEXT")
}
