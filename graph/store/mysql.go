package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB implementation of Store[S].
//
// It suits deployments where several chat processes share one run journal.
//
// The DSN format is:
//
//	[username[:password]@][protocol[(address)]]/dbname[?param1=value1&...]
//
// Example:
//
//	user:pass@tcp(localhost:3306)/chat?parseTime=true
type MySQLStore[S any] struct {
	sqlStore[S]
}

var mysqlDialect = dialect{
	name: "mysql",
	createStep: `CREATE TABLE IF NOT EXISTS run_steps (
		run_id VARCHAR(255) NOT NULL,
		step INT NOT NULL,
		node_id VARCHAR(255) NOT NULL,
		state JSON NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, step),
		INDEX idx_run_id (run_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	upsertStep: `INSERT INTO run_steps (run_id, step, node_id, state)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			node_id = VALUES(node_id),
			state = VALUES(state)`,
}

// NewMySQLStore connects to MySQL, verifies the connection and creates the
// schema when missing.
func NewMySQLStore[S any](dsn string) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	m := &MySQLStore[S]{sqlStore: sqlStore[S]{db: db, dialect: mysqlDialect}}
	if err := m.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

// Stats returns connection pool statistics.
func (m *MySQLStore[S]) Stats() sql.DBStats {
	return m.db.Stats()
}
