package helpers

import (
	"database/sql"
	"fmt"

	// Registers the postgres driver
	_ "github.com/lib/pq"
)

// DBConfig stores the connection information used by OpenDB to establish a
// connection to the database
type DBConfig struct {
	Host     string
	Port     int64
	Database string
	Username string
	Password string
}

// DSN returns the lib/pq connection string for c
func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"user=%s dbname=%s host=%s port=%d password=%s sslmode=%s",
		c.Username,
		c.Database,
		c.Host,
		c.Port,
		c.Password,
		"disable",
	)
}

// OpenDB establishes the connection pool and checks the database is
// reachable. The caller owns the returned pool and must Close it.
func OpenDB(c DBConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", c.DSN())
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, err
	}

	// Only the access log writes here, in batches, so a handful of
	// connections is plenty
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	return db, nil
}
