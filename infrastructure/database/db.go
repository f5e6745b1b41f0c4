package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type DB struct {
	*sqlx.DB
}

// Open connects to Postgres, retrying while the server comes up. With traced
// set the driver is wrapped by X-Ray so every query becomes a subsegment.
func Open(ctx context.Context, dsn string, traced bool, attempts int) (*DB, error) {
	if attempts <= 0 {
		attempts = 1
	}

	var (
		raw *sql.DB
		err error
	)
	for i := 0; i < attempts; i++ {
		if traced {
			raw, err = xray.SQLContext("postgres", dsn)
		} else {
			raw, err = sql.Open("postgres", dsn)
		}
		if err != nil {
			log.Printf("⏳ Attempt %d/%d: Failed to open database: %v", i+1, attempts, err)
			time.Sleep(2 * time.Second)
			continue
		}

		err = raw.PingContext(ctx)
		if err == nil {
			break
		}

		log.Printf("⏳ Attempt %d/%d: Database ping failed: %v", i+1, attempts, err)
		raw.Close()
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempts, err)
	}

	conn := sqlx.NewDb(raw, "postgres")
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)

	log.Println("✅ Connected to PostgreSQL")
	return &DB{conn}, nil
}

// Migrate creates every table the service uses. It is safe to run on each
// start.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	log.Printf("✅ Schema up to date (%d statements)", len(schema))
	return nil
}
