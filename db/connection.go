package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres, checks the connection and creates missing tables.
func Open(ctx context.Context, connStr string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := createTables(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}
	return conn, nil
}

// schema is applied in order; later tables reference earlier ones.
var schema = []struct {
	name string
	ddl  string
}{
	{"users", `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		user_type TEXT NOT NULL CHECK (user_type IN ('student', 'instructor')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`},
	{"students", `
	CREATE TABLE IF NOT EXISTS students (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		subscription_start TIMESTAMPTZ,
		subscription_end TIMESTAMPTZ
	);`},
	{"instructors", `
	CREATE TABLE IF NOT EXISTS instructors (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		courses_taught TEXT NOT NULL DEFAULT ''
	);`},
	{"courses", `
	CREATE TABLE IF NOT EXISTS courses (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		category TEXT NOT NULL CHECK (category IN ('FREE', 'PAID')),
		instructor_id BIGINT REFERENCES instructors(id) ON DELETE SET NULL
	);`},
	{"curricula", `
	CREATE TABLE IF NOT EXISTS curricula (
		id BIGSERIAL PRIMARY KEY,
		course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		title TEXT NOT NULL
	);`},
	{"lessons", `
	CREATE TABLE IF NOT EXISTS lessons (
		id BIGSERIAL PRIMARY KEY,
		curriculum_id BIGINT NOT NULL REFERENCES curricula(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		sequence_number INTEGER NOT NULL DEFAULT 0,
		content TEXT NOT NULL DEFAULT '',
		duration TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`},
	{"student_courses", `
	CREATE TABLE IF NOT EXISTS student_courses (
		student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		PRIMARY KEY (student_id, course_id)
	);`},
	{"payments", `
	CREATE TABLE IF NOT EXISTS payments (
		id BIGSERIAL PRIMARY KEY,
		payment_id TEXT NOT NULL UNIQUE,
		order_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT '',
		subscription_type TEXT NOT NULL,
		duration_months INTEGER NOT NULL CHECK (duration_months >= 1),
		price_amount TEXT NOT NULL DEFAULT '0',
		price_currency TEXT NOT NULL DEFAULT 'usd',
		pay_amount TEXT NOT NULL DEFAULT '',
		pay_currency TEXT NOT NULL DEFAULT '',
		student_id BIGINT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`},
	{"payments_student_idx", `CREATE INDEX IF NOT EXISTS payments_student_idx ON payments (student_id, created_at DESC);`},
}

func createTables(ctx context.Context, conn *sql.DB) error {
	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt.ddl); err != nil {
			return fmt.Errorf("error creating %s: %w", stmt.name, err)
		}
	}
	return nil
}
