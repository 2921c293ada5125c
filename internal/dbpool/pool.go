// Package dbpool fronts a database/sql connection pool with an explicit
// counting semaphore, giving callers the same acquire/release discipline as
// the original hand-rolled pool while letting database/sql own the actual
// connection lifecycle.
package dbpool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"golang.org/x/sync/semaphore"
)

// ErrPoolExhausted is returned when Acquire's context expires before a slot
// becomes free.
var ErrPoolExhausted = errors.New("dbpool: exhausted")

// Config describes how to reach the user-authentication database.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	PoolSize int
}

// Pool wraps *sql.DB with a counting semaphore sized to PoolSize, so Acquire
// blocks exactly like the original's semaphore-gated queue of pre-opened
// handles instead of relying solely on database/sql's internal pool.
type Pool struct {
	db  *sql.DB
	sem *semaphore.Weighted
}

// Open connects to MySQL and sizes both the driver pool and the semaphore
// to cfg.PoolSize.
func Open(cfg Config) (*Pool, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("dbpool: open: %w", err)
	}
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 1
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbpool: ping: %w", err)
	}

	return &Pool{db: db, sem: semaphore.NewWeighted(int64(poolSize))}, nil
}

// Close releases the pool's resources. Idempotent with the usual
// database/sql semantics.
func (p *Pool) Close() error {
	return p.db.Close()
}

// UserVerify mirrors the original userVerify: empty credentials always
// fail; for login, success requires a matching stored password; for
// registration, success requires the username be unused, and the INSERT's
// error (if any) is propagated rather than forced to true as the original
// implementation's registration bug did.
func (p *Pool) UserVerify(name, pwd string, isLogin bool) (bool, error) {
	if name == "" || pwd == "" {
		return false, nil
	}

	ctx := context.Background()
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false, ErrPoolExhausted
	}
	defer p.sem.Release(1)

	row := p.db.QueryRowContext(ctx,
		"SELECT password FROM user WHERE username = ? LIMIT 1", name)

	var stored string
	err := row.Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		if isLogin {
			return false, nil
		}
		_, insertErr := p.db.ExecContext(ctx,
			"INSERT INTO user(username, password) VALUES (?, ?)", name, pwd)
		if insertErr != nil {
			return false, fmt.Errorf("dbpool: register: %w", insertErr)
		}
		return true, nil
	case err != nil:
		return false, fmt.Errorf("dbpool: query: %w", err)
	default:
		if isLogin {
			return stored == pwd, nil
		}
		// Username already exists: registration fails.
		return false, nil
	}
}
