// Package distlock guards work that must run on one host at a time, such as
// the delivery of a single newsletter.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistLock is a non-blocking, single-owner lock.
// An instance belongs to one goroutine; create one per critical section.
type DistLock interface {
	// Acquire tries to take the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock up if we still own it.
	Release(ctx context.Context) error
}

// Extender is implemented by locks whose ownership expires.
type Extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// NewLock returns a Redis lock when redisClient is set and a Postgres
// advisory lock otherwise.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	if redisClient != nil {
		return NewRedisLock(redisClient, key, ttl)
	}
	return NewPGAdvisoryLock(db, key)
}

// Keepalive extends l every interval until the returned stop func is called.
// Locks that never expire are left alone.
func Keepalive(l DistLock, interval, ttl time.Duration) (stop func()) {
	ext, ok := l.(Extender)
	if !ok || interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				if err := ext.Extend(ctx, ttl); err != nil {
					log.Printf("[distlock] extend failed: %v", err)
				}
				cancel()
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

// PGAdvisoryLock is a session-scoped pg_try_advisory_lock. Postgres drops it
// with the connection, so a crashed owner never holds it forever.
//
// Advisory locks belong to a connection, so the lock pins one from the pool
// between Acquire and Release.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64
	conn   *sql.Conn
}

// NewPGAdvisoryLock derives the advisory lock id from key with FNV-64a.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()
	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID)
	return err
}
