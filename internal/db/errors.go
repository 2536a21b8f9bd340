package db

import (
	"errors"

	"github.com/kailas-cloud/kbase/internal/domain"
)

// Sentinel errors for database operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
)

// Op constants map to Redis command names for error context.
const (
	OpDel     = "DEL"
	OpHGet    = "HGET"
	OpHGetAll = "HGETALL"
	OpHSet    = "HSET"
	OpGet     = "GET"
	OpSet     = "SET"
	OpIncr    = "INCR"
	OpZAdd    = "ZADD"
	OpZRem    = "ZREM"
	OpZRange  = "ZRANGE"
)

// Error wraps an underlying error with the operation name for diagnostics.
// It matches domain.ErrStore so callers can classify storage failures.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Is reports storage failures as domain.ErrStore.
func (e *Error) Is(target error) bool { return target == domain.ErrStore }
