package db

import "errors"

// ErrKeyNotFound is returned by Get for an absent key.
var ErrKeyNotFound = errors.New("db: key not found")

// Op names the Redis command that failed.
const (
	OpHGetAll = "HGETALL"
	OpHSet    = "HSET"
	OpScan    = "SCAN"
	OpGet     = "GET"
	OpSet     = "SET"
)

// Error wraps a storage failure with the command it came from.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
