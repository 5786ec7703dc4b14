package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("storage: key not found")

// StorageInterface defines the contract for storage operations
type StorageInterface interface {
	Store(ctx context.Context, key string, data []byte) error
	// StoreIfAbsent writes data only when key does not exist yet and reports
	// whether the write happened. Backends make this a single conditional write.
	StoreIfAbsent(ctx context.Context, key string, data []byte) (bool, error)
	Retrieve(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]string, error)
}
