// Package storage persists sealed key rings.
//
// A key ring leaves the process only as the opaque blob produced by
// keyring.KeyRing.Seal. Stores never see key material in the clear and
// know nothing about its layout.
//
// # Implementations
//
//   - [FileStore]: one file per ring under a directory
//   - the mongodb sub-package: one document per ring in a collection
//
// # Concurrency
//
// All store implementations must be safe for concurrent use from multiple
// goroutines. Save replaces the stored blob atomically.
package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Load when no blob is stored under the id
var ErrNotFound = errors.New("key ring not found")

// KeyRingStore loads and saves sealed key ring blobs
type KeyRingStore interface {
	// Load returns the blob stored under id, or ErrNotFound
	Load(ctx context.Context, id string) ([]byte, error)

	// Save stores blob under id, replacing any previous blob
	Save(ctx context.Context, id string, blob []byte) error

	// Close releases storage resources
	Close(ctx context.Context) error
}

// RingID derives the storage id of the ring for a subscriber at a bank host
func RingID(hostID, partnerID, userID string) string {
	return strings.ToLower(strings.Join([]string{hostID, partnerID, userID}, "-"))
}
