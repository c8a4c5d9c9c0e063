package store

import (
	"context"
	"encoding/json"
	"errors"
)

// Collection names used by the repository and the notification history.
const (
	CollectionDeadlines     = "deadlines"
	CollectionNotifications = "notifications"
)

// ErrCorrupt is returned (wrapped) when a collection exists but its
// contents cannot be decoded as a list of documents.
var ErrCorrupt = errors.New("corrupt collection")

// DocumentStore persists named, ordered collections of JSON documents.
// Each collection is read and replaced as a whole; a failed WriteAll must
// leave the previously stored collection intact.
type DocumentStore interface {
	// ReadAll returns the documents of a collection in stored order.
	// A collection that was never written is empty, not an error.
	ReadAll(ctx context.Context, collection string) ([]json.RawMessage, error)

	// WriteAll replaces the collection with docs.
	WriteAll(ctx context.Context, collection string, docs []json.RawMessage) error

	// Close releases any underlying resources.
	Close() error
}

// decodeArray splits a JSON array blob into its documents.
func decodeArray(collection string, blob []byte) ([]json.RawMessage, error) {
	var docs []json.RawMessage
	if err := json.Unmarshal(blob, &docs); err != nil {
		return nil, &corruptError{collection: collection, err: err}
	}
	return docs, nil
}

// encodeArray joins docs into a JSON array blob. A nil slice encodes as
// an empty array.
func encodeArray(docs []json.RawMessage) ([]byte, error) {
	if docs == nil {
		docs = []json.RawMessage{}
	}
	return json.MarshalIndent(docs, "", "  ")
}

type corruptError struct {
	collection string
	err        error
}

func (e *corruptError) Error() string {
	return "collection " + e.collection + ": " + ErrCorrupt.Error() + ": " + e.err.Error()
}

func (e *corruptError) Unwrap() []error {
	return []error{ErrCorrupt, e.err}
}
