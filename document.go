package diffsync

import (
	"github.com/google/uuid"
)

// ClientDocument is the working copy the application sees. Content is
// treated as immutable: changing a document means replacing the record,
// never mutating Content in place.
type ClientDocument[T any] struct {
	ID       string `json:"id"`
	ClientID string `json:"clientId"`
	Content  T      `json:"content"`
}

// ShadowDocument is the last state agreed between this client and its peer,
// together with the two version counters the protocol dispatches on.
type ShadowDocument[T any] struct {
	ClientVersion  int64             `json:"clientVersion"`
	ServerVersion  int64             `json:"serverVersion"`
	ClientDocument ClientDocument[T] `json:"clientDocument"`
}

// BackupShadowDocument is a snapshot of the shadow taken at the last
// known-good synchronization point. Version mirrors the shadow's client
// version at snapshot time.
type BackupShadowDocument[T any] struct {
	Version        int64             `json:"version"`
	ShadowDocument ShadowDocument[T] `json:"shadowDocument"`
}

// NewClientDocument creates a working document. An empty clientID is
// replaced with a generated one.
func NewClientDocument[T any](id, clientID string, content T) ClientDocument[T] {
	if clientID == "" {
		clientID = NewClientID()
	}
	return ClientDocument[T]{ID: id, ClientID: clientID, Content: content}
}

// NewClientID returns a fresh client identifier.
func NewClientID() string {
	return uuid.NewString()
}
