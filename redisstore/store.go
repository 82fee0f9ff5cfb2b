// Package redisstore provides a DataStore backed by Redis. Documents,
// shadows and backups are stored as JSON strings; the pending-edit queue is
// a Redis list, which preserves production order. The DataStore contract
// has no error surface, so failures are logged and the zero value returned.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"diffsync"
)

type storeOptions struct {
	keyPrefix string
	logger    *zap.Logger
}

// Option configures a Store.
type Option func(*storeOptions)

// WithKeyPrefix sets the prefix of every Redis key the store writes.
func WithKeyPrefix(prefix string) Option {
	return func(o *storeOptions) {
		o.keyPrefix = prefix
	}
}

// WithLogger sets the logger failures are reported to.
func WithLogger(logger *zap.Logger) Option {
	return func(o *storeOptions) {
		o.logger = logger
	}
}

// Store is a DataStore on Redis.
type Store[T, D any] struct {
	client    *redis.Client
	ctx       context.Context
	keyPrefix string
	logger    *zap.Logger
}

var _ diffsync.DataStore[any, any] = &Store[any, any]{}

// New creates a Redis-backed data store. The context bounds every Redis
// call the store makes.
func New[T, D any](ctx context.Context, client *redis.Client, opts ...Option) *Store[T, D] {
	options := &storeOptions{keyPrefix: "diffsync", logger: zap.NewNop()}
	for _, opt := range opts {
		opt(options)
	}
	return &Store[T, D]{
		client:    client,
		ctx:       ctx,
		keyPrefix: options.keyPrefix,
		logger:    options.logger,
	}
}

func (s *Store[T, D]) key(documentID, clientID, kind string) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.keyPrefix, documentID, clientID, kind)
}

// SaveClientDocument stores the working document.
func (s *Store[T, D]) SaveClientDocument(doc diffsync.ClientDocument[T]) {
	s.set(s.key(doc.ID, doc.ClientID, "document"), doc)
}

// GetClientDocument returns the working document, or false if absent.
func (s *Store[T, D]) GetClientDocument(documentID, clientID string) (diffsync.ClientDocument[T], bool) {
	var doc diffsync.ClientDocument[T]
	ok := s.get(s.key(documentID, clientID, "document"), &doc)
	return doc, ok
}

// SaveShadow stores the shadow.
func (s *Store[T, D]) SaveShadow(shadow diffsync.ShadowDocument[T]) {
	doc := shadow.ClientDocument
	s.set(s.key(doc.ID, doc.ClientID, "shadow"), shadow)
}

// GetShadow returns the shadow, or false if absent.
func (s *Store[T, D]) GetShadow(documentID, clientID string) (diffsync.ShadowDocument[T], bool) {
	var shadow diffsync.ShadowDocument[T]
	ok := s.get(s.key(documentID, clientID, "shadow"), &shadow)
	return shadow, ok
}

// SaveBackup stores the backup shadow.
func (s *Store[T, D]) SaveBackup(backup diffsync.BackupShadowDocument[T]) {
	doc := backup.ShadowDocument.ClientDocument
	s.set(s.key(doc.ID, doc.ClientID, "backup"), backup)
}

// GetBackup returns the backup shadow, or false if absent.
func (s *Store[T, D]) GetBackup(documentID, clientID string) (diffsync.BackupShadowDocument[T], bool) {
	var backup diffsync.BackupShadowDocument[T]
	ok := s.get(s.key(documentID, clientID, "backup"), &backup)
	return backup, ok
}

// SaveEdit appends the edit to its queue.
func (s *Store[T, D]) SaveEdit(edit diffsync.Edit[D]) {
	key := s.key(edit.DocumentID, edit.ClientID, "edits")
	data, err := json.Marshal(edit)
	if err != nil {
		s.logger.Warn("failed to serialize edit", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.client.RPush(s.ctx, key, data).Err(); err != nil {
		s.logger.Warn("failed to append edit", zap.String("key", key), zap.Error(err))
	}
}

// GetEdits returns the queued edits in production order, or false if the
// queue is absent.
func (s *Store[T, D]) GetEdits(documentID, clientID string) ([]diffsync.Edit[D], bool) {
	key := s.key(documentID, clientID, "edits")
	entries, err := s.client.LRange(s.ctx, key, 0, -1).Result()
	if err != nil {
		s.logger.Warn("failed to read edit queue", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if len(entries) == 0 {
		return nil, false
	}
	edits := make([]diffsync.Edit[D], 0, len(entries))
	for _, entry := range entries {
		var edit diffsync.Edit[D]
		if err := json.Unmarshal([]byte(entry), &edit); err != nil {
			s.logger.Warn("failed to parse queued edit", zap.String("key", key), zap.Error(err))
			return nil, false
		}
		edit.DocumentID = documentID
		edit.ClientID = clientID
		edits = append(edits, edit)
	}
	return edits, true
}

// RemoveEdit removes the first queued edit equal to the given one. The
// comparison uses the serialized form; encoding/json renders object keys in
// sorted order, so equal edits serialize identically.
func (s *Store[T, D]) RemoveEdit(edit diffsync.Edit[D]) {
	key := s.key(edit.DocumentID, edit.ClientID, "edits")
	data, err := json.Marshal(edit)
	if err != nil {
		s.logger.Warn("failed to serialize edit", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.client.LRem(s.ctx, key, 1, data).Err(); err != nil {
		s.logger.Warn("failed to remove edit", zap.String("key", key), zap.Error(err))
	}
}

// RemoveEdits empties the queue for the pair.
func (s *Store[T, D]) RemoveEdits(documentID, clientID string) {
	key := s.key(documentID, clientID, "edits")
	if err := s.client.Del(s.ctx, key).Err(); err != nil {
		s.logger.Warn("failed to drop edit queue", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store[T, D]) set(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("failed to serialize record", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.client.Set(s.ctx, key, data, 0).Err(); err != nil {
		s.logger.Warn("failed to save record", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store[T, D]) get(key string, out any) bool {
	data, err := s.client.Get(s.ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn("failed to load record", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.logger.Warn("failed to parse record", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}
