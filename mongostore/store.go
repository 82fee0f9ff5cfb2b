// Package mongostore provides a DataStore backed by MongoDB. Each record
// kind lives in its own collection keyed (documentId, clientId), with the
// record carried as serialized JSON; the pending-edit queue is an ordered
// array on a single queue document. The DataStore contract has no error
// surface, so failures are logged and the zero value returned.
package mongostore

import (
	"context"
	"encoding/json"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"diffsync"
)

const (
	documentCollection = "documents"
	shadowCollection   = "shadows"
	backupCollection   = "backups"
	editCollection     = "edits"
)

type record struct {
	DocumentID string `bson:"documentId"`
	ClientID   string `bson:"clientId"`
	Data       string `bson:"data"`
}

type editQueue struct {
	DocumentID string   `bson:"documentId"`
	ClientID   string   `bson:"clientId"`
	Edits      []string `bson:"edits"`
}

type storeOptions struct {
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*storeOptions)

// WithLogger sets the logger failures are reported to.
func WithLogger(logger *zap.Logger) Option {
	return func(o *storeOptions) {
		o.logger = logger
	}
}

// Store is a DataStore on MongoDB.
type Store[T, D any] struct {
	db     *mongo.Database
	ctx    context.Context
	logger *zap.Logger
}

var _ diffsync.DataStore[any, any] = &Store[any, any]{}

// New creates a MongoDB-backed data store. The context bounds every
// database call the store makes.
func New[T, D any](ctx context.Context, db *mongo.Database, opts ...Option) *Store[T, D] {
	o := &storeOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return &Store[T, D]{db: db, ctx: ctx, logger: o.logger}
}

func keyFilter(documentID, clientID string) bson.M {
	return bson.M{"documentId": documentID, "clientId": clientID}
}

// SaveClientDocument stores the working document.
func (s *Store[T, D]) SaveClientDocument(doc diffsync.ClientDocument[T]) {
	s.save(documentCollection, doc.ID, doc.ClientID, doc)
}

// GetClientDocument returns the working document, or false if absent.
func (s *Store[T, D]) GetClientDocument(documentID, clientID string) (diffsync.ClientDocument[T], bool) {
	var doc diffsync.ClientDocument[T]
	ok := s.load(documentCollection, documentID, clientID, &doc)
	return doc, ok
}

// SaveShadow stores the shadow.
func (s *Store[T, D]) SaveShadow(shadow diffsync.ShadowDocument[T]) {
	doc := shadow.ClientDocument
	s.save(shadowCollection, doc.ID, doc.ClientID, shadow)
}

// GetShadow returns the shadow, or false if absent.
func (s *Store[T, D]) GetShadow(documentID, clientID string) (diffsync.ShadowDocument[T], bool) {
	var shadow diffsync.ShadowDocument[T]
	ok := s.load(shadowCollection, documentID, clientID, &shadow)
	return shadow, ok
}

// SaveBackup stores the backup shadow.
func (s *Store[T, D]) SaveBackup(backup diffsync.BackupShadowDocument[T]) {
	doc := backup.ShadowDocument.ClientDocument
	s.save(backupCollection, doc.ID, doc.ClientID, backup)
}

// GetBackup returns the backup shadow, or false if absent.
func (s *Store[T, D]) GetBackup(documentID, clientID string) (diffsync.BackupShadowDocument[T], bool) {
	var backup diffsync.BackupShadowDocument[T]
	ok := s.load(backupCollection, documentID, clientID, &backup)
	return backup, ok
}

// SaveEdit appends the edit to its queue.
func (s *Store[T, D]) SaveEdit(edit diffsync.Edit[D]) {
	data, err := json.Marshal(edit)
	if err != nil {
		s.logger.Warn("failed to serialize edit", zap.String("document_id", edit.DocumentID), zap.Error(err))
		return
	}
	_, err = s.db.Collection(editCollection).UpdateOne(
		s.ctx,
		keyFilter(edit.DocumentID, edit.ClientID),
		bson.M{"$push": bson.M{"edits": string(data)}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		s.logger.Warn("failed to append edit", zap.String("document_id", edit.DocumentID), zap.Error(err))
	}
}

// GetEdits returns the queued edits in production order, or false if the
// queue is absent.
func (s *Store[T, D]) GetEdits(documentID, clientID string) ([]diffsync.Edit[D], bool) {
	queue, ok := s.loadQueue(documentID, clientID)
	if !ok || len(queue.Edits) == 0 {
		return nil, false
	}
	edits := make([]diffsync.Edit[D], 0, len(queue.Edits))
	for _, entry := range queue.Edits {
		var edit diffsync.Edit[D]
		if err := json.Unmarshal([]byte(entry), &edit); err != nil {
			s.logger.Warn("failed to parse queued edit", zap.String("document_id", documentID), zap.Error(err))
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
	data, err := json.Marshal(edit)
	if err != nil {
		s.logger.Warn("failed to serialize edit", zap.String("document_id", edit.DocumentID), zap.Error(err))
		return
	}
	queue, ok := s.loadQueue(edit.DocumentID, edit.ClientID)
	if !ok {
		return
	}
	target := string(data)
	for i, entry := range queue.Edits {
		if entry == target {
			queue.Edits = append(queue.Edits[:i], queue.Edits[i+1:]...)
			_, err := s.db.Collection(editCollection).UpdateOne(
				s.ctx,
				keyFilter(edit.DocumentID, edit.ClientID),
				bson.M{"$set": bson.M{"edits": queue.Edits}},
			)
			if err != nil {
				s.logger.Warn("failed to remove edit", zap.String("document_id", edit.DocumentID), zap.Error(err))
			}
			return
		}
	}
}

// RemoveEdits empties the queue for the pair.
func (s *Store[T, D]) RemoveEdits(documentID, clientID string) {
	_, err := s.db.Collection(editCollection).DeleteOne(s.ctx, keyFilter(documentID, clientID))
	if err != nil {
		s.logger.Warn("failed to drop edit queue", zap.String("document_id", documentID), zap.Error(err))
	}
}

func (s *Store[T, D]) loadQueue(documentID, clientID string) (*editQueue, bool) {
	var queue editQueue
	err := s.db.Collection(editCollection).FindOne(s.ctx, keyFilter(documentID, clientID)).Decode(&queue)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			s.logger.Warn("failed to read edit queue", zap.String("document_id", documentID), zap.Error(err))
		}
		return nil, false
	}
	return &queue, true
}

func (s *Store[T, D]) save(collection, documentID, clientID string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("failed to serialize record",
			zap.String("collection", collection),
			zap.String("document_id", documentID),
			zap.Error(err))
		return
	}
	_, err = s.db.Collection(collection).ReplaceOne(
		s.ctx,
		keyFilter(documentID, clientID),
		record{DocumentID: documentID, ClientID: clientID, Data: string(data)},
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		s.logger.Warn("failed to save record",
			zap.String("collection", collection),
			zap.String("document_id", documentID),
			zap.Error(err))
	}
}

func (s *Store[T, D]) load(collection, documentID, clientID string, out any) bool {
	var rec record
	err := s.db.Collection(collection).FindOne(s.ctx, keyFilter(documentID, clientID)).Decode(&rec)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			s.logger.Warn("failed to load record",
				zap.String("collection", collection),
				zap.String("document_id", documentID),
				zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal([]byte(rec.Data), out); err != nil {
		s.logger.Warn("failed to parse record",
			zap.String("collection", collection),
			zap.String("document_id", documentID),
			zap.Error(err))
		return false
	}
	return true
}
