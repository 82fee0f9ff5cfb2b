package diffsync

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Callback is invoked whenever an inbound patch produces a new working
// document for a registered document ID. Callbacks run synchronously on the
// caller's goroutine and must not re-enter engine operations for the same
// document.
type Callback[T any] func(doc ClientDocument[T])

type engineOptions struct {
	logger *zap.Logger
}

// EngineOption configures a ClientSyncEngine.
type EngineOption func(*engineOptions)

// WithLogger sets the logger the engine reports protocol decisions to.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// ClientSyncEngine drives the Differential Synchronization protocol for one
// client: it registers documents, produces outbound patch messages from
// local changes and applies inbound patch messages. All operations for a
// given (documentID, clientID) pair must be serialized by the caller.
type ClientSyncEngine[T, D any] struct {
	synchronizer Synchronizer[T, D]
	store        DataStore[T, D]
	callbacks    map[string]Callback[T]
	logger       *zap.Logger
}

// NewClientSyncEngine creates an engine over the given synchronizer and
// data store.
func NewClientSyncEngine[T, D any](synchronizer Synchronizer[T, D], store DataStore[T, D], opts ...EngineOption) *ClientSyncEngine[T, D] {
	options := &engineOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(options)
	}
	return &ClientSyncEngine[T, D]{
		synchronizer: synchronizer,
		store:        store,
		callbacks:    make(map[string]Callback[T]),
		logger:       options.logger,
	}
}

// AddDocument stores the working document, creates its shadow and backup at
// version zero and registers the callback for inbound updates.
func (e *ClientSyncEngine[T, D]) AddDocument(doc ClientDocument[T], callback Callback[T]) {
	e.store.SaveClientDocument(doc)
	shadow := ShadowDocument[T]{ClientVersion: 0, ServerVersion: 0, ClientDocument: doc}
	e.store.SaveShadow(shadow)
	e.store.SaveBackup(BackupShadowDocument[T]{Version: 0, ShadowDocument: shadow})
	e.callbacks[doc.ID] = callback

	e.logger.Debug("document registered",
		zap.String("document_id", doc.ID),
		zap.String("client_id", doc.ClientID))
}

// Diff computes an edit between the working document and its shadow,
// appends it to the pending-edit queue, advances the shadow's client
// version and returns a patch message carrying the entire queue. Sending
// every queued edit is the retransmission discipline: edits stay queued
// until the server acknowledges them.
func (e *ClientSyncEngine[T, D]) Diff(doc ClientDocument[T]) (PatchMessage[D], error) {
	shadow, ok := e.store.GetShadow(doc.ID, doc.ClientID)
	if !ok {
		return PatchMessage[D]{}, &ErrShadowNotFound{DocumentID: doc.ID, ClientID: doc.ClientID}
	}

	edit := e.synchronizer.ServerDiff(doc, shadow)
	e.store.SaveEdit(edit)

	patched, err := e.synchronizer.PatchShadow(edit, shadow)
	if err != nil {
		return PatchMessage[D]{}, &ErrPatchApplication{DocumentID: doc.ID, ClientID: doc.ClientID, Err: err}
	}
	patched.ClientVersion++
	e.store.SaveShadow(patched)

	edits, _ := e.store.GetEdits(doc.ID, doc.ClientID)

	e.logger.Debug("produced patch message",
		zap.String("document_id", doc.ID),
		zap.String("client_id", doc.ClientID),
		zap.Int64("client_version", patched.ClientVersion),
		zap.Int("queued_edits", len(edits)))

	return e.synchronizer.CreatePatchMessage(doc.ID, doc.ClientID, edits), nil
}

// Patch applies an inbound patch message. Each edit is dispatched on its
// version pair against the current shadow: already-applied edits are
// dropped, a divergence is routed through backup restoration, matching
// edits advance the shadow and a seed edit re-anchors it. When at least one
// edit advanced the shadow the working document is reconciled, a fresh
// backup is snapshotted and the registered callback is invoked.
func (e *ClientSyncEngine[T, D]) Patch(message PatchMessage[D]) error {
	shadow, ok := e.store.GetShadow(message.DocumentID, message.ClientID)
	if !ok {
		e.logger.Warn("patch for unknown shadow",
			zap.String("document_id", message.DocumentID),
			zap.String("client_id", message.ClientID))
		return nil
	}

	updated := false
	for _, edit := range message.Edits {
		if edit.ServerVersion < shadow.ServerVersion {
			// Already applied; a duplicate from a dropped acknowledgment.
			e.store.RemoveEdit(edit)
			e.logger.Debug("dropped stale edit",
				zap.String("document_id", edit.DocumentID),
				zap.Int64("edit_server_version", edit.ServerVersion),
				zap.Int64("shadow_server_version", shadow.ServerVersion))
			continue
		}

		if edit.IsSeed() {
			patched, err := e.synchronizer.PatchShadow(edit, shadow)
			if err != nil {
				return &ErrPatchApplication{DocumentID: edit.DocumentID, ClientID: edit.ClientID, Err: err}
			}
			e.store.RemoveEdit(edit)
			patched.ClientVersion = 0
			e.store.SaveShadow(patched)
			shadow = patched
			updated = true
			e.logger.Info("shadow re-anchored by seed edit",
				zap.String("document_id", edit.DocumentID),
				zap.Int64("server_version", patched.ServerVersion))
			continue
		}

		if edit.ClientVersion < shadow.ClientVersion {
			restored, err := e.restoreBackup(edit, shadow)
			if err != nil {
				e.logger.Warn("backup restoration failed, skipping edit",
					zap.String("document_id", edit.DocumentID),
					zap.Int64("edit_client_version", edit.ClientVersion),
					zap.Error(err))
				continue
			}
			shadow = restored
			updated = true
			continue
		}

		if edit.ServerVersion == shadow.ServerVersion && edit.ClientVersion == shadow.ClientVersion {
			patched, err := e.synchronizer.PatchShadow(edit, shadow)
			if err != nil {
				return &ErrPatchApplication{DocumentID: edit.DocumentID, ClientID: edit.ClientID, Err: err}
			}
			e.store.RemoveEdit(edit)
			patched.ServerVersion++
			e.store.SaveShadow(patched)
			shadow = patched
			updated = true
			continue
		}

		e.logger.Warn("edit versions match neither shadow nor backup, skipping",
			zap.String("document_id", edit.DocumentID),
			zap.Int64("edit_client_version", edit.ClientVersion),
			zap.Int64("edit_server_version", edit.ServerVersion),
			zap.Int64("shadow_client_version", shadow.ClientVersion),
			zap.Int64("shadow_server_version", shadow.ServerVersion))
	}

	if !updated {
		return nil
	}
	return e.reconcileDocument(message.DocumentID, message.ClientID, shadow)
}

// restoreBackup replaces a diverged shadow with the backup patched by the
// edit. The entire pending-edit queue is wiped: those edits were produced
// against a shadow line the server never saw.
func (e *ClientSyncEngine[T, D]) restoreBackup(edit Edit[D], shadow ShadowDocument[T]) (ShadowDocument[T], error) {
	backup, ok := e.store.GetBackup(edit.DocumentID, edit.ClientID)
	if !ok || backup.Version != edit.ClientVersion {
		mismatch := &ErrBackupMismatch{
			DocumentID:  edit.DocumentID,
			ClientID:    edit.ClientID,
			EditVersion: edit.ClientVersion,
		}
		if ok {
			mismatch.BackupVersion = backup.Version
		}
		return shadow, mismatch
	}

	base := ShadowDocument[T]{
		ClientVersion:  shadow.ClientVersion,
		ServerVersion:  shadow.ServerVersion,
		ClientDocument: backup.ShadowDocument.ClientDocument,
	}
	patched, err := e.synchronizer.PatchShadow(edit, base)
	if err != nil {
		return shadow, errors.Wrap(err, "failed to patch restored backup")
	}

	e.store.RemoveEdits(edit.DocumentID, edit.ClientID)
	e.store.SaveShadow(patched)

	e.logger.Info("shadow restored from backup",
		zap.String("document_id", edit.DocumentID),
		zap.String("client_id", edit.ClientID),
		zap.Int64("backup_version", backup.Version))

	return patched, nil
}

// reconcileDocument rolls the working document forward to the updated
// shadow, snapshots a fresh backup and invokes the registered callback.
func (e *ClientSyncEngine[T, D]) reconcileDocument(documentID, clientID string, shadow ShadowDocument[T]) error {
	doc, ok := e.store.GetClientDocument(documentID, clientID)
	if !ok {
		e.logger.Warn("no working document to reconcile",
			zap.String("document_id", documentID),
			zap.String("client_id", clientID))
		return nil
	}

	edit := e.synchronizer.ClientDiff(doc, shadow)
	patchedDoc, err := e.synchronizer.PatchDocument(edit, doc)
	if err != nil {
		return &ErrPatchApplication{DocumentID: documentID, ClientID: clientID, Err: err}
	}

	e.store.SaveClientDocument(patchedDoc)
	e.store.SaveBackup(BackupShadowDocument[T]{Version: shadow.ClientVersion, ShadowDocument: shadow})

	callback, ok := e.callbacks[documentID]
	if !ok || callback == nil {
		return &ErrMissingCallback{DocumentID: documentID}
	}
	callback(patchedDoc)
	return nil
}

// DocumentToJSON produces the initial add handshake for a document:
// {"msgType":"add","id":...,"clientId":...,"content":...}. Content
// serialization is delegated to the synchronizer.
func (e *ClientSyncEngine[T, D]) DocumentToJSON(doc ClientDocument[T]) (string, error) {
	var buf strings.Builder
	buf.WriteString(`{"msgType":"add","id":`)
	if err := writeJSONString(&buf, doc.ID); err != nil {
		return "", err
	}
	buf.WriteString(`,"clientId":`)
	if err := writeJSONString(&buf, doc.ClientID); err != nil {
		return "", err
	}
	buf.WriteString(`,`)
	if err := e.synchronizer.AddContent(doc, "content", &buf); err != nil {
		return "", errors.Wrap(err, "failed to serialize document content")
	}
	buf.WriteString(`}`)
	return buf.String(), nil
}

func writeJSONString(buf *strings.Builder, s string) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "failed to encode string")
	}
	buf.Write(data)
	return nil
}
