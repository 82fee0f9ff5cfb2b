// Package jsonsync provides the synchronizer strategy for JSON documents.
// Content is a decoded JSON value and edits carry RFC 6902 operations.
package jsonsync

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"diffsync"
	"diffsync/jsonpatch"
)

// Edit is an edit over JSON content.
type Edit = diffsync.Edit[jsonpatch.Operation]

// PatchMessage is a patch message over JSON content.
type PatchMessage = diffsync.PatchMessage[jsonpatch.Operation]

// Synchronizer implements diffsync.Synchronizer for JSON documents.
type Synchronizer struct{}

var _ diffsync.Synchronizer[any, jsonpatch.Operation] = &Synchronizer{}

// New creates a JSON synchronizer.
func New() *Synchronizer {
	return &Synchronizer{}
}

// ClientDiff computes an edit rolling the working document toward the
// shadow.
func (s *Synchronizer) ClientDiff(doc diffsync.ClientDocument[any], shadow diffsync.ShadowDocument[any]) Edit {
	return stampEdit(doc, shadow, jsonpatch.Diff(doc.Content, shadow.ClientDocument.Content))
}

// ServerDiff computes an edit rolling the shadow toward the working
// document.
func (s *Synchronizer) ServerDiff(doc diffsync.ClientDocument[any], shadow diffsync.ShadowDocument[any]) Edit {
	return stampEdit(doc, shadow, jsonpatch.Diff(shadow.ClientDocument.Content, doc.Content))
}

func stampEdit(doc diffsync.ClientDocument[any], shadow diffsync.ShadowDocument[any], diffs []jsonpatch.Operation) Edit {
	return Edit{
		ClientID:      doc.ClientID,
		DocumentID:    doc.ID,
		ClientVersion: shadow.ClientVersion,
		ServerVersion: shadow.ServerVersion,
		Checksum:      "",
		Diffs:         diffs,
	}
}

// PatchShadow applies the edit to the shadow content and adopts the edit's
// client version. The server version is preserved.
func (s *Synchronizer) PatchShadow(edit Edit, shadow diffsync.ShadowDocument[any]) (diffsync.ShadowDocument[any], error) {
	content, err := jsonpatch.Apply(edit.Diffs, shadow.ClientDocument.Content)
	if err != nil {
		return shadow, errors.Wrap(err, "failed to patch shadow content")
	}
	shadow.ClientVersion = edit.ClientVersion
	shadow.ClientDocument.Content = content
	return shadow, nil
}

// PatchDocument applies the edit to the document content, preserving the
// document and client IDs.
func (s *Synchronizer) PatchDocument(edit Edit, doc diffsync.ClientDocument[any]) (diffsync.ClientDocument[any], error) {
	content, err := jsonpatch.Apply(edit.Diffs, doc.Content)
	if err != nil {
		return doc, errors.Wrap(err, "failed to patch document content")
	}
	doc.Content = content
	return doc, nil
}

// PatchMessageFromJSON parses a patch-message string.
func (s *Synchronizer) PatchMessageFromJSON(raw string) (PatchMessage, error) {
	return diffsync.DecodePatchMessage[jsonpatch.Operation](raw)
}

// CreatePatchMessage constructs a patch message carrying the given edits.
func (s *Synchronizer) CreatePatchMessage(documentID, clientID string, edits []Edit) PatchMessage {
	return diffsync.NewPatchMessage(documentID, clientID, edits)
}

// AddContent appends the document content serialized as JSON under
// fieldName.
func (s *Synchronizer) AddContent(doc diffsync.ClientDocument[any], fieldName string, buf *strings.Builder) error {
	data, err := json.Marshal(doc.Content)
	if err != nil {
		return errors.Wrap(err, "failed to encode document content")
	}
	buf.WriteString(`"`)
	buf.WriteString(fieldName)
	buf.WriteString(`":`)
	buf.Write(data)
	return nil
}
