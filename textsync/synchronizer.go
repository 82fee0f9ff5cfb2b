// Package textsync provides the synchronizer strategy for plain-text
// documents, built on Google's diff-match-patch algorithm. It implements
// the same contract as jsonsync; only the diff/patch primitive differs.
package textsync

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/sergi/go-diff/diffmatchpatch"

	"diffsync"
)

// DiffOperation classifies one span of a text diff.
type DiffOperation string

const (
	DiffAdd       DiffOperation = "ADD"
	DiffDelete    DiffOperation = "DELETE"
	DiffUnchanged DiffOperation = "UNCHANGED"
)

// TextDiff is one span of a text edit as it travels on the wire.
type TextDiff struct {
	Operation DiffOperation `json:"operation"`
	Text      string        `json:"text"`
}

// Edit is an edit over text content.
type Edit = diffsync.Edit[TextDiff]

// PatchMessage is a patch message over text content.
type PatchMessage = diffsync.PatchMessage[TextDiff]

// Synchronizer implements diffsync.Synchronizer for text documents.
type Synchronizer struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

var _ diffsync.Synchronizer[string, TextDiff] = &Synchronizer{}

// New creates a text synchronizer.
func New() *Synchronizer {
	return &Synchronizer{dmp: diffmatchpatch.New()}
}

// ClientDiff computes an edit rolling the working document toward the
// shadow.
func (s *Synchronizer) ClientDiff(doc diffsync.ClientDocument[string], shadow diffsync.ShadowDocument[string]) Edit {
	diffs := s.dmp.DiffMain(doc.Content, shadow.ClientDocument.Content, false)
	return stampEdit(doc, shadow, toTextDiffs(diffs))
}

// ServerDiff computes an edit rolling the shadow toward the working
// document.
func (s *Synchronizer) ServerDiff(doc diffsync.ClientDocument[string], shadow diffsync.ShadowDocument[string]) Edit {
	diffs := s.dmp.DiffMain(shadow.ClientDocument.Content, doc.Content, false)
	return stampEdit(doc, shadow, toTextDiffs(diffs))
}

func stampEdit(doc diffsync.ClientDocument[string], shadow diffsync.ShadowDocument[string], diffs []TextDiff) Edit {
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
func (s *Synchronizer) PatchShadow(edit Edit, shadow diffsync.ShadowDocument[string]) (diffsync.ShadowDocument[string], error) {
	content, err := s.patchText(edit, shadow.ClientDocument.Content)
	if err != nil {
		return shadow, errors.Wrap(err, "failed to patch shadow content")
	}
	shadow.ClientVersion = edit.ClientVersion
	shadow.ClientDocument.Content = content
	return shadow, nil
}

// PatchDocument applies the edit to the document content, preserving the
// document and client IDs.
func (s *Synchronizer) PatchDocument(edit Edit, doc diffsync.ClientDocument[string]) (diffsync.ClientDocument[string], error) {
	content, err := s.patchText(edit, doc.Content)
	if err != nil {
		return doc, errors.Wrap(err, "failed to patch document content")
	}
	doc.Content = content
	return doc, nil
}

func (s *Synchronizer) patchText(edit Edit, text string) (string, error) {
	if len(edit.Diffs) == 0 {
		return text, nil
	}
	patches := s.dmp.PatchMake(text, fromTextDiffs(edit.Diffs))
	patched, applied := s.dmp.PatchApply(patches, text)
	for i, ok := range applied {
		if !ok {
			return "", errors.Errorf("patch hunk %d did not apply", i)
		}
	}
	return patched, nil
}

// PatchMessageFromJSON parses a patch-message string.
func (s *Synchronizer) PatchMessageFromJSON(raw string) (PatchMessage, error) {
	return diffsync.DecodePatchMessage[TextDiff](raw)
}

// CreatePatchMessage constructs a patch message carrying the given edits.
func (s *Synchronizer) CreatePatchMessage(documentID, clientID string, edits []Edit) PatchMessage {
	return diffsync.NewPatchMessage(documentID, clientID, edits)
}

// AddContent appends the document content as a JSON string under
// fieldName.
func (s *Synchronizer) AddContent(doc diffsync.ClientDocument[string], fieldName string, buf *strings.Builder) error {
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

func toTextDiffs(diffs []diffmatchpatch.Diff) []TextDiff {
	out := make([]TextDiff, len(diffs))
	for i, d := range diffs {
		out[i] = TextDiff{Operation: toOperation(d.Type), Text: d.Text}
	}
	return out
}

func fromTextDiffs(diffs []TextDiff) []diffmatchpatch.Diff {
	out := make([]diffmatchpatch.Diff, len(diffs))
	for i, d := range diffs {
		out[i] = diffmatchpatch.Diff{Type: fromOperation(d.Operation), Text: d.Text}
	}
	return out
}

func toOperation(t diffmatchpatch.Operation) DiffOperation {
	switch t {
	case diffmatchpatch.DiffInsert:
		return DiffAdd
	case diffmatchpatch.DiffDelete:
		return DiffDelete
	default:
		return DiffUnchanged
	}
}

func fromOperation(op DiffOperation) diffmatchpatch.Operation {
	switch op {
	case DiffAdd:
		return diffmatchpatch.DiffInsert
	case DiffDelete:
		return diffmatchpatch.DiffDelete
	default:
		return diffmatchpatch.DiffEqual
	}
}
