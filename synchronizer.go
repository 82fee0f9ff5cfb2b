package diffsync

import (
	"strings"
)

// Synchronizer turns document pairs into edits and applies edits back to
// documents and shadows. T is the content type, D the diff-operation type.
// ClientDiff and ServerDiff are deliberately asymmetric: ClientDiff diffs
// the working document toward the shadow and is used to reconcile local
// state after an inbound patch; ServerDiff diffs the shadow toward the
// working document and produces outbound edits. Swapping the directions
// silently corrupts convergence.
type Synchronizer[T, D any] interface {
	// ClientDiff computes an edit rolling the working document toward the
	// shadow, stamped with the shadow's versions.
	ClientDiff(doc ClientDocument[T], shadow ShadowDocument[T]) Edit[D]

	// ServerDiff computes an edit rolling the shadow toward the working
	// document, stamped with the shadow's versions.
	ServerDiff(doc ClientDocument[T], shadow ShadowDocument[T]) Edit[D]

	// PatchShadow applies the edit's diffs to the shadow content and adopts
	// the edit's client version. The server version is preserved.
	PatchShadow(edit Edit[D], shadow ShadowDocument[T]) (ShadowDocument[T], error)

	// PatchDocument applies the edit's diffs to the document content,
	// preserving the document and client IDs.
	PatchDocument(edit Edit[D], doc ClientDocument[T]) (ClientDocument[T], error)

	// PatchMessageFromJSON parses a patch-message string. A parse failure is
	// reported as ErrMalformedPatchMessage.
	PatchMessageFromJSON(raw string) (PatchMessage[D], error)

	// CreatePatchMessage constructs a patch message carrying the given edits.
	CreatePatchMessage(documentID, clientID string, edits []Edit[D]) PatchMessage[D]

	// AddContent appends the document's content serialized as JSON under
	// fieldName to the buffer. Used by the engine's initial add message.
	AddContent(doc ClientDocument[T], fieldName string, buf *strings.Builder) error
}
