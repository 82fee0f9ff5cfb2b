// Package diffsync implements the client side of the Differential
// Synchronization protocol for structured documents.
//
// Each client keeps a working document, a shadow mirroring the last state
// agreed with the server, and a backup of that shadow taken at the last
// known-good synchronization point. Local changes are turned into edits
// against the shadow and queued until the server acknowledges them; inbound
// patch messages advance the shadow, reconcile the working document and
// refresh the backup. Duplicated, dropped and reordered messages are
// tolerated through the version bookkeeping on the shadow and the
// backup-restore path.
//
// The engine is parameterized over a content type T and a diff-operation
// type D so that a given engine instance, its synchronizer and its data
// store are statically guaranteed to agree on the document, edit and
// patch-message types they exchange. Two synchronizer strategies ship with
// the module: jsonsync for JSON documents (RFC 6902 diffs) and textsync for
// plain text (diff-match-patch).
package diffsync
