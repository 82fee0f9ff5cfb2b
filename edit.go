package diffsync

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// SeedVersion is the client version a server stamps on an edit to re-anchor
// a client whose shadow is unrecoverable. The receiving engine adopts the
// patched state and resets its client version to zero.
const SeedVersion int64 = -1

// PatchMessageType is the msgType of every patch message on the wire.
const PatchMessageType = "patch"

// Edit is an ordered list of diffs stamped with the shadow versions at
// diff-time. The document and client IDs travel at the message level on the
// wire; they are stamped back onto each edit when a message is decoded.
type Edit[D any] struct {
	ClientID      string `json:"-"`
	DocumentID    string `json:"-"`
	ClientVersion int64  `json:"clientVersion"`
	ServerVersion int64  `json:"serverVersion"`
	Checksum      string `json:"checksum"`
	Diffs         []D    `json:"diffs"`
}

// IsSeed reports whether the edit re-anchors the conversation.
func (e Edit[D]) IsSeed() bool {
	return e.ClientVersion == SeedVersion
}

// PatchMessage carries the pending edits for one document of one client.
type PatchMessage[D any] struct {
	MsgType    string    `json:"msgType"`
	DocumentID string    `json:"id"`
	ClientID   string    `json:"clientId"`
	Edits      []Edit[D] `json:"edits"`
}

// NewPatchMessage constructs a patch message value.
func NewPatchMessage[D any](documentID, clientID string, edits []Edit[D]) PatchMessage[D] {
	return PatchMessage[D]{
		MsgType:    PatchMessageType,
		DocumentID: documentID,
		ClientID:   clientID,
		Edits:      edits,
	}
}

// String renders the message in its wire form.
func (m PatchMessage[D]) String() string {
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(data)
}

// DecodePatchMessage parses a patch-message string and stamps the message
// IDs onto each contained edit. A parse failure is reported as
// ErrMalformedPatchMessage.
func DecodePatchMessage[D any](raw string) (PatchMessage[D], error) {
	var msg PatchMessage[D]
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return PatchMessage[D]{}, &ErrMalformedPatchMessage{Err: errors.Wrap(err, "failed to parse patch message")}
	}
	for i := range msg.Edits {
		msg.Edits[i].DocumentID = msg.DocumentID
		msg.Edits[i].ClientID = msg.ClientID
	}
	return msg, nil
}
