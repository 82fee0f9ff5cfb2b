package jsonsync

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diffsync"
	"diffsync/jsonpatch"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var value any
	require.NoError(t, json.Unmarshal([]byte(raw), &value))
	return value
}

func doc(content any) diffsync.ClientDocument[any] {
	return diffsync.ClientDocument[any]{ID: "1234", ClientID: "client1", Content: content}
}

func shadow(clientVersion, serverVersion int64, content any) diffsync.ShadowDocument[any] {
	return diffsync.ShadowDocument[any]{
		ClientVersion:  clientVersion,
		ServerVersion:  serverVersion,
		ClientDocument: diffsync.ClientDocument[any]{ID: "1234", ClientID: "client1", Content: content},
	}
}

func TestClientDiffRollsDocumentTowardShadow(t *testing.T) {
	edit := New().ClientDiff(
		doc(decode(t, `{"key1":"value1"}`)),
		shadow(0, 0, decode(t, `{"key1":"value1","key2":"value2"}`)),
	)

	assert.Equal(t, "1234", edit.DocumentID)
	assert.Equal(t, "client1", edit.ClientID)
	assert.Equal(t, int64(0), edit.ClientVersion)
	assert.Equal(t, int64(0), edit.ServerVersion)
	assert.Equal(t, "", edit.Checksum)
	require.Len(t, edit.Diffs, 1)
	assert.Equal(t, jsonpatch.Operation{Op: jsonpatch.OpAdd, Path: "/key2", Value: "value2"}, edit.Diffs[0])
}

func TestClientDiffRemoval(t *testing.T) {
	edit := New().ClientDiff(
		doc(decode(t, `{"k1":"v1","k2":"v2"}`)),
		shadow(0, 0, decode(t, `{"k1":"v1"}`)),
	)

	require.Len(t, edit.Diffs, 1)
	assert.Equal(t, jsonpatch.Operation{Op: jsonpatch.OpRemove, Path: "/k2", Value: nil}, edit.Diffs[0])
}

func TestClientDiffReplaceAcrossTypeBoundary(t *testing.T) {
	edit := New().ClientDiff(
		doc(decode(t, `{"a":"x","b":{"c":"y"},"d":"z"}`)),
		shadow(0, 0, decode(t, `{"a":"x","b":"z","d":{"c":"y"}}`)),
	)

	require.Len(t, edit.Diffs, 2)
	assert.Equal(t, jsonpatch.Operation{Op: jsonpatch.OpReplace, Path: "/b", Value: "z"}, edit.Diffs[0])
	assert.Equal(t, jsonpatch.Operation{Op: jsonpatch.OpReplace, Path: "/d", Value: decode(t, `{"c":"y"}`)}, edit.Diffs[1])
}

func TestClientDiffCombinedNestedAddAndTopLevelRemove(t *testing.T) {
	edit := New().ClientDiff(
		doc(decode(t, `{"a":"x","b":{"c":"y"},"d":"z"}`)),
		shadow(0, 0, decode(t, `{"a":"x","b":{"c":"y","d":"z"}}`)),
	)

	require.Len(t, edit.Diffs, 2)
	assert.Equal(t, jsonpatch.Operation{Op: jsonpatch.OpAdd, Path: "/b/d", Value: "z"}, edit.Diffs[0])
	assert.Equal(t, jsonpatch.Operation{Op: jsonpatch.OpRemove, Path: "/d", Value: nil}, edit.Diffs[1])
}

func TestServerDiffRollsShadowTowardDocument(t *testing.T) {
	edit := New().ServerDiff(
		doc(decode(t, `{"key1":"value1","key2":"value2"}`)),
		shadow(1, 2, decode(t, `{"key1":"value1"}`)),
	)

	assert.Equal(t, int64(1), edit.ClientVersion)
	assert.Equal(t, int64(2), edit.ServerVersion)
	require.Len(t, edit.Diffs, 1)
	assert.Equal(t, jsonpatch.Operation{Op: jsonpatch.OpAdd, Path: "/key2", Value: "value2"}, edit.Diffs[0])
}

func TestPatchShadowAdoptsEditClientVersion(t *testing.T) {
	s := New()
	edit := Edit{
		DocumentID:    "1234",
		ClientID:      "client1",
		ClientVersion: 5,
		ServerVersion: 9,
		Diffs:         []jsonpatch.Operation{{Op: jsonpatch.OpReplace, Path: "/v", Value: "new"}},
	}

	patched, err := s.PatchShadow(edit, shadow(4, 7, decode(t, `{"v":"old"}`)))

	require.NoError(t, err)
	assert.Equal(t, int64(5), patched.ClientVersion)
	// The shadow's own server version is preserved, not the edit's.
	assert.Equal(t, int64(7), patched.ServerVersion)
	assert.Equal(t, decode(t, `{"v":"new"}`), patched.ClientDocument.Content)
}

func TestPatchShadowDoesNotMutateOriginal(t *testing.T) {
	s := New()
	original := shadow(0, 0, decode(t, `{"v":"old"}`))
	edit := Edit{
		DocumentID: "1234",
		ClientID:   "client1",
		Diffs:      []jsonpatch.Operation{{Op: jsonpatch.OpReplace, Path: "/v", Value: "new"}},
	}

	_, err := s.PatchShadow(edit, original)

	require.NoError(t, err)
	assert.Equal(t, decode(t, `{"v":"old"}`), original.ClientDocument.Content)
}

func TestPatchDocumentPreservesIDs(t *testing.T) {
	s := New()
	edit := Edit{
		DocumentID: "1234",
		ClientID:   "client1",
		Diffs:      []jsonpatch.Operation{{Op: jsonpatch.OpAdd, Path: "/extra", Value: true}},
	}

	patched, err := s.PatchDocument(edit, doc(decode(t, `{"v":"x"}`)))

	require.NoError(t, err)
	assert.Equal(t, "1234", patched.ID)
	assert.Equal(t, "client1", patched.ClientID)
	assert.Equal(t, decode(t, `{"v":"x","extra":true}`), patched.Content)
}

func TestPatchDocumentFailureSurfacesOp(t *testing.T) {
	s := New()
	edit := Edit{
		DocumentID: "1234",
		ClientID:   "client1",
		Diffs:      []jsonpatch.Operation{{Op: jsonpatch.OpRemove, Path: "/missing"}},
	}

	_, err := s.PatchDocument(edit, doc(decode(t, `{}`)))

	require.Error(t, err)
	var opErr *jsonpatch.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "/missing", opErr.Op.Path)
}

func TestPatchMessageRoundTrip(t *testing.T) {
	s := New()
	edit := Edit{
		DocumentID:    "1234",
		ClientID:      "client1",
		ClientVersion: 1,
		ServerVersion: 0,
		Checksum:      "",
		Diffs: []jsonpatch.Operation{
			{Op: jsonpatch.OpReplace, Path: "/quoted", Value: `say "hi"`},
		},
	}
	message := s.CreatePatchMessage("1234", "client1", []Edit{edit})

	raw := message.String()
	assert.Contains(t, raw, `\"hi\"`)

	parsed, err := s.PatchMessageFromJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, message, parsed)
}

func TestPatchMessageFromJSONMalformed(t *testing.T) {
	_, err := New().PatchMessageFromJSON(`not json`)

	var malformed *diffsync.ErrMalformedPatchMessage
	require.ErrorAs(t, err, &malformed)
}

func TestAddContent(t *testing.T) {
	var buf strings.Builder
	err := New().AddContent(doc(decode(t, `{"name":"fletch"}`)), "content", &buf)

	require.NoError(t, err)
	assert.Equal(t, `"content":{"name":"fletch"}`, buf.String())
}
