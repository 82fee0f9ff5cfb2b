package jsonpatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyAddActsAsReplaceOnExistingKey(t *testing.T) {
	doc := mustDecode(t, `{"a":"old"}`)

	patched, err := Apply([]Operation{{Op: OpAdd, Path: "/a", Value: "new"}}, doc)

	require.NoError(t, err)
	assert.Equal(t, mustDecode(t, `{"a":"new"}`), patched)
}

func TestApplyRemoveMissingKeyFails(t *testing.T) {
	doc := mustDecode(t, `{"a":"x"}`)

	_, err := Apply([]Operation{{Op: OpRemove, Path: "/b"}}, doc)

	require.Error(t, err)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, OpRemove, opErr.Op.Op)
	assert.Equal(t, "/b", opErr.Op.Path)
}

func TestApplyReplaceMissingKeyFails(t *testing.T) {
	doc := mustDecode(t, `{"a":"x"}`)

	_, err := Apply([]Operation{{Op: OpReplace, Path: "/b", Value: "y"}}, doc)

	assert.Error(t, err)
}

func TestApplyMove(t *testing.T) {
	doc := mustDecode(t, `{"a":{"b":"v"},"c":{}}`)

	patched, err := Apply([]Operation{{Op: OpMove, Path: "/c/b", From: "/a/b"}}, doc)

	require.NoError(t, err)
	assert.Equal(t, mustDecode(t, `{"a":{},"c":{"b":"v"}}`), patched)
}

func TestApplyCopy(t *testing.T) {
	doc := mustDecode(t, `{"a":{"b":"v"}}`)

	patched, err := Apply([]Operation{{Op: OpCopy, Path: "/c", From: "/a"}}, doc)

	require.NoError(t, err)
	assert.Equal(t, mustDecode(t, `{"a":{"b":"v"},"c":{"b":"v"}}`), patched)
}

func TestApplyTest(t *testing.T) {
	doc := mustDecode(t, `{"a":[1,2]}`)

	_, err := Apply([]Operation{{Op: OpTest, Path: "/a", Value: mustDecode(t, `[1,2]`)}}, doc)
	assert.NoError(t, err)

	_, err = Apply([]Operation{{Op: OpTest, Path: "/a", Value: mustDecode(t, `[2,1]`)}}, doc)
	assert.Error(t, err)
}

func TestApplyRootReplace(t *testing.T) {
	doc := mustDecode(t, `{"a":"x"}`)

	patched, err := Apply([]Operation{{Op: OpReplace, Path: "", Value: mustDecode(t, `["whole","new"]`)}}, doc)

	require.NoError(t, err)
	assert.Equal(t, mustDecode(t, `["whole","new"]`), patched)
}

func TestApplyArrayOperations(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		op   Operation
		want string
	}{
		{"insert shifts right", `{"a":[1,3]}`, Operation{Op: OpAdd, Path: "/a/1", Value: 2.0}, `{"a":[1,2,3]}`},
		{"append via dash", `{"a":[1]}`, Operation{Op: OpAdd, Path: "/a/-", Value: 2.0}, `{"a":[1,2]}`},
		{"append via length index", `{"a":[1]}`, Operation{Op: OpAdd, Path: "/a/1", Value: 2.0}, `{"a":[1,2]}`},
		{"remove shifts left", `{"a":[1,2,3]}`, Operation{Op: OpRemove, Path: "/a/1"}, `{"a":[1,3]}`},
		{"replace element", `{"a":[1,2]}`, Operation{Op: OpReplace, Path: "/a/0", Value: 9.0}, `{"a":[9,2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patched, err := Apply([]Operation{tt.op}, mustDecode(t, tt.doc))
			require.NoError(t, err)
			assert.Equal(t, mustDecode(t, tt.want), patched)
		})
	}
}

func TestApplyArrayIndexOutOfBounds(t *testing.T) {
	doc := mustDecode(t, `{"a":[1]}`)

	_, err := Apply([]Operation{{Op: OpReplace, Path: "/a/5", Value: 0.0}}, doc)
	assert.Error(t, err)

	_, err = Apply([]Operation{{Op: OpAdd, Path: "/a/3", Value: 0.0}}, doc)
	assert.Error(t, err)
}

func TestApplyEscapedPointerTokens(t *testing.T) {
	doc := mustDecode(t, `{"a/b":"x","c~d":"y"}`)

	patched, err := Apply([]Operation{
		{Op: OpReplace, Path: "/a~1b", Value: "1"},
		{Op: OpReplace, Path: "/c~0d", Value: "2"},
	}, doc)

	require.NoError(t, err)
	assert.Equal(t, mustDecode(t, `{"a/b":"1","c~d":"2"}`), patched)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	doc := mustDecode(t, `{"a":{"b":"old"},"arr":[1,2]}`)

	_, err := Apply([]Operation{
		{Op: OpReplace, Path: "/a/b", Value: "new"},
		{Op: OpRemove, Path: "/arr/0"},
	}, doc)

	require.NoError(t, err)
	assert.Equal(t, mustDecode(t, `{"a":{"b":"old"},"arr":[1,2]}`), doc)
}

func TestApplyEmptyPatch(t *testing.T) {
	doc := mustDecode(t, `{"a":"x"}`)

	patched, err := Apply(nil, doc)

	require.NoError(t, err)
	assert.Equal(t, doc, patched)
}

func TestApplyStopsAtFirstFailure(t *testing.T) {
	doc := mustDecode(t, `{"a":"x"}`)

	_, err := Apply([]Operation{
		{Op: OpReplace, Path: "/a", Value: "y"},
		{Op: OpRemove, Path: "/missing"},
		{Op: OpReplace, Path: "/a", Value: "z"},
	}, doc)

	require.Error(t, err)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "/missing", opErr.Op.Path)
}
