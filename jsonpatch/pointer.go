package jsonpatch

import (
	"strings"

	"github.com/pkg/errors"
)

// parsePointer splits an RFC 6901 JSON Pointer into unescaped reference
// tokens. The empty pointer addresses the root.
func parsePointer(pointer string) ([]string, error) {
	if pointer == "" {
		return nil, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, errors.Errorf("invalid JSON pointer %q: must start with '/'", pointer)
	}
	raw := strings.Split(pointer[1:], "/")
	tokens := make([]string, len(raw))
	for i, tok := range raw {
		tokens[i] = unescapeToken(tok)
	}
	return tokens, nil
}

// appendToken extends a pointer with one escaped reference token.
func appendToken(pointer, token string) string {
	return pointer + "/" + escapeToken(token)
}

func escapeToken(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}

func unescapeToken(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	return strings.ReplaceAll(token, "~0", "~")
}
