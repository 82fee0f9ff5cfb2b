package jsonpatch

import (
	"reflect"
	"strconv"

	"github.com/pkg/errors"
)

// Apply executes the operations in order against a deep copy of doc and
// returns the patched value. The input is never mutated. The first
// operation that cannot be applied aborts the run with an *OpError.
func Apply(ops []Operation, doc any) (any, error) {
	result := deepCopy(doc)
	for _, op := range ops {
		patched, err := applyOp(result, op)
		if err != nil {
			return nil, &OpError{Op: op, Err: err}
		}
		result = patched
	}
	return result, nil
}

func applyOp(doc any, op Operation) (any, error) {
	tokens, err := parsePointer(op.Path)
	if err != nil {
		return nil, err
	}

	switch op.Op {
	case OpAdd:
		return addValue(doc, tokens, deepCopy(op.Value))
	case OpReplace:
		return replaceValue(doc, tokens, deepCopy(op.Value))
	case OpRemove:
		patched, _, err := removeValue(doc, tokens)
		return patched, err
	case OpMove:
		fromTokens, err := parsePointer(op.From)
		if err != nil {
			return nil, err
		}
		patched, moved, err := removeValue(doc, fromTokens)
		if err != nil {
			return nil, err
		}
		return addValue(patched, tokens, moved)
	case OpCopy:
		fromTokens, err := parsePointer(op.From)
		if err != nil {
			return nil, err
		}
		value, err := getValue(doc, fromTokens)
		if err != nil {
			return nil, err
		}
		return addValue(doc, tokens, deepCopy(value))
	case OpTest:
		value, err := getValue(doc, tokens)
		if err != nil {
			return nil, err
		}
		if !reflect.DeepEqual(value, op.Value) {
			return nil, errors.Errorf("test failed at %q", op.Path)
		}
		return doc, nil
	default:
		return nil, errors.Errorf("unsupported operation %q", op.Op)
	}
}

func getValue(doc any, tokens []string) (any, error) {
	if len(tokens) == 0 {
		return doc, nil
	}
	switch container := doc.(type) {
	case map[string]any:
		child, ok := container[tokens[0]]
		if !ok {
			return nil, errors.Errorf("key %q not found", tokens[0])
		}
		return getValue(child, tokens[1:])
	case []any:
		index, err := arrayIndex(tokens[0], len(container), false)
		if err != nil {
			return nil, err
		}
		return getValue(container[index], tokens[1:])
	default:
		return nil, errors.Errorf("cannot descend into %T with token %q", doc, tokens[0])
	}
}

// addValue inserts value at the addressed location. Adding to an existing
// object key replaces it; adding to an array index shifts later elements
// right, with "-" and the index one past the end both appending.
func addValue(doc any, tokens []string, value any) (any, error) {
	if len(tokens) == 0 {
		return value, nil
	}
	token := tokens[0]
	switch container := doc.(type) {
	case map[string]any:
		if len(tokens) == 1 {
			container[token] = value
			return container, nil
		}
		child, ok := container[token]
		if !ok {
			return nil, errors.Errorf("key %q not found", token)
		}
		patched, err := addValue(child, tokens[1:], value)
		if err != nil {
			return nil, err
		}
		container[token] = patched
		return container, nil
	case []any:
		if len(tokens) == 1 {
			index, err := arrayIndex(token, len(container), true)
			if err != nil {
				return nil, err
			}
			container = append(container, nil)
			copy(container[index+1:], container[index:])
			container[index] = value
			return container, nil
		}
		index, err := arrayIndex(token, len(container), false)
		if err != nil {
			return nil, err
		}
		patched, err := addValue(container[index], tokens[1:], value)
		if err != nil {
			return nil, err
		}
		container[index] = patched
		return container, nil
	default:
		return nil, errors.Errorf("cannot descend into %T with token %q", doc, token)
	}
}

func replaceValue(doc any, tokens []string, value any) (any, error) {
	if len(tokens) == 0 {
		return value, nil
	}
	token := tokens[0]
	switch container := doc.(type) {
	case map[string]any:
		if _, ok := container[token]; !ok {
			return nil, errors.Errorf("key %q not found", token)
		}
		if len(tokens) == 1 {
			container[token] = value
			return container, nil
		}
		patched, err := replaceValue(container[token], tokens[1:], value)
		if err != nil {
			return nil, err
		}
		container[token] = patched
		return container, nil
	case []any:
		index, err := arrayIndex(token, len(container), false)
		if err != nil {
			return nil, err
		}
		if len(tokens) == 1 {
			container[index] = value
			return container, nil
		}
		patched, err := replaceValue(container[index], tokens[1:], value)
		if err != nil {
			return nil, err
		}
		container[index] = patched
		return container, nil
	default:
		return nil, errors.Errorf("cannot descend into %T with token %q", doc, token)
	}
}

func removeValue(doc any, tokens []string) (any, any, error) {
	if len(tokens) == 0 {
		return nil, doc, nil
	}
	token := tokens[0]
	switch container := doc.(type) {
	case map[string]any:
		child, ok := container[token]
		if !ok {
			return nil, nil, errors.Errorf("key %q not found", token)
		}
		if len(tokens) == 1 {
			delete(container, token)
			return container, child, nil
		}
		patched, removed, err := removeValue(child, tokens[1:])
		if err != nil {
			return nil, nil, err
		}
		container[token] = patched
		return container, removed, nil
	case []any:
		index, err := arrayIndex(token, len(container), false)
		if err != nil {
			return nil, nil, err
		}
		if len(tokens) == 1 {
			removed := container[index]
			container = append(container[:index], container[index+1:]...)
			return container, removed, nil
		}
		patched, removed, err := removeValue(container[index], tokens[1:])
		if err != nil {
			return nil, nil, err
		}
		container[index] = patched
		return container, removed, nil
	default:
		return nil, nil, errors.Errorf("cannot descend into %T with token %q", doc, token)
	}
}

// arrayIndex parses an array reference token. When inserting, "-" and an
// index equal to the length address the append position.
func arrayIndex(token string, length int, inserting bool) (int, error) {
	if token == "-" {
		if !inserting {
			return 0, errors.New(`"-" is only valid when adding`)
		}
		return length, nil
	}
	index, err := strconv.Atoi(token)
	if err != nil {
		return 0, errors.Errorf("invalid array index %q", token)
	}
	limit := length
	if inserting {
		limit = length + 1
	}
	if index < 0 || index >= limit {
		return 0, errors.Errorf("array index %d out of bounds (len %d)", index, length)
	}
	return index, nil
}

func deepCopy(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, child := range typed {
			out[key] = deepCopy(child)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, child := range typed {
			out[i] = deepCopy(child)
		}
		return out
	default:
		return value
	}
}
