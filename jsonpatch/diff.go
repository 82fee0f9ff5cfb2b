package jsonpatch

import (
	"reflect"
	"sort"
	"strconv"
)

// Diff computes the operations that transform old into new. The walk is
// deterministic: object keys are visited in sorted order and additions are
// emitted before removals on the same parent. When both sides hold an
// object or both hold an array at the same path the walk recurses;
// otherwise a single replace is emitted. Arrays are compared positionally.
func Diff(oldValue, newValue any) []Operation {
	var ops []Operation
	diffValues("", oldValue, newValue, &ops)
	return ops
}

func diffValues(path string, oldValue, newValue any, ops *[]Operation) {
	switch oldTyped := oldValue.(type) {
	case map[string]any:
		if newTyped, ok := newValue.(map[string]any); ok {
			diffObjects(path, oldTyped, newTyped, ops)
			return
		}
	case []any:
		if newTyped, ok := newValue.([]any); ok {
			diffArrays(path, oldTyped, newTyped, ops)
			return
		}
	}
	if !reflect.DeepEqual(oldValue, newValue) {
		*ops = append(*ops, Operation{Op: OpReplace, Path: path, Value: newValue})
	}
}

func diffObjects(path string, oldObj, newObj map[string]any, ops *[]Operation) {
	for _, key := range sortedKeys(newObj) {
		if _, ok := oldObj[key]; !ok {
			*ops = append(*ops, Operation{Op: OpAdd, Path: appendToken(path, key), Value: newObj[key]})
		}
	}
	for _, key := range sortedKeys(oldObj) {
		if newChild, ok := newObj[key]; ok {
			diffValues(appendToken(path, key), oldObj[key], newChild, ops)
		}
	}
	for _, key := range sortedKeys(oldObj) {
		if _, ok := newObj[key]; !ok {
			*ops = append(*ops, Operation{Op: OpRemove, Path: appendToken(path, key)})
		}
	}
}

func diffArrays(path string, oldArr, newArr []any, ops *[]Operation) {
	shared := len(oldArr)
	if len(newArr) < shared {
		shared = len(newArr)
	}
	for i := 0; i < shared; i++ {
		diffValues(path+"/"+strconv.Itoa(i), oldArr[i], newArr[i], ops)
	}
	for i := shared; i < len(newArr); i++ {
		*ops = append(*ops, Operation{Op: OpAdd, Path: path + "/" + strconv.Itoa(i), Value: newArr[i]})
	}
	// Trailing elements are removed highest index first so every pointer
	// stays valid while the patch is applied in order.
	for i := len(oldArr) - 1; i >= shared; i-- {
		*ops = append(*ops, Operation{Op: OpRemove, Path: path + "/" + strconv.Itoa(i)})
	}
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for key := range obj {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
