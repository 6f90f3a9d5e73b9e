package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"

	"github.com/google/uuid"
)

// RefKey is the single object key that marks an identity reference in JSON.
// {"$ref":"<uuid>"} decodes to IRRef; any other object decodes to IRObject.
const RefKey = "$ref"

// IRValue is a sealed interface representing constrained component field values.
// Only IRString, IRInt, IRBool, IRArray, IRObject, and IRRef implement this.
// NO floats and NO null: both break canonical hashing of node content.
type IRValue interface {
	irValue() // Sealed - only these types implement it
}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer value. Always int64, never float64.
type IRInt int64

func (IRInt) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray represents an array of IRValue elements.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to IRValue elements.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// IRRef is an identity-valued field: a weak reference to another node.
// The reference rewrite pass during import and sync only touches IRRef values.
type IRRef uuid.UUID

func (IRRef) irValue() {}

// ID returns the referenced identity.
func (r IRRef) ID() uuid.UUID {
	return uuid.UUID(r)
}

// String returns the canonical textual form of the referenced identity.
func (r IRRef) String() string {
	return uuid.UUID(r).String()
}

// MarshalJSON encodes the reference as {"$ref":"<uuid>"}.
func (r IRRef) MarshalJSON() ([]byte, error) {
	return []byte(`{"` + RefKey + `":"` + r.String() + `"}`), nil
}

// IRPair represents a key-value pair for typed IRObject construction.
// This provides compile-time type safety - floats cannot be passed.
type IRPair struct {
	Key   string
	Value IRValue
}

// O is a shorthand for IRPair for ergonomic construction.
// Example: Obj(O("name", IRString("lamp")), O("lumens", IRInt(800)))
func O(key string, value IRValue) IRPair {
	return IRPair{Key: key, Value: value}
}

// Obj creates an IRObject from typed key-value pairs.
func Obj(pairs ...IRPair) IRObject {
	obj := make(IRObject, len(pairs))
	for _, p := range pairs {
		obj[p.Key] = p.Value
	}
	return obj
}

// Ref creates an IRRef for id.
func Ref(id uuid.UUID) IRRef {
	return IRRef(id)
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785.
func compareKeysRFC8785(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// Equal reports whether a and b hold the same value.
// Object key order is irrelevant; array order is significant.
func Equal(a, b IRValue) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case IRString:
		bv, ok := b.(IRString)
		return ok && av == bv
	case IRInt:
		bv, ok := b.(IRInt)
		return ok && av == bv
	case IRBool:
		bv, ok := b.(IRBool)
		return ok && av == bv
	case IRRef:
		bv, ok := b.(IRRef)
		return ok && av == bv
	case IRArray:
		bv, ok := b.(IRArray)
		return ok && slices.EqualFunc(av, bv, Equal)
	case IRObject:
		bv, ok := b.(IRObject)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, present := bv[k]
			if !present || !Equal(v, w) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Clone returns a deep copy of v. Scalars are returned as-is.
func Clone(v IRValue) IRValue {
	switch val := v.(type) {
	case IRArray:
		out := make(IRArray, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case IRObject:
		return val.Clone()
	default:
		return v
	}
}

// Clone returns a deep copy of the object. A nil object stays nil.
func (obj IRObject) Clone() IRObject {
	if obj == nil {
		return nil
	}
	out := make(IRObject, len(obj))
	for k, v := range obj {
		out[k] = Clone(v)
	}
	return out
}

// MapRefs returns a copy of v with every IRRef passed through fn.
// When fn reports false the reference is kept unchanged and its target is
// appended to the returned unresolved list (in traversal order, objects by sorted key).
func MapRefs(v IRValue, fn func(uuid.UUID) (uuid.UUID, bool)) (IRValue, []uuid.UUID) {
	var unresolved []uuid.UUID
	out := mapRefs(v, fn, &unresolved)
	return out, unresolved
}

func mapRefs(v IRValue, fn func(uuid.UUID) (uuid.UUID, bool), unresolved *[]uuid.UUID) IRValue {
	switch val := v.(type) {
	case IRRef:
		if target, ok := fn(val.ID()); ok {
			return IRRef(target)
		}
		*unresolved = append(*unresolved, val.ID())
		return val
	case IRArray:
		out := make(IRArray, len(val))
		for i, elem := range val {
			out[i] = mapRefs(elem, fn, unresolved)
		}
		return out
	case IRObject:
		out := make(IRObject, len(val))
		for _, k := range val.SortedKeys() {
			out[k] = mapRefs(val[k], fn, unresolved)
		}
		return out
	default:
		return v
	}
}

// Refs returns every identity referenced by v, in traversal order.
func Refs(v IRValue) []uuid.UUID {
	var ids []uuid.UUID
	mapRefs(v, func(uuid.UUID) (uuid.UUID, bool) { return uuid.Nil, false }, &ids)
	return ids
}

// UnmarshalJSON implements json.Unmarshaler for IRObject.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	val, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	o, ok := val.(IRObject)
	if !ok {
		return fmt.Errorf("expected object, got %T", val)
	}
	*obj = o
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for IRArray.
func (arr *IRArray) UnmarshalJSON(data []byte) error {
	val, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	a, ok := val.(IRArray)
	if !ok {
		return fmt.Errorf("expected array, got %T", val)
	}
	*arr = a
	return nil
}

// MarshalJSON implements json.Marshaler for IRObject with sorted keys (RFC 8785 ordering).
// NOTE: This is NOT canonical marshaling - may have HTML escaping. Use MarshalCanonical
// for content digests.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalIRValue marshals an IRValue to JSON bytes.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRRef:
		return val.MarshalJSON()
	case IRArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			elemBytes, err := MarshalIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(elemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// UnmarshalIRValue deserializes JSON into an IRValue with strict validation.
// CRITICAL: Rejects floats AND null. Objects of the exact form {"$ref":"<uuid>"}
// become IRRef.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	// UseNumber keeps integers exact and lets us detect floats
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	return FromGo(raw)
}

// FromGo converts a decoded Go value (json.Decoder with UseNumber, YAML, CUE)
// into an IRValue. Rejects null and floats.
func FromGo(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden: only string, int, bool, array, object, ref allowed")
	case IRValue:
		return val, nil
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden: %v", val)
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are forbidden: %s", val)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", val)
		}
		return IRInt(n), nil
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		if ref, ok, err := refFromMap(val); ok || err != nil {
			return ref, err
		}
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// refFromMap recognises the {"$ref": "<uuid>"} shape.
func refFromMap(m map[string]any) (IRValue, bool, error) {
	if len(m) != 1 {
		return nil, false, nil
	}
	raw, ok := m[RefKey]
	if !ok {
		return nil, false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, true, fmt.Errorf("%s must be a uuid string, got %T", RefKey, raw)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, true, fmt.Errorf("%s: %w", RefKey, err)
	}
	return IRRef(id), true, nil
}
