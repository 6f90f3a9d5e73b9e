package ir

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"min int64", IRInt(-9223372036854775808), "-9223372036854775808"},
		{"bool true", IRBool(true), "true"},
		{"bool false", IRBool(false), "false"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"array of ints", IRArray{IRInt(1), IRInt(2), IRInt(3)}, "[1,2,3]"},
		{"go string", "hello", `"hello"`},
		{"go int", 7, "7"},
		{"go map", map[string]any{"b": int64(1), "a": "x"}, `{"a":"x","b":1}`},
		{"go slice", []any{int64(1), "two", true}, `[1,"two",true]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalSortedKeys(t *testing.T) {
	obj := IRObject{
		"z": IRObject{"b": IRInt(1), "a": IRInt(2)},
		"a": IRInt(3),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":3,"z":{"a":2,"b":1}}`, string(result))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as surrogates 0xD800 0xDC00, which sort before 0xE000
	obj := IRObject{
		"\uE000":     IRInt(1),
		"\U00010000": IRInt(2),
	}

	result, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\uE000\":1}", string(result))
}

func TestMarshalCanonicalNoHTMLEscape(t *testing.T) {
	result, err := MarshalCanonical(IRObject{"label": IRString("<b>a & b</b>")})
	require.NoError(t, err)
	assert.Equal(t, `{"label":"<b>a & b</b>"}`, string(result))
}

func TestMarshalCanonicalRejects(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, "null"},
		{"float64", float64(3.14), "float"},
		{"float32", float32(1.5), "float"},
		{"nested float", map[string]any{"x": 1.5}, "float"},
		{"nested null", IRArray{IRInt(1), nil}, "null"},
		{"unsupported", struct{}{}, "unsupported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MarshalCanonical(tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMarshalCanonicalNFCNormalization(t *testing.T) {
	composed := "caf\u00E9"
	decomposed := "cafe\u0301"

	a, err := MarshalCanonical(IRObject{composed: IRString(composed)})
	require.NoError(t, err)
	b, err := MarshalCanonical(IRObject{decomposed: IRString(decomposed)})
	require.NoError(t, err)

	assert.Equal(t, a, b, "NFC normalization should make keys and values equal")
}

func TestMarshalCanonicalStringEscaping(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"newline", "a\nb", `"a\nb"`},
		{"tab", "a\tb", `"a\tb"`},
		{"quote", `a"b`, `"a\"b"`},
		{"backslash", `a\b`, `"a\\b"`},
		{"line separator", "a\u2028b", "\"a\u2028b\""},
		{"paragraph separator", "a\u2029b", "\"a\u2029b\""},
		{"literal backslash u2028", `see \u2028`, `"see \\u2028"`},
		{"literal and actual", "x \\u2029 y \u2029", "\"x \\\\u2029 y \u2029\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := MarshalCanonical(IRString(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(result))
		})
	}
}

func TestMarshalCanonicalRef(t *testing.T) {
	id := uuid.MustParse("018f4e2a-0000-7000-8000-000000000001")

	result, err := MarshalCanonical(IRObject{"target": Ref(id)})
	require.NoError(t, err)
	assert.Equal(t, `{"target":{"$ref":"018f4e2a-0000-7000-8000-000000000001"}}`, string(result))
}

func TestMarshalCanonicalIdempotency(t *testing.T) {
	id := uuid.MustParse("018f4e2a-0000-7000-8000-000000000002")
	cases := []IRValue{
		IRString("hello"),
		IRInt(42),
		IRArray{IRInt(1), IRString("two"), IRBool(false)},
		IRObject{"nested": IRObject{"array": IRArray{IRInt(1), Ref(id)}}, "simple": IRString("v")},
	}

	for _, original := range cases {
		first, err := MarshalCanonical(original)
		require.NoError(t, err)

		val, err := UnmarshalIRValue(first)
		require.NoError(t, err)
		assert.True(t, Equal(original, val))

		second, err := MarshalCanonical(val)
		require.NoError(t, err)
		assert.Equal(t, first, second, "canonical marshaling must be idempotent")
	}
}

// FuzzMarshalCanonicalIdempotent tests the idempotency property via fuzzing
func FuzzMarshalCanonicalIdempotent(f *testing.F) {
	f.Add(`{"a":1,"b":"test"}`)
	f.Add(`[1,2,3]`)
	f.Add(`{"$ref":"018f4e2a-0000-7000-8000-000000000003"}`)
	f.Add(`{"nested":{"deep":{"value":123}}}`)

	f.Fuzz(func(t *testing.T, jsonStr string) {
		val, err := UnmarshalIRValue([]byte(jsonStr))
		if err != nil {
			t.Skip()
		}

		first, err := MarshalCanonical(val)
		if err != nil {
			t.Skip()
		}

		val2, err := UnmarshalIRValue(first)
		require.NoError(t, err)

		second, err := MarshalCanonical(val2)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})
}
