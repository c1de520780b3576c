package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalBasic(t *testing.T) {
	tests := []struct {
		name     string
		input    IRValue
		expected string
	}{
		{"string", IRString("hello"), `"hello"`},
		{"empty string", IRString(""), `""`},
		{"int", IRInt(42), "42"},
		{"negative int", IRInt(-100), "-100"},
		{"max int64", IRInt(9223372036854775807), "9223372036854775807"},
		{"bool", IRBool(true), "true"},
		{"empty array", IRArray{}, "[]"},
		{"empty object", IRObject{}, "{}"},
		{"array", IRArray{IRInt(1), IRString("a")}, `[1,"a"]`},
		{"object", IRObject{"b": IRInt(1), "a": IRBool(false)}, `{"a":false,"b":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(out))
		})
	}
}

func TestMarshalCanonicalNestedSortedKeys(t *testing.T) {
	obj := IRObject{
		"z": IRObject{"b": IRInt(1), "a": IRInt(2)},
		"a": IRArray{IRObject{"y": IRInt(1), "x": IRInt(2)}},
	}

	out, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[{"x":2,"y":1}],"z":{"a":2,"b":1}}`, string(out))
}

func TestMarshalCanonicalUTF16Ordering(t *testing.T) {
	// U+10000 encodes as a surrogate pair starting 0xD800, which sorts
	// before U+E000 in UTF-16 but after it in UTF-8.
	obj := IRObject{
		"\ue000":     IRInt(1),
		"\U00010000": IRInt(2),
	}

	out, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, "{\"\U00010000\":2,\"\ue000\":1}", string(out))
}

func TestMarshalCanonicalEscaping(t *testing.T) {
	out, err := MarshalCanonical(IRString("<a & b>\"\\\n\t\x01\u2028"))
	require.NoError(t, err)
	assert.Equal(t, "\"<a & b>\\\"\\\\\\n\\t\\u0001\u2028\"", string(out))
}

func TestMarshalCanonicalNFC(t *testing.T) {
	decomposed := IRString("e\u0301")
	composed := IRString("\u00e9")

	a, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	b, err := MarshalCanonical(composed)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(a))
}

func TestMarshalCanonicalRejectsNFCCollision(t *testing.T) {
	obj := IRObject{"caf\u00e9": IRString("a"), "cafe\u0301": IRString("b")}

	_, err := MarshalCanonical(obj)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	_, err = MarshalCanonical(IRArray{IRObject{"x": obj}})
	assert.ErrorIs(t, err, ErrDuplicateKey)

	_, err = ContentHash(obj)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestMarshalCanonicalRejectsNil(t *testing.T) {
	_, err := MarshalCanonical(IRObject{"a": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null")
}

func TestIRObjectJSONRoundTrip(t *testing.T) {
	src := `{"name":"iblce","established_year":1985,"tags":["a","b"],"contact":{"email":"x@y"},"active":true}`

	var obj IRObject
	require.NoError(t, obj.UnmarshalJSON([]byte(src)))

	out, err := MarshalCanonical(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"active":true,"contact":{"email":"x@y"},"established_year":1985,"name":"iblce","tags":["a","b"]}`, string(out))
}
