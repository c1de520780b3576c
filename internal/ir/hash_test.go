package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashDeterminism(t *testing.T) {
	a := Obj(O("color", IRString("red")), O("size", IRInt(3)))
	b := Obj(O("size", IRInt(3)), O("color", IRString("red")))

	ha, err := ContentHash(a)
	require.NoError(t, err)
	hb, err := ContentHash(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestContentHashChangesWithContent(t *testing.T) {
	a := MustContentHash(Obj(O("color", IRString("red"))))
	b := MustContentHash(Obj(O("color", IRString("blue"))))
	assert.NotEqual(t, a, b)
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`{}`)
	assert.NotEqual(t, hashWithDomain(DomainDocument, data), hashWithDomain(DomainRules, data))
}

func TestHashWithDomainNullSeparator(t *testing.T) {
	// "ab" + "c" must differ from "a" + "bc".
	assert.NotEqual(t, hashWithDomain("ab", []byte("c")), hashWithDomain("a", []byte("bc")))
}
