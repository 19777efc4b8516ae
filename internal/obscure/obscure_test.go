package obscure

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObscureRevealRoundTrip(t *testing.T) {
	for _, in := range []string{"", "potato", "a very long password with spaces and symbols !@#$"} {
		got, err := Obscure(in)
		require.NoError(t, err)
		assert.NotEqual(t, in, got)

		revealed, err := Reveal(got)
		require.NoError(t, err)
		assert.Equal(t, in, revealed)
	}
}

func TestObscureIsDeterministicGivenTheSameIV(t *testing.T) {
	cryptRand = bytes.NewBufferString("aaaaaaaaaaaaaaaa")
	got, err := Obscure("potato")
	cryptRand = rand.Reader
	require.NoError(t, err)

	cryptRand = bytes.NewBufferString("aaaaaaaaaaaaaaaa")
	got2, err := Obscure("potato")
	cryptRand = rand.Reader
	require.NoError(t, err)

	assert.Equal(t, got, got2, "same IV and plaintext must obscure identically")
}

func TestRevealRejectsMalformedInput(t *testing.T) {
	_, err := Reveal("not valid base64!!")
	assert.Error(t, err)

	_, err = Reveal("")
	assert.Error(t, err)
}

func TestMustObscureMustReveal(t *testing.T) {
	got := MustObscure("hunter2")
	assert.Equal(t, "hunter2", MustReveal(got))
}
