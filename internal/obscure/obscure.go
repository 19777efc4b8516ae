// Package obscure implements rclone's fs/config/obscure convention:
// passwords are obscured (reversibly encoded, not encrypted against a
// secret) before they're written to any persisted configuration, and
// revealed only at the point a connection actually needs them.
//
// Grounded on fs/config/obscure (the fixed AES-CTR key and IV-prefixed,
// unpadded-base64 wire format are reused verbatim so obscured values
// written by one tool stay readable by any other built against the same
// convention).
package obscure

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
)

// cryptKey is fixed and public: obscuring a password is not meant to keep
// it secret from anyone with the source code, only to keep it out of plain
// sight in a config file or log line.
var cryptKey = []byte{
	0x9c, 0x93, 0x5b, 0x48, 0x73, 0x0a, 0x55, 0x4d,
	0x6b, 0xfd, 0x7c, 0x63, 0xc8, 0x86, 0xa9, 0x2b,
	0xd3, 0x90, 0x19, 0x8e, 0xb8, 0x12, 0x8a, 0xfb,
	0xf4, 0xde, 0x16, 0x2b, 0x8b, 0x95, 0xf6, 0x38,
}

// cryptRand is a package variable purely so tests can substitute a fixed
// stream in place of crypto/rand.Reader for deterministic IVs.
var cryptRand = rand.Reader

func crypt(input, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(cryptKey)
	if err != nil {
		return nil, errors.Wrap(err, "obscure: failed to make cipher")
	}
	stream := cipher.NewCTR(block, iv)
	out := make([]byte, len(input))
	stream.XORKeyStream(out, input)
	return out, nil
}

// Obscure encodes x so it is safe to write to a config file: not secret,
// just not plain text.
func Obscure(x string) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(cryptRand, iv); err != nil {
		return "", errors.Wrap(err, "obscure: failed to read iv")
	}
	ciphertext, err := crypt([]byte(x), iv)
	if err != nil {
		return "", errors.Wrap(err, "obscure: encrypt failed when obscuring password")
	}
	return base64.RawURLEncoding.EncodeToString(append(iv, ciphertext...)), nil
}

// MustObscure is Obscure for call sites (interactive configuration) that
// treat a cipher or entropy failure as fatal rather than recoverable.
func MustObscure(x string) string {
	out, err := Obscure(x)
	if err != nil {
		panic(err)
	}
	return out
}

// Reveal decodes a password previously produced by Obscure.
func Reveal(x string) (string, error) {
	ciphertext, err := base64.RawURLEncoding.DecodeString(x)
	if err != nil {
		return "", errors.Wrap(err, "obscure: base64 decode failed when revealing password - is it obscured?")
	}
	if len(ciphertext) < aes.BlockSize {
		return "", errors.New("obscure: input too short when revealing password - is it obscured?")
	}
	iv, ciphertext := ciphertext[:aes.BlockSize], ciphertext[aes.BlockSize:]
	plaintext, err := crypt(ciphertext, iv)
	if err != nil {
		return "", errors.Wrap(err, "obscure: decrypt failed when revealing password - is it obscured?")
	}
	return string(plaintext), nil
}

// MustReveal is Reveal for call sites that treat a malformed obscured
// value as a programming error rather than something to recover from.
func MustReveal(x string) string {
	out, err := Reveal(x)
	if err != nil {
		panic(err)
	}
	return out
}
