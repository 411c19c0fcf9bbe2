package services

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA512 of the canonical IPN body.
const SignatureHeader = "x-nowpayments-sig"

// Verifier authenticates instant payment notifications with a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Canonicalize re-encodes a JSON document with object keys sorted at every
// level and no insignificant whitespace. Number literals are kept as sent.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON document")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Sign returns the hex signature the provider would send for raw.
func (v *Verifier) Sign(raw []byte) (string, error) {
	canonical, err := Canonicalize(raw)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(v.mac(canonical)), nil
}

// Verify reports whether signature authenticates raw. Missing, malformed or
// mismatched signatures and unparseable bodies all yield false.
func (v *Verifier) Verify(raw []byte, signature string) bool {
	if len(v.secret) == 0 {
		return false
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	canonical, err := Canonicalize(raw)
	if err != nil {
		return false
	}
	return hmac.Equal(v.mac(canonical), provided)
}

func (v *Verifier) mac(canonical []byte) []byte {
	h := hmac.New(sha512.New, v.secret)
	h.Write(canonical)
	return h.Sum(nil)
}
