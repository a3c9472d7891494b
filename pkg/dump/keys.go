package dump

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/curve25519"
	wgdev "golang.zx2c4.com/wireguard/device"
)

const redacted = "[redacted]"

var errKeyLength = errors.New("key must be base64 of 32 bytes")

// PrivateKey holds an interface private key. It has no accessor for the key
// material and every textual rendering of it is redacted, so it cannot end up
// in a label, a log line or a JSON document by accident.
type PrivateKey struct {
	key wgdev.NoisePrivateKey
}

// ParsePrivateKey decodes a base64 private key as printed by wg. Empty input
// and "(none)" yield the zero key.
func ParsePrivateKey(s string) (PrivateKey, error) {
	var k PrivateKey
	s = strings.TrimSpace(s)
	if s == "" || s == noneToken {
		return k, nil
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return k, err
	}
	if len(raw) != wgdev.NoisePrivateKeySize {
		return k, errKeyLength
	}
	if err := k.key.FromHex(hex.EncodeToString(raw)); err != nil {
		return PrivateKey{}, err
	}
	return k, nil
}

// IsZero reports whether no key is configured.
func (k PrivateKey) IsZero() bool { return k.key.IsZero() }

// Equals compares two keys in constant time.
func (k PrivateKey) Equals(o PrivateKey) bool { return k.key.Equals(o.key) }

// PublicKey derives the matching Curve25519 public key.
func (k PrivateKey) PublicKey() (wgdev.NoisePublicKey, error) {
	var pub wgdev.NoisePublicKey
	if k.IsZero() {
		return pub, errors.New("zero private key")
	}
	out, err := curve25519.X25519(k.key[:], curve25519.Basepoint)
	if err != nil {
		return pub, fmt.Errorf("derive public key: %w", err)
	}
	copy(pub[:], out)
	return pub, nil
}

func (k PrivateKey) String() string   { return redacted }
func (k PrivateKey) GoString() string { return redacted }

func (k PrivateKey) MarshalText() ([]byte, error) { return []byte(redacted), nil }

func parsePublicKey(s string) (wgdev.NoisePublicKey, error) {
	var pub wgdev.NoisePublicKey
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return pub, err
	}
	if len(raw) != wgdev.NoisePublicKeySize {
		return pub, errKeyLength
	}
	copy(pub[:], raw)
	return pub, nil
}
