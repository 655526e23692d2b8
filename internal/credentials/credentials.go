package credentials

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	serviceName = "pedometer"
	keyToken    = "bridge_token"
)

var ErrNotFound = errors.New("credentials: not found")

func StoreAppSecret(key string, value string) error {
	return keyring.Set(serviceName, "app:"+key, value)
}

func LoadAppSecret(key string) (string, error) {
	val, err := keyring.Get(serviceName, "app:"+key)
	if err != nil {
		return "", ErrNotFound
	}
	return val, nil
}

// NewToken returns 32 random bytes, base64url encoded.
func NewToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// BridgeToken returns the token guarding the local bridge endpoint,
// minting and storing one on first use.
func BridgeToken() (string, error) {
	if tok, err := LoadAppSecret(keyToken); err == nil {
		return tok, nil
	}

	tok, err := NewToken()
	if err != nil {
		return "", fmt.Errorf("generate bridge token: %w", err)
	}
	if err := StoreAppSecret(keyToken, tok); err != nil {
		return "", fmt.Errorf("store bridge token: %w", err)
	}
	return tok, nil
}
