package token

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrTamperedToken is the single failure mode of Open: bad encoding, truncation,
// a foreign key, a flipped bit — none of them is distinguishable to the caller.
var ErrTamperedToken = errors.New("token: invalid or tampered")

// Claims is the bundle sealed inside a QR token.
type Claims struct {
	TransactionID string `json:"transaction_id"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Duration      int    `json:"duration"`
	Amount        int    `json:"amount"`
	Plan          string `json:"plan"`
	SecureKey     string `json:"secure_key"`
}

// Codec seals claims into opaque url-safe tokens with ChaCha20-Poly1305.
type Codec struct {
	aead cipher.AEAD
}

func New(key []byte) (*Codec, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("token: init cipher: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// LoadOrCreateKey reads the deployment key from path, generating and persisting
// a fresh one on first start. Losing the file invalidates all unscanned tokens;
// they have to be reissued.
func LoadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err == nil {
		if len(key) != chacha20poly1305.KeySize {
			return nil, fmt.Errorf("token: key file %s has %d bytes, want %d", path, len(key), chacha20poly1305.KeySize)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("token: read key file: %w", err)
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("token: generate key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("token: write key file: %w", err)
	}
	return key, nil
}

func (c *Codec) Mint(claims Claims) (string, error) {
	plain, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("token: marshal claims: %w", err)
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("token: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *Codec) Open(tok string) (Claims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(tok)
	if err != nil || len(raw) < c.aead.NonceSize() {
		return Claims{}, ErrTamperedToken
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return Claims{}, ErrTamperedToken
	}
	var claims Claims
	if err := json.Unmarshal(plain, &claims); err != nil {
		return Claims{}, ErrTamperedToken
	}
	return claims, nil
}

// NewSecureKey returns a 14-digit zero-padded single-use key.
func NewSecureKey() (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(14), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("token: secure key: %w", err)
	}
	return fmt.Sprintf("%014d", n), nil
}

// NewRestoreKey returns the secondary credential handed out at session start.
func NewRestoreKey() (string, error) {
	b := make([]byte, 12)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("token: restore key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
