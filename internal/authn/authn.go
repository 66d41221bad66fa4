// Package authn validates the API keys guarding every metadata and
// download request.
package authn

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrAuthenticationFailed is returned for missing or unknown tokens.
var ErrAuthenticationFailed = errors.New("authentication failed")

// FixedPassword pairs with the token in HTTP basic auth purely for
// transport framing; it carries no security weight and is never
// validated. The token in the username field is the real credential.
const FixedPassword = "package-bridge"

// Key is an API key. The token is the secret; the remaining fields are
// descriptive.
type Key struct {
	Token     string    `json:"token"`
	User      string    `json:"user"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository looks tokens up by exact match of the secret value.
type Repository interface {
	FindByToken(token string) (*Key, error)
}

// NewToken generates a random API key token.
func NewToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// MemoryRepository is a fixed in-memory key set.
type MemoryRepository struct {
	keys []*Key
}

func NewMemoryRepository(keys ...*Key) *MemoryRepository {
	return &MemoryRepository{keys: keys}
}

func (m *MemoryRepository) FindByToken(token string) (*Key, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrAuthenticationFailed)
	}
	for _, k := range m.keys {
		if subtle.ConstantTimeCompare([]byte(k.Token), []byte(token)) == 1 {
			return k, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown token", ErrAuthenticationFailed)
}
