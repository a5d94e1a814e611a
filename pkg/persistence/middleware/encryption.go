package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/quotecraft/drew/pkg/domain"
	"github.com/quotecraft/drew/pkg/ports"
)

// ErrNotSealed is returned when an encrypting store reads a plain snapshot.
var ErrNotSealed = errors.New("conversation is missing its encrypted envelope")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next ports.ContextStore
	// aeads holds the active cipher first, then the fallbacks in order.
	aeads []cipher.AEAD
}

// NewEncryptionMiddleware creates a middleware that seals the conversation
// context with AES-GCM. The state tag stays readable for monitoring. The
// conversation id is authenticated with the ciphertext, so an envelope copied
// under another id does not open.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, fmt.Errorf("active key must be 32 bytes (AES-256), got %d", len(config.ActiveKey))
	}
	aeads := make([]cipher.AEAD, 0, 1+len(config.FallbackKeys))
	for i, key := range append([][]byte{config.ActiveKey}, config.FallbackKeys...) {
		aead, err := newGCM(key)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		aeads = append(aeads, aead)
	}
	return func(next ports.ContextStore) ports.ContextStore {
		return &encryptionMiddleware{next: next, aeads: aeads}
	}, nil
}

// ParseKey decodes a base64 AES-256 key.
func ParseKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, conv *domain.Conversation) error {
	plainText, err := json.Marshal(conv.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	ciphertext, err := m.seal(plainText, conv.ID)
	if err != nil {
		return fmt.Errorf("failed to encrypt context: %w", err)
	}

	envelope := &domain.Conversation{
		ID:        conv.ID,
		State:     conv.State,
		UpdatedAt: conv.UpdatedAt,
		Sealed:    base64.StdEncoding.EncodeToString(ciphertext),
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, id string) (*domain.Conversation, error) {
	envelope, err := m.next.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	// Fail closed: plain snapshots are not accepted once encryption is on.
	if envelope.Sealed == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotSealed, id)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(envelope.Sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := m.open(ciphertext, id)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt context: %w", err)
	}

	c := domain.NewContext()
	if err := json.Unmarshal(plainText, c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted context: %w", err)
	}

	return &domain.Conversation{
		ID:        envelope.ID,
		State:     envelope.State,
		Context:   c,
		UpdatedAt: envelope.UpdatedAt,
	}, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// seal encrypts with the active key. The output is nonce || ciphertext.
func (m *encryptionMiddleware) seal(plaintext []byte, id string) ([]byte, error) {
	aead := m.aeads[0]
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, []byte(id)), nil
}

// open tries the active key, then each fallback.
func (m *encryptionMiddleware) open(sealed []byte, id string) ([]byte, error) {
	for _, aead := range m.aeads {
		n := aead.NonceSize()
		if len(sealed) < n {
			return nil, errors.New("ciphertext too short")
		}
		if plain, err := aead.Open(nil, sealed[:n], sealed[n:], []byte(id)); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}
