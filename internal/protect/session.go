// Package protect holds the protected session: while it is unlocked, content
// of protected notes is sealed with age before it reaches the store and
// opened again on read.
package protect

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"filippo.io/age"
)

var ErrSessionLocked = errors.New("protected session is not active")

type Session struct {
	mu       sync.RWMutex
	identity *age.X25519Identity
}

func NewSession() *Session {
	return &Session{}
}

// Unlock parses an AGE-SECRET-KEY-1... identity and activates the session.
func (s *Session) Unlock(secretKey string) error {
	identity, err := age.ParseX25519Identity(strings.TrimSpace(secretKey))
	if err != nil {
		return fmt.Errorf("parse age identity: %w", err)
	}

	s.mu.Lock()
	s.identity = identity
	s.mu.Unlock()
	return nil
}

func (s *Session) Lock() {
	s.mu.Lock()
	s.identity = nil
	s.mu.Unlock()
}

func (s *Session) IsActive() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil
}

func (s *Session) Encrypt(plaintext []byte) ([]byte, error) {
	identity, err := s.current()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, identity.Recipient())
	if err != nil {
		return nil, fmt.Errorf("create age encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("write plaintext: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalize age encryption: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Session) Decrypt(ciphertext []byte) ([]byte, error) {
	identity, err := s.current()
	if err != nil {
		return nil, err
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypt content: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read decrypted content: %w", err)
	}
	return plaintext, nil
}

func (s *Session) current() (*age.X25519Identity, error) {
	if s == nil {
		return nil, ErrSessionLocked
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return nil, ErrSessionLocked
	}
	return s.identity, nil
}

// GenerateKey returns a fresh identity string for Unlock.
func GenerateKey() (string, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return "", fmt.Errorf("generate age identity: %w", err)
	}
	return identity.String(), nil
}
