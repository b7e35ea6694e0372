// Package secrets provides the credential-store collaborator. Values are
// resolved by name at launch time and never logged; the file-backed store
// keeps them encrypted at rest.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/HamiGames/Lucid-sub000/internal/core/crypto"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrSecretNotFound is returned when a referenced secret is not defined.
	ErrSecretNotFound = errors.New("secret not found")
)

// =============================================================================
// Store Interface
// =============================================================================

// Store resolves named secrets.
type Store interface {
	Get(name string) (string, error)
}

// =============================================================================
// Env Store
// =============================================================================

// EnvStore resolves secrets from environment variables with a prefix.
// Secret "db_password" reads LUCID_SECRET_DB_PASSWORD.
type EnvStore struct {
	Prefix string
}

// NewEnvStore creates an environment-backed secret store.
func NewEnvStore() *EnvStore {
	return &EnvStore{Prefix: "LUCID_SECRET_"}
}

func (s *EnvStore) Get(name string) (string, error) {
	key := s.Prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	val, ok := os.LookupEnv(key)
	if !ok {
		return "", fmt.Errorf("%w: %s (env %s)", ErrSecretNotFound, name, key)
	}
	return val, nil
}

// =============================================================================
// File Store
// =============================================================================

// FileStore resolves secrets from a YAML file of name → base64(AES-GCM)
// entries, decrypted with a key derived from the master passphrase.
type FileStore struct {
	values map[string]string
	key    []byte
}

// NewFileStore loads and decrypts a secrets file.
func NewFileStore(path, passphrase string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}

	var encrypted map[string]string
	if err := yaml.Unmarshal(data, &encrypted); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}

	key := crypto.DeriveKey(passphrase)
	values := make(map[string]string, len(encrypted))
	for name, enc := range encrypted {
		plain, err := crypto.DecryptFromBase64(enc, key)
		if err != nil {
			return nil, fmt.Errorf("decrypt secret %q: %w", name, err)
		}
		values[name] = string(plain)
	}

	return &FileStore{values: values, key: key}, nil
}

func (s *FileStore) Get(name string) (string, error) {
	val, ok := s.values[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return val, nil
}

// =============================================================================
// Static Store
// =============================================================================

// StaticStore serves a fixed map. Used by tests and dry runs.
type StaticStore map[string]string

func (s StaticStore) Get(name string) (string, error) {
	val, ok := s[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return val, nil
}
