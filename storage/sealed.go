package storage

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/occasio/occasio/internal/util"
)

const (
	saltKey        = "__salt"
	sealScheme     = "aes256gcm"
	sealAADPrefix  = "occasio:token:"
	sealedSaltSize = 16
)

// Envelope is a sealed token value as written to the underlying store.
type Envelope struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Sealed wraps a TokenStore so that values are encrypted at rest with a key
// derived from a passphrase. The derived key lives in a memguard Enclave and
// is only unsealed for the duration of a single Get or Set.
type Sealed struct {
	inner TokenStore
	key   *memguard.Enclave
}

var _ TokenStore = (*Sealed)(nil)

// NewSealed derives the sealing key from passphrase and a per-store salt.
// The salt is created and persisted in inner on first use.
func NewSealed(inner TokenStore, passphrase string) (*Sealed, error) {
	return newSealed(inner, passphrase, util.DefaultArgon2idParams())
}

func newSealed(inner TokenStore, passphrase string, params util.Argon2idParams) (*Sealed, error) {
	if passphrase == "" {
		return nil, errors.New("sealed store: passphrase must not be empty")
	}
	salt, err := loadOrCreateSalt(inner)
	if err != nil {
		return nil, err
	}
	key, err := util.DeriveKey(passphrase, salt, params)
	if err != nil {
		return nil, err
	}
	// NewEnclave wipes key.
	return &Sealed{inner: inner, key: memguard.NewEnclave(key)}, nil
}

func loadOrCreateSalt(inner TokenStore) ([]byte, error) {
	encoded, err := inner.Get(saltKey)
	if err == nil {
		salt, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decoding store salt: %w", err)
		}
		return salt, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	salt, err := util.RandomBytes(sealedSaltSize)
	if err != nil {
		return nil, err
	}
	if err := inner.Set(saltKey, base64.StdEncoding.EncodeToString(salt)); err != nil {
		return nil, fmt.Errorf("persisting store salt: %w", err)
	}
	return salt, nil
}

func (s *Sealed) Get(key string) (string, error) {
	raw, err := s.inner.Get(key)
	if err != nil {
		return "", err
	}
	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return "", fmt.Errorf("%s: %w", key, ErrUnsealFailed)
	}
	if env.Ver != 1 || env.Scheme != sealScheme {
		return "", fmt.Errorf("%s: unsupported envelope %d/%s: %w", key, env.Ver, env.Scheme, ErrUnsealFailed)
	}

	buf, err := s.key.Open()
	if err != nil {
		return "", fmt.Errorf("opening sealing key: %w", err)
	}
	defer buf.Destroy()

	full := make([]byte, 0, len(env.Nonce)+len(env.Ciphertext))
	full = append(full, env.Nonce...)
	full = append(full, env.Ciphertext...)
	plain, err := util.DecryptAESWithAAD(full, buf.Bytes(), []byte(sealAADPrefix+key))
	if err != nil {
		return "", fmt.Errorf("%s: %w", key, ErrUnsealFailed)
	}
	defer util.WipeBytes(plain)
	return string(plain), nil
}

func (s *Sealed) Set(key, value string) error {
	buf, err := s.key.Open()
	if err != nil {
		return fmt.Errorf("opening sealing key: %w", err)
	}
	defer buf.Destroy()

	sealed, err := util.EncryptAESWithAAD([]byte(value), buf.Bytes(), []byte(sealAADPrefix+key))
	if err != nil {
		return err
	}
	// EncryptAESWithAAD returns a 12-byte GCM nonce followed by ciphertext.
	env := Envelope{Ver: 1, Scheme: sealScheme, Nonce: sealed[:12], Ciphertext: sealed[12:]}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.inner.Set(key, string(data))
}

func (s *Sealed) Delete(keys ...string) error {
	return s.inner.Delete(keys...)
}
