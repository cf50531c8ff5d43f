package util

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2idParams tunes the passphrase KDF used for sealed token stores.
type Argon2idParams struct {
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"key_len"`
}

func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      AESKeySize,
	}
}

// DeriveKey stretches passphrase into an AES-256 key bound to salt.
func DeriveKey(passphrase string, salt []byte, params Argon2idParams) ([]byte, error) {
	if params.KeyLen != AESKeySize {
		return nil, fmt.Errorf("argon2id key length must be %d bytes", AESKeySize)
	}
	if len(salt) < 16 {
		return nil, fmt.Errorf("argon2id salt must be at least 16 bytes, got %d", len(salt))
	}
	return argon2.IDKey([]byte(passphrase), salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen), nil
}
