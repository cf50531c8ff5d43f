package storage

import "github.com/occasio/occasio/internal/util"

// NewSealedForTest uses cheap KDF parameters so tests stay fast.
func NewSealedForTest(inner TokenStore, passphrase string) (*Sealed, error) {
	return newSealed(inner, passphrase, util.Argon2idParams{Time: 1, MemoryKiB: 1024, Parallelism: 1, KeyLen: util.AESKeySize})
}
