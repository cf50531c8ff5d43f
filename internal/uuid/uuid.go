// Package uuid generates random identifiers for client-side records such as
// toast notifications.
package uuid

import guuid "github.com/google/uuid"

// New returns a random (version 4) UUID string.
func New() string {
	return guuid.NewString()
}
