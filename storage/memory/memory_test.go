package memory

import (
	"testing"

	"github.com/occasio/occasio/storage/storagetest"
)

func TestMemoryStore(t *testing.T) {
	storagetest.Run(t, NewStore())
}

func TestMemoryStoreLen(t *testing.T) {
	s := NewStore()
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d keys", s.Len())
	}
	_ = s.Set("access", "a")
	_ = s.Set("refresh", "r")
	if s.Len() != 2 {
		t.Fatalf("expected 2 keys, got %d", s.Len())
	}
	_ = s.Delete("access", "refresh")
	if s.Len() != 0 {
		t.Fatalf("expected empty store after delete, got %d keys", s.Len())
	}
}
