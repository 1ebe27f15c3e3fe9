package server

import (
	"strings"
	"testing"
)

func TestRoomCodeShape(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		code := newRoomCode()
		if len(code) != roomCodeLength {
			t.Fatalf("expected %d characters, got %q", roomCodeLength, code)
		}
		for _, r := range code {
			if !strings.ContainsRune(roomCodeAlphabet, r) {
				t.Fatalf("character %q outside the code alphabet", r)
			}
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 2 {
		t.Fatal("codes do not look random")
	}
}

func TestStoreCreateAndLookup(t *testing.T) {
	srv, _ := newGameServer(t)
	session, err := srv.store.Create(srv, testIdentity(1))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if srv.store.Count() != 1 {
		t.Fatalf("expected 1 room, got %d", srv.store.Count())
	}

	if _, ok := srv.store.Get(session.code); !ok {
		t.Fatal("room not found by code")
	}
	if _, ok := srv.store.Get(strings.ToLower(session.code)); !ok {
		t.Fatal("lookup must be case-insensitive")
	}
	if _, ok := srv.store.Get("NOSUCH"); ok {
		t.Fatal("unknown code must not resolve")
	}

	if found, ok := srv.store.FindByUser(1); !ok || found != session {
		t.Fatal("FindByUser should locate the creator's room")
	}
	if _, ok := srv.store.FindByUser(99); ok {
		t.Fatal("FindByUser must not match strangers")
	}

	srv.store.Remove(session.code)
	if srv.store.Count() != 0 {
		t.Fatal("room not removed")
	}
}
