package lastfm

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	creds := Credentials{Token: "untouched"}
	if err := store.Get(ctx, &creds); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if creds.Token != "untouched" {
		t.Errorf("expected empty store to leave value alone, got %+v", creds)
	}

	if err := store.Set(ctx, Credentials{Token: "abc123"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got Credentials
	err := store.Update(ctx, &got, func() error {
		if got.Token != "abc123" {
			t.Errorf("expected Update to read current document, got %+v", got)
		}
		got = Credentials{SessionID: "sess1"}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if creds := storedCredentials(t, store); creds != (Credentials{SessionID: "sess1"}) {
		t.Errorf("unexpected document %+v", creds)
	}
}

func TestMemoryStore_UpdateAbort(t *testing.T) {
	ctx := context.Background()
	store := storeWith(t, Credentials{SessionID: "sess1"})

	boom := errors.New("boom")
	var creds Credentials
	err := store.Update(ctx, &creds, func() error {
		creds.SessionID = "changed"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected fn error, got %v", err)
	}
	if got := storedCredentials(t, store); got.SessionID != "sess1" {
		t.Errorf("expected aborted update to write nothing, got %+v", got)
	}
}
