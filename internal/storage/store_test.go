package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
)

func createTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func TestNamespace_GetMissing(t *testing.T) {
	db := createTestDB(t)

	creds := lastfm.Credentials{Token: "keep"}
	if err := db.Namespace("Last.fm").Get(context.Background(), &creds); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if creds.Token != "keep" {
		t.Errorf("expected missing document to leave value untouched, got %+v", creds)
	}
}

func TestNamespace_SetGet(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()
	ns := db.Namespace("Last.fm")

	want := lastfm.Credentials{SessionID: "sess1", SessionName: "u1"}
	if err := ns.Set(ctx, want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got lastfm.Credentials
	if err := ns.Get(ctx, &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}

	// Overwrite replaces the document.
	if err := ns.Set(ctx, lastfm.Credentials{Token: "abc123"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got = lastfm.Credentials{}
	if err := ns.Get(ctx, &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != (lastfm.Credentials{Token: "abc123"}) {
		t.Errorf("expected overwritten document, got %+v", got)
	}
}

func TestNamespace_Isolation(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()

	if err := db.Namespace("Last.fm").Set(ctx, lastfm.Credentials{SessionID: "a"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := db.Namespace("Libre.fm").Set(ctx, lastfm.Credentials{SessionID: "b"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got lastfm.Credentials
	if err := db.Namespace("Libre.fm").Get(ctx, &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SessionID != "b" {
		t.Errorf("expected Libre.fm session b, got %+v", got)
	}

	names, err := db.Namespaces(ctx)
	if err != nil {
		t.Fatalf("Namespaces: %v", err)
	}
	if len(names) != 2 || names[0] != "Last.fm" || names[1] != "Libre.fm" {
		t.Errorf("unexpected namespaces %v", names)
	}

	if err := db.Delete(ctx, "Last.fm"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := db.Delete(ctx, "missing"); err != nil {
		t.Errorf("expected deleting a missing namespace to succeed, got %v", err)
	}
	names, _ = db.Namespaces(ctx)
	if len(names) != 1 || names[0] != "Libre.fm" {
		t.Errorf("unexpected namespaces after delete %v", names)
	}
}

func TestNamespace_Update(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()
	ns := db.Namespace("Last.fm")

	if err := ns.Set(ctx, lastfm.Credentials{Token: "abc123"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var creds lastfm.Credentials
	err := ns.Update(ctx, &creds, func() error {
		if creds.Token != "abc123" {
			t.Errorf("expected Update to see token abc123, got %+v", creds)
		}
		creds = lastfm.Credentials{SessionID: "sess1", SessionName: "u1"}
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	var got lastfm.Credentials
	if err := ns.Get(ctx, &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != (lastfm.Credentials{SessionID: "sess1", SessionName: "u1"}) {
		t.Errorf("unexpected document %+v", got)
	}
}

func TestNamespace_UpdateRollback(t *testing.T) {
	db := createTestDB(t)
	ctx := context.Background()
	ns := db.Namespace("Last.fm")

	if err := ns.Set(ctx, lastfm.Credentials{Token: "abc123"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	boom := errors.New("boom")
	var creds lastfm.Credentials
	err := ns.Update(ctx, &creds, func() error {
		creds.Token = ""
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	var got lastfm.Credentials
	if err := ns.Get(ctx, &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Token != "abc123" {
		t.Errorf("expected rolled back document to keep token, got %+v", got)
	}
}

func TestOpen_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	ctx := context.Background()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Namespace("Last.fm").Set(ctx, lastfm.Credentials{SessionID: "sess1"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	var got lastfm.Credentials
	if err := db.Namespace("Last.fm").Get(ctx, &got); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SessionID != "sess1" {
		t.Errorf("expected session to survive reopen, got %+v", got)
	}
}

func TestNamespace_DrivesAuthService(t *testing.T) {
	db := createTestDB(t)
	ns := db.Namespace("Last.fm")

	client, err := lastfm.NewClient(lastfm.Config{
		Label:     "Last.fm",
		APIKey:    "k",
		APISecret: "s",
		Store:     ns,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	// No token, no session: fails without touching the network.
	if _, err := client.Auth().Session(context.Background()); lastfm.ResultOf(err) != lastfm.ResultAuthError {
		t.Errorf("expected auth error, got %v", err)
	}

	if err := ns.Set(context.Background(), lastfm.Credentials{SessionID: "sess1", SessionName: "u1"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	session, err := client.Auth().Session(context.Background())
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	if session.ID != "sess1" {
		t.Errorf("expected stored session, got %+v", session)
	}
}
