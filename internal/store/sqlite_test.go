package store

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"sync"
	"testing"

	"groupcast/internal/secretbox"
	logx "groupcast/pkg/logx"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	box, err := secretbox.New(key)
	if err != nil {
		t.Fatal(err)
	}
	db, err := Open(Config{Path: filepath.Join(t.TempDir(), "test.db")}, box, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAddAndLoadAccounts(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.AddAccount(ctx, "12345", "deadbeef", "+48100200300")
	if err != nil {
		t.Fatalf("AddAccount: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero record id")
	}
	if _, err := db.AddAccount(ctx, "67890", "cafebabe", "+48100200301"); err != nil {
		t.Fatal(err)
	}

	accts, corrupt, err := db.Accounts(ctx)
	if err != nil {
		t.Fatalf("Accounts: %v", err)
	}
	if len(corrupt) != 0 {
		t.Fatalf("unexpected corrupt rows: %v", corrupt)
	}
	if len(accts) != 2 {
		t.Fatalf("got %d accounts, want 2", len(accts))
	}
	if accts[0].APIID != "12345" || accts[0].APIHash != "deadbeef" || accts[0].Handle != "+48100200300" {
		t.Fatalf("first account decrypted wrong: %+v", accts[0])
	}
}

func TestAccountsSkipsCorruptRow(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	ctx := context.Background()

	if _, err := db.AddAccount(ctx, "1", "a", "+1"); err != nil {
		t.Fatal(err)
	}
	bad, err := db.AddAccount(ctx, "2", "b", "+2")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.AddAccount(ctx, "3", "c", "+3"); err != nil {
		t.Fatal(err)
	}

	// Corrupt the middle row's ciphertext in place.
	if _, err := db.db.ExecContext(ctx, `UPDATE accounts SET api_hash = 'garbage' WHERE id = ?`, bad); err != nil {
		t.Fatal(err)
	}

	accts, corrupt, err := db.Accounts(ctx)
	if err != nil {
		t.Fatalf("Accounts: %v", err)
	}
	if len(accts) != 2 {
		t.Fatalf("got %d accounts, want 2 valid ones", len(accts))
	}
	if len(corrupt) != 1 || corrupt[0].RecordID != bad {
		t.Fatalf("corrupt = %v, want exactly row %d", corrupt, bad)
	}
}

func TestRecordSendConcurrent(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	ctx := context.Background()

	const accounts = 4
	const groups = 10

	var wg sync.WaitGroup
	errs := make(chan error, accounts*groups)
	for a := 0; a < accounts; a++ {
		wg.Add(1)
		go func(a int) {
			defer wg.Done()
			handle := "+4810020030" + string(rune('0'+a))
			for g := 0; g < groups; g++ {
				errs <- db.RecordSend(ctx, handle, "group", "hello")
			}
		}(a)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("RecordSend: %v", err)
		}
	}

	n, err := db.SendCount(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if n != accounts*groups {
		t.Fatalf("ledger has %d rows, want %d", n, accounts*groups)
	}
}

func TestRecentSends(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := db.RecordSend(ctx, "+1", "g", "msg"); err != nil {
			t.Fatal(err)
		}
	}
	recs, err := db.RecentSends(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].ID < recs[1].ID {
		t.Fatal("records not ordered most recent first")
	}
	if recs[0].SentAt.IsZero() {
		t.Fatal("sent_at not parsed")
	}
}
