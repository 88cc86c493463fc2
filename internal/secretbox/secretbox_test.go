package secretbox

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
)

func newTestBox(t *testing.T) *Box {
	t.Helper()
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	b, err := New(key)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	b := newTestBox(t)

	for _, pt := range []string{"", "+48123456789", "a1b2c3d4e5f6", "żółć / 漢字"} {
		ct, err := b.Seal(pt)
		if err != nil {
			t.Fatalf("Seal(%q) error: %v", pt, err)
		}
		got, err := b.Open(ct)
		if err != nil {
			t.Fatalf("Open error: %v", err)
		}
		if got != pt {
			t.Fatalf("round trip = %q, want %q", got, pt)
		}
	}
}

func TestSealIsNonDeterministic(t *testing.T) {
	t.Parallel()
	b := newTestBox(t)

	a, _ := b.Seal("same input")
	c, _ := b.Seal("same input")
	if a == c {
		t.Fatal("two seals of the same plaintext produced identical ciphertext")
	}
}

func TestOpenRejectsGarbageAndWrongKey(t *testing.T) {
	t.Parallel()
	b := newTestBox(t)
	other := newTestBox(t)

	if _, err := b.Open("not-even-base64!!"); err != ErrDecrypt {
		t.Fatalf("garbage: err = %v, want ErrDecrypt", err)
	}
	if _, err := b.Open("c2hvcnQ="); err != ErrDecrypt {
		t.Fatalf("short wire: err = %v, want ErrDecrypt", err)
	}

	ct, err := other.Seal("secret")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Open(ct); err != ErrDecrypt {
		t.Fatalf("wrong key: err = %v, want ErrDecrypt", err)
	}
}

func TestLoadOrCreateKey(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "box.key")

	k1, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	k2, err := LoadOrCreateKey(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if string(k1) != string(k2) {
		t.Fatal("key changed between loads")
	}

	if err := os.WriteFile(path, []byte("too short"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreateKey(path); err == nil {
		t.Fatal("expected error for truncated key file")
	}
}
