package ba

import (
	"testing"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
)

func TestSealOpenRoundTrip(t *testing.T) {
	t.Parallel()
	key := deriveSessionKey("test-secret")

	ciphertext, err := seal(key, "hunter2")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if ciphertext == "hunter2" {
		t.Error("seal should not return the plaintext unchanged")
	}

	got, err := open(key, ciphertext)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got != "hunter2" {
		t.Errorf("open() = %q, want hunter2", got)
	}
}

func TestSealEmptyStringStaysEmpty(t *testing.T) {
	t.Parallel()
	key := deriveSessionKey("k")
	ct, err := seal(key, "")
	if err != nil || ct != "" {
		t.Errorf("seal(\"\") = (%q, %v), want (\"\", nil)", ct, err)
	}
}

func TestOpenRejectsWrongKey(t *testing.T) {
	t.Parallel()
	ciphertext, err := seal(deriveSessionKey("key-a"), "secret")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := open(deriveSessionKey("key-b"), ciphertext); err == nil {
		t.Error("open with the wrong key should fail authentication, not return garbage")
	}
}

func TestDeriveSessionKeyIsDeterministic(t *testing.T) {
	t.Parallel()
	a := deriveSessionKey("same-secret")
	b := deriveSessionKey("same-secret")
	if a != b {
		t.Error("deriveSessionKey should derive the same key from the same secret")
	}
}

func TestEncryptCredentialsSealsEverySecretField(t *testing.T) {
	t.Parallel()
	key := deriveSessionKey("k")
	creds := domain.BrokerCredentials{
		APIKey: "ak", ClientID: "cid", Password: "pw", TOTPSeed: "seed",
		AccessToken: "at", RefreshToken: "rt",
	}

	enc, err := encryptCredentials(key, creds)
	if err != nil {
		t.Fatalf("encryptCredentials: %v", err)
	}
	if enc.APIKey == creds.APIKey || enc.Password == creds.Password || enc.TOTPSeed == creds.TOTPSeed {
		t.Error("encryptCredentials left a secret field in plaintext")
	}

	dec, err := decryptCredentials(key, enc)
	if err != nil {
		t.Fatalf("decryptCredentials: %v", err)
	}
	if dec.APIKey != creds.APIKey || dec.ClientID != creds.ClientID || dec.Password != creds.Password ||
		dec.TOTPSeed != creds.TOTPSeed || dec.AccessToken != creds.AccessToken || dec.RefreshToken != creds.RefreshToken {
		t.Errorf("decryptCredentials round trip mismatch: got %+v, want %+v", dec, creds)
	}
}
