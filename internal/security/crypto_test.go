package security

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/scrape-network/scrape/internal/domain"
)

// ─── Keypair Generation ─────────────────────────────────────────────────────

func TestGenerateKeypair_Unique(t *testing.T) {
	kp1, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	kp2, _ := GenerateKeypair()

	if kp1.PublicKey() == kp2.PublicKey() {
		t.Error("two generated keypairs should have different public keys")
	}
}

func TestLoadOrCreateKeypair_Persists(t *testing.T) {
	home := t.TempDir()

	kp1, err := LoadOrCreateKeypair(home)
	if err != nil {
		t.Fatalf("LoadOrCreateKeypair() error: %v", err)
	}
	info, err := os.Stat(KeyPath(home))
	if err != nil {
		t.Fatalf("key file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("key file perm = %o, want 600", perm)
	}

	kp2, err := LoadOrCreateKeypair(home)
	if err != nil {
		t.Fatalf("LoadOrCreateKeypair() reload error: %v", err)
	}
	if kp1.PublicKey() != kp2.PublicKey() {
		t.Error("reloaded wallet should match the generated one")
	}
}

func TestLoadKeypair_KeygenJSON(t *testing.T) {
	kp, _ := GenerateKeypair()
	path := filepath.Join(t.TempDir(), "id.json")

	buf := []byte("[")
	for i, b := range kp.Private {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, int64(b), 10)
	}
	buf = append(buf, ']')
	if err := os.WriteFile(path, buf, 0600); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadKeypair(path)
	if err != nil {
		t.Fatalf("LoadKeypair() error: %v", err)
	}
	if loaded.PublicKey() != kp.PublicKey() {
		t.Error("keygen JSON should decode to the same wallet")
	}
}

func TestLoadKeypair_Missing(t *testing.T) {
	_, err := LoadKeypair(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadKeypair() error = %v, want ErrNotExist", err)
	}
}

// ─── Sign / Verify ──────────────────────────────────────────────────────────

func TestSignVerify(t *testing.T) {
	kp, _ := GenerateKeypair()
	message := []byte("hello scrape network")

	sig, err := kp.Sign(message)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !Verify(message, sig, kp.PublicKey()) {
		t.Error("Verify() should return true for valid signature")
	}
	if Verify([]byte("tampered"), sig, kp.PublicKey()) {
		t.Error("Verify() should return false for a different message")
	}
	other, _ := GenerateKeypair()
	if Verify(message, sig, other.PublicKey()) {
		t.Error("Verify() should return false for a different key")
	}
}

// ─── Request Signing ────────────────────────────────────────────────────────

func TestCanonicalRequest(t *testing.T) {
	got := string(CanonicalRequest("post", "/v1/tasks", 42, []byte(`{"a":1}`)))
	want := "POST\n/v1/tasks\n42\n{\"a\":1}"
	if got != want {
		t.Errorf("CanonicalRequest() = %q, want %q", got, want)
	}
}

func TestVerifyRequest_RoundTrip(t *testing.T) {
	kp, _ := GenerateKeypair()
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"reward":10}`)

	h, err := kp.SignRequest("POST", "/v1/tasks", body, now)
	if err != nil {
		t.Fatalf("SignRequest() error: %v", err)
	}
	signer, err := VerifyRequest(h, "POST", "/v1/tasks", body, now.Add(10*time.Second), time.Minute)
	if err != nil {
		t.Fatalf("VerifyRequest() error: %v", err)
	}
	if signer != kp.PublicKey() {
		t.Errorf("signer = %s, want %s", signer, kp.PublicKey())
	}
}

func TestVerifyRequest_Rejects(t *testing.T) {
	kp, _ := GenerateKeypair()
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{}`)
	h, _ := kp.SignRequest("POST", "/v1/endpoints", body, now)

	tests := []struct {
		name    string
		headers SignedHeaders
		path    string
		body    []byte
		at      time.Time
		want    error
	}{
		{"missing headers", SignedHeaders{}, "/v1/endpoints", body, now, domain.ErrBadSignature},
		{"other path", h, "/v1/providers", body, now, domain.ErrBadSignature},
		{"other body", h, "/v1/endpoints", []byte(`{"x":1}`), now, domain.ErrBadSignature},
		{"stale", h, "/v1/endpoints", body, now.Add(2 * time.Minute), domain.ErrStaleRequest},
		{"future", h, "/v1/endpoints", body, now.Add(-2 * time.Minute), domain.ErrStaleRequest},
		{"bad timestamp", SignedHeaders{Signer: h.Signer, Timestamp: "soon", Signature: h.Signature}, "/v1/endpoints", body, now, domain.ErrBadSignature},
		{"bad signer", SignedHeaders{Signer: "not-a-key", Timestamp: h.Timestamp, Signature: h.Signature}, "/v1/endpoints", body, now, domain.ErrInvalidPublicKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyRequest(tt.headers, "POST", tt.path, tt.body, tt.at, time.Minute)
			if !errors.Is(err, tt.want) {
				t.Errorf("VerifyRequest() error = %v, want %v", err, tt.want)
			}
		})
	}
}
