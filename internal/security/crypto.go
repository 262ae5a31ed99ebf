// Package security provides wallet identities and request signing.
// Every mutating request is signed by the caller's Ed25519 wallet key; the
// signer's public key is the identity the program authorizes against.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/scrape-network/scrape/internal/domain"
)

// Request signing headers.
const (
	HeaderSigner    = "X-Scrape-Signer"
	HeaderTimestamp = "X-Scrape-Timestamp"
	HeaderSignature = "X-Scrape-Signature"
)

// Keypair holds a wallet identity.
type Keypair struct {
	Private solana.PrivateKey
}

// GenerateKeypair creates a new random wallet.
func GenerateKeypair() (*Keypair, error) {
	k, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate wallet key: %w", err)
	}
	return &Keypair{Private: k}, nil
}

// KeyPath is where the default wallet lives under home.
func KeyPath(home string) string {
	return filepath.Join(home, "keys", "wallet.key")
}

// LoadOrCreateKeypair loads the wallet stored under home/keys, or generates
// and saves one on first run.
func LoadOrCreateKeypair(home string) (*Keypair, error) {
	path := KeyPath(home)
	kp, err := LoadKeypair(path)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	kp, err = GenerateKeypair()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(kp.Private.String()), 0600); err != nil {
		return nil, fmt.Errorf("write wallet key: %w", err)
	}
	return kp, nil
}

// LoadKeypair reads a wallet key file. Both base58 text and the solana-keygen
// JSON byte-array format are accepted.
func LoadKeypair(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, "[") {
		k, err := solana.PrivateKeyFromSolanaKeygenFile(path)
		if err != nil {
			return nil, fmt.Errorf("decode keygen file %s: %w", path, err)
		}
		return &Keypair{Private: k}, nil
	}
	k, err := solana.PrivateKeyFromBase58(text)
	if err != nil {
		return nil, fmt.Errorf("decode wallet key %s: %w", path, err)
	}
	return &Keypair{Private: k}, nil
}

// PublicKey returns the wallet's identity.
func (kp *Keypair) PublicKey() solana.PublicKey {
	return kp.Private.PublicKey()
}

// Sign signs message with the wallet key.
func (kp *Keypair) Sign(message []byte) (solana.Signature, error) {
	return kp.Private.Sign(message)
}

// Verify checks sig over message against signer.
func Verify(message []byte, sig solana.Signature, signer solana.PublicKey) bool {
	return sig.Verify(signer, message)
}

// ─── Request Signing ────────────────────────────────────────────────────────

// CanonicalRequest is the byte string a request signature covers.
func CanonicalRequest(method, path string, timestamp int64, body []byte) []byte {
	head := fmt.Sprintf("%s\n%s\n%d\n", strings.ToUpper(method), path, timestamp)
	return append([]byte(head), body...)
}

// SignedHeaders are the authentication headers of one request.
type SignedHeaders struct {
	Signer    string
	Timestamp string
	Signature string
}

// SignRequest signs a request issued at now.
func (kp *Keypair) SignRequest(method, path string, body []byte, now time.Time) (SignedHeaders, error) {
	ts := now.Unix()
	sig, err := kp.Sign(CanonicalRequest(method, path, ts, body))
	if err != nil {
		return SignedHeaders{}, fmt.Errorf("sign request: %w", err)
	}
	return SignedHeaders{
		Signer:    kp.PublicKey().String(),
		Timestamp: strconv.FormatInt(ts, 10),
		Signature: sig.String(),
	}, nil
}

// VerifyRequest checks the signature headers of a request and returns the
// signer. Requests older or further in the future than maxAge are stale.
func VerifyRequest(h SignedHeaders, method, path string, body []byte, now time.Time, maxAge time.Duration) (solana.PublicKey, error) {
	if h.Signer == "" || h.Timestamp == "" || h.Signature == "" {
		return solana.PublicKey{}, fmt.Errorf("missing signature headers: %w", domain.ErrBadSignature)
	}
	signer, err := domain.ParsePublicKey(h.Signer)
	if err != nil {
		return solana.PublicKey{}, err
	}
	ts, err := strconv.ParseInt(h.Timestamp, 10, 64)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("timestamp %q: %w", h.Timestamp, domain.ErrBadSignature)
	}
	sig, err := solana.SignatureFromBase58(h.Signature)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("signature: %w", domain.ErrBadSignature)
	}

	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if maxAge > 0 && skew > maxAge {
		return solana.PublicKey{}, fmt.Errorf("request skew %s exceeds %s: %w", skew, maxAge, domain.ErrStaleRequest)
	}
	if !Verify(CanonicalRequest(method, path, ts, body), sig, signer) {
		return solana.PublicKey{}, fmt.Errorf("signer %s: %w", signer, domain.ErrBadSignature)
	}
	return signer, nil
}
