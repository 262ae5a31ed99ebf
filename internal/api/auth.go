package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/program"
	"github.com/scrape-network/scrape/internal/security"
)

const maxBodyBytes = 1 << 20

type signerKey struct{}

// authenticate verifies the request signature headers and stores the signer
// in the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		h := security.SignedHeaders{
			Signer:    r.Header.Get(security.HeaderSigner),
			Timestamp: r.Header.Get(security.HeaderTimestamp),
			Signature: r.Header.Get(security.HeaderSignature),
		}
		signer, err := security.VerifyRequest(h, r.Method, r.URL.Path, body, s.now(), s.maxRequestAge)
		if err != nil {
			log.Printf("[api] rejected %s %s from %s: %v", r.Method, r.URL.Path, r.RemoteAddr, err)
			if domain.KindOf(err) == domain.KindMalformed {
				writeProgramError(w, fmt.Errorf("%w: %v", domain.ErrBadSignature, err))
				return
			}
			writeProgramError(w, err)
			return
		}
		if err := s.claimSignature(r.Context(), h.Signature); err != nil {
			log.Printf("[api] rejected %s %s from %s: %v", r.Method, r.URL.Path, r.RemoteAddr, err)
			if errors.Is(err, domain.ErrBadSignature) {
				writeProgramError(w, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), signerKey{}, signer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimSignature accepts each signature once. A signature stays recorded
// until no timestamp it could carry passes the skew check.
func (s *Server) claimSignature(ctx context.Context, sig string) error {
	ttl := 2 * s.maxRequestAge
	if ttl <= 0 {
		// Unbounded skew: a signature never ages out.
		ttl = 100 * 365 * 24 * time.Hour
	}
	now := s.now()
	fresh, err := s.db.ClaimSignature(ctx, sig, now, now.Add(ttl))
	if err != nil {
		return err
	}
	if !fresh {
		return fmt.Errorf("signature already used: %w", domain.ErrBadSignature)
	}
	return nil
}

func signerFrom(r *http.Request) solana.PublicKey {
	signer, _ := r.Context().Value(signerKey{}).(solana.PublicKey)
	return signer
}

// ─── Request Helpers ────────────────────────────────────────────────────────

func ownerParam(r *http.Request) (solana.PublicKey, error) {
	return domain.ParsePublicKey(chi.URLParam(r, "owner"))
}

func taskRefParam(r *http.Request) (program.TaskRef, error) {
	owner, err := ownerParam(r)
	if err != nil {
		return program.TaskRef{}, err
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return program.TaskRef{}, fmt.Errorf("task id %q: %w", chi.URLParam(r, "id"), domain.ErrMalformedInput)
	}
	return program.TaskRef{Owner: owner, ID: id}, nil
}

// decodeBody decodes a JSON body into v. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedInput, err)
	}
	return nil
}
