package server

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/mr-tron/base58"
)

const (
	SignerHeader    = "X-Vault-Signer"
	SignatureHeader = "X-Vault-Signature"
)

var (
	errInvalidSignature = errors.New("invalid signature")
	errDuplicateRequest = errors.New("duplicate request id")
	errReplayWindowFull = errors.New("too many unexpired requests")
)

// requestSigners returns the identities that authorized body. A request without
// signature headers has no signers; a request with a bad signature is rejected.
func requestSigners(r *http.Request, body []byte) ([]solana.PublicKey, error) {
	signer := r.Header.Get(SignerHeader)
	sig := r.Header.Get(SignatureHeader)
	if signer == "" && sig == "" {
		return nil, nil
	}

	pubkey, err := solana.PublicKeyFromBase58(signer)
	if err != nil {
		return nil, fmt.Errorf("%w: signer: %w", errInvalidSignature, err)
	}
	raw, err := base58.Decode(sig)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %w", errInvalidSignature, err)
	}
	var signature solana.Signature
	if len(raw) != len(signature) {
		return nil, fmt.Errorf("%w: signature is %d bytes", errInvalidSignature, len(raw))
	}
	copy(signature[:], raw)
	if !signature.Verify(pubkey, body) {
		return nil, errInvalidSignature
	}
	return []solana.PublicKey{pubkey}, nil
}

// SignRequest sets the signature headers for body on r.
func SignRequest(r *http.Request, key solana.PrivateKey, body []byte) error {
	sig, err := key.Sign(body)
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}
	r.Header.Set(SignerHeader, key.PublicKey().String())
	r.Header.Set(SignatureHeader, base58.Encode(sig[:]))
	return nil
}

// replayGuard remembers claimed request ids until their signed expiry. An id is
// never forgotten before it expires; when every slot holds a live id, new claims are
// refused instead.
type replayGuard struct {
	mu   sync.Mutex
	max  int
	seen map[uuid.UUID]time.Time
}

func newReplayGuard(max int) *replayGuard {
	return &replayGuard{max: max, seen: make(map[uuid.UUID]time.Time)}
}

func (g *replayGuard) claim(id uuid.UUID, expiresAt, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if exp, ok := g.seen[id]; ok && exp.After(now) {
		return errDuplicateRequest
	}
	if len(g.seen) >= g.max {
		g.pruneLocked(now)
		if len(g.seen) >= g.max {
			return errReplayWindowFull
		}
	}
	g.seen[id] = expiresAt
	return nil
}

func (g *replayGuard) pruneLocked(now time.Time) {
	for id, exp := range g.seen {
		if !exp.After(now) {
			delete(g.seen, id)
		}
	}
}
