package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/malbeclabs/tokenvault/vault/pkg/metrics"
	"github.com/malbeclabs/tokenvault/vault/pkg/program"
)

type VaultHandle struct {
	Address solana.PublicKey `json:"address"`
	Bump    uint8            `json:"bump"`
}

type CreateVaultRequest struct {
	RequestID uuid.UUID        `json:"request_id"`
	// ExpiresAt is unix seconds; the request is rejected at or after it.
	ExpiresAt int64            `json:"expires_at"`
	Payer     solana.PublicKey `json:"payer"`
	Owner     solana.PublicKey `json:"owner"`
}

type CreateVaultResponse struct {
	TxID  uuid.UUID   `json:"tx_id"`
	Vault VaultHandle `json:"vault"`
}

type DepositRequest struct {
	RequestID uuid.UUID        `json:"request_id"`
	ExpiresAt int64            `json:"expires_at"`
	Depositor solana.PublicKey `json:"depositor"`
	Amount    uint64           `json:"amount"`
	// Vault defaults to the canonical vault when omitted.
	Vault *VaultHandle `json:"vault,omitempty"`
}

type DepositResponse struct {
	TxID           uuid.UUID `json:"tx_id"`
	Amount         uint64    `json:"amount"`
	Revenue        uint64    `json:"revenue"`
	TokensDeployed uint64    `json:"tokens_deployed"`
	Timestamp      int64     `json:"timestamp"`
}

type WithdrawRequest struct {
	RequestID uuid.UUID        `json:"request_id"`
	ExpiresAt int64            `json:"expires_at"`
	Caller    solana.PublicKey `json:"caller"`
	Recipient solana.PublicKey `json:"recipient"`
	Amount    uint64           `json:"amount"`
	Vault     *VaultHandle     `json:"vault,omitempty"`
}

type WithdrawResponse struct {
	TxID      uuid.UUID        `json:"tx_id"`
	Recipient solana.PublicKey `json:"recipient"`
	Amount    uint64           `json:"amount"`
	Custody   uint64           `json:"custody"`
	Timestamp int64            `json:"timestamp"`
}

type AirdropRequest struct {
	To       solana.PublicKey `json:"to"`
	Lamports uint64           `json:"lamports"`
}

type VaultResponse struct {
	Address        solana.PublicKey `json:"address"`
	Bump           uint8            `json:"bump"`
	Owner          solana.PublicKey `json:"owner"`
	Revenue        uint64           `json:"revenue"`
	TokensDeployed uint64           `json:"tokens_deployed"`
	Custody        uint64           `json:"custody"`
}

type AccountResponse struct {
	Pubkey   solana.PublicKey `json:"pubkey"`
	Exists   bool             `json:"exists"`
	Lamports uint64           `json:"lamports"`
	Owner    solana.PublicKey `json:"owner"`
	DataLen  int              `json:"data_len"`
}

type EventResponse struct {
	Seq   uint64        `json:"seq"`
	Slot  uint64        `json:"slot"`
	TxID  uuid.UUID     `json:"tx_id"`
	Name  string        `json:"name"`
	Event program.Event `json:"event"`
	Log   string        `json:"log"`
}

// signedRequest is a mutating request. Its id is remembered until ExpiresAt, and only
// when the request is signed by the identity it acts for.
type signedRequest interface {
	requestID() uuid.UUID
	expiresAt() int64
	actor() solana.PublicKey
}

func (r *CreateVaultRequest) requestID() uuid.UUID { return r.RequestID }
func (r *CreateVaultRequest) expiresAt() int64 { return r.ExpiresAt }
func (r *CreateVaultRequest) actor() solana.PublicKey { return r.Payer }

func (r *DepositRequest) requestID() uuid.UUID { return r.RequestID }
func (r *DepositRequest) expiresAt() int64 { return r.ExpiresAt }
func (r *DepositRequest) actor() solana.PublicKey { return r.Depositor }

func (r *WithdrawRequest) requestID() uuid.UUID { return r.RequestID }
func (r *WithdrawRequest) expiresAt() int64 { return r.ExpiresAt }
func (r *WithdrawRequest) actor() solana.PublicKey { return r.Caller }

// FailureResponse carries only the failure kind.
type FailureResponse struct {
	Error string `json:"error"`
	Code  uint32 `json:"code,omitempty"`
}

func (s *Server) createVaultHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateVaultRequest
	signers, ok := s.decodeSigned(w, r, &req)
	if !ok {
		return
	}

	var handle program.VaultHandle
	txID, ok := s.transition(w, r, "create_vault", signers, func(rt program.Runtime) error {
		var err error
		handle, err = s.cfg.Program.CreateVault(rt, req.Payer, req.Owner)
		return err
	})
	if !ok {
		return
	}

	s.log.Info("server: vault created", "address", handle.Address, "owner", req.Owner, "tx", txID)
	s.writeJSON(w, http.StatusCreated, CreateVaultResponse{
		TxID:  txID,
		Vault: VaultHandle{Address: handle.Address, Bump: handle.Bump},
	})
}

func (s *Server) depositHandler(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	signers, ok := s.decodeSigned(w, r, &req)
	if !ok {
		return
	}
	handle, err := s.handle(req.Vault)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var receipt *program.DepositReceipt
	txID, ok := s.transition(w, r, "deposit", signers, func(rt program.Runtime) error {
		var err error
		receipt, err = s.cfg.Program.Deposit(rt, req.Depositor, handle, req.Amount)
		return err
	})
	if !ok {
		return
	}

	s.log.Info("server: deposit", "depositor", req.Depositor, "amount", req.Amount, "tx", txID)
	s.writeJSON(w, http.StatusOK, DepositResponse{
		TxID:           txID,
		Amount:         receipt.Amount,
		Revenue:        receipt.Revenue,
		TokensDeployed: receipt.TokensDeployed,
		Timestamp:      receipt.Timestamp,
	})
}

func (s *Server) withdrawHandler(w http.ResponseWriter, r *http.Request) {
	var req WithdrawRequest
	signers, ok := s.decodeSigned(w, r, &req)
	if !ok {
		return
	}
	handle, err := s.handle(req.Vault)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var receipt *program.WithdrawReceipt
	txID, ok := s.transition(w, r, "withdraw", signers, func(rt program.Runtime) error {
		var err error
		receipt, err = s.cfg.Program.Withdraw(rt, req.Caller, handle, req.Recipient, req.Amount)
		return err
	})
	if !ok {
		return
	}

	s.log.Info("server: withdraw", "recipient", req.Recipient, "amount", req.Amount, "tx", txID)
	s.writeJSON(w, http.StatusOK, WithdrawResponse{
		TxID:      txID,
		Recipient: receipt.Recipient,
		Amount:    receipt.Amount,
		Custody:   receipt.Custody,
		Timestamp: receipt.Timestamp,
	})
}

func (s *Server) airdropHandler(w http.ResponseWriter, r *http.Request) {
	var req AirdropRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, defaultMaxBodyBytes)).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, FailureResponse{Error: "BadRequest"})
		return
	}
	if req.Lamports == 0 || req.Lamports > s.cfg.MaxAirdropLamports {
		s.writeJSON(w, http.StatusBadRequest, FailureResponse{Error: "BadRequest"})
		return
	}
	if err := s.cfg.Ledger.Airdrop(req.To, req.Lamports); err != nil {
		s.log.Debug("server: airdrop rejected", "to", req.To, "error", err)
		s.writeJSON(w, http.StatusUnprocessableEntity, FailureResponse{Error: "BadRequest"})
		return
	}
	s.writeJSON(w, http.StatusOK, AccountResponse{
		Pubkey:   req.To,
		Exists:   true,
		Lamports: s.cfg.Ledger.Balance(req.To),
	})
}

func (s *Server) getVaultHandler(w http.ResponseWriter, r *http.Request) {
	v, err := s.loadVault()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, VaultResponse{
		Address:        v.Handle.Address,
		Bump:           v.Handle.Bump,
		Owner:          v.Record.Owner,
		Revenue:        v.Record.Revenue,
		TokensDeployed: v.Record.TokensDeployed,
		Custody:        v.Custody,
	})
}

func (s *Server) getAccountHandler(w http.ResponseWriter, r *http.Request) {
	pubkey, err := solana.PublicKeyFromBase58(chi.URLParam(r, "pubkey"))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, FailureResponse{Error: "BadRequest"})
		return
	}
	acct, ok := s.cfg.Ledger.Account(pubkey)
	s.writeJSON(w, http.StatusOK, AccountResponse{
		Pubkey:   pubkey,
		Exists:   ok,
		Lamports: acct.Lamports,
		Owner:    acct.Owner,
		DataLen:  len(acct.Data),
	})
}

func (s *Server) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	after, err := parseUintParam(r, "after", 0)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, FailureResponse{Error: "BadRequest"})
		return
	}
	limit, err := parseUintParam(r, "limit", defaultEventsPageSize)
	if err != nil || limit == 0 || limit > maxEventsPageSize {
		s.writeJSON(w, http.StatusBadRequest, FailureResponse{Error: "BadRequest"})
		return
	}

	entries := s.cfg.Ledger.Events(after, int(limit))
	out := make([]EventResponse, 0, len(entries))
	for _, e := range entries {
		line, err := program.EventLogLine(e.Event)
		if err != nil {
			s.writeError(w, err)
			return
		}
		out = append(out, EventResponse{
			Seq:   e.Seq,
			Slot:  e.Slot,
			TxID:  e.TxID,
			Name:  e.Event.EventName(),
			Event: e.Event,
			Log:   line,
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// decodeSigned reads the body, verifies its signature, decodes it into req and checks
// its expiry. The request id is claimed only when the acting identity signed the body;
// any other request cannot pass the host's signer checks, so it needs no replay slot.
// It writes the failure response itself and returns false on error.
func (s *Server) decodeSigned(w http.ResponseWriter, r *http.Request, req signedRequest) ([]solana.PublicKey, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, defaultMaxBodyBytes))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, FailureResponse{Error: "BadRequest"})
		return nil, false
	}
	signers, err := requestSigners(r, body)
	if err != nil {
		s.log.Debug("server: rejected signature", "error", err)
		s.writeJSON(w, http.StatusUnauthorized, FailureResponse{Error: "InvalidSignature"})
		return nil, false
	}
	if err := json.Unmarshal(body, req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, FailureResponse{Error: "BadRequest"})
		return nil, false
	}
	id := req.requestID()
	if id == uuid.Nil {
		s.writeJSON(w, http.StatusBadRequest, FailureResponse{Error: "BadRequest"})
		return nil, false
	}

	now := s.cfg.Clock.Now()
	expiresAt := time.Unix(req.expiresAt(), 0)
	if !expiresAt.After(now) {
		s.writeJSON(w, http.StatusUnauthorized, FailureResponse{Error: "RequestExpired"})
		return nil, false
	}
	if expiresAt.After(now.Add(s.cfg.MaxRequestTTL)) {
		s.writeJSON(w, http.StatusBadRequest, FailureResponse{Error: "BadRequest"})
		return nil, false
	}

	if !signedBy(signers, req.actor()) {
		return signers, true
	}
	switch err := s.replay.claim(id, expiresAt, now); {
	case errors.Is(err, errDuplicateRequest):
		s.writeJSON(w, http.StatusConflict, FailureResponse{Error: "DuplicateRequest"})
		return nil, false
	case err != nil:
		s.log.Warn("server: replay window full", "tracked", s.cfg.MaxTrackedRequests)
		s.writeJSON(w, http.StatusServiceUnavailable, FailureResponse{Error: "Busy"})
		return nil, false
	}
	return signers, true
}

func signedBy(signers []solana.PublicKey, key solana.PublicKey) bool {
	for _, signer := range signers {
		if signer.Equals(key) {
			return true
		}
	}
	return false
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, op string, signers []solana.PublicKey, fn func(program.Runtime) error) (uuid.UUID, bool) {
	start := time.Now()
	txID, err := s.cfg.Ledger.Execute(r.Context(), signers, fn)

	status := "success"
	if err != nil {
		status = "error"
		if perr, ok := program.AsError(err); ok {
			status = perr.Name
		}
	}
	metrics.RecordTransition(op, status, time.Since(start))

	if err != nil {
		s.log.Info("server: transition failed", "op", op, "status", status, "error", err)
		s.writeError(w, err)
		return uuid.Nil, false
	}
	s.updateGauges()
	return txID, true
}

func (s *Server) handle(h *VaultHandle) (program.VaultHandle, error) {
	if h != nil {
		return program.VaultHandle{Address: h.Address, Bump: h.Bump}, nil
	}
	address, bump, err := program.VaultAddress(s.cfg.Ledger.ProgramID())
	if err != nil {
		return program.VaultHandle{}, err
	}
	return program.VaultHandle{Address: address, Bump: bump}, nil
}

func (s *Server) loadVault() (*program.Vault, error) {
	var v *program.Vault
	err := s.cfg.Ledger.View(func(rt program.Runtime) error {
		var err error
		v, err = s.cfg.Program.LoadVault(rt)
		return err
	})
	return v, err
}

func (s *Server) updateGauges() {
	v, err := s.loadVault()
	if err != nil {
		return
	}
	metrics.VaultCustodyLamports.Set(float64(v.Custody))
	metrics.VaultRevenueLamports.Set(float64(v.Record.Revenue))
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	perr, ok := program.AsError(err)
	if !ok {
		s.log.Error("server: internal error", "error", err)
		sentry.CaptureException(err)
		s.writeJSON(w, http.StatusInternalServerError, FailureResponse{Error: "Internal"})
		return
	}
	s.writeJSON(w, statusFor(perr), FailureResponse{Error: perr.Name, Code: perr.Code})
}

func statusFor(perr *program.Error) int {
	switch {
	case errors.Is(perr, program.ErrAlreadyInitialized):
		return http.StatusConflict
	case errors.Is(perr, program.ErrInvalidVaultHandle):
		return http.StatusNotFound
	case errors.Is(perr, program.ErrMissingSignature):
		return http.StatusUnauthorized
	case errors.Is(perr, program.ErrUnauthorizedWithdrawal):
		return http.StatusForbidden
	default:
		return http.StatusUnprocessableEntity
	}
}

func parseUintParam(r *http.Request, name string, def uint64) (uint64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.ParseUint(v, 10, 64)
}
