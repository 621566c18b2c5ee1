package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/malbeclabs/tokenvault/utils/pkg/retry"
	"github.com/malbeclabs/tokenvault/vault/pkg/metrics"
	"github.com/malbeclabs/tokenvault/vault/pkg/program"
)

var ErrVaultNotFound = errors.New("vault account not found")

// SolanaRPC is the subset of the solana-go RPC client used by the reader.
type SolanaRPC interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetAccountInfoOpts) (*solanarpc.GetAccountInfoResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment solanarpc.CommitmentType) (uint64, error)
}

type ReaderConfig struct {
	Logger     *slog.Logger
	RPC        SolanaRPC
	ProgramID  solana.PublicKey
	Commitment solanarpc.CommitmentType
	Retry      retry.Config
}

func (cfg *ReaderConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.ProgramID.IsZero() {
		return errors.New("program id is required")
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solanarpc.CommitmentFinalized
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.DefaultConfig()
	}
	return nil
}

// Reader decodes the deployed vault account from a Solana cluster.
type Reader struct {
	log *slog.Logger
	cfg ReaderConfig
}

func NewReader(cfg ReaderConfig) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Reader{log: cfg.Logger, cfg: cfg}, nil
}

// VaultState is the on-chain vault as observed at a slot.
type VaultState struct {
	Address  solana.PublicKey
	Slot     uint64
	Lamports uint64
	Custody  uint64
	Record   program.VaultRecord
}

func (r *Reader) ReadVault(ctx context.Context) (*VaultState, error) {
	address, bump, err := program.VaultAddress(r.cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("failed to derive vault address: %w", err)
	}
	r.log.Debug("chain: reading vault", "address", address, "bump", bump)

	var res *solanarpc.GetAccountInfoResult
	err = retry.Do(ctx, r.cfg.Retry, func() error {
		var err error
		res, err = r.cfg.RPC.GetAccountInfoWithOpts(ctx, address, &solanarpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: r.cfg.Commitment,
		})
		metrics.RecordRPCRequest("getAccountInfo", err)
		return err
	})
	if err != nil {
		if errors.Is(err, solanarpc.ErrNotFound) {
			return nil, ErrVaultNotFound
		}
		return nil, fmt.Errorf("failed to get vault account: %w", err)
	}
	if res == nil || res.Value == nil {
		return nil, ErrVaultNotFound
	}

	acct := res.Value
	if !acct.Owner.Equals(r.cfg.ProgramID) {
		return nil, fmt.Errorf("vault account %s is owned by %s, not %s", address, acct.Owner, r.cfg.ProgramID)
	}
	if acct.Data == nil {
		return nil, fmt.Errorf("vault account %s has no data", address)
	}
	data := acct.Data.GetBinary()
	rec, err := program.DecodeVaultRecord(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode vault account: %w", err)
	}
	if rec.Bump != bump {
		return nil, fmt.Errorf("vault bump %d does not match derived bump %d", rec.Bump, bump)
	}

	var reserve uint64
	err = retry.Do(ctx, r.cfg.Retry, func() error {
		var err error
		reserve, err = r.cfg.RPC.GetMinimumBalanceForRentExemption(ctx, uint64(len(data)), r.cfg.Commitment)
		metrics.RecordRPCRequest("getMinimumBalanceForRentExemption", err)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get rent exemption: %w", err)
	}

	state := &VaultState{
		Address:  address,
		Slot:     res.Context.Slot,
		Lamports: acct.Lamports,
		Record:   *rec,
	}
	if acct.Lamports > reserve {
		state.Custody = acct.Lamports - reserve
	}
	return state, nil
}
