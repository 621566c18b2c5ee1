package program

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gagliardetto/solana-go"
)

type Config struct {
	Logger *slog.Logger
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Program implements the vault transitions against a host Runtime.
type Program struct {
	log *slog.Logger
}

func New(cfg Config) (*Program, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Program{log: cfg.Logger}, nil
}

// VaultAddress derives the canonical vault address and bump.
func VaultAddress(programID solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{[]byte(VaultSeed)}, programID)
}

// Vault is a read-only view of the vault account.
type Vault struct {
	Handle  VaultHandle
	Record  VaultRecord
	Custody uint64
}

// LoadVault resolves the canonical vault and returns its state.
func (p *Program) LoadVault(rt Runtime) (*Vault, error) {
	address, bump, err := rt.FindProgramAddress(vaultSeeds())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidVaultHandle, err)
	}
	h := VaultHandle{Address: address, Bump: bump}
	rec, acct, err := p.resolve(rt, h)
	if err != nil {
		return nil, err
	}
	return &Vault{Handle: h, Record: *rec, Custody: custody(rt, acct)}, nil
}

// resolve loads the record behind h and re-derives its address from the stored bump.
func (p *Program) resolve(rt Runtime, h VaultHandle) (*VaultRecord, AccountInfo, error) {
	acct, ok := rt.Account(h.Address)
	if !ok || !acct.Owner.Equals(rt.ProgramID()) {
		return nil, AccountInfo{}, ErrInvalidVaultHandle
	}
	rec, err := DecodeVaultRecord(acct.Data)
	if err != nil {
		return nil, AccountInfo{}, fmt.Errorf("%w: %w", ErrInvalidVaultHandle, err)
	}
	if rec.Bump != h.Bump {
		return nil, AccountInfo{}, ErrInvalidVaultHandle
	}
	expected, err := rt.CreateProgramAddress(append(vaultSeeds(), []byte{rec.Bump}))
	if err != nil {
		return nil, AccountInfo{}, fmt.Errorf("%w: %w", ErrInvalidVaultHandle, err)
	}
	if !expected.Equals(h.Address) {
		return nil, AccountInfo{}, ErrInvalidVaultHandle
	}
	return rec, acct, nil
}

func (p *Program) store(rt Runtime, address solana.PublicKey, rec *VaultRecord) error {
	data, err := EncodeVaultRecord(rec)
	if err != nil {
		return err
	}
	return rt.WriteData(address, data)
}

func vaultSeeds() [][]byte {
	return [][]byte{[]byte(VaultSeed)}
}

// custody is the spendable balance: lamports above the rent-exempt reserve.
func custody(rt Runtime, acct AccountInfo) uint64 {
	reserve := rt.MinimumBalance(len(acct.Data))
	if acct.Lamports <= reserve {
		return 0
	}
	return acct.Lamports - reserve
}

func sameIdentity(a, b solana.PublicKey) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
