package program

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// CreateVault allocates the vault account at its derived address and binds it to owner.
// The payer funds the rent-exempt reserve and must sign.
func (p *Program) CreateVault(rt Runtime, payer, owner solana.PublicKey) (VaultHandle, error) {
	if !rt.IsSigner(payer) {
		return VaultHandle{}, ErrMissingSignature
	}

	address, bump, err := rt.FindProgramAddress(vaultSeeds())
	if err != nil {
		return VaultHandle{}, fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}

	if acct, ok := rt.Account(address); ok && inUse(acct) {
		return VaultHandle{}, ErrAlreadyInitialized
	}

	if err := rt.CreateAccount(payer, address, VaultAccountSize); err != nil {
		return VaultHandle{}, fmt.Errorf("%w: %w", ErrAllocationFailed, err)
	}

	rec := &VaultRecord{
		Owner: owner,
		Bump:  bump,
	}
	if err := p.store(rt, address, rec); err != nil {
		return VaultHandle{}, err
	}

	p.log.Debug("program: vault created", "address", address, "owner", owner, "bump", bump)
	return VaultHandle{Address: address, Bump: bump}, nil
}

// inUse matches the host rule for account creation: a pre-funded system account with no
// data can still be created over.
func inUse(acct AccountInfo) bool {
	return len(acct.Data) > 0 || !acct.Owner.Equals(solana.SystemProgramID)
}
