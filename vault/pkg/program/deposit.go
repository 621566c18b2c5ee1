package program

import (
	"fmt"
	"math/bits"

	"github.com/gagliardetto/solana-go"
)

type DepositReceipt struct {
	Vault          VaultHandle
	Depositor      solana.PublicKey
	Amount         uint64
	Revenue        uint64
	TokensDeployed uint64
	Timestamp      int64
}

// Deposit moves amount from depositor into vault custody and records it. Anyone may
// deposit, including zero amounts, which still count as a deposit.
func (p *Program) Deposit(rt Runtime, depositor solana.PublicKey, h VaultHandle, amount uint64) (*DepositReceipt, error) {
	rec, _, err := p.resolve(rt, h)
	if err != nil {
		return nil, err
	}

	// Value moves first; counters are written only once the transfer succeeded.
	if err := rt.Transfer(depositor, h.Address, amount); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	revenue, carry := bits.Add64(rec.Revenue, amount, 0)
	if carry != 0 {
		return nil, fmt.Errorf("%w: revenue", ErrOverflow)
	}
	deployed, carry := bits.Add64(rec.TokensDeployed, 1, 0)
	if carry != 0 {
		return nil, fmt.Errorf("%w: tokens deployed", ErrOverflow)
	}
	rec.Revenue = revenue
	rec.TokensDeployed = deployed
	if err := p.store(rt, h.Address, rec); err != nil {
		return nil, err
	}

	ts := rt.Now()
	rt.Emit(DepositEvent{Depositor: depositor, Amount: amount, Timestamp: ts})

	p.log.Debug("program: deposit", "depositor", depositor, "amount", amount, "revenue", revenue, "tokens_deployed", deployed)
	return &DepositReceipt{
		Vault:          h,
		Depositor:      depositor,
		Amount:         amount,
		Revenue:        revenue,
		TokensDeployed: deployed,
		Timestamp:      ts,
	}, nil
}
