package program

import (
	"fmt"
	"math/bits"

	"github.com/gagliardetto/solana-go"
)

type WithdrawReceipt struct {
	Vault     VaultHandle
	Recipient solana.PublicKey
	Amount    uint64
	// Custody is the spendable vault balance left after the withdrawal.
	Custody   uint64
	Timestamp int64
}

// Withdraw moves amount out of vault custody to recipient. Only the recorded owner may
// withdraw; revenue and tokens deployed are left untouched.
func (p *Program) Withdraw(rt Runtime, caller solana.PublicKey, h VaultHandle, recipient solana.PublicKey, amount uint64) (*WithdrawReceipt, error) {
	rec, acct, err := p.resolve(rt, h)
	if err != nil {
		return nil, err
	}

	if !sameIdentity(caller, rec.Owner) || !rt.IsSigner(caller) {
		return nil, ErrUnauthorizedWithdrawal
	}

	available := custody(rt, acct)
	if available < amount {
		return nil, ErrInsufficientFunds
	}

	// Debit the live host balance, not the snapshot the checks ran against.
	current, ok := rt.Account(h.Address)
	if !ok {
		return nil, ErrInvalidVaultHandle
	}
	vaultLamports, borrow := bits.Sub64(current.Lamports, amount, 0)
	if borrow != 0 {
		return nil, ErrArithmeticUnderflow
	}
	if err := rt.SetLamports(h.Address, vaultLamports); err != nil {
		return nil, err
	}

	// Read after the debit so a vault-to-vault withdrawal nets out.
	var recipientLamports uint64
	if to, ok := rt.Account(recipient); ok {
		recipientLamports = to.Lamports
	}
	credited, carry := bits.Add64(recipientLamports, amount, 0)
	if carry != 0 {
		return nil, fmt.Errorf("%w: recipient balance", ErrOverflow)
	}
	if err := rt.SetLamports(recipient, credited); err != nil {
		return nil, err
	}

	var remaining uint64
	if after, ok := rt.Account(h.Address); ok {
		remaining = custody(rt, after)
	}

	ts := rt.Now()
	rt.Emit(WithdrawEvent{Recipient: recipient, Amount: amount, Timestamp: ts})

	p.log.Debug("program: withdraw", "recipient", recipient, "amount", amount, "custody", remaining)
	return &WithdrawReceipt{
		Vault:     h,
		Recipient: recipient,
		Amount:    amount,
		Custody:   remaining,
		Timestamp: ts,
	}, nil
}
