package ledger

import (
	"fmt"
	"math/bits"

	"github.com/gagliardetto/solana-go"
	"github.com/malbeclabs/tokenvault/vault/pkg/program"
)

// tx is the program.Runtime of a single transition. Writes are staged and only
// applied to the ledger on commit.
type tx struct {
	l        *Ledger
	signers  map[solana.PublicKey]struct{}
	readOnly bool
	writes   map[solana.PublicKey]Account
	events   []program.Event
}

func (l *Ledger) newTx(signers []solana.PublicKey, readOnly bool) *tx {
	set := make(map[solana.PublicKey]struct{}, len(signers))
	for _, s := range signers {
		set[s] = struct{}{}
	}
	return &tx{
		l:        l,
		signers:  set,
		readOnly: readOnly,
		writes:   make(map[solana.PublicKey]Account),
	}
}

func (t *tx) ProgramID() solana.PublicKey {
	return t.l.cfg.ProgramID
}

func (t *tx) IsSigner(key solana.PublicKey) bool {
	_, ok := t.signers[key]
	return ok
}

func (t *tx) FindProgramAddress(seeds [][]byte) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(seeds, t.l.cfg.ProgramID)
}

func (t *tx) CreateProgramAddress(seeds [][]byte) (solana.PublicKey, error) {
	return solana.CreateProgramAddress(seeds, t.l.cfg.ProgramID)
}

func (t *tx) get(key solana.PublicKey) (Account, bool) {
	if acct, ok := t.writes[key]; ok {
		return acct, true
	}
	acct, ok := t.l.accounts[key]
	return acct.clone(), ok
}

func (t *tx) put(key solana.PublicKey, acct Account) error {
	if t.readOnly {
		return ErrReadOnly
	}
	t.writes[key] = acct
	return nil
}

func (t *tx) Account(key solana.PublicKey) (program.AccountInfo, bool) {
	acct, ok := t.get(key)
	if !ok {
		return program.AccountInfo{}, false
	}
	return program.AccountInfo{
		Lamports: acct.Lamports,
		Owner:    acct.Owner,
		Data:     append([]byte(nil), acct.Data...),
	}, true
}

func (t *tx) MinimumBalance(space int) uint64 {
	return t.l.MinimumBalance(space)
}

func (t *tx) CreateAccount(payer, address solana.PublicKey, space int) error {
	if !t.IsSigner(payer) {
		return fmt.Errorf("payer %s: %w", payer, ErrMissingSignature)
	}
	acct, _ := t.get(address)
	if len(acct.Data) > 0 || !acct.Owner.Equals(solana.SystemProgramID) {
		return fmt.Errorf("%s: %w", address, ErrAccountInUse)
	}

	// A pre-funded address only needs the shortfall.
	if required := t.MinimumBalance(space); acct.Lamports < required {
		if err := t.Transfer(payer, address, required-acct.Lamports); err != nil {
			return err
		}
		acct, _ = t.get(address)
	}

	acct.Owner = t.l.cfg.ProgramID
	acct.Data = make([]byte, space)
	return t.put(address, acct)
}

func (t *tx) WriteData(address solana.PublicKey, data []byte) error {
	acct, ok := t.get(address)
	if !ok {
		return fmt.Errorf("%s: %w", address, ErrAccountNotFound)
	}
	if !acct.Owner.Equals(t.l.cfg.ProgramID) {
		return fmt.Errorf("%s: %w", address, ErrNotProgramOwned)
	}
	if len(data) > len(acct.Data) {
		return fmt.Errorf("%s: %w", address, ErrDataTooLarge)
	}
	copy(acct.Data, data)
	return t.put(address, acct)
}

func (t *tx) Transfer(from, to solana.PublicKey, amount uint64) error {
	if !t.IsSigner(from) {
		return fmt.Errorf("transfer source %s: %w", from, ErrMissingSignature)
	}
	src, _ := t.get(from)
	if len(src.Data) > 0 {
		return fmt.Errorf("transfer source %s: %w", from, ErrInvalidTransferFrom)
	}
	if src.Lamports < amount {
		return fmt.Errorf("transfer source %s has %d, needs %d: %w", from, src.Lamports, amount, ErrInsufficientLamports)
	}
	src.Lamports -= amount
	if err := t.put(from, src); err != nil {
		return err
	}

	dst, _ := t.get(to)
	sum, carry := bits.Add64(dst.Lamports, amount, 0)
	if carry != 0 {
		return fmt.Errorf("transfer destination %s: %w", to, ErrLamportsOverflow)
	}
	dst.Lamports = sum
	return t.put(to, dst)
}

func (t *tx) SetLamports(key solana.PublicKey, lamports uint64) error {
	acct, _ := t.get(key)
	if lamports < acct.Lamports && !acct.Owner.Equals(t.l.cfg.ProgramID) {
		return fmt.Errorf("%s: %w", key, ErrExternalDebit)
	}
	acct.Lamports = lamports
	return t.put(key, acct)
}

func (t *tx) Now() int64 {
	return t.l.cfg.Clock.Now().Unix()
}

func (t *tx) Emit(e program.Event) {
	if t.readOnly {
		return
	}
	t.events = append(t.events, e)
}
