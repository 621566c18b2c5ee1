package program_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/gagliardetto/solana-go"
	vaulttesting "github.com/malbeclabs/tokenvault/utils/pkg/testing"
	"github.com/malbeclabs/tokenvault/vault/pkg/program"
	"github.com/stretchr/testify/require"
)

func TestVault_Program_Withdraw(t *testing.T) {
	t.Parallel()

	t.Run("owner withdraws to an arbitrary recipient", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		owner := h.funded(0)
		handle := h.mustCreateVault(owner)
		_, err := h.deposit(h.funded(800), handle, 800)
		require.NoError(t, err)

		recipient := vaulttesting.NewPublicKey(t)
		supply := h.supply()

		receipt, err := h.withdraw(owner, handle, recipient, 300)
		require.NoError(t, err)
		require.Equal(t, uint64(300), receipt.Amount)
		require.Equal(t, uint64(500), receipt.Custody)
		require.Equal(t, recipient, receipt.Recipient)

		require.Equal(t, uint64(300), h.ledger.Balance(recipient))
		require.Zero(t, h.ledger.Balance(owner))
		v := h.vault()
		require.Equal(t, uint64(500), v.Custody)
		require.Equal(t, uint64(800), v.Record.Revenue)
		require.Equal(t, uint64(1), v.Record.TokensDeployed)
		require.Equal(t, supply, h.supply())
	})

	t.Run("non-owner is always rejected", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		owner := h.funded(0)
		handle := h.mustCreateVault(owner)
		_, err := h.deposit(h.funded(100), handle, 100)
		require.NoError(t, err)

		for _, amount := range []uint64{0, 1, 100, 101, math.MaxUint64} {
			caller := h.funded(5)
			_, err := h.withdraw(caller, handle, caller, amount)
			require.ErrorIs(t, err, program.ErrUnauthorizedWithdrawal)
			require.Equal(t, uint64(5), h.ledger.Balance(caller))
		}
		require.Equal(t, uint64(100), h.vault().Custody)
	})

	t.Run("owner that did not sign is rejected", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		owner := h.funded(0)
		handle := h.mustCreateVault(owner)
		_, err := h.deposit(h.funded(100), handle, 100)
		require.NoError(t, err)

		attacker := h.funded(0)
		_, err = h.ledger.Execute(context.Background(), []solana.PublicKey{attacker}, func(rt program.Runtime) error {
			_, err := h.prog.Withdraw(rt, owner, handle, attacker, 100)
			return err
		})
		require.ErrorIs(t, err, program.ErrUnauthorizedWithdrawal)
		require.Zero(t, h.ledger.Balance(attacker))
	})

	t.Run("authorization is checked before funds", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		handle := h.mustCreateVault(h.funded(0))

		caller := h.funded(0)
		_, err := h.withdraw(caller, handle, caller, 1)
		require.ErrorIs(t, err, program.ErrUnauthorizedWithdrawal)
	})

	t.Run("overdraw fails and leaves custody unchanged", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		owner := h.funded(0)
		handle := h.mustCreateVault(owner)
		_, err := h.deposit(h.funded(100), handle, 100)
		require.NoError(t, err)

		_, err = h.withdraw(owner, handle, owner, 101)
		require.ErrorIs(t, err, program.ErrInsufficientFunds)
		require.Equal(t, uint64(100), h.vault().Custody)
		require.Zero(t, h.ledger.Balance(owner))
	})

	t.Run("rent reserve is not withdrawable", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		owner := h.funded(0)
		handle := h.mustCreateVault(owner)

		_, err := h.withdraw(owner, handle, owner, 1)
		require.ErrorIs(t, err, program.ErrInsufficientFunds)

		acct, ok := h.ledger.Account(handle.Address)
		require.True(t, ok)
		require.Equal(t, h.ledger.MinimumBalance(program.VaultAccountSize), acct.Lamports)
	})

	t.Run("custody can be drained to zero", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		owner := h.funded(0)
		handle := h.mustCreateVault(owner)
		_, err := h.deposit(h.funded(100), handle, 100)
		require.NoError(t, err)

		receipt, err := h.withdraw(owner, handle, owner, 100)
		require.NoError(t, err)
		require.Zero(t, receipt.Custody)
		require.Zero(t, h.vault().Custody)
		require.Equal(t, uint64(100), h.ledger.Balance(owner))
	})

	t.Run("withdrawing to the vault itself nets out", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		owner := h.funded(0)
		handle := h.mustCreateVault(owner)
		_, err := h.deposit(h.funded(100), handle, 100)
		require.NoError(t, err)

		receipt, err := h.withdraw(owner, handle, handle.Address, 60)
		require.NoError(t, err)
		require.Equal(t, uint64(100), receipt.Custody)
		require.Equal(t, uint64(100), h.vault().Custody)
	})

	t.Run("recipient overflow rolls back the debit", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		owner := h.funded(0)
		handle := h.mustCreateVault(owner)
		_, err := h.deposit(h.funded(100), handle, 100)
		require.NoError(t, err)

		rich := h.funded(math.MaxUint64 - 10)
		_, err = h.withdraw(owner, handle, rich, 50)
		require.ErrorIs(t, err, program.ErrOverflow)
		require.Equal(t, uint64(100), h.vault().Custody)
		require.Equal(t, uint64(math.MaxUint64-10), h.ledger.Balance(rich))
	})

	t.Run("emits withdraw event", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t)
		owner := h.funded(0)
		handle := h.mustCreateVault(owner)
		_, err := h.deposit(h.funded(100), handle, 100)
		require.NoError(t, err)

		recipient := vaulttesting.NewPublicKey(t)
		_, err = h.withdraw(owner, handle, recipient, 40)
		require.NoError(t, err)

		entries := h.ledger.Events(1, 0)
		require.Len(t, entries, 1)
		require.Equal(t, program.WithdrawEvent{Recipient: recipient, Amount: 40, Timestamp: testNow.Unix()}, entries[0].Event)
	})
}

func TestVault_Program_Scenario(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	payer := h.funded(10_000_000)
	owner := h.funded(0)
	depositor := h.funded(500)
	recipient := vaulttesting.NewPublicKey(t)

	handle, err := h.createVault(payer, owner)
	require.NoError(t, err)
	v := h.vault()
	require.Equal(t, owner, v.Record.Owner)
	require.Zero(t, v.Record.Revenue)
	require.Zero(t, v.Record.TokensDeployed)

	_, err = h.deposit(depositor, handle, 500)
	require.NoError(t, err)
	v = h.vault()
	require.Equal(t, uint64(500), v.Record.Revenue)
	require.Equal(t, uint64(1), v.Record.TokensDeployed)
	require.Equal(t, uint64(500), v.Custody)

	_, err = h.withdraw(owner, handle, recipient, 500)
	require.NoError(t, err)
	v = h.vault()
	require.Zero(t, v.Custody)
	require.Equal(t, uint64(500), h.ledger.Balance(recipient))
	require.Equal(t, uint64(500), v.Record.Revenue)

	_, err = h.withdraw(depositor, handle, depositor, 1)
	require.ErrorIs(t, err, program.ErrUnauthorizedWithdrawal)

	_, err = h.withdraw(owner, handle, recipient, 1)
	require.ErrorIs(t, err, program.ErrInsufficientFunds)

	entries := h.ledger.Events(0, 0)
	require.Len(t, entries, 2)
	require.Equal(t, "DepositEvent", entries[0].Event.EventName())
	require.Equal(t, "WithdrawEvent", entries[1].Event.EventName())
	require.Less(t, entries[0].Slot, entries[1].Slot)
}

// shrinkingRuntime reports a vault balance that drops between reads, as if the host
// debited the vault underneath the transition.
type shrinkingRuntime struct {
	programID solana.PublicKey
	signer    solana.PublicKey
	vault     solana.PublicKey
	data      []byte
	balances  []uint64
	reads     int
	writes    int
	events    []program.Event
}

func (r *shrinkingRuntime) ProgramID() solana.PublicKey { return r.programID }

func (r *shrinkingRuntime) IsSigner(key solana.PublicKey) bool { return key.Equals(r.signer) }

func (r *shrinkingRuntime) FindProgramAddress(seeds [][]byte) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(seeds, r.programID)
}

func (r *shrinkingRuntime) CreateProgramAddress(seeds [][]byte) (solana.PublicKey, error) {
	return solana.CreateProgramAddress(seeds, r.programID)
}

func (r *shrinkingRuntime) Account(key solana.PublicKey) (program.AccountInfo, bool) {
	if !key.Equals(r.vault) {
		return program.AccountInfo{}, false
	}
	lamports := r.balances[min(r.reads, len(r.balances)-1)]
	r.reads++
	return program.AccountInfo{Lamports: lamports, Owner: r.programID, Data: append([]byte(nil), r.data...)}, true
}

func (r *shrinkingRuntime) MinimumBalance(int) uint64 { return 1000 }

func (r *shrinkingRuntime) CreateAccount(solana.PublicKey, solana.PublicKey, int) error {
	return errors.New("unexpected create")
}

func (r *shrinkingRuntime) WriteData(solana.PublicKey, []byte) error {
	return errors.New("unexpected write")
}

func (r *shrinkingRuntime) Transfer(solana.PublicKey, solana.PublicKey, uint64) error {
	return errors.New("unexpected transfer")
}

func (r *shrinkingRuntime) SetLamports(solana.PublicKey, uint64) error {
	r.writes++
	return nil
}

func (r *shrinkingRuntime) Now() int64 { return testNow.Unix() }

func (r *shrinkingRuntime) Emit(e program.Event) { r.events = append(r.events, e) }

func TestVault_Program_WithdrawUnderflow(t *testing.T) {
	t.Parallel()

	programID := vaulttesting.NewPublicKey(t)
	owner := vaulttesting.NewPublicKey(t)
	address, bump, err := program.VaultAddress(programID)
	require.NoError(t, err)
	data, err := program.EncodeVaultRecord(&program.VaultRecord{Owner: owner, Bump: bump})
	require.NoError(t, err)

	rt := &shrinkingRuntime{
		programID: programID,
		signer:    owner,
		vault:     address,
		data:      data,
		// The checks see 1500 lamports of custody; the debit sees 10.
		balances: []uint64{2500, 10},
	}
	prog, err := program.New(program.Config{Logger: vaulttesting.NewLogger()})
	require.NoError(t, err)

	_, err = prog.Withdraw(rt, owner, program.VaultHandle{Address: address, Bump: bump}, vaulttesting.NewPublicKey(t), 500)
	require.ErrorIs(t, err, program.ErrArithmeticUnderflow)
	require.Zero(t, rt.writes)
	require.Empty(t, rt.events)
}
