package program_test

import (
	"context"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	vaulttesting "github.com/malbeclabs/tokenvault/utils/pkg/testing"
	"github.com/malbeclabs/tokenvault/vault/pkg/ledger"
	"github.com/malbeclabs/tokenvault/vault/pkg/program"
	"github.com/stretchr/testify/require"
)

var testProgramID = solana.MustPublicKeyFromBase58("Be9kXVWMNSQgF7DjfU61Dutj3EK8QbTEYNJ8cRvuVrWK")

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	t      *testing.T
	ledger *ledger.Ledger
	prog   *program.Program
	clock  *clockwork.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := clockwork.NewFakeClockAt(testNow)
	l, err := ledger.New(ledger.Config{
		Logger:    vaulttesting.NewLogger(),
		Clock:     clock,
		ProgramID: testProgramID,
	})
	require.NoError(t, err)

	prog, err := program.New(program.Config{Logger: vaulttesting.NewLogger()})
	require.NoError(t, err)

	return &harness{t: t, ledger: l, prog: prog, clock: clock}
}

// funded returns a new identity holding lamports.
func (h *harness) funded(lamports uint64) solana.PublicKey {
	h.t.Helper()
	key := vaulttesting.NewPublicKey(h.t)
	require.NoError(h.t, h.ledger.Airdrop(key, lamports))
	return key
}

func (h *harness) createVault(payer, owner solana.PublicKey) (program.VaultHandle, error) {
	var handle program.VaultHandle
	_, err := h.ledger.Execute(context.Background(), []solana.PublicKey{payer}, func(rt program.Runtime) error {
		var err error
		handle, err = h.prog.CreateVault(rt, payer, owner)
		return err
	})
	return handle, err
}

func (h *harness) mustCreateVault(owner solana.PublicKey) program.VaultHandle {
	h.t.Helper()
	handle, err := h.createVault(h.funded(10_000_000), owner)
	require.NoError(h.t, err)
	return handle
}

func (h *harness) deposit(depositor solana.PublicKey, handle program.VaultHandle, amount uint64) (*program.DepositReceipt, error) {
	var receipt *program.DepositReceipt
	_, err := h.ledger.Execute(context.Background(), []solana.PublicKey{depositor}, func(rt program.Runtime) error {
		var err error
		receipt, err = h.prog.Deposit(rt, depositor, handle, amount)
		return err
	})
	return receipt, err
}

func (h *harness) withdraw(caller solana.PublicKey, handle program.VaultHandle, recipient solana.PublicKey, amount uint64) (*program.WithdrawReceipt, error) {
	var receipt *program.WithdrawReceipt
	_, err := h.ledger.Execute(context.Background(), []solana.PublicKey{caller}, func(rt program.Runtime) error {
		var err error
		receipt, err = h.prog.Withdraw(rt, caller, handle, recipient, amount)
		return err
	})
	return receipt, err
}

func (h *harness) vault() *program.Vault {
	h.t.Helper()
	var v *program.Vault
	require.NoError(h.t, h.ledger.View(func(rt program.Runtime) error {
		var err error
		v, err = h.prog.LoadVault(rt)
		return err
	}))
	return v
}

func (h *harness) supply() uint64 {
	h.t.Helper()
	s, err := h.ledger.Supply()
	require.NoError(h.t, err)
	return s
}

func TestVault_Program_New(t *testing.T) {
	t.Parallel()

	t.Run("returns error when logger is missing", func(t *testing.T) {
		t.Parallel()
		prog, err := program.New(program.Config{})
		require.Nil(t, prog)
		require.ErrorContains(t, err, "logger is required")
	})
}
