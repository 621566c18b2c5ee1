package program

import "github.com/gagliardetto/solana-go"

// AccountInfo is a snapshot of a host account.
type AccountInfo struct {
	Lamports uint64
	Owner    solana.PublicKey
	Data     []byte
}

// Runtime is the host environment of a single transition. The host executes each
// transition serially and atomically: if a transition returns an error, nothing it
// wrote through the Runtime is kept.
type Runtime interface {
	ProgramID() solana.PublicKey
	IsSigner(key solana.PublicKey) bool

	FindProgramAddress(seeds [][]byte) (solana.PublicKey, uint8, error)
	CreateProgramAddress(seeds [][]byte) (solana.PublicKey, error)

	Account(key solana.PublicKey) (AccountInfo, bool)
	// MinimumBalance is the rent-exempt reserve for an account holding space bytes.
	MinimumBalance(space int) uint64
	// CreateAccount funds address from payer up to the rent-exempt reserve, assigns
	// it to the program and allocates space zeroed bytes.
	CreateAccount(payer, address solana.PublicKey, space int) error
	WriteData(address solana.PublicKey, data []byte) error
	// Transfer moves lamports between accounts; from must have signed.
	Transfer(from, to solana.PublicKey, amount uint64) error
	// SetLamports overwrites a balance. Only program-owned accounts may be debited.
	SetLamports(key solana.PublicKey, lamports uint64) error

	// Now is the host clock in unix seconds.
	Now() int64
	Emit(e Event)
}
