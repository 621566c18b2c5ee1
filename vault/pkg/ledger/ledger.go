package ledger

import (
	"context"
	"errors"
	"log/slog"
	"math/bits"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/malbeclabs/tokenvault/vault/pkg/program"
)

const (
	// AccountStorageOverhead is charged on top of the data length when computing rent.
	AccountStorageOverhead = 128
	// DefaultLamportsPerByte is the rent-exempt rate per byte (two years of rent).
	DefaultLamportsPerByte = 6960
)

var (
	ErrMissingSignature     = errors.New("missing required signature")
	ErrInsufficientLamports = errors.New("insufficient lamports")
	ErrLamportsOverflow     = errors.New("lamports overflow")
	ErrAccountInUse         = errors.New("account already in use")
	ErrAccountNotFound      = errors.New("account not found")
	ErrNotProgramOwned      = errors.New("account not owned by program")
	ErrExternalDebit        = errors.New("program debited an account it does not own")
	ErrDataTooLarge         = errors.New("data exceeds allocated space")
	ErrReadOnly             = errors.New("read-only transition")
	ErrInvalidTransferFrom  = errors.New("transfer source carries data")
)

type Config struct {
	Logger          *slog.Logger
	Clock           clockwork.Clock
	ProgramID       solana.PublicKey
	LamportsPerByte uint64
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ProgramID.IsZero() {
		return errors.New("program id is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.LamportsPerByte == 0 {
		cfg.LamportsPerByte = DefaultLamportsPerByte
	}
	return nil
}

// Account is a ledger account. Accounts never seen by the ledger read as empty
// system accounts.
type Account struct {
	Lamports uint64
	Owner    solana.PublicKey
	Data     []byte
}

func (a Account) clone() Account {
	if a.Data != nil {
		a.Data = append([]byte(nil), a.Data...)
	}
	return a
}

// Entry is one event in the append-only log.
type Entry struct {
	Seq   uint64
	Slot  uint64
	TxID  uuid.UUID
	Event program.Event
}

// Ledger is an in-memory host that executes transitions one at a time and applies each
// one atomically.
type Ledger struct {
	log *slog.Logger
	cfg Config

	mu       sync.Mutex
	accounts map[solana.PublicKey]Account
	entries  []Entry
	slot     uint64
}

func New(cfg Config) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Ledger{
		log:      cfg.Logger,
		cfg:      cfg,
		accounts: make(map[solana.PublicKey]Account),
	}, nil
}

func (l *Ledger) ProgramID() solana.PublicKey {
	return l.cfg.ProgramID
}

// Execute runs fn as one transition signed by signers. Writes and events become visible
// only if fn returns nil.
func (l *Ledger) Execute(ctx context.Context, signers []solana.PublicKey, fn func(program.Runtime) error) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.newTx(signers, false)
	if err := fn(t); err != nil {
		l.log.Debug("ledger: transition rolled back", "error", err)
		return uuid.Nil, err
	}

	txID := uuid.New()
	l.slot++
	for key, acct := range t.writes {
		l.accounts[key] = acct
	}
	for _, e := range t.events {
		l.entries = append(l.entries, Entry{
			Seq:   uint64(len(l.entries)) + 1,
			Slot:  l.slot,
			TxID:  txID,
			Event: e,
		})
	}
	l.log.Debug("ledger: transition committed", "tx", txID, "slot", l.slot, "writes", len(t.writes), "events", len(t.events))
	return txID, nil
}

// View runs fn against the current state without the ability to write.
func (l *Ledger) View(fn func(program.Runtime) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.newTx(nil, true))
}

// Airdrop credits lamports to an account outside of any transition.
func (l *Ledger) Airdrop(to solana.PublicKey, lamports uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	acct := l.accounts[to]
	sum, carry := bits.Add64(acct.Lamports, lamports, 0)
	if carry != 0 {
		return ErrLamportsOverflow
	}
	acct.Lamports = sum
	l.accounts[to] = acct
	l.log.Debug("ledger: airdrop", "to", to, "lamports", lamports)
	return nil
}

func (l *Ledger) Account(key solana.PublicKey) (Account, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct, ok := l.accounts[key]
	return acct.clone(), ok
}

func (l *Ledger) Balance(key solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[key].Lamports
}

// Supply is the total lamports held across all accounts.
func (l *Ledger) Supply() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total uint64
	for _, acct := range l.accounts {
		var carry uint64
		total, carry = bits.Add64(total, acct.Lamports, 0)
		if carry != 0 {
			return 0, ErrLamportsOverflow
		}
	}
	return total, nil
}

// Events returns log entries with Seq greater than after, at most limit of them
// (limit <= 0 means no limit).
func (l *Ledger) Events(after uint64, limit int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if after >= uint64(len(l.entries)) {
		return nil
	}
	out := l.entries[after:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return append([]Entry(nil), out...)
}

func (l *Ledger) Slot() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.slot
}

func (l *Ledger) MinimumBalance(space int) uint64 {
	return (uint64(space) + AccountStorageOverhead) * l.cfg.LamportsPerByte
}
