package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/malbeclabs/tokenvault/utils/pkg/logger"
	"github.com/malbeclabs/tokenvault/vault/pkg/chain"
	flag "github.com/spf13/pflag"
)

type output struct {
	Address        solana.PublicKey `json:"address"`
	Slot           uint64           `json:"slot"`
	Owner          solana.PublicKey `json:"owner"`
	Bump           uint8            `json:"bump"`
	Revenue        uint64           `json:"revenue"`
	TokensDeployed uint64           `json:"tokens_deployed"`
	Lamports       uint64           `json:"lamports"`
	Custody        uint64           `json:"custody"`
	CustodySOL     float64          `json:"custody_sol"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "Enable verbose (debug) logging")
	rpcURLFlag := flag.String("rpc-url", "", "Solana RPC URL or cluster moniker (or set SOLANA_RPC_URL env var)")
	programIDFlag := flag.String("program-id", "", "Vault program id")
	commitmentFlag := flag.String("commitment", string(solanarpc.CommitmentFinalized), "Commitment level (processed, confirmed, finalized)")
	timeoutFlag := flag.Duration("timeout", 30*time.Second, "Overall request timeout")

	flag.Parse()

	if *programIDFlag == "" {
		return errors.New("--program-id is required")
	}
	programID, err := solana.PublicKeyFromBase58(*programIDFlag)
	if err != nil {
		return fmt.Errorf("invalid program id %q: %w", *programIDFlag, err)
	}

	log := logger.New(*verboseFlag)
	url := chain.RPCURL(*rpcURLFlag)

	reader, err := chain.NewReader(chain.ReaderConfig{
		Logger:     log,
		RPC:        solanarpc.New(url),
		ProgramID:  programID,
		Commitment: solanarpc.CommitmentType(*commitmentFlag),
	})
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeoutFlag)
	defer cancelTimeout()

	log.Debug("reading vault", "rpc_url", url, "program_id", programID)
	state, err := reader.ReadVault(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output{
		Address:        state.Address,
		Slot:           state.Slot,
		Owner:          state.Record.Owner,
		Bump:           state.Record.Bump,
		Revenue:        state.Record.Revenue,
		TokensDeployed: state.Record.TokensDeployed,
		Lamports:       state.Lamports,
		Custody:        state.Custody,
		CustodySOL:     chain.LamportsToSOL(state.Custody),
	})
}
