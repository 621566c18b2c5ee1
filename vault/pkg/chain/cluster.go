package chain

import (
	"os"
	"strings"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
)

const lamportsPerSOL = 1_000_000_000

// RPCURL resolves a cluster moniker (mainnet-beta, devnet, testnet, localnet) to its
// endpoint. Anything else is treated as a URL. An empty value falls back to
// SOLANA_RPC_URL and then mainnet-beta.
func RPCURL(cluster string) string {
	if cluster == "" {
		cluster = os.Getenv("SOLANA_RPC_URL")
	}
	switch strings.ToLower(cluster) {
	case "", "mainnet-beta", "mainnet":
		return solanarpc.MainNetBeta_RPC
	case "devnet":
		return solanarpc.DevNet_RPC
	case "testnet":
		return solanarpc.TestNet_RPC
	case "localnet", "localhost":
		return solanarpc.LocalNet_RPC
	}
	return cluster
}

// LamportsToSOL converts lamports to SOL.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / lamportsPerSOL
}
