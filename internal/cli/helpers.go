package cli

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/gagliardetto/solana-go"

	"github.com/scrape-network/scrape/internal/daemon"
	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/program"
	"github.com/scrape-network/scrape/internal/security"
)

// openNode opens the local node and loads the signing wallet. Callers must
// Close the daemon.
func openNode() (*daemon.Daemon, *security.Keypair, error) {
	d, err := daemon.New()
	if err != nil {
		return nil, nil, err
	}
	kp, err := loadWallet(d.Config)
	if err != nil {
		d.Close()
		return nil, nil, err
	}
	return d, kp, nil
}

// loadWallet resolves the wallet from --wallet, then config, then the
// default key under the scrape home (created on first use).
func loadWallet(cfg daemon.Config) (*security.Keypair, error) {
	if walletFlag != "" {
		return security.LoadKeypair(walletFlag)
	}
	if cfg.Node.Wallet != "" {
		return security.LoadKeypair(cfg.Node.Wallet)
	}
	return security.LoadOrCreateKeypair(daemon.ScrapeHome())
}

// ownerArg parses an optional identity argument, defaulting to the wallet.
func ownerArg(args []string, i int, kp *security.Keypair) (solana.PublicKey, error) {
	if len(args) > i {
		return domain.ParsePublicKey(args[i])
	}
	return kp.PublicKey(), nil
}

// taskRefArgs parses "OWNER ID" positional arguments.
func taskRefArgs(args []string) (program.TaskRef, error) {
	owner, err := domain.ParsePublicKey(args[0])
	if err != nil {
		return program.TaskRef{}, err
	}
	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return program.TaskRef{}, fmt.Errorf("task id %q: %w", args[1], domain.ErrMalformedInput)
	}
	return program.TaskRef{Owner: owner, ID: id}, nil
}

// amount renders a token or lamport quantity with digit grouping.
func amount(v uint64) string {
	if v > math.MaxInt64 {
		return strconv.FormatUint(v, 10)
	}
	return humanize.Comma(int64(v))
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
