package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/scrape-network/scrape/internal/daemon"
	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/security"
)

func init() {
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "", "Write the key to this file instead of the default wallet")
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "Overwrite an existing key file")
	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(addressCmd)
}

var (
	keygenOut   string
	keygenForce bool
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a wallet key",
	Args:  cobra.NoArgs,
	RunE:  runKeygen,
}

var addressCmd = &cobra.Command{
	Use:   "address [OWNER]",
	Short: "Show an identity and its derived account addresses",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAddress,
}

func runKeygen(cmd *cobra.Command, args []string) error {
	path := keygenOut
	if path == "" {
		path = security.KeyPath(daemon.ScrapeHome())
	}
	if _, err := os.Stat(path); err == nil && !keygenForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	kp, err := security.GenerateKeypair()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(kp.Private.String()), 0600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}

	fmt.Printf("Wrote %s\n", path)
	fmt.Printf("Identity: %s\n", kp.PublicKey())
	return nil
}

func runAddress(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	pc, err := cfg.ProgramConfig()
	if err != nil {
		return err
	}

	var owner solana.PublicKey
	if len(args) == 1 {
		if owner, err = domain.ParsePublicKey(args[0]); err != nil {
			return err
		}
	} else {
		kp, err := loadWallet(cfg)
		if err != nil {
			return err
		}
		owner = kp.PublicKey()
	}

	addrs := domain.NewAddresses(pc.ProgramID)
	derive := []struct {
		name string
		fn   func(solana.PublicKey) (domain.Derived, error)
	}{
		{"client", addrs.Client},
		{"endpoint", addrs.Endpoint},
		{"provider", addrs.Provider},
		{"token account", addrs.TokenAccount},
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintf(w, "identity\t%s\t\n", owner)
	for _, d := range derive {
		acct, err := d.fn(owner)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		fmt.Fprintf(w, "%s\t%s\t(bump %d)\n", d.name, acct.Address, acct.Bump)
	}
	fmt.Fprintf(w, "program\t%s\t\n", pc.ProgramID)
	return w.Flush()
}
