package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/scrape-network/scrape/internal/daemon"
	"github.com/scrape-network/scrape/internal/domain"
)

func init() {
	vaultCmd.AddCommand(vaultInitCmd, vaultShowCmd, vaultFundCmd)
	registryCmd.AddCommand(registryInitCmd, registryListCmd)
	receiptsCmd.Flags().BoolVar(&receiptsAll, "all", false, "List receipts of every signer")
	receiptsCmd.Flags().IntVar(&receiptsLimit, "limit", 20, "Maximum receipts to list")
	rootCmd.AddCommand(vaultCmd, registryCmd, genesisCmd, balanceCmd, receiptsCmd)
}

var (
	receiptsAll   bool
	receiptsLimit int
)

// ─── Vault ──────────────────────────────────────────────────────────────────

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage the escrow vault",
}

var vaultInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the escrow vault with the wallet as admin",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, kp, err := openNode()
		if err != nil {
			return err
		}
		defer d.Close()

		v, err := d.Program.InitVault(context.Background(), kp.PublicKey())
		if err != nil {
			return err
		}
		fmt.Printf("Vault initialized (admin %s, custody %s)\n", v.Admin, v.Custody)
		return nil
	},
}

var vaultShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show vault counters and custody balance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New()
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := context.Background()
		v, err := d.Program.Vault(ctx)
		if err != nil {
			return err
		}
		custody, err := d.Program.CustodyBalance(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Admin:               %s\n", v.Admin)
		fmt.Printf("Custody:             %s\n", v.Custody)
		fmt.Printf("Custody balance:     %s\n", amount(custody))
		fmt.Printf("Rewards distributed: %s\n", amount(v.TotalRewardsDistributed))
		fmt.Printf("Bandwidth paid:      %s\n", amount(v.BandwidthPaid))
		fmt.Printf("Bandwidth used:      %s\n", amount(v.BandwidthUsed))
		fmt.Printf("Escrowed:            %s\n", amount(v.Escrowed))
		return nil
	},
}

var vaultFundCmd = &cobra.Command{
	Use:   "fund AMOUNT",
	Short: "Deposit tokens from the wallet into vault custody",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("amount %q: %w", args[0], domain.ErrMalformedInput)
		}

		d, kp, err := openNode()
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.Program.FundVault(context.Background(), kp.PublicKey(), n); err != nil {
			return err
		}
		fmt.Printf("Funded vault with %s\n", amount(n))
		return nil
	},
}

// ─── Registry ───────────────────────────────────────────────────────────────

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage the provider registry",
}

var registryInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the empty provider registry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, kp, err := openNode()
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.Program.InitRegistry(context.Background(), kp.PublicKey()); err != nil {
			return err
		}
		fmt.Println("Registry initialized")
		return nil
	},
}

var registryListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered providers",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := daemon.New()
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := context.Background()
		reg, err := d.Program.Registry(ctx)
		if err != nil {
			return err
		}
		nodes := reg.Nodes()
		if len(nodes) == 0 {
			fmt.Println("No providers registered.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "SLOT\tPROVIDER\tADDRESS\tACTIVE\tREPUTATION\tREWARDS")
		for _, node := range nodes {
			slot, _ := reg.Slot(node)
			p, err := d.Program.Provider(ctx, node)
			if err != nil {
				fmt.Fprintf(w, "%d\t%s\t-\t-\t-\t-\n", slot, node)
				continue
			}
			fmt.Fprintf(w, "%d\t%s\t%s:%d\t%t\t%s\t%s\n",
				slot, node, p.NetworkAddress, p.ProxyPort, p.Active,
				amount(p.Reputation), amount(p.Rewards))
		}
		fmt.Fprintf(w, "\n%d of %d slots used\n", reg.Len(), reg.Capacity())
		return w.Flush()
	},
}

// ─── Genesis ────────────────────────────────────────────────────────────────

var genesisCmd = &cobra.Command{
	Use:   "genesis FILE",
	Short: "Apply a genesis airdrop file to the local ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := daemon.LoadGenesis(args[0])
		if err != nil {
			return err
		}

		d, err := daemon.New()
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.ApplyGenesis(context.Background(), g); err != nil {
			return err
		}
		fmt.Printf("Applied %d airdrops\n", len(g.Airdrops))
		return nil
	},
}

// ─── Balances and Receipts ──────────────────────────────────────────────────

var balanceCmd = &cobra.Command{
	Use:   "balance [OWNER]",
	Short: "Show token and lamport balances of an identity",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, kp, err := openNode()
		if err != nil {
			return err
		}
		defer d.Close()

		owner, err := ownerArg(args, 0, kp)
		if err != nil {
			return err
		}
		acct, err := d.Program.Addresses().TokenAccount(owner)
		if err != nil {
			return err
		}

		ctx := context.Background()
		tokens, err := d.Tokens.Balance(ctx, domain.AssetToken, acct.Address)
		if err != nil {
			return err
		}
		lamports, err := d.Tokens.Balance(ctx, domain.AssetLamports, owner)
		if err != nil {
			return err
		}

		fmt.Printf("Identity:      %s\n", owner)
		fmt.Printf("Token account: %s\n", acct.Address)
		fmt.Printf("SCRAPE:        %s\n", humanize.Comma(tokens))
		fmt.Printf("Lamports:      %s\n", humanize.Comma(lamports))
		return nil
	},
}

var receiptsCmd = &cobra.Command{
	Use:   "receipts",
	Short: "List recent operation receipts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, kp, err := openNode()
		if err != nil {
			return err
		}
		defer d.Close()

		signer := kp.PublicKey()
		if receiptsAll {
			signer = solana.PublicKey{}
		}
		receipts, err := d.DB.Receipts(context.Background(), signer, receiptsLimit)
		if err != nil {
			return err
		}
		if len(receipts) == 0 {
			fmt.Println("No receipts.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "WHEN\tOPERATION\tSIGNER\tRESULT")
		for _, r := range receipts {
			result := "applied"
			if !r.Applied {
				result = "rejected: " + r.Error
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", humanize.Time(r.Timestamp), r.Op, r.Signer, result)
		}
		return w.Flush()
	},
}
