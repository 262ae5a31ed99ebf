package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/scrape-network/scrape/internal/daemon"
	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/program"
)

func init() {
	for _, c := range []*cobra.Command{providerRegisterCmd, providerUpdateCmd} {
		c.Flags().StringVar(&provIP, "ip", "", "Public IPv4 address")
		c.Flags().Uint16Var(&provProxyPort, "proxy-port", 0, "Proxy port")
		c.Flags().Uint16Var(&provClientPort, "client-port", 0, "Client port")
		c.Flags().Uint64Var(&provBandwidth, "bandwidth-limit", 0, "Bandwidth limit in bytes")
		_ = c.MarkFlagRequired("ip")
	}
	providerReportCmd.Flags().Uint64Var(&reportBandwidth, "bandwidth", 0, "Bandwidth used since the last report")
	providerReportCmd.Flags().Uint64Var(&reportReputation, "reputation", 0, "Reputation earned since the last report")
	providerTopCmd.Flags().IntVar(&topLimit, "limit", 10, "Number of providers to show (0 for all)")

	providerCmd.AddCommand(
		providerRegisterCmd, providerUpdateCmd, providerReportCmd,
		providerActivateCmd, providerPauseCmd, providerCloseCmd,
		providerBonusCmd, providerShowCmd, providerTopCmd,
	)
	rootCmd.AddCommand(providerCmd)
}

var (
	provIP         string
	provProxyPort  uint16
	provClientPort uint16
	provBandwidth  uint64

	reportBandwidth  uint64
	reportReputation uint64

	topLimit int
)

func providerParams() (program.ProviderParams, error) {
	ip, err := domain.ParseIPv4(provIP)
	if err != nil {
		return program.ProviderParams{}, fmt.Errorf("%v: %w", err, domain.ErrMalformedInput)
	}
	return program.ProviderParams{
		NetworkAddress: ip,
		ProxyPort:      provProxyPort,
		ClientPort:     provClientPort,
		BandwidthLimit: provBandwidth,
	}, nil
}

var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Manage the wallet's provider node",
}

var providerRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register the wallet as a provider and list it in the registry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := providerParams()
		if err != nil {
			return err
		}
		d, kp, err := openNode()
		if err != nil {
			return err
		}
		defer d.Close()

		p, err := d.Program.RegisterProvider(context.Background(), kp.PublicKey(), params)
		if err != nil {
			return err
		}
		fmt.Printf("Provider %s registered at %s:%d\n", p.Owner, p.NetworkAddress, p.ProxyPort)
		return nil
	},
}

var providerUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update the provider's network settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := providerParams()
		if err != nil {
			return err
		}
		return withProvider(func(ctx context.Context, d *daemon.Daemon, self solana.PublicKey) error {
			return d.Program.UpdateProvider(ctx, self, self, params)
		}, "Provider updated")
	},
}

var providerReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Add reported bandwidth and reputation to the provider",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(func(ctx context.Context, d *daemon.Daemon, self solana.PublicKey) error {
			return d.Program.UpdateProviderReport(ctx, self, self, reportBandwidth, reportReputation)
		}, "Report recorded")
	},
}

var providerActivateCmd = &cobra.Command{
	Use:   "activate",
	Short: "Make the provider eligible for assignment",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(func(ctx context.Context, d *daemon.Daemon, self solana.PublicKey) error {
			return d.Program.SetProviderActive(ctx, self, self, true)
		}, "Provider active")
	},
}

var providerPauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Stop the provider from receiving assignments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(func(ctx context.Context, d *daemon.Daemon, self solana.PublicKey) error {
			return d.Program.SetProviderActive(ctx, self, self, false)
		}, "Provider paused")
	},
}

var providerCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the provider, remove it from the registry and reclaim rent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProvider(func(ctx context.Context, d *daemon.Daemon, self solana.PublicKey) error {
			return d.Program.CloseProvider(ctx, self, self)
		}, "Provider closed")
	},
}

var providerBonusCmd = &cobra.Command{
	Use:   "bonus",
	Short: "Claim the reputation bonus owed to the provider",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, kp, err := openNode()
		if err != nil {
			return err
		}
		defer d.Close()

		paid, err := d.Program.ClaimBonus(context.Background(), kp.PublicKey(), kp.PublicKey())
		if err != nil {
			return err
		}
		if paid == 0 {
			fmt.Println("No bonus owed")
			return nil
		}
		fmt.Printf("Claimed %s SCRAPE\n", amount(paid))
		return nil
	},
}

var providerShowCmd = &cobra.Command{
	Use:   "show [OWNER]",
	Short: "Show a provider node",
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
		p, err := d.Program.Provider(context.Background(), owner)
		if err != nil {
			return err
		}
		cfg := d.Program.Config()
		owed, err := program.BonusEntitlement(p.Reputation, cfg.ReputationThreshold, cfg.BonusRate)
		if err != nil {
			return err
		}

		fmt.Printf("Owner:          %s\n", p.Owner)
		fmt.Printf("Address:        %s (proxy %d, client %d)\n", p.NetworkAddress, p.ProxyPort, p.ClientPort)
		fmt.Printf("Active:         %t\n", p.Active)
		fmt.Printf("Bandwidth:      %s / %s\n", amount(p.BandwidthUsed), amount(p.BandwidthLimit))
		fmt.Printf("Reputation:     %s\n", amount(p.Reputation))
		fmt.Printf("Rewards:        %s\n", amount(p.Rewards))
		fmt.Printf("Bonus owed:     %s\n", amount(domain.SaturatingSub(owed, p.Rewards)))
		fmt.Printf("Reward account: %s\n", p.RewardAccount)
		return nil
	},
}

var providerTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Rank active providers by reputation and bandwidth served",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, _, err := openNode()
		if err != nil {
			return err
		}
		defer d.Close()

		ranked, err := d.Program.Rankings(context.Background(), topLimit)
		if err != nil {
			return err
		}
		if len(ranked) == 0 {
			fmt.Println("No active providers.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "RANK\tOWNER\tREPUTATION\tBANDWIDTH\tREWARDS")
		for _, l := range ranked {
			p := l.Provider
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", l.Rank, p.Owner, amount(p.Reputation), amount(p.BandwidthUsed), amount(p.Rewards))
		}
		return w.Flush()
	},
}

// withProvider runs an owner-signed provider mutation and prints done.
func withProvider(fn func(ctx context.Context, d *daemon.Daemon, self solana.PublicKey) error, done string) error {
	d, kp, err := openNode()
	if err != nil {
		return err
	}
	defer d.Close()

	if err := fn(context.Background(), d, kp.PublicKey()); err != nil {
		return err
	}
	fmt.Println(done)
	return nil
}
