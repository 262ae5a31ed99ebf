package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	clientCmd.AddCommand(clientCreateCmd, clientReportCmd, clientShowCmd)
	endpointCmd.AddCommand(endpointCreateCmd, endpointCloseCmd, endpointShowCmd)
	rootCmd.AddCommand(clientCmd, endpointCmd)
}

// ─── Client ─────────────────────────────────────────────────────────────────

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Manage the wallet's client account",
}

var clientCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the client account if it does not exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, kp, err := openNode()
		if err != nil {
			return err
		}
		defer d.Close()

		c, err := d.Program.EnsureClient(context.Background(), kp.PublicKey())
		if err != nil {
			return err
		}
		fmt.Printf("Client %s (next task id %d)\n", c.Owner, c.TaskCounter)
		return nil
	},
}

var clientReportCmd = &cobra.Command{
	Use:   "report [OWNER]",
	Short: "Record a client report",
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
		if err := d.Program.RecordClientReport(context.Background(), kp.PublicKey(), owner); err != nil {
			return err
		}
		fmt.Println("Report recorded")
		return nil
	},
}

var clientShowCmd = &cobra.Command{
	Use:   "show [OWNER]",
	Short: "Show a client account",
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
		c, err := d.Program.Client(context.Background(), owner)
		if err != nil {
			return err
		}
		return printJSON(c)
	},
}

// ─── Endpoint ───────────────────────────────────────────────────────────────

var endpointCmd = &cobra.Command{
	Use:   "endpoint",
	Short: "Manage the wallet's endpoint node",
}

var endpointCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register the wallet as an endpoint node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, kp, err := openNode()
		if err != nil {
			return err
		}
		defer d.Close()

		e, err := d.Program.CreateEndpoint(context.Background(), kp.PublicKey())
		if err != nil {
			return err
		}
		fmt.Printf("Endpoint %s created\n", e.Owner)
		return nil
	},
}

var endpointCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the wallet's endpoint node and reclaim its rent",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		d, kp, err := openNode()
		if err != nil {
			return err
		}
		defer d.Close()

		if err := d.Program.CloseEndpoint(context.Background(), kp.PublicKey(), kp.PublicKey()); err != nil {
			return err
		}
		fmt.Println("Endpoint closed")
		return nil
	},
}

var endpointShowCmd = &cobra.Command{
	Use:   "show [OWNER]",
	Short: "Show an endpoint node",
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
		e, err := d.Program.Endpoint(context.Background(), owner)
		if err != nil {
			return err
		}
		addr, err := d.Program.Addresses().Endpoint(owner)
		if err != nil {
			return err
		}
		fmt.Printf("Owner:   %s\n", e.Owner)
		fmt.Printf("Address: %s\n", addr.Address)
		return nil
	},
}
