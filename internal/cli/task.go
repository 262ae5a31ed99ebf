package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrape-network/scrape/internal/daemon"
	"github.com/scrape-network/scrape/internal/domain"
	"github.com/scrape-network/scrape/internal/program"
)

func init() {
	f := taskCreateCmd.Flags()
	f.StringVar(&taskEndpoint, "endpoint", "", "Endpoint node owner that routes the task")
	f.StringVar(&taskURL, "url", "", "URL to scrape")
	f.StringVar(&taskFilter, "filter", "", "Extraction filter")
	f.StringVar(&taskLabel, "label", "", "Human-readable label")
	f.StringVar(&taskFormat, "format", "json", "Result format")
	f.Uint64Var(&taskReward, "reward", 0, "Reward escrowed for the provider")
	_ = taskCreateCmd.MarkFlagRequired("endpoint")
	_ = taskCreateCmd.MarkFlagRequired("url")

	taskAssignCmd.Flags().StringVar(&assignProvider, "provider", "", "Provider to assign (defaults to the wallet)")
	taskAssignCmd.Flags().BoolVar(&assignViaEndpoint, "via-endpoint", false, "Assign as the task's endpoint node")

	f = taskCompleteCmd.Flags()
	f.StringVar(&completeRef, "reference", "", "Result reference")
	f.Uint64Var(&completeSize, "size", 0, "Dataset size in units")
	f.Uint64Var(&completeScore, "quality-score", 0, "Oracle quality score")
	f.StringVar(&completeObserved, "quality-at", "", "Oracle observation time (RFC 3339, defaults to now)")
	_ = taskCompleteCmd.MarkFlagRequired("reference")

	for _, c := range []*cobra.Command{taskPreviewCmd, taskDownloadCmd} {
		c.Flags().StringVar(&datasetClient, "client", "", "Client account owner (defaults to the wallet)")
	}

	taskCmd.AddCommand(
		taskCreateCmd, taskAssignCmd, taskCompleteCmd, taskCloseCmd,
		taskShowCmd, taskListCmd, taskPreviewCmd, taskDownloadCmd,
	)
	rootCmd.AddCommand(taskCmd)
}

var (
	taskEndpoint string
	taskURL      string
	taskFilter   string
	taskLabel    string
	taskFormat   string
	taskReward   uint64

	assignProvider    string
	assignViaEndpoint bool

	completeRef      string
	completeSize     uint64
	completeScore    uint64
	completeObserved string

	datasetClient string
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create and work on scraping tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Escrow a reward and create a pending task",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, err := domain.ParsePublicKey(taskEndpoint)
		if err != nil {
			return err
		}
		d, kp, err := openNode()
		if err != nil {
			return err
		}
		defer d.Close()

		t, err := d.Program.CreateTask(context.Background(), kp.PublicKey(), endpoint, domain.TaskSpec{
			URL:    taskURL,
			Filter: taskFilter,
			Label:  taskLabel,
			Format: taskFormat,
			Reward: taskReward,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Created task %d (reward %s escrowed)\n", t.ID, amount(t.Reward))
		return nil
	},
}

var taskAssignCmd = &cobra.Command{
	Use:   "assign OWNER ID",
	Short: "Assign a pending task to a provider",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := taskRefArgs(args)
		if err != nil {
			return err
		}
		d, kp, err := openNode()
		if err != nil {
			return err
		}
		defer d.Close()

		provider := kp.PublicKey()
		if assignProvider != "" {
			if provider, err = domain.ParsePublicKey(assignProvider); err != nil {
				return err
			}
		}

		ctx := context.Background()
		if assignViaEndpoint {
			err = d.Program.AssignTaskViaEndpoint(ctx, kp.PublicKey(), ref, kp.PublicKey(), provider)
		} else {
			err = d.Program.AssignTask(ctx, kp.PublicKey(), ref, provider)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Task %s assigned to %s\n", ref, provider)
		return nil
	},
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete OWNER ID",
	Short: "Submit the result of an assigned task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := taskRefArgs(args)
		if err != nil {
			return err
		}
		params := program.CompleteParams{Reference: completeRef, DatasetSize: completeSize}
		if cmd.Flags().Changed("quality-score") {
			q := &program.QualityReport{Score: completeScore, ObservedAt: time.Now()}
			if completeObserved != "" {
				if q.ObservedAt, err = time.Parse(time.RFC3339, completeObserved); err != nil {
					return fmt.Errorf("quality-at: %w", domain.ErrMalformedInput)
				}
			}
			params.Quality = q
		}

		d, kp, err := openNode()
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := context.Background()
		if err := d.Program.CompleteTask(ctx, kp.PublicKey(), ref, kp.PublicKey(), params); err != nil {
			return err
		}
		t, err := d.Program.Task(ctx, ref)
		if err != nil {
			return err
		}
		fmt.Printf("Task %s completed (reward %s paid)\n", ref, amount(t.Reward))
		return nil
	},
}

var taskCloseCmd = &cobra.Command{
	Use:   "close ID",
	Short: "Close one of the wallet's tasks, refunding unspent escrow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, kp, err := openNode()
		if err != nil {
			return err
		}
		defer d.Close()

		ref, err := taskRefArgs([]string{kp.PublicKey().String(), args[0]})
		if err != nil {
			return err
		}
		if err := d.Program.CloseTask(context.Background(), kp.PublicKey(), ref); err != nil {
			return err
		}
		fmt.Printf("Task %s closed\n", ref)
		return nil
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show OWNER ID",
	Short: "Show a task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := taskRefArgs(args)
		if err != nil {
			return err
		}
		d, err := daemon.New()
		if err != nil {
			return err
		}
		defer d.Close()

		t, err := d.Program.Task(context.Background(), ref)
		if err != nil {
			return err
		}
		return printJSON(t)
	},
}

var taskListCmd = &cobra.Command{
	Use:     "list [OWNER]",
	Aliases: []string{"ls"},
	Short:   "List an owner's open tasks",
	Args:    cobra.MaximumNArgs(1),
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
		tasks, err := d.Program.TasksByOwner(context.Background(), owner)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tREWARD\tPROVIDER\tURL")
		for _, t := range tasks {
			provider := "-"
			if node, ok := t.Assignment.Node(); ok {
				provider = node.String()
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", t.ID, t.Status, amount(t.Reward), provider, t.URL)
		}
		return w.Flush()
	},
}

var taskPreviewCmd = &cobra.Command{
	Use:   "preview OWNER ID",
	Short: "Show a completed task's result reference and access cost",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDataset(args, false)
	},
}

var taskDownloadCmd = &cobra.Command{
	Use:   "download OWNER ID",
	Short: "Record a dataset download of a completed task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDataset(args, true)
	},
}

func runDataset(args []string, download bool) error {
	ref, err := taskRefArgs(args)
	if err != nil {
		return err
	}
	d, kp, err := openNode()
	if err != nil {
		return err
	}
	defer d.Close()

	client := kp.PublicKey()
	if datasetClient != "" {
		if client, err = domain.ParsePublicKey(datasetClient); err != nil {
			return err
		}
	}

	ctx := context.Background()
	var access *program.DatasetAccess
	if download {
		access, err = d.Program.DownloadDataset(ctx, kp.PublicKey(), ref, client)
	} else {
		access, err = d.Program.PreviewDataset(ctx, kp.PublicKey(), ref, client)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Task:      %s\n", access.Task)
	fmt.Printf("Reference: %s\n", access.Reference)
	fmt.Printf("Size:      %s units\n", amount(access.DatasetSize))
	if access.Cost == 0 {
		fmt.Println("Cost:      free")
	} else {
		fmt.Printf("Cost:      %s\n", amount(access.Cost))
	}
	return nil
}
