package client

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docpipe/internal/cli"
)

// StatusCmd creates the status command.
func StatusCmd() *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status <document_id>",
		Short: "Show ingestion progress for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}

			outputJSON, _ := cmd.Flags().GetBool("output")
			if watch {
				return watchAndPrint(cmd, api, args[0], interval, outputJSON)
			}

			status, err := api.GetStatus(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), status)
			}
			printStatus(cmd.OutOrStdout(), args[0], status)
			return nil
		},
	}

	cmd.Annotations = map[string]string{cli.OutputAnnotation: cli.OutputStatus}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until the run completes or fails")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval for --watch")

	return cmd
}

func watchAndPrint(cmd *cobra.Command, api *APIClient, id string, interval time.Duration, outputJSON bool) error {
	out := cmd.OutOrStdout()
	final, err := api.WatchStatus(cmd.Context(), id, interval, func(s *Status) {
		if !outputJSON {
			printStatus(out, id, s)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to watch status: %w", err)
	}
	if outputJSON {
		if err := printJSON(out, final); err != nil {
			return err
		}
	}
	if final.Status == "failed" {
		return fmt.Errorf("ingestion failed: %s", final.Error)
	}
	return nil
}
