package client

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docpipe/internal/cli"
)

// RetryCmd creates the retry command.
func RetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <document_id>",
		Short: "Re-run ingestion for a finished document",
		Long:  "Resets a completed or failed document and queues a new ingestion run. Rejected while a run is active.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}

			status, err := api.RetryDocument(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to retry document: %w", err)
			}

			if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
				return printJSON(cmd.OutOrStdout(), status)
			}
			printStatus(cmd.OutOrStdout(), args[0], status)
			return nil
		},
		Annotations: map[string]string{cli.OutputAnnotation: cli.OutputStatus},
	}
}

// CancelCmd creates the cancel command.
func CancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <document_id>",
		Short: "Cancel an active ingestion run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}

			if err := api.CancelDocument(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to cancel document: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for %s\n", args[0])
			return nil
		},
	}
}

// ListCmd creates the list command.
func ListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submitted documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}

			page, err := api.ListDocuments(cmd.Context(), cursor, limit)
			if err != nil {
				return fmt.Errorf("failed to list documents: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
				return printJSON(out, page)
			}

			if len(page.Items) == 0 {
				fmt.Fprintln(out, "No documents found.")
				return nil
			}
			for _, d := range page.Items {
				fmt.Fprintf(out, "%s  %s  %s\n", d.ID, d.CreatedAt, d.Title)
			}
			if page.HasMore {
				fmt.Fprintf(out, "\nMore results: --cursor %s\n", page.Cursor)
			}
			return nil
		},
	}

	cmd.Annotations = map[string]string{cli.OutputAnnotation: cli.OutputDocumentPage}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of documents")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Cursor from a previous page")

	return cmd
}

// ConfigCmd creates the config command.
func ConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage client configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set-url <url>",
		Short: "Persist the API base URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := NewAPIClientWithConfig(args[0]); err != nil {
				return err
			}
			if err := SaveGlobalConfig(&GlobalConfig{APIURL: args[0]}); err != nil {
				return err
			}
			path, _ := GetConfigPath()
			fmt.Fprintf(cmd.OutOrStdout(), "Saved API URL to %s\n", path)
			return nil
		},
	})

	return cmd
}
