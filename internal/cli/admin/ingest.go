package admin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docpipe/internal/config"
	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/cloo-solutions/docpipe/internal/segment"
	"github.com/cloo-solutions/docpipe/internal/service"
)

// IngestCmd returns the ingest command, which runs a local file through the
// pipeline in this process and prints the final status.
func IngestCmd() *cobra.Command {
	var (
		title   string
		noFacts bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Ingest a local file synchronously",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := newLogger(cfg)

			noMigrate, _ := cmd.Flags().GetBool("no-migrate")
			a, err := newApp(cmd.Context(), cfg, logger, !noMigrate)
			if err != nil {
				return err
			}
			defer a.Close()

			if title == "" {
				title = segment.ExtractTitle(string(data))
			}
			if title == "" {
				title = filepath.Base(args[0])
			}

			now := time.Now().UTC()
			doc := domain.NewDocument(uuid.NewString(), title, string(data), "", cfg.ExtractFacts && !noFacts, now)
			if err := domain.ValidateDocument(doc); err != nil {
				return domain.Wrap(domain.ErrInvalidInput, err)
			}
			err = a.txRunner.WithTx(cmd.Context(), func(repos service.TxRepositories) error {
				if err := repos.Documents().Create(cmd.Context(), doc); err != nil {
					return err
				}
				return repos.Statuses().Create(cmd.Context(), domain.NewProcessingStatus(doc.ID, now))
			})
			if err != nil {
				return fmt.Errorf("failed to store document: %w", err)
			}

			status, runErr := a.ingestionService().ProcessDocument(cmd.Context(), doc.ID)
			if status != nil {
				out, _ := json.MarshalIndent(map[string]interface{}{
					"document_id":  doc.ID,
					"status":       status.Stage,
					"progress":     status.Progress,
					"error":        status.Error,
					"chunks_count": status.ChunkCount,
				}, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Document title (defaults to the first heading)")
	cmd.Flags().BoolVar(&noFacts, "no-facts", false, "Skip fact extraction")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations")

	return cmd
}

// MigrateCmd returns the migrate command.
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return runMigrations(cfg)
		},
	}
}
