package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloo-solutions/docpipe/internal/cli"
)

// SubmitCmd creates the submit command.
func SubmitCmd() *cobra.Command {
	var (
		title     string
		text      string
		sourceKey string
		noFacts   bool
		facts     bool
		watch     bool
		upload    bool
		interval  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "submit [file]",
		Short: "Submit a document for ingestion",
		Long: `Submits a document for ingestion. The text comes from a file argument,
--text, or an object already in blob storage (--source-key). With --upload
the file is stored in blob storage first and submitted by its source key.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := SubmitRequest{Title: title, Text: text, SourceKey: sourceKey}
			if upload && len(args) == 0 {
				return fmt.Errorf("--upload requires a file argument")
			}

			var data []byte
			if len(args) == 1 {
				var err error
				data, err = os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read %s: %w", args[0], err)
				}
				if !upload {
					req.Text = string(data)
				}
				if req.Title == "" {
					req.Title = filepath.Base(args[0])
				}
			}
			if req.Text == "" && req.SourceKey == "" && !upload {
				return fmt.Errorf("provide a file, --text or --source-key")
			}

			switch {
			case noFacts:
				v := false
				req.ExtractFacts = &v
			case facts:
				v := true
				req.ExtractFacts = &v
			}

			api, err := NewAPIClient(cmd)
			if err != nil {
				return err
			}

			if upload {
				contentType := contentTypeForFile(args[0])
				target, err := api.InitUpload(cmd.Context(), filepath.Base(args[0]), contentType)
				if err != nil {
					return fmt.Errorf("failed to start upload: %w", err)
				}
				if err := api.UploadFile(cmd.Context(), target.UploadURL, contentType, data); err != nil {
					return err
				}
				req.SourceKey = target.SourceKey
			}

			doc, err := api.SubmitDocument(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("failed to submit document: %w", err)
			}

			outputJSON, _ := cmd.Flags().GetBool("output")
			out := cmd.OutOrStdout()
			if !watch {
				if outputJSON {
					return printJSON(out, doc)
				}
				fmt.Fprintf(out, "Submitted %s (%s)\n", doc.ID, doc.Title)
				return nil
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Submitted %s, watching...\n", doc.ID)
			return watchAndPrint(cmd, api, doc.ID, interval, outputJSON)
		},
	}

	cmd.Annotations = map[string]string{cli.OutputAnnotation: cli.OutputDocument}
	cmd.Flags().StringVar(&title, "title", "", "Document title (defaults to the first heading)")
	cmd.Flags().StringVar(&text, "text", "", "Inline document text")
	cmd.Flags().StringVar(&sourceKey, "source-key", "", "Object key of the text in blob storage")
	cmd.Flags().BoolVar(&facts, "facts", false, "Extract facts from every chunk")
	cmd.Flags().BoolVar(&noFacts, "no-facts", false, "Skip fact extraction")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload the file to blob storage instead of sending it inline")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Wait for the run to finish")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval for --watch")
	cmd.MarkFlagsMutuallyExclusive("facts", "no-facts")
	cmd.MarkFlagsMutuallyExclusive("upload", "text")
	cmd.MarkFlagsMutuallyExclusive("upload", "source-key")

	return cmd
}

func contentTypeForFile(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".md", ".markdown":
		return "text/markdown; charset=utf-8"
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	}
	return "text/plain; charset=utf-8"
}
