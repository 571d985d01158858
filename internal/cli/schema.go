// Package cli provides shared CLI utilities for docpipe and docpiped.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

// OutputAnnotation names the payload a command prints with --output.
const OutputAnnotation = "docpipe/output"

// Payloads printed by client commands in JSON mode.
const (
	OutputDocument     = "document"
	OutputStatus       = "status"
	OutputDocumentPage = "document_page"
)

// FlagSchema describes a command flag.
type FlagSchema struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// StageSchema describes one ingestion stage as reported by status commands.
type StageSchema struct {
	Name          string `json:"name"`
	ProgressStart int    `json:"progress_start"`
	ProgressEnd   int    `json:"progress_end"`
	Terminal      bool   `json:"terminal"`
}

// CommandSchema describes a command and its subcommands. Stages is only set
// on the root.
type CommandSchema struct {
	Name        string          `json:"name"`
	Use         string          `json:"use,omitempty"`
	Args        string          `json:"args,omitempty"`
	Description string          `json:"description,omitempty"`
	Long        string          `json:"long,omitempty"`
	Output      string          `json:"output,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
	Stages      []StageSchema   `json:"stages,omitempty"`
}

// stageOrder lists the stages in the order a run moves through them.
var stageOrder = []domain.Stage{
	domain.StageUnknown,
	domain.StageUploading,
	domain.StageProcessing,
	domain.StageFactsExtracting,
	domain.StageFactsSaving,
	domain.StageEmbedding,
	domain.StageSaving,
	domain.StageCompleted,
	domain.StageFailed,
}

// GenerateSchema describes cmd and everything below it.
func GenerateSchema(cmd *cobra.Command) CommandSchema {
	schema := describe(cmd)
	if !cmd.HasParent() {
		schema.Stages = stageSchemas()
	}
	return schema
}

func describe(cmd *cobra.Command) CommandSchema {
	schema := CommandSchema{
		Name:        cmd.Name(),
		Use:         cmd.Use,
		Args:        strings.TrimSpace(strings.TrimPrefix(cmd.Use, cmd.Name())),
		Description: cmd.Short,
		Long:        cmd.Long,
		Output:      cmd.Annotations[OutputAnnotation],
		Flags:       extractFlags(cmd),
	}

	for _, sub := range cmd.Commands() {
		if sub.Name() == "help" || sub.Hidden {
			continue
		}
		schema.Subcommands = append(schema.Subcommands, describe(sub))
	}

	return schema
}

func stageSchemas() []StageSchema {
	stages := make([]StageSchema, 0, len(stageOrder))
	for _, s := range stageOrder {
		r := s.Range()
		if s == domain.StageFailed {
			// failed keeps the progress the run had reached
			r = domain.ProgressRange{Start: 0, End: 100}
		}
		stages = append(stages, StageSchema{
			Name:          string(s),
			ProgressStart: r.Start,
			ProgressEnd:   r.End,
			Terminal:      s.IsTerminal(),
		})
	}
	return stages
}

func extractFlags(cmd *cobra.Command) []FlagSchema {
	var flags []FlagSchema

	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "help-json" || f.Name == "help" {
			return
		}
		flags = append(flags, flagToSchema(f))
	})

	return flags
}

func flagToSchema(f *pflag.Flag) FlagSchema {
	_, required := f.Annotations[cobra.BashCompOneRequiredFlag]
	return FlagSchema{
		Name:        f.Name,
		Shorthand:   f.Shorthand,
		Type:        f.Value.Type(),
		Default:     f.DefValue,
		Description: f.Usage,
		Required:    required,
	}
}

// WriteSchema writes the schema of cmd as indented JSON.
func WriteSchema(w io.Writer, cmd *cobra.Command) error {
	output, err := json.MarshalIndent(GenerateSchema(cmd), "", "  ")
	if err != nil {
		return fmt.Errorf("generating schema: %w", err)
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}

// AddHelpJSONFlag adds the --help-json flag to a command.
func AddHelpJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("help-json", false, "Output command schema as JSON")
}

// HandleHelpJSON writes the schema of the command named by args when args
// contain --help-json. It runs before Execute so that argument validation
// does not reject the request. args excludes the program name.
func HandleHelpJSON(w io.Writer, root *cobra.Command, args []string) (bool, error) {
	for i, arg := range args {
		if arg == "--help-json" {
			return true, WriteSchema(w, findTargetCommand(root, args[:i]))
		}
	}
	return false, nil
}

func findTargetCommand(cmd *cobra.Command, args []string) *cobra.Command {
	if len(args) == 0 {
		return cmd
	}

	for _, sub := range cmd.Commands() {
		if sub.Name() == args[0] || sub.HasAlias(args[0]) {
			return findTargetCommand(sub, args[1:])
		}
	}

	return cmd
}
