package client

import (
	"encoding/json"
	"fmt"
	"io"
)

func printJSON(w io.Writer, v interface{}) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(w, string(output))
	return nil
}

func printStatus(w io.Writer, id string, s *Status) {
	fmt.Fprintf(w, "%s  %-16s %3d%%", id, s.Status, s.Progress)
	if s.ChunksCount > 0 {
		fmt.Fprintf(w, "  chunks=%d", s.ChunksCount)
	}
	if s.Error != "" {
		fmt.Fprintf(w, "  error=%q", s.Error)
	}
	fmt.Fprintln(w)
}
