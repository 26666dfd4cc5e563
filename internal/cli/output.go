package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// CLIResponse is the envelope printed with --format json.
type CLIResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

// emit prints data as JSON or the text line, depending on --format.
func emit(cmd *cobra.Command, opts *RootOptions, data interface{}, text string, args ...interface{}) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), text+"\n", args...)
	return err
}

// withSession opens a session for the duration of fn.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(*Session) error) error {
	s, err := opts.Connect(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}
