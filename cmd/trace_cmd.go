package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/trace"
)

func newTraceCmd() *cobra.Command {
	traceCmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded step traces",
	}

	var asJSON bool
	showCmd := &cobra.Command{
		Use:   "show <file|run-id>",
		Short: "Print a trace file",
		Long: `Prints the run summary and steps stored in a trace. A bare run id is looked
up in the configured trace directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			path := resolveTracePath(args[0], cfg.Trace().Dir)

			entries, readErr := trace.ReadFile(path)
			if readErr != nil && len(entries) == 0 {
				return readErr
			}

			out := cmd.OutOrStdout()
			if asJSON {
				err = writeTraceJSON(out, entries)
			} else {
				err = writeTraceText(out, entries)
			}
			if err != nil {
				return err
			}
			if readErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: trace is incomplete: %v\n", readErr)
			}
			return nil
		},
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw entries as JSON lines.")

	traceCmd.AddCommand(showCmd)
	return traceCmd
}

// resolveTracePath treats an argument that names no existing file and has no
// directory part as a run id.
func resolveTracePath(arg, dir string) string {
	if _, err := os.Stat(arg); err == nil {
		return arg
	}
	if strings.ContainsRune(arg, filepath.Separator) || strings.HasSuffix(arg, trace.FileExt) {
		return arg
	}
	return trace.Path(dir, arg)
}

func writeTraceJSON(out io.Writer, entries []trace.Entry) error {
	enc := json.ConfigCompatibleWithStandardLibrary.NewEncoder(out)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func writeTraceText(out io.Writer, entries []trace.Entry) error {
	var (
		run   *schemas.RunRecord
		steps []schemas.StepRecord
	)
	for _, e := range entries {
		switch e.Type {
		case trace.EntryRun:
			// The last run record carries the final state.
			run = e.Run
		case trace.EntryStep:
			if e.Step != nil {
				steps = append(steps, *e.Step)
			}
		}
	}

	if run != nil {
		fmt.Fprintf(out, "Run:         %s\n", run.ID)
		fmt.Fprintf(out, "Instruction: %s\n", run.Instruction)
		fmt.Fprintf(out, "Model:       %s\n", orDash(run.Model))
		fmt.Fprintf(out, "State:       %s\n", run.State)
		if run.Status != "" {
			fmt.Fprintf(out, "Status:      %s\n", run.Status)
		}
		if run.Error != "" {
			fmt.Fprintf(out, "Error:       %s\n", run.Error)
		}
		fmt.Fprintln(out)
	}
	if len(steps) == 0 {
		fmt.Fprintln(out, "No steps recorded.")
		return nil
	}
	return writeStepTable(out, steps)
}
