package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docproc/internal/entity"
	"github.com/joseph-ayodele/docproc/internal/render"
)

var processOpts struct {
	output   string
	fileType string
}

var processCmd = &cobra.Command{
	Use:   "process FILE",
	Short: "Process a single document",
	Long: `Runs the processing chain for FILE and prints the resulting query.
On a fatal error the partial result is still printed and the command fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcess,
}

func init() {
	processCmd.Flags().StringVarP(&processOpts.output, "output", "o", "", "write output to this file instead of stdout")
	processCmd.Flags().StringVar(&processOpts.fileType, "type", "", "file type (extension or MIME type); default from the file name")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	path := args[0]
	q, procErr := a.proc.Process(ctx, entity.NewQuery(path, processOpts.fileType))
	a.archive(ctx, "", path, q, procErr)

	if processOpts.output != "" {
		err = renderFile(processOpts.output, a.format, q)
	} else {
		err = render.Write(cmd.OutOrStdout(), a.format, q)
	}
	if err != nil {
		return err
	}
	if procErr != nil {
		return fmt.Errorf("processing %s: %w", path, procErr)
	}
	return nil
}
