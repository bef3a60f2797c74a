package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/m4xw311/strudelgate/errors"
)

func newCheckCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "check [code]",
		Short: "Validate a pattern without committing it",
		Long: `Run a pattern through the same validation the updateRepl tool uses and
print the diagnostic. Use -f to read the pattern from a file, or '-' for stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := checkInput(cmd, file, args)
			if err != nil {
				return err
			}
			ev, err := a.newEvaluator()
			if err != nil {
				return err
			}
			if err := ev.Check(code); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), err.Error())
				return errors.New("pattern rejected")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the pattern from a file ('-' for stdin)")
	return cmd
}

func checkInput(cmd *cobra.Command, file string, args []string) (string, error) {
	switch {
	case file == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		return string(data), err
	case file != "":
		data, err := os.ReadFile(file)
		return string(data), err
	case len(args) == 1:
		return args[0], nil
	}
	return "", errors.New("a pattern argument or -f is required")
}
