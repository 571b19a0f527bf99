package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nedpals/davi-transit/card"
)

func (a *app) newParseCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "parse <file.json>",
		Short: "Decode a raw card written by dump (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read raw card: %w", err)
			}

			raw, err := card.Unmarshal(data)
			if err != nil {
				return err
			}
			s, err := a.scanner(nil)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), s.Decode(raw), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
