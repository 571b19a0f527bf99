package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nedpals/davi-transit/keys"
	"github.com/nedpals/davi-transit/nfc"
)

func (a *app) newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "keys", Short: "Inspect the MIFARE Classic key file"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <tag-id>",
		Short: "Show which sector keys are known for a tag, without the key bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tagID, err := keys.ParseTagID(args[0])
			if err != nil {
				return err
			}
			store, err := a.keyStore()
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("no key file configured (set keys_file in the config file or pass --keys)")
			}

			cardKeys, err := store.Lookup(cmd.Context(), tagID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dict, ok := store.(keys.Dictionary); ok {
				fmt.Fprintf(out, "Dictionary keys: %d\n", len(dict.DictionaryKeys()))
			}
			if cardKeys == nil {
				fmt.Fprintf(out, "No keys for tag %s\n", nfc.BytesToHex(tagID))
				return nil
			}

			fmt.Fprintf(out, "Tag %s: %d sectors", nfc.BytesToHex(tagID), cardKeys.Len())
			if cardKeys.Description != "" {
				fmt.Fprintf(out, " (%s)", cardKeys.Description)
			}
			fmt.Fprintln(out)

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SECTOR\tKEY A\tKEY B")
			for i := 0; i < cardKeys.Len(); i++ {
				k := cardKeys.KeyForSector(i)
				fmt.Fprintf(tw, "%d\t%s\t%s\n", i, keyState(k.A), keyState(k.B))
			}
			return tw.Flush()
		},
	})
	return cmd
}

func keyState(k []byte) string {
	if len(k) == keys.KeyLength {
		return "set"
	}
	return "-"
}
