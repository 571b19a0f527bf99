package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nedpals/davi-transit/store"
)

func (a *app) newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "history", Short: "Browse archived scans"}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List archived scans, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			archive, err := a.openArchive()
			if err != nil {
				return err
			}
			defer archive.Close()

			scans, err := archive.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(scans) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No archived scans")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSCANNED\tTYPE\tTAG")
			for _, s := range scans {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.ScannedAt.Local().Format(timeLayout), s.CardType, s.TagID)
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of scans (0 for all)")

	var asJSON bool
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Decode an archived scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseScanID(args[0])
			if err != nil {
				return err
			}
			archive, err := a.openArchive()
			if err != nil {
				return err
			}
			defer archive.Close()

			raw, err := archive.Get(cmd.Context(), id)
			if err != nil {
				return notFound(id, err)
			}
			s, err := a.scanner(nil)
			if err != nil {
				return err
			}
			res := s.Decode(raw)
			res.ID = id
			return printResult(cmd.OutOrStdout(), res, asJSON)
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an archived scan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseScanID(args[0])
			if err != nil {
				return err
			}
			archive, err := a.openArchive()
			if err != nil {
				return err
			}
			defer archive.Close()

			if err := archive.Delete(cmd.Context(), id); err != nil {
				return notFound(id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func parseScanID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid scan id %q: %w", s, err)
	}
	return id, nil
}

func notFound(id uuid.UUID, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("scan %s: %w", id, err)
	}
	return err
}
