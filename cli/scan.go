package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/scan"
	"github.com/nedpals/davi-transit/store"
)

type scanFlags struct {
	save bool
	json bool
	wait time.Duration
}

func (a *app) newScanCmd() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Read one card and print its report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.scanOne(cmd.Context(), f)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res, f.json)
		},
	}
	cmd.Flags().BoolVar(&f.save, "save", false, "archive the raw card")
	cmd.Flags().BoolVar(&f.json, "json", false, "print JSON")
	cmd.Flags().DurationVar(&f.wait, "wait", 30*time.Second, "how long to wait for a card")
	return cmd
}

func (a *app) newDumpCmd() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "dump <file.json>",
		Short: "Read one card and write its raw capture to a file (- for stdout)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.scanOne(cmd.Context(), f)
			if err != nil {
				return err
			}
			data, err := card.MarshalIndent(res.Raw)
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if args[0] == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return fmt.Errorf("write dump: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s card %X to %s\n", res.Raw.CardType(), res.Raw.TagID(), args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&f.save, "save", false, "also archive the raw card")
	cmd.Flags().DurationVar(&f.wait, "wait", 30*time.Second, "how long to wait for a card")
	return cmd
}

func (a *app) newWatchCmd() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Scan every card presented until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, closeArchive, err := a.prepareScan(f.save)
			if err != nil {
				return err
			}
			defer closeArchive()

			manager, err := a.manager()
			if err != nil {
				return err
			}

			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			fmt.Fprintln(errOut, "Waiting for cards, press Ctrl+C to stop")
			return s.Watch(cmd.Context(), manager, a.cfg.Device, func(res *scan.Result, err error) {
				if err != nil {
					fmt.Fprintf(errOut, "Scan failed: %v\n", err)
					return
				}
				if err := printResult(out, res, f.json); err != nil {
					fmt.Fprintf(errOut, "Print failed: %v\n", err)
				}
				if !f.json {
					fmt.Fprintln(out)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&f.save, "save", false, "archive every raw card")
	cmd.Flags().BoolVar(&f.json, "json", false, "print one JSON document per card")
	return cmd
}

// prepareScan builds a Scanner, opening the archive when save is set. The
// returned func closes it.
func (a *app) prepareScan(save bool) (*scan.Scanner, func(), error) {
	var archive *store.SQLite
	closeArchive := func() {}
	if save {
		var err error
		if archive, err = a.openArchive(); err != nil {
			return nil, nil, err
		}
		closeArchive = func() { archive.Close() }
	}

	s, err := a.scanner(archive)
	if err != nil {
		closeArchive()
		return nil, nil, err
	}
	return s, closeArchive, nil
}

// scanOne waits up to f.wait for a card and scans it.
func (a *app) scanOne(ctx context.Context, f scanFlags) (*scan.Result, error) {
	s, closeArchive, err := a.prepareScan(f.save)
	if err != nil {
		return nil, err
	}
	defer closeArchive()

	manager, err := a.manager()
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, f.wait)
	defer cancel()

	var (
		res     *scan.Result
		scanErr error
		got     bool
	)
	err = s.Watch(waitCtx, manager, a.cfg.Device, func(r *scan.Result, err error) {
		if got {
			return
		}
		res, scanErr, got = r, err, true
		cancel()
	})
	switch {
	case err != nil:
		return nil, err
	case got:
		return res, scanErr
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, fmt.Errorf("no card presented within %s", f.wait)
	}
}
