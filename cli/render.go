package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/nedpals/davi-transit/card"
	"github.com/nedpals/davi-transit/nfc"
	"github.com/nedpals/davi-transit/scan"
	"github.com/nedpals/davi-transit/transit"
)

const timeLayout = "2006-01-02 15:04"

type resultJSON struct {
	ScanID      *uuid.UUID        `json:"scanId,omitempty"`
	TagID       string            `json:"tagId"`
	CardType    card.CardType     `json:"cardType"`
	ScannedAt   time.Time         `json:"scannedAt"`
	Identity    *transit.Identity `json:"identity,omitempty"`
	Report      *transit.Report   `json:"report,omitempty"`
	DecodeError string            `json:"decodeError,omitempty"`
}

func printResult(w io.Writer, res *scan.Result, asJSON bool) error {
	if asJSON {
		out := resultJSON{
			TagID:     nfc.BytesToHex(res.Raw.TagID()),
			CardType:  res.Raw.CardType(),
			ScannedAt: res.Raw.ScannedAt(),
			Identity:  res.Identity,
			Report:    res.Report,
		}
		if res.ID != uuid.Nil {
			out.ScanID = &res.ID
		}
		if res.DecodeErr != nil {
			out.DecodeError = res.DecodeErr.Error()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if res.ID != uuid.Nil {
		fmt.Fprintf(tw, "Scan:\t%s\n", res.ID)
	}
	fmt.Fprintf(tw, "Tag:\t%s (%s)\n", nfc.BytesToHex(res.Raw.TagID()), res.Raw.CardType())
	fmt.Fprintf(tw, "Scanned:\t%s\n", res.Raw.ScannedAt().Local().Format(timeLayout))
	if res.DecodeErr != nil {
		fmt.Fprintf(tw, "Decode error:\t%v\n", res.DecodeErr)
	}
	if res.Identity == nil {
		fmt.Fprintf(tw, "Card:\tunidentified\n")
		return tw.Flush()
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return printReport(w, res.Report)
}

func printReport(w io.Writer, r *transit.Report) error {
	if r == nil {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Card:\t%s\n", r.CardName)
	if r.Serial != "" {
		fmt.Fprintf(tw, "Serial:\t%s\n", r.Serial)
	}
	if r.Balance != nil {
		fmt.Fprintf(tw, "Balance:\t%s\n", r.Balance)
	} else {
		fmt.Fprintf(tw, "Balance:\tunknown\n")
	}
	for _, item := range r.Info {
		fmt.Fprintf(tw, "%s:\t%s\n", item.Label, item.Value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Trips) > 0 {
		fmt.Fprintf(w, "\nTrips:\n")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, t := range r.Trips {
			fare := "-"
			if t.Fare != nil {
				fare = t.Fare.String()
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", t.Start.Local().Format(timeLayout), fare, t.Description())
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(r.Refills) > 0 {
		fmt.Fprintf(w, "\nRefills:\n")
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, rf := range r.Refills {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", rf.Time.Local().Format(timeLayout), rf.Amount.String(), rf.Agency)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(r.Subscriptions) > 0 {
		fmt.Fprintf(w, "\nSubscriptions:\n")
		for _, s := range r.Subscriptions {
			fmt.Fprintf(w, "  %s\n", s.Name)
		}
	}

	if r.HasUnknownStations {
		fmt.Fprintf(w, "\nSome stations are shown by number; no station database is bundled.\n")
	}
	return nil
}
