package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/promptslot/internal/store"
)

var journalOpts struct {
	limit int
	kind  string
	json  bool
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List recorded arbitration events",
	Long: `List arbitration events from the journal, oldest first.

Event kinds: proposed, dropped, claimed, claim_denied, released,
release_ignored, reclaimed.`,
	RunE: runJournal,
}

func init() {
	rootCmd.AddCommand(journalCmd)

	journalCmd.Flags().IntVarP(&journalOpts.limit, "limit", "n", 20,
		"Show only the most recent N events (0 for all)")
	journalCmd.Flags().StringVar(&journalOpts.kind, "kind", "",
		"Only show events of this kind")
	journalCmd.Flags().BoolVar(&journalOpts.json, "json", false,
		"Output events as JSON lines")
}

func runJournal(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	path := cfg.Arbiter.Journal()
	events, err := store.ReadJournal(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(w, "No journal at %s\n", path)
			return nil
		}
		return err
	}

	events = filterEvents(events, store.EventKind(journalOpts.kind), journalOpts.limit)

	if journalOpts.json {
		encoder := json.NewEncoder(w)
		for _, e := range events {
			if err := encoder.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	for _, e := range events {
		line := fmt.Sprintf("%s %s ticket=%d",
			labelStyle.Render(fmt.Sprintf("%-14s", humanize.Time(e.Time()))),
			kindStyle(e.Kind).Render(fmt.Sprintf("%-15s", e.Kind)),
			e.Ticket)
		if e.Owner != 0 {
			line += fmt.Sprintf(" owner=%d", e.Owner)
		}
		if e.Variant != "" {
			line += " " + e.Variant
		}
		if e.Identity != "" {
			line += " " + e.Identity
		}
		if e.Reason != "" {
			line += labelStyle.Render(" (" + e.Reason + ")")
		}
		fmt.Fprintln(w, line)
	}
	return nil
}

// filterEvents keeps events of kind (all when empty), then the last limit of them.
func filterEvents(events []store.Event, kind store.EventKind, limit int) []store.Event {
	if kind != "" {
		filtered := events[:0:0]
		for _, e := range events {
			if e.Kind == kind {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events
}

func kindStyle(kind store.EventKind) lipgloss.Style {
	switch kind {
	case store.EventProposed, store.EventClaimed, store.EventReleased:
		return okStyle
	case store.EventReclaimed:
		return warnStyle
	default:
		return denyStyle
	}
}
