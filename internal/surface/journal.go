package surface

import (
	"log/slog"

	"github.com/jmylchreest/promptslot/internal/arbiter"
	"github.com/jmylchreest/promptslot/internal/model"
	"github.com/jmylchreest/promptslot/internal/store"
)

// EventRecorder receives arbitration events. *store.Journal implements it.
type EventRecorder interface {
	Append(e store.Event) (store.Event, error)
}

// record appends e if rec is set. Failures are logged, never returned.
func record(rec EventRecorder, logger *slog.Logger, e store.Event) {
	if rec == nil {
		return
	}
	if _, err := rec.Append(e); err != nil {
		logger.Warn("failed to record arbitration event", "kind", e.Kind, "ticket", e.Ticket, "error", err)
	}
}

func displayEvent(kind store.EventKind, ticket arbiter.Ticket, u *model.UpdateDisplayState) store.Event {
	e := store.Event{Kind: kind, Ticket: ticket}
	if u != nil {
		e.Identity = u.Identity.String()
		if u.HasState() {
			e.Variant = u.State.VariantTag().String()
		}
	}
	return e
}

// JournalReclaims returns an arbiter reclaim callback that records every
// force-cleared slot.
func JournalReclaims(rec EventRecorder, logger *slog.Logger) func(arbiter.Reclaim) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(r arbiter.Reclaim) {
		e := displayEvent(store.EventReclaimed, r.Ticket, r.Display)
		e.Owner = r.Owner
		e.Reason = string(r.Phase) + " idle " + r.Idle.String()
		record(rec, logger, e)
	}
}
