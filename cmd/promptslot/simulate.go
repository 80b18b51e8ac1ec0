package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/promptslot/internal/arbiter"
	"github.com/jmylchreest/promptslot/internal/capability"
	"github.com/jmylchreest/promptslot/internal/config"
	"github.com/jmylchreest/promptslot/internal/model"
	"github.com/jmylchreest/promptslot/internal/store"
	"github.com/jmylchreest/promptslot/internal/surface"
)

type simulateOptions struct {
	dbus      bool
	noJournal bool
	hold      bool
}

var simulateOpts simulateOptions

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a propose/claim/release scenario against a fresh arbiter",
	Long: `Run a scripted scenario against a fresh arbiter and print every transition:

  1. A notification is proposed, launched and claimed (ticket 1).
  2. A survey proposed while the slot is taken is dropped.
  3. The notification surface finishes and releases ticket 1.
  4. The survey is proposed again and claimed (ticket 2), answered, and its
     surface is recreated from saved state.
  5. The clock jumps past the stale lock timeout; a new proposal reclaims the
     abandoned slot (ticket 3) and the stale surface's release is ignored.

Events are appended to the journal unless --no-journal is given.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)

	simulateCmd.Flags().BoolVar(&simulateOpts.dbus, "dbus", false,
		"Only propose when a notification service owns the session bus name")
	simulateCmd.Flags().BoolVar(&simulateOpts.noJournal, "no-journal", false,
		"Do not record events to the journal")
	simulateCmd.Flags().BoolVar(&simulateOpts.hold, "hold", false,
		"Leave the final surface attached so its saved state can be inspected")
}

// simClock is a clock the scenario can move forward.
type simClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *simClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	return simulate(cmd.Context(), cmd.OutOrStdout(), cfg, logger, simulateOpts)
}

// simulate runs the scripted scenario against a fresh arbiter configured from
// f and prints each transition to w.
func simulate(ctx context.Context, w io.Writer, f *config.File, logger *slog.Logger, opts simulateOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	clock := &simClock{now: time.Now()}

	var (
		recorder    surface.EventRecorder
		surfaceOpts = []surface.Option{surface.WithLogger(logger)}
	)
	if !opts.noJournal {
		journal, err := store.OpenJournal(f.Arbiter.Journal())
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer journal.Close()
		recorder = journal
		surfaceOpts = append(surfaceOpts, surface.WithJournal(journal))
	}

	journalReclaim := surface.JournalReclaims(recorder, logger)
	arb := arbiter.New(
		arbiter.WithLogger(logger),
		arbiter.WithClock(clock.Now),
		arbiter.WithStaleLockTimeout(f.Arbiter.StaleLockTimeout.Duration()),
		arbiter.WithReclaimCallback(func(r arbiter.Reclaim) {
			step(w, warnStyle, "reclaimed", fmt.Sprintf("%s slot of ticket %d idle for %s", r.Phase, r.Ticket, r.Idle))
			journalReclaim(r)
		}),
	)

	var checker capability.Checker = capability.Static(true)
	if opts.dbus {
		checker = capability.NewDBusChecker(logger)
	}

	saved := store.NewSavedStateFile(f.Arbiter.SavedState())
	codec := f.Arbiter.Codec()
	surfaces := make(map[arbiter.Ticket]*surface.Surface)

	launcher := surface.LauncherFunc(func(_ context.Context, ticket arbiter.Ticket) error {
		s := surface.New(arb, saved, codec, surfaceOpts...)
		display, err := s.Attach(ticket)
		if err != nil {
			return err
		}
		surfaces[ticket] = s
		step(w, okStyle, "claimed", fmt.Sprintf("ticket %d shows %s for %s", ticket, display.State.VariantTag(), display.Identity))
		return nil
	})
	proposer := surface.NewProposer(arb, checker, launcher, surfaceOpts...)

	propose := func(state model.DisplayState, identity model.Identity) (arbiter.Ticket, error) {
		ticket, ok, err := proposer.Propose(ctx, state, identity)
		switch {
		case err != nil:
			step(w, denyStyle, "failed", err.Error())
		case ok:
			step(w, okStyle, "proposed", fmt.Sprintf("%s accepted as ticket %d", state.VariantTag(), ticket))
		default:
			step(w, denyStyle, "dropped", fmt.Sprintf("%s (slot %s)", state.VariantTag(), arb.State()))
		}
		return ticket, err
	}
	finish := func(ticket arbiter.Ticket) error {
		s, ok := surfaces[ticket]
		if !ok {
			return nil
		}
		delete(surfaces, ticket)
		owned := arb.Snapshot().Owner == ticket
		if err := s.Finish(); err != nil {
			return err
		}
		if owned {
			step(w, okStyle, "released", fmt.Sprintf("ticket %d", ticket))
		} else {
			step(w, denyStyle, "ignored", fmt.Sprintf("release from ticket %d, slot now owned by %d", ticket, arb.Snapshot().Owner))
		}
		return nil
	}

	alice := model.Identity{DistinctID: "alice", Token: "sim-project-token"}
	bob := model.Identity{DistinctID: "bob", Token: "sim-project-token"}

	fmt.Fprintln(w, headerStyle.Render("Simulating display arbitration"))
	printField(w, "Stale lock timeout", arb.StaleLockTimeout())
	fmt.Fprintln(w)

	first, err := propose(model.NewNotificationState(model.Content{ID: "welcome"}, 0x3b82f6), alice)
	if err != nil {
		return err
	}
	if first == arbiter.NoTicket {
		return errors.New("overlay unavailable, nothing to simulate")
	}

	survey := model.NewSurveyState(model.Content{ID: "nps"}, 0x10b981, backgroundImage(), true)
	if _, err := propose(survey, bob); err != nil {
		return err
	}
	if err := finish(first); err != nil {
		return err
	}

	second, err := propose(survey, bob)
	if err != nil {
		return err
	}
	survey.Answers().Put(0, "9")
	survey.Answers().Put(1, "Fast and quiet")

	if s, ok := surfaces[second]; ok {
		if err := s.Checkpoint(); err != nil {
			return fmt.Errorf("checkpoint surface: %w", err)
		}
	}

	// Rebuild the survey surface from disk, as after a rotation
	restored := surface.New(arb, saved, codec, surfaceOpts...)
	display, err := restored.Restore()
	if err != nil {
		return fmt.Errorf("restore surface: %w", err)
	}
	surfaces[second] = restored
	step(w, okStyle, "restored", fmt.Sprintf("ticket %d from %s", restored.Ticket(), saved.Path()))
	if s, ok := display.State.(*model.SurveyState); ok {
		for _, idx := range s.Answers().Indexes() {
			answer, _ := s.Answers().Get(idx)
			printField(w, fmt.Sprintf("answer[%d]", idx), answer)
		}
	}

	clock.Advance(arb.StaleLockTimeout() + time.Minute)
	step(w, warnStyle, "clock", fmt.Sprintf("advanced past %s", arb.StaleLockTimeout()))

	third, err := propose(model.NewNotificationState(model.Content{ID: "release-notes"}, 0xf59e0b), alice)
	if err != nil {
		return err
	}
	if err := finish(second); err != nil {
		return err
	}

	if opts.hold {
		step(w, warnStyle, "holding", fmt.Sprintf("ticket %d, saved state in %s", third, saved.Path()))
		return nil
	}
	if err := finish(third); err != nil {
		return err
	}

	fmt.Fprintln(w)
	snap := arb.Snapshot()
	printField(w, "Final state", snap.State)
	printField(w, "Tickets minted", snap.LastTicket)
	printField(w, "Reclaims", snap.ReclaimsTotal)
	return nil
}

func step(w io.Writer, style lipgloss.Style, label, detail string) {
	fmt.Fprintf(w, "%s %s\n", style.Render(fmt.Sprintf("%-9s", label)), detail)
}

// backgroundImage returns a small gradient standing in for a blurred screenshot.
func backgroundImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 18))
	for y := 0; y < 18; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 14), B: 96, A: 255})
		}
	}
	return img
}
