package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/promptslot/internal/model"
	"github.com/jmylchreest/promptslot/internal/store"
)

var savedCmd = &cobra.Command{
	Use:   "saved",
	Short: "Inspect saved presentation surface state",
}

var savedShowCmd = &cobra.Command{
	Use:   "show [file]",
	Short: "Decode and print a saved surface state",
	Long: `Decode a saved surface state file and print the display it holds.

Defaults to the saved state path from the config file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSavedShow,
}

func init() {
	rootCmd.AddCommand(savedCmd)
	savedCmd.AddCommand(savedShowCmd)
}

func runSavedShow(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	path := cfg.Arbiter.SavedState()
	if len(args) > 0 {
		path = args[0]
	}

	state, err := store.NewSavedStateFile(path).Load()
	if err != nil {
		return err
	}
	if state == nil {
		fmt.Fprintf(w, "No saved state at %s\n", path)
		return nil
	}

	display, err := model.Deserialize(state.Envelope, cfg.Arbiter.Codec())
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}

	fmt.Fprintln(w, headerStyle.Render(display.State.VariantTag().String()))
	printField(w, "File", path)
	printField(w, "Ticket", state.Ticket)
	printField(w, "Saved", humanize.Time(state.SavedTime()))
	printField(w, "Identity", display.Identity)
	printField(w, "Highlight", fmt.Sprintf("#%06x", display.State.HighlightColor()))

	switch s := display.State.(type) {
	case *model.NotificationState:
		printField(w, "Notification", s.Notification().ID)
	case *model.SurveyState:
		printField(w, "Survey", s.Survey().ID)
		printField(w, "Ask first", s.ShowAskDialog())
		if bg := s.Background(); bg != nil {
			size := bg.Bounds().Size()
			printField(w, "Background", fmt.Sprintf("%dx%d (%s encoded)", size.X, size.Y,
				humanize.Bytes(uint64(len(state.Envelope.DisplayState.Background)))))
		}
		for _, idx := range s.Answers().Indexes() {
			answer, _ := s.Answers().Get(idx)
			printField(w, fmt.Sprintf("Answer %d", idx), answer)
		}
	}
	return nil
}
