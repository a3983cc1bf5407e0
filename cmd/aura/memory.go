package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/aura/pkg/memory"
)

// newSettingsCmd prints the companion identity, or saves a new one when
// --name or --voice is given.
func newSettingsCmd(rt *runtime) *cobra.Command {
	var name, voice string
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the companion's name and voice",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, rt)
			if err != nil {
				return err
			}
			defer shutdown(a)

			s, err := a.Settings(ctx)
			if err != nil {
				return err
			}
			if name != "" || voice != "" {
				if name != "" {
					s.BotName = strings.TrimSpace(name)
				}
				if voice != "" {
					s.VoiceName = memory.VoiceName(voice)
				}
				if err := a.Memory().SaveSettings(ctx, s); err != nil {
					return err
				}
			}
			fmt.Fprintf(rt.stdout, "name:  %s\nvoice: %s\n", s.BotName, s.VoiceName)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new companion name")
	cmd.Flags().StringVar(&voice, "voice", "", fmt.Sprintf("new voice, one of %v", memory.Voices))
	return cmd
}

// newFactsCmd lists the remembered facts and the interaction history.
func newFactsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "facts",
		Short: "List what the companion remembers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, rt)
			if err != nil {
				return err
			}
			defer shutdown(a)

			rec, err := a.Memory().Load(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(rt.stdout, "conversations: %d\n", rec.InteractionCount)
			if last := rec.LastInteractionTime(); !last.IsZero() {
				fmt.Fprintf(rt.stdout, "last talked:   %s\n", last.Format(time.DateTime))
			}
			if len(rec.Facts) == 0 {
				fmt.Fprintln(rt.stdout, "nothing remembered yet")
				return nil
			}
			for _, f := range rec.Facts {
				fmt.Fprintln(rt.stdout, "-", f)
			}
			return nil
		},
	}
}
