package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	coolStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
)

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index and credential health",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withApp(*configPath, func(a *app) error {
				st := a.orch.Status()

				fmt.Println(headingStyle.Render("Index"))
				fmt.Printf("  documents:    %d\n", st.Index.DocCount)
				if !st.Index.LastRebuild.IsZero() {
					fmt.Printf("  last rebuild: %s\n", st.Index.LastRebuild.Format(time.RFC3339))
				}

				fmt.Println(headingStyle.Render("Credentials"))
				now := time.Now()
				for _, c := range st.Credentials {
					state := okStyle.Render("ready")
					if c.Cooling {
						state = coolStyle.Render("cooling until " + c.CooldownUntil.Format("15:04:05"))
					}
					fmt.Printf("  %-8s %s", c.KeySuffix, state)
					if c.Failures > 0 {
						fmt.Printf("  (%d consecutive failures)", c.Failures)
					}
					if !c.LastUsedAt.IsZero() {
						fmt.Printf("  last used %s ago", now.Sub(c.LastUsedAt).Round(time.Second))
					}
					fmt.Println()
				}
				return nil
			})
		},
	}
}

func newSessionsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*configPath, func(a *app) error {
				summaries, err := a.orch.ListSessions(cmd.Context(), 0, 0)
				if err != nil {
					return err
				}
				if len(summaries) == 0 {
					fmt.Println("no sessions")
					return nil
				}
				for _, s := range summaries {
					fmt.Printf("%s  %3d turns  %s\n", s.SessionID, s.TurnCount, faintStyle.Render(s.Preview))
				}
				return nil
			})
		},
	}
}

func newRebuildCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the embedding index from the corpus directory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := wireApp(*configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.orch.RebuildIndex(cmd.Context()); err != nil {
				return err
			}
			st := a.orch.Status()
			fmt.Printf("indexed %d chunks from %s\n", st.Index.DocCount, a.cfg.CorpusDir)
			return nil
		},
	}
}
