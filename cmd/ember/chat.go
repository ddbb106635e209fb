package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("69")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	faintStyle     = lipgloss.NewStyle().Faint(true)
)

func newChatCmd(configPath *string) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(*configPath, func(a *app) error {
				if sessionID == "" {
					sessionID = uuid.NewString()
				}
				return runChat(cmd.Context(), a, sessionID)
			})
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "resume an existing session")
	return cmd
}

func runChat(ctx context.Context, a *app, sessionID string) error {
	fmt.Println(faintStyle.Render("session " + sessionID + " (exit or Ctrl-D to quit)"))

	// Replay the tail of a resumed conversation.
	if history, err := a.orch.History(ctx, sessionID, 6, 0); err == nil {
		for _, turn := range history {
			fmt.Printf("%s %s\n", faintStyle.Render(string(turn.Role)+":"), turn.Content)
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print(promptStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		turn, err := a.orch.HandleTurn(ctx, sessionID, line)
		if err != nil {
			fmt.Println(faintStyle.Render("error: " + err.Error()))
			continue
		}
		fmt.Println(assistantStyle.Render(turn.Content))
	}
}
