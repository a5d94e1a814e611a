package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quotecraft/drew"
	"github.com/quotecraft/drew/internal/presentation/graph"
	"github.com/quotecraft/drew/pkg/domain"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the conversation machine as a Mermaid diagram",
	Long: `Prints the transition table as a Mermaid flowchart (graph TD). Use --current
and --visited to highlight a position, or --conversation to highlight where a
stored conversation stands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		current, _ := cmd.Flags().GetString("current")
		visited, _ := cmd.Flags().GetStringSlice("visited")
		convID, _ := cmd.Flags().GetString("conversation")

		overlay, err := parseOverlay(current, visited)
		if err != nil {
			return err
		}

		if convID != "" {
			a, err := buildApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			conv, err := a.sessions.Load(cmd.Context(), convID)
			if err != nil {
				return fmt.Errorf("conversation %q: %w", convID, err)
			}
			if overlay == nil {
				overlay = &graph.GraphOverlay{}
			}
			overlay.CurrentState = conv.State
		}

		engine, err := drew.New(drew.WithLogger(logger))
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(engine.Describe(), overlay))
		return nil
	},
}

func parseOverlay(current string, visited []string) (*graph.GraphOverlay, error) {
	if current == "" && len(visited) == 0 {
		return nil, nil
	}
	overlay := &graph.GraphOverlay{CurrentState: domain.ConversationState(current)}
	if current != "" && !overlay.CurrentState.Valid() {
		return nil, fmt.Errorf("--current: %w: %q", domain.ErrInvalidState, current)
	}
	for _, v := range visited {
		s := domain.ConversationState(v)
		if !s.Valid() {
			return nil, fmt.Errorf("--visited: %w: %q", domain.ErrInvalidState, v)
		}
		overlay.VisitedStates = append(overlay.VisitedStates, s)
	}
	return overlay, nil
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("current", "", "State to highlight as current")
	graphCmd.Flags().StringSlice("visited", nil, "States to highlight as visited")
	graphCmd.Flags().String("conversation", "", "Highlight the current state of a stored conversation")
}
