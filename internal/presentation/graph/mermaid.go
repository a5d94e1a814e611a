package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/quotecraft/drew/pkg/domain"
)

// GraphOverlay contains conversation data to highlight on the graph.
type GraphOverlay struct {
	VisitedStates []domain.ConversationState
	CurrentState  domain.ConversationState
}

// GenerateMermaid produces a Mermaid flowchart from the transition table.
// It applies semantic styling:
// - greeting: ((Circle))
// - done: (((Double circle)))
// - clarify: {{Hexagon}}
// - default: [Rectangle]
//
// Event rows are solid arrows labelled with the event (and guard). Automatic
// rows are dotted. Wildcard rows are expanded to every state except the target.
func GenerateMermaid(rows []domain.Transition, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, s := range domain.AllStates() {
		opener, closer := "[", "]"
		switch s {
		case domain.StateGreeting:
			opener, closer = "((", "))"
		case domain.StateDone:
			opener, closer = "(((", ")))"
		case domain.StateClarify:
			opener, closer = "{{", "}}"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", s, opener, s, closer)
	}

	seen := make(map[string]bool)
	for _, row := range rows {
		sources := []domain.ConversationState{row.From}
		if row.From == domain.AnyState {
			sources = slices.DeleteFunc(domain.AllStates(), func(s domain.ConversationState) bool { return s == row.To })
		}
		for _, from := range sources {
			line := edge(from, row)
			if seen[line] {
				continue
			}
			seen[line] = true
			sb.WriteString(line)
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for contrast regardless of theme
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visited := make(map[domain.ConversationState]bool)
		for _, s := range overlay.VisitedStates {
			if s.Valid() && !visited[s] {
				visited[s] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", s)
			}
		}
		if overlay.CurrentState.Valid() {
			fmt.Fprintf(&sb, "    class %s current;\n", overlay.CurrentState)
		}
	}
	return sb.String()
}

func edge(from domain.ConversationState, row domain.Transition) string {
	label := string(row.On)
	if row.Guard != "" {
		if label != "" {
			label += " "
		}
		label += "[" + row.Guard + "]"
	}
	label = strings.ReplaceAll(label, "\"", "'")

	if row.Always {
		if label == "" {
			return fmt.Sprintf("    %s -.-> %s\n", from, row.To)
		}
		return fmt.Sprintf("    %s -. \"%s\" .-> %s\n", from, label, row.To)
	}
	if label == "" {
		return fmt.Sprintf("    %s --> %s\n", from, row.To)
	}
	return fmt.Sprintf("    %s -- \"%s\" --> %s\n", from, label, row.To)
}
