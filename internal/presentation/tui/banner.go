package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	` ____                     `,
	`|  _ \ _ __ _____      __ `,
	`| | | | '__/ _ \ \ /\ / / `,
	`| |_| | | |  __/\ V  V /  `,
	`|____/|_|  \___| \_/\_/   `,
}

var bannerColors = []string{"#fbbf24", "#f59e0b", "#f97316", "#ea580c", "#c2410c"}

// PrintBanner writes the ASCII banner and the version, colored when w is a
// color-capable terminal.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, out.String(line).Foreground(out.Color(bannerColors[i])))
	}
	fmt.Fprintln(w, out.String("  quote builder "+strings.TrimSpace(version)).Faint())
	fmt.Fprintln(w)
}
