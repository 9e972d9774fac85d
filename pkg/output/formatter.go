package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/ritzau/node-composer/pkg/model"
)

// Startup describes the running editor.
type Startup struct {
	URL     string
	Backend string
	Model   string // Image model, empty for the placeholder backend
	Inbox   string // Empty when disabled
}

// PrintStartup prints the startup banner.
func PrintStartup(w io.Writer, s Startup) {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	bold.Fprintln(w, "Node Composer")
	bold.Fprintln(w, "=============")
	fmt.Fprint(w, "Editor:  ")
	cyan.Fprintln(w, s.URL)

	fmt.Fprint(w, "Backend: ")
	if s.Model != "" {
		fmt.Fprintf(w, "%s (%s)\n", s.Backend, s.Model)
	} else {
		yellow.Fprintf(w, "%s (offline images)\n", s.Backend)
	}

	if s.Inbox != "" {
		fmt.Fprintf(w, "Inbox:   %s\n", s.Inbox)
	}
	fmt.Fprintln(w)
}

// PrintSessionSummary prints what the session produced.
func PrintSessionSummary(w io.Writer, nodes []model.Node, conns []model.Connection, notices []model.Notice) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)

	counts := make(map[model.Kind]int)
	images := 0
	for _, n := range nodes {
		counts[n.Kind]++
		if n.Data.HasImage() {
			images++
		}
	}

	errs := 0
	for _, n := range notices {
		if n.Level == model.LevelError {
			errs++
		}
	}

	bold.Fprintln(w, "Session summary")
	for _, k := range model.Kinds {
		fmt.Fprintf(w, "  %-9s %d\n", k, counts[k])
	}
	fmt.Fprintf(w, "  %-9s %d\n", "links", len(conns))

	if images > 0 {
		green.Fprintf(w, "Images: %d\n", images)
	} else {
		fmt.Fprintf(w, "Images: 0\n")
	}
	if errs > 0 {
		red.Fprintf(w, "Errors: %d\n", errs)
	}
}
