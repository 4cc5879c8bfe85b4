package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gridexplore/explorer/pkg/models"
	"golang.org/x/term"
)

// printer writes a directory forest as an indented tree. Box drawing and
// name truncation are used only when writing to a terminal.
type printer struct {
	w        io.Writer
	fancy    bool
	width    int
	all      bool
	expanded map[string]bool
}

func newPrinter(w io.Writer) *printer {
	p := &printer{w: w}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fancy = true
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			p.width = width
		}
	}
	return p
}

func (p *printer) printForest(roots []*models.DirectoryNode) {
	if len(roots) == 0 {
		fmt.Fprintln(p.w, "(no directories)")
		return
	}
	for i, r := range roots {
		p.printNode(r, "", i == len(roots)-1, true)
	}
}

func (p *printer) printNode(n *models.DirectoryNode, prefix string, last, top bool) {
	branch, indent := "", ""
	if !top {
		switch {
		case !p.fancy:
			branch, indent = "- ", "  "
		case last:
			branch, indent = "└── ", "    "
		default:
			branch, indent = "├── ", "│   "
		}
	}

	line := prefix + branch + p.label(n)
	if p.width > 0 && len([]rune(line)) > p.width {
		line = string([]rune(line)[:p.width-1]) + "…"
	}
	fmt.Fprintln(p.w, line)

	if !p.all && !p.expanded[n.ElementUUID] {
		return
	}
	next := prefix + indent
	for i, c := range n.Children {
		p.printNode(c, next, i == len(n.Children)-1, false)
	}
}

func (p *printer) label(n *models.DirectoryNode) string {
	marker := "+"
	switch {
	case n.SubdirectoriesCount == 0:
		marker = " "
	case p.all || p.expanded[n.ElementUUID]:
		marker = "-"
	}
	return fmt.Sprintf("[%s] %s  %s", marker, n.ElementName, n.ElementUUID)
}

// formatBreadcrumb joins directory names from the top-most ancestor down.
func formatBreadcrumb(path []*models.DirectoryNode) string {
	names := make([]string, len(path))
	for i, n := range path {
		names[i] = n.ElementName
	}
	return strings.Join(names, " / ")
}
