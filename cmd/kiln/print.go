// cmd/kiln/print.go
package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"kiln/internal/diff"
)

// printChanges renders a tree diff. withText additionally prints the
// line-level diff for modified text files; binary modifications only
// report metadata.
func printChanges(changes []diff.PathChange, withText bool) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	for _, c := range changes {
		switch c.Type {
		case diff.Added:
			fmt.Printf("%s %s\n", green("A"), c.Path)
		case diff.Removed:
			fmt.Printf("%s %s\n", red("D"), c.Path)
		case diff.Modified:
			fmt.Printf("%s %s", yellow("M"), c.Path)
			if c.Text == nil && c.OldEntry != nil && c.NewEntry != nil {
				fmt.Printf("  (binary, %d -> %d bytes)", c.OldEntry.Size, c.NewEntry.Size)
			}
			fmt.Println()
			if withText && c.Text != nil {
				printColoredDiff(c.Text.Format())
			}
		}
	}
}

func printColoredDiff(formatted string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	header := color.New(color.FgCyan)

	lines := strings.Split(formatted, "\n")
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}

		switch {
		case strings.HasPrefix(line, "@@"):
			header.Println(line)
		case strings.HasPrefix(line, "+"):
			added.Println(line)
		case strings.HasPrefix(line, "-"):
			removed.Println(line)
		default:
			fmt.Println(line)
		}
	}
}
