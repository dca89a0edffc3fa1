package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
)

// printJSON prints v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printError prints an error message.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s\n", colorRed("Error:"), err.Error())
}

// newTable creates a new tabwriter for formatted output.
func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// printTableHeader prints a bold header row.
func printTableHeader(w *tabwriter.Writer, columns ...string) {
	for i, col := range columns {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, colorBold(col))
	}
	fmt.Fprintln(w)
}

// Terminal colors

func colorRed(s string) string {
	return colorize("31", s)
}

func colorGreen(s string) string {
	return colorize("32", s)
}

func colorYellow(s string) string {
	return colorize("33", s)
}

func colorBold(s string) string {
	return colorize("1", s)
}

func colorize(code, s string) string {
	if !isTTY() {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

func isTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
