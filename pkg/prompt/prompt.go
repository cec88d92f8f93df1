package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Confirm prints a highlighted warning and question, then reads one line from in.
// Only the exact answer "yes" (case-insensitive, surrounding whitespace ignored) confirms.
// Share one reader between calls, so that buffered answers aren't lost.
func Confirm(in *bufio.Reader, out io.Writer, warning, question string) bool {
	if warning != "" {
		fmt.Fprintln(out, color.New(color.FgYellow, color.Bold).Sprint(warning))
	}
	fmt.Fprintf(out, "%v Type 'yes' to continue: ", question)
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(out)
		return false
	}
	ok := strings.EqualFold(strings.TrimSpace(line), "yes")
	if !ok {
		fmt.Fprintln(out, color.RedString("Aborted"))
	}
	return ok
}
