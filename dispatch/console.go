package dispatch

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	askdir "github.com/Paranoid-AF/askdir"
)

const clearScreen = "\033[2J\033[H"

// separator follows every answer so consecutive answers stay apart when the
// screen is not cleared.
var separator = strings.Repeat("\r\n", 10)

// console renders dispatch progress and answers for a human reader.
type console struct {
	w     io.Writer
	clear bool
}

func newConsole(w io.Writer, clear bool) *console {
	return &console{w: w, clear: clear && isTerminal(w)}
}

// isTerminal reports whether w is a file attached to a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *console) sending(path, model string) {
	fmt.Fprintf(c.w, "Sending %s to %s ...\n", path, model)
}

func (c *console) answer(a *askdir.Answer, cost float64) {
	if c.clear {
		io.WriteString(c.w, clearScreen)
	}
	fmt.Fprintln(c.w, a.Content)
	fmt.Fprintf(c.w, "tokens: %d/%d\n", a.Usage.PromptTokens, a.Usage.CompletionTokens)
	fmt.Fprintf(c.w, "$%s\n", FormatCost(cost))
	fmt.Fprintln(c.w, separator)
}

func (c *console) failure(model string, err error) {
	fmt.Fprintf(c.w, "Error sending image to %s: %v\n", model, err)
}

// FormatCost formats a dollar amount with the fewest digits that represent it.
func FormatCost(cost float64) string {
	return strconv.FormatFloat(cost, 'f', -1, 64)
}
