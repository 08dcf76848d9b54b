package codec

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"netonboard/internal/domain"
)

// TextCodec renders results for a terminal
type TextCodec struct {
	ok, failed, created, updated, dim *color.Color
}

// NewTextCodec creates a text renderer. Colors are applied only when
// colorize is set.
func NewTextCodec(colorize bool) *TextCodec {
	c := &TextCodec{
		ok:      color.New(color.FgGreen, color.Bold),
		failed:  color.New(color.FgRed, color.Bold),
		created: color.New(color.FgGreen),
		updated: color.New(color.FgYellow),
		dim:     color.New(color.Faint),
	}
	for _, col := range []*color.Color{c.ok, c.failed, c.created, c.updated, c.dim} {
		if colorize {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}
	return c
}

// Format returns the codec format identifier
func (c *TextCodec) Format() string {
	return "text"
}

// Export writes one block per result
func (c *TextCodec) Export(results []*domain.OnboardingResult, w io.Writer) error {
	var succeeded int
	for _, res := range results {
		if res.Succeeded() {
			succeeded++
		}
		if err := c.writeResult(w, res); err != nil {
			return err
		}
	}

	if len(results) > 1 {
		_, err := fmt.Fprintf(w, "%d/%d devices onboarded\n", succeeded, len(results))
		return err
	}
	return nil
}

func (c *TextCodec) writeResult(w io.Writer, res *domain.OnboardingResult) error {
	var b strings.Builder

	if res.Succeeded() {
		fmt.Fprintf(&b, "%s %s", c.ok.Sprint("OK"), res.Address)
		if res.Hostname != "" {
			fmt.Fprintf(&b, " (%s, %s)", res.Hostname, res.Driver)
		}
	} else {
		fmt.Fprintf(&b, "%s %s: %s", c.failed.Sprint("FAILED"), res.Address, res.ErrorKind)
	}
	fmt.Fprintf(&b, " %s\n", c.dim.Sprintf("attempts=%d duration=%s", res.Attempts, res.FinishedAt.Sub(res.StartedAt).Round(1e6)))

	if res.Error != "" {
		fmt.Fprintf(&b, "  %s\n", res.Error)
	}

	if res.Succeeded() && len(res.Changes) == 0 {
		fmt.Fprintf(&b, "  %s\n", c.dim.Sprint("no changes"))
	}
	for _, ch := range res.Changes {
		switch ch.Action {
		case domain.ActionCreated:
			fmt.Fprintf(&b, "  %s %s %s\n", c.created.Sprint("+"), ch.Kind, ch.Name)
		default:
			fmt.Fprintf(&b, "  %s %s %s [%s]\n", c.updated.Sprint("~"), ch.Kind, ch.Name, strings.Join(ch.Changed, ","))
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
