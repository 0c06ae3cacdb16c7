// Package report renders reconciliation results on the console and as spreadsheets.
package report

import (
	"fmt"
	"io"
	"os"

	"acuvalidator/internal/recon"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Printer writes human-readable output. Colors are used only on terminals.
type Printer struct {
	out   io.Writer
	good  *color.Color
	warn  *color.Color
	alert *color.Color
}

func NewPrinter(out io.Writer) *Printer {
	p := &Printer{
		out:   out,
		good:  color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		alert: color.New(color.FgRed),
	}
	on := false
	if f, ok := out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		p.out = colorable.NewColorable(f)
		on = os.Getenv("NO_COLOR") == ""
	}
	p.SetColor(on)
	return p
}

// SetColor forces colored output on or off.
func (p *Printer) SetColor(on bool) {
	for _, c := range []*color.Color{p.good, p.warn, p.alert} {
		if on {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

func (p *Printer) println(c *color.Color, format string, args ...interface{}) {
	c.Fprintln(p.out, fmt.Sprintf(format, args...))
}

// Report prints the success line or the list of possibly missing fields.
func (p *Printer) Report(r recon.Report) {
	if r.Clean() {
		p.println(p.good, "Everything looks good.")
		return
	}
	p.println(p.alert, "Warning: Possible missing field:")
	for _, m := range r.Missing {
		p.println(p.alert, "%s", m)
	}
}

func (p *Printer) IgnoreFileMissing() {
	p.println(p.warn, "Warning: Ignore file was not found")
}

func (p *Printer) Error(err error) {
	p.println(p.alert, "Error: %v", err)
}
