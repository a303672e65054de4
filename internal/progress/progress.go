package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

const (
	barWidth     = 32
	redrawPeriod = 100 * time.Millisecond
)

// Reporter prints human-readable step and transfer progress. Redraws in
// place only when the output is a terminal.
type Reporter struct {
	out io.Writer
	tty bool
}

func New(out io.Writer) *Reporter {
	if out == nil {
		out = io.Discard
	}
	tty := false
	if f, ok := out.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Reporter{out: out, tty: tty}
}

// Discard returns a reporter that prints nothing.
func Discard() *Reporter { return New(io.Discard) }

// Step runs fn under a labelled progress line and reports how it ended.
func (r *Reporter) Step(msg string, fn func() error) error {
	if r == nil {
		return fn()
	}
	if r.tty {
		fmt.Fprintf(r.out, "  ∙∙∙   %s", msg)
	}
	err := fn()
	if r.tty {
		fmt.Fprint(r.out, "\r\033[K")
	}
	if err != nil {
		fmt.Fprintf(r.out, "  ✗     Failed - %s\n", msg)
		return err
	}
	fmt.Fprintf(r.out, "  ●     Done - %s\n", msg)
	return nil
}

// Line prints an indented message.
func (r *Reporter) Line(format string, args ...any) {
	if r == nil {
		return
	}
	fmt.Fprintf(r.out, "        "+format+"\n", args...)
}

// Transfer starts a byte progress bar for total bytes.
func (r *Reporter) Transfer(label string, total int64) *Bar {
	b := &Bar{r: r, label: label, total: total, started: time.Now()}
	if r != nil {
		fmt.Fprintf(r.out, "  ●     %s\n", label)
	}
	return b
}

type Bar struct {
	r         *Reporter
	label     string
	total     int64
	done      int64
	started   time.Time
	lastDraw  time.Time
	milestone int
}

// Add records n more transferred bytes.
func (b *Bar) Add(n int) {
	b.done += int64(n)
	b.draw(false)
}

func (b *Bar) Done() int64 { return b.done }

// Finish draws the final state and ends the bar's line.
func (b *Bar) Finish(err error) {
	if b.r == nil {
		return
	}
	b.draw(true)
	if b.r.tty {
		fmt.Fprintln(b.r.out)
	}
	if err != nil {
		fmt.Fprintf(b.r.out, "  ✗     Failed - %s\n", b.label)
		return
	}
	fmt.Fprintf(b.r.out, "  ●     Done - %s (%s in %s)\n", b.label, humanize.IBytes(uint64(b.done)), time.Since(b.started).Round(time.Millisecond))
}

// Reader wraps rd so every read advances the bar.
func (b *Bar) Reader(rd io.Reader) io.Reader {
	return &countingReader{rd: rd, bar: b}
}

func (b *Bar) draw(final bool) {
	if b.r == nil {
		return
	}
	if b.r.tty {
		now := time.Now()
		if !final && now.Sub(b.lastDraw) < redrawPeriod {
			return
		}
		b.lastDraw = now
		fmt.Fprintf(b.r.out, "\r\033[K  [%s] %s/%s", b.gauge(), humanize.IBytes(uint64(b.done)), humanize.IBytes(uint64(b.total)))
		return
	}
	if b.total <= 0 {
		return
	}
	pct := int(b.done * 100 / b.total)
	for b.milestone+25 <= pct && b.milestone < 100 {
		b.milestone += 25
		fmt.Fprintf(b.r.out, "        %d%% (%s/%s)\n", b.milestone, humanize.IBytes(uint64(b.done)), humanize.IBytes(uint64(b.total)))
	}
}

func (b *Bar) gauge() string {
	filled := barWidth
	if b.total > 0 && b.done < b.total {
		filled = int(b.done * barWidth / b.total)
	}
	if filled >= barWidth {
		return strings.Repeat("#", barWidth)
	}
	return strings.Repeat("#", filled) + ">" + strings.Repeat("-", barWidth-filled-1)
}

type countingReader struct {
	rd  io.Reader
	bar *Bar
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.rd.Read(p)
	if n > 0 {
		c.bar.Add(n)
	}
	return n, err
}
