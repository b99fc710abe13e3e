package archive

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

const progressInterval = 250 * time.Millisecond

// Progress prints a single updating status line while an archive is written.
type Progress struct {
	mu    sync.Mutex
	out   io.Writer
	total int64
	done  int64
	last  time.Time
	now   func() time.Time
}

// NewProgress reports progress towards total input bytes on out.
func NewProgress(out io.Writer, total int64) *Progress {
	return &Progress{out: out, total: total, now: time.Now}
}

// TerminalOutput returns f when it is attached to a terminal, nil otherwise.
func TerminalOutput(f *os.File) io.Writer {
	if f == nil || !term.IsTerminal(int(f.Fd())) {
		return nil
	}
	return f
}

// Write counts p as processed input. It never fails.
func (p *Progress) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done += int64(len(b))
	if now := p.now(); now.Sub(p.last) >= progressInterval {
		p.last = now
		p.render()
	}
	return len(b), nil
}

// Done prints the final state and ends the line.
func (p *Progress) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.render()
	fmt.Fprintln(p.out)
}

func (p *Progress) render() {
	pct := 100.0
	if p.total > 0 {
		pct = min(float64(p.done)/float64(p.total)*100, 100)
	}
	fmt.Fprintf(p.out, "\r%5.1f%%  %s / %s", pct,
		humanize.IBytes(uint64(p.done)), humanize.IBytes(uint64(p.total)))
}
