package main

import (
	"os"
	"sync/atomic"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// progress holds the bar of the running scan or sweep. The engine and sweeper
// share one tick func, so each phase swaps in a fresh bar.
type progress struct {
	enabled bool
	bar     atomic.Pointer[progressbar.ProgressBar]
}

func newProgress() *progress {
	return &progress{enabled: isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())}
}

func (p *progress) start(total int, desc string) {
	if !p.enabled {
		return
	}
	p.bar.Store(progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription("[cyan]"+desc+"[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	))
}

func (p *progress) tick() {
	if b := p.bar.Load(); b != nil {
		_ = b.Add(1)
	}
}

// done clears the bar so the following output starts on a clean line.
func (p *progress) done() {
	if b := p.bar.Swap(nil); b != nil {
		_ = b.Finish()
		_ = b.Clear()
		_, _ = os.Stderr.WriteString("\n")
	}
}
