// Package console keeps the most recent lines of web server output so they
// can be shown after the process is gone.
package console

import (
	"sync"
	"time"
)

// DefaultSize is the number of lines kept when no size is given.
const DefaultSize = 1000

// Line is a single line of captured output.
type Line struct {
	Time time.Time
	Text string
}

// Buffer keeps the last max lines written to it. Safe for concurrent use.
type Buffer struct {
	mu    sync.Mutex
	max   int
	lines []Line
}

// New creates a buffer holding at most size lines.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{max: size}
}

// Write appends a line. Once the backing slice holds twice the limit, the
// lines that fell out of the window are dropped in one copy.
func (b *Buffer) Write(line Line) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = append(b.lines, line)
	if len(b.lines) >= 2*b.max {
		b.lines = append(b.lines[:0], b.lines[len(b.lines)-b.max:]...)
	}
}

// Reset drops all lines.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
}

// Tail returns the text of the last n lines, oldest first. n <= 0 returns
// every kept line.
func (b *Buffer) Tail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	window := b.window()
	if n > 0 && n < len(window) {
		window = window[len(window)-n:]
	}
	out := make([]string, len(window))
	for i, l := range window {
		out[i] = l.Text
	}
	return out
}

// Len returns the number of kept lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.window())
}

func (b *Buffer) window() []Line {
	if len(b.lines) > b.max {
		return b.lines[len(b.lines)-b.max:]
	}
	return b.lines
}
