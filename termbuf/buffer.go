// Package termbuf provides bounded-memory retention of terminal output.
//
// Buffer keeps the most recent tail of a text stream under two independent
// caps: a maximum number of complete lines and a maximum total byte size.
// It is fed every data chunk a session produces and queried when the session
// becomes the visible one, so eviction has to be cheap and reconstruction
// exact: String() returns the same bytes as truncating the whole stream to
// the caps would.
package termbuf

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// Buffer is a line-oriented ring buffer for terminal output.
// Safe for concurrent use; it is written from the PTY reader goroutine and
// read from API handlers.
type Buffer struct {
	mu       sync.RWMutex
	lines    []string // complete lines, without their trailing newline
	partial  string   // trailing fragment not yet terminated by a newline
	bytes    int      // total retained bytes: sum(len(line)+1) + len(partial)
	maxLines int
	maxBytes int
}

// New creates a buffer capped at maxLines complete lines and maxBytes total
// retained bytes. Caps must be positive.
func New(maxLines, maxBytes int) *Buffer {
	return &Buffer{
		maxLines: maxLines,
		maxBytes: maxBytes,
	}
}

// Append adds a chunk of output to the buffer, splitting it into complete
// lines plus a trailing partial fragment, then enforces both caps.
func (b *Buffer) Append(chunk string) {
	if chunk == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.partial += chunk
	b.bytes += len(chunk)

	// Promote completed lines out of the partial fragment.
	for {
		idx := strings.IndexByte(b.partial, '\n')
		if idx < 0 {
			break
		}
		b.lines = append(b.lines, b.partial[:idx])
		b.partial = b.partial[idx+1:]
	}

	b.evict()
}

// evict enforces the line and byte caps, oldest complete lines first.
// Caller must hold b.mu.
func (b *Buffer) evict() {
	drop := 0
	for drop < len(b.lines) &&
		(len(b.lines)-drop > b.maxLines || b.bytes > b.maxBytes) {
		b.bytes -= len(b.lines[drop]) + 1
		drop++
	}
	if drop > 0 {
		// Copy the survivors instead of reslicing so evicted line strings
		// are not pinned by the backing array.
		b.lines = append([]string(nil), b.lines[drop:]...)
	}

	// All complete lines are gone and the fragment alone still exceeds the
	// byte cap: keep its tail, advancing the cut past UTF-8 continuation
	// bytes so the retained text never starts mid-rune.
	if b.bytes > b.maxBytes {
		cut := len(b.partial) - b.maxBytes
		for cut < len(b.partial) && !utf8.RuneStart(b.partial[cut]) {
			cut++
		}
		b.partial = b.partial[cut:]
		b.bytes = len(b.partial)
	}
}

// String reconstructs the retained tail of the stream.
func (b *Buffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var sb strings.Builder
	sb.Grow(b.bytes)
	for _, line := range b.lines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	sb.WriteString(b.partial)
	return sb.String()
}

// Len reports the retained length in bytes without reconstructing the
// string, for cheap change detection.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bytes
}

// LineCount returns the number of retained complete lines.
func (b *Buffer) LineCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines)
}

// Reset discards all retained output.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
	b.partial = ""
	b.bytes = 0
}
