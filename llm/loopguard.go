package llm

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/richinex/llmtools/internal/dsa"
)

const (
	// LoopSentinel is appended to output cut short by loop detection.
	LoopSentinel = "<|loop_detected|>"

	// DefaultLoopWindow is the number of recent lines compared for repetition.
	DefaultLoopWindow = 30

	// AssistantMarker is the role word the model echoes before its answer.
	AssistantMarker = "assistant"

	partialScanLen   = 500
	partialMaxPeriod = 100
)

// LoopGuard consumes generated text incrementally and decides when the
// model has fallen into a repetition loop.
//
// Feed and Finish must be called from a single goroutine. Done and
// Stopped are safe to call from any goroutine.
type LoopGuard struct {
	window int

	buf     string
	parts   []string
	ring    []string
	head    int
	counts  map[string]int
	stop    chan struct{}
	stopped sync.Once
}

// NewLoopGuard creates a guard comparing the last window lines.
// window <= 0 uses DefaultLoopWindow.
func NewLoopGuard(window int) *LoopGuard {
	if window <= 0 {
		window = DefaultLoopWindow
	}
	return &LoopGuard{
		window: window,
		ring:   make([]string, 0, window),
		counts: make(map[string]int, window),
		stop:   make(chan struct{}),
	}
}

// Done is closed once a loop has been detected.
func (g *LoopGuard) Done() <-chan struct{} {
	return g.stop
}

// Stopped reports whether a loop has been detected.
func (g *LoopGuard) Stopped() bool {
	select {
	case <-g.stop:
		return true
	default:
		return false
	}
}

// Feed appends a chunk of decoded output and reports whether generation
// must stop. Once it returns true every further call is a no-op.
func (g *LoopGuard) Feed(chunk string) bool {
	if g.Stopped() {
		return true
	}
	g.buf += chunk

	// Runs without any line break never reach the line window.
	if !strings.Contains(g.buf, "\n") && utf8.RuneCountInString(g.buf) > partialScanLen {
		if _, ok := dsa.FindBoundedPartialPeriod(lastRunes(g.buf, partialScanLen), partialMaxPeriod); ok {
			g.parts = append(g.parts, g.buf)
			g.buf = ""
			g.markStopped()
			return true
		}
	}

	for {
		i := strings.IndexByte(g.buf, '\n')
		if i < 0 {
			return false
		}
		line := g.buf[:i]
		g.buf = g.buf[i+1:]

		// Nothing is output before the echoed assistant role line.
		if len(g.parts) > 0 {
			g.parts = append(g.parts, line+"\n")
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == AssistantMarker {
			g.parts = append(g.parts, "")
		}

		g.push(trimmed)
		if g.repeating() {
			g.markStopped()
			return true
		}
	}
}

// Finish returns the accumulated output. The unterminated tail is kept
// only when output has started; a stopped guard appends LoopSentinel.
func (g *LoopGuard) Finish() string {
	parts := g.parts
	if len(parts) > 0 {
		parts = append(parts, g.buf)
	}
	if g.Stopped() {
		parts = append(parts, LoopSentinel)
	}
	return strings.Join(parts, "")
}

func (g *LoopGuard) markStopped() {
	g.stopped.Do(func() { close(g.stop) })
}

func (g *LoopGuard) push(line string) {
	if len(g.ring) < g.window {
		g.ring = append(g.ring, line)
	} else {
		old := g.ring[g.head]
		if g.counts[old]--; g.counts[old] == 0 {
			delete(g.counts, old)
		}
		g.ring[g.head] = line
		g.head = (g.head + 1) % g.window
	}
	g.counts[line]++
}

// repeating reports whether no line in the window is unique.
func (g *LoopGuard) repeating() bool {
	for _, n := range g.counts {
		if n == 1 {
			return false
		}
	}
	return len(g.counts) > 0
}

func lastRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
