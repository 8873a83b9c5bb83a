// Local llama.cpp backend.
//
// Information Hiding:
// - llama-cli command line and chat template framing
// - Child process lifecycle (spawn, stdin write, kill, reap)
// - Concurrent draining of stdout into the loop guard and stderr to diagnostics

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/richinex/llmtools/config"
	"github.com/richinex/llmtools/internal/logger"
)

// readChunkSize is the size of each read from the child's output streams.
const readChunkSize = 1024

// LocalBackend runs llama-cli once per invocation and guards its output
// against repetition loops.
type LocalBackend struct {
	cfg         config.LocalConfig
	temperature float64
	topP        float64
	framing     Framing
	window      int
	diagnostics io.Writer
	log         *logger.Logger
}

// NewLocalBackend creates a backend for the llama-cli binary in cfg.
// Both output streams of the child are copied to diagnostics.
func NewLocalBackend(cfg config.LocalConfig, temperature, topP float64, log *logger.Logger, diagnostics io.Writer) *LocalBackend {
	if log == nil {
		log = logger.NewNop()
	}
	if diagnostics == nil {
		diagnostics = io.Discard
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	framing := DefaultFraming
	if cfg.LegacyFraming {
		framing = LegacyFraming
	}
	return &LocalBackend{
		cfg:         cfg,
		temperature: temperature,
		topP:        topP,
		framing:     framing,
		window:      DefaultLoopWindow,
		diagnostics: &lockedWriter{w: diagnostics},
		log:         log,
	}
}

// Name returns the canonical backend name.
func (b *LocalBackend) Name() string {
	return BackendLocal.String()
}

// Framing returns the chat template used to render prompts.
func (b *LocalBackend) Framing() Framing {
	return b.framing
}

// Args returns the llama-cli arguments. The prompt is read from stdin.
func (b *LocalBackend) Args() []string {
	return []string{
		"-m", b.cfg.ModelPath,
		"-e",
		"-fa",
		"--mirostat", "2",
		"-n", "-2",
		"-r", b.framing.EndOfTurn,
		"-s", strconv.Itoa(b.cfg.Seed),
		"--temp", strconv.FormatFloat(b.temperature, 'g', -1, 64),
		"--top-p", strconv.FormatFloat(b.topP, 'g', -1, 64),
		"-ngl", strconv.Itoa(b.cfg.GPULayers),
		"-c", strconv.Itoa(b.cfg.ContextWindow),
		"-f", "/dev/stdin",
	}
}

// Invoke runs one generation. A detected loop kills the process and
// returns a truncated result, not an error. A non-zero exit is a
// *SubprocessFailureError. Cancelling ctx kills the process and returns
// ctx.Err().
func (b *LocalBackend) Invoke(ctx context.Context, system, user string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(b.cfg.Command, b.Args()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stderr: %w", err)
	}

	b.log.Debug("starting local LLM", "command", b.cfg.Command, "model", b.cfg.ModelPath)
	if err := cmd.Start(); err != nil {
		return nil, &SubprocessFailureError{Command: b.cfg.Command, ExitCode: -1, Err: err}
	}

	guard := NewLoopGuard(b.window)
	outDone := make(chan struct{})

	// The guard is owned by the stdout drain until outDone is closed or
	// the process is killed and the group has been waited on.
	var g errgroup.Group
	g.Go(func() error {
		defer close(outDone)
		return drain(stdout, func(chunk string) bool {
			_, _ = io.WriteString(b.diagnostics, chunk)
			return guard.Feed(chunk)
		})
	})
	g.Go(func() error {
		return drain(stderr, func(chunk string) bool {
			_, _ = io.WriteString(b.diagnostics, chunk)
			return false
		})
	})

	// Written from the group so a child that never reads stdin cannot
	// block cancellation.
	var writeErr error
	prompt := b.framing.Format(system, user)
	g.Go(func() error {
		_, writeErr = io.WriteString(stdin, prompt)
		if err := stdin.Close(); err != nil && writeErr == nil {
			writeErr = err
		}
		return nil
	})

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	looped := false
wait:
	for {
		select {
		case <-guard.Done():
			looped = true
			break wait
		case <-outDone:
			looped = guard.Stopped()
			break wait
		case <-ticker.C:
			if guard.Stopped() {
				looped = true
				break wait
			}
		case <-ctx.Done():
			b.kill(cmd)
			_ = g.Wait()
			_ = cmd.Wait()
			return nil, ctx.Err()
		}
	}

	if looped {
		b.kill(cmd)
		_ = g.Wait()
		_ = cmd.Wait()
		_, _ = io.WriteString(b.diagnostics, "\n\n")
		b.log.Warn("stopped LLM process due to loop detection", "command", b.cfg.Command)
		return &Result{Text: guard.Finish(), Truncated: true}, nil
	}

	drainErr := g.Wait()
	waitErr := cmd.Wait()
	_, _ = io.WriteString(b.diagnostics, "\n\n")
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return nil, &SubprocessFailureError{Command: b.cfg.Command, ExitCode: exitErr.ExitCode(), Err: waitErr}
		}
		return nil, &SubprocessFailureError{Command: b.cfg.Command, ExitCode: -1, Err: waitErr}
	}
	if drainErr != nil {
		return nil, fmt.Errorf("failed to read LLM output: %w", drainErr)
	}
	if writeErr != nil {
		return nil, fmt.Errorf("failed to write prompt: %w", writeErr)
	}

	return &Result{Text: strings.TrimSuffix(guard.Finish(), b.framing.EndOfTurn)}, nil
}

func (b *LocalBackend) kill(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		b.log.Debug("failed to kill LLM process", "error", err)
	}
}

// drain reads r in fixed-size chunks and hands each to handle, carrying
// incomplete UTF-8 sequences over to the next chunk. It returns early
// when handle reports true.
func drain(r io.Reader, handle func(string) bool) error {
	buf := make([]byte, readChunkSize)
	var pending []byte
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := append(pending, buf[:n]...)
			cut := completePrefix(data)
			pending = append([]byte(nil), data[cut:]...)
			if cut > 0 && handle(string(data[:cut])) {
				return nil
			}
		}
		if err != nil {
			if len(pending) > 0 {
				handle(string(pending))
			}
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// completePrefix returns the length of the longest prefix of b that does
// not end inside a multi-byte UTF-8 sequence.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}

// lockedWriter serializes writes from the two drain goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

var _ Backend = (*LocalBackend)(nil)
