package prompt

import (
	"context"
	"strings"
	"time"

	"github.com/richinex/llmtools/internal/errchain"
	"github.com/richinex/llmtools/internal/logger"
	"github.com/richinex/llmtools/llm"
)

// Invocation describes one finished prompt execution.
type Invocation struct {
	Index    int
	Backend  string
	Prompt   *Prompt
	Result   *llm.Result
	Duration time.Duration
}

// Recorder receives every finished invocation, e.g. to keep a run history.
type Recorder interface {
	RecordInvocation(ctx context.Context, inv Invocation) error
}

// Executor runs prompts one at a time against a single backend.
type Executor struct {
	backend  llm.Backend
	log      *logger.Logger
	recorder Recorder
}

// NewExecutor creates an executor for backend.
func NewExecutor(backend llm.Backend, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Executor{backend: backend, log: log}
}

// WithRecorder sets the recorder notified after each invocation.
func (e *Executor) WithRecorder(r Recorder) *Executor {
	e.recorder = r
	return e
}

// Run executes one prompt and stores its output on p. A nil result means
// the backend failed softly; p.Output then stays nil.
func (e *Executor) Run(ctx context.Context, p *Prompt) (*llm.Result, error) {
	return e.run(ctx, 0, p)
}

func (e *Executor) run(ctx context.Context, index int, p *Prompt) (*llm.Result, error) {
	if p.HasOutput() {
		return nil, ErrOutputAlreadySet
	}

	start := time.Now()
	res, err := e.backend.Invoke(ctx, p.System, p.User)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	switch {
	case res == nil:
		e.log.Warn("LLM backend returned no result", "backend", e.backend.Name(), "prompt", index)
	default:
		if res.Truncated || strings.HasSuffix(res.Text, llm.LoopSentinel) {
			e.log.Error("LLM model entered a loop. Try other options, e.g., run post-processing in smaller chunks.", "prompt", index)
		}
		if err := p.SetOutput(res.Text); err != nil {
			return nil, err
		}
	}

	if e.recorder != nil {
		inv := Invocation{Index: index, Backend: e.backend.Name(), Prompt: p, Result: res, Duration: elapsed}
		if err := e.recorder.RecordInvocation(ctx, inv); err != nil {
			e.log.Warn("failed to record invocation", "prompt", index, "error", err)
		}
	}
	return res, nil
}

// Execute runs every prompt of set in order and concatenates the outputs,
// each followed by separator. The first backend error aborts the run.
func (e *Executor) Execute(ctx context.Context, set *PromptSet, separator string) (string, error) {
	var b strings.Builder
	prompts := set.Prompts()
	for i, p := range prompts {
		e.log.Info("executing prompt", "prompt", i+1, "of", len(prompts), "backend", e.backend.Name())
		res, err := e.run(ctx, i, p)
		if err != nil {
			return "", errchain.Wrapf(err, "prompt %d of %d failed", i+1, len(prompts))
		}
		if res != nil {
			b.WriteString(res.Text)
		}
		b.WriteString(separator)
	}
	return b.String(), nil
}
