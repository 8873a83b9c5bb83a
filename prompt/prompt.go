package prompt

import (
	"encoding/json"
)

// Prompt is one unit of work: a rendered system/user pair plus metadata.
type Prompt struct {
	System string
	User   string
	Meta   Meta
	// Output is nil until the prompt has been executed successfully.
	Output *string
	// Deltas is an optional structured diff carried through unchanged.
	Deltas json.RawMessage
	// Path is the .prompt sidecar the prompt was read from or written to.
	Path string
}

// New creates an unexecuted prompt.
func New(system, user string, meta Meta) *Prompt {
	if meta == nil {
		meta = Meta{}
	}
	return &Prompt{System: system, User: user, Meta: meta}
}

// SetOutput records the generated text. It fails if an output is already set.
func (p *Prompt) SetOutput(text string) error {
	if p.Output != nil {
		return ErrOutputAlreadySet
	}
	p.Output = &text
	return nil
}

// HasOutput reports whether the prompt has been executed.
func (p *Prompt) HasOutput() bool {
	return p.Output != nil
}

// OutputText returns the output, or "" when there is none.
func (p *Prompt) OutputText() string {
	if p.Output == nil {
		return ""
	}
	return *p.Output
}
