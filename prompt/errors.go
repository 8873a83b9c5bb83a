package prompt

import (
	"errors"
	"fmt"
)

// ErrOutputAlreadySet is returned when a prompt that already has an
// output is executed or assigned again.
var ErrOutputAlreadySet = errors.New("prompt output already set")

// TemplateLoadError reports a template file that cannot be read or lacks
// a required key.
type TemplateLoadError struct {
	Path string
	Err  error
}

func (e *TemplateLoadError) Error() string {
	return fmt.Sprintf("failed to load template %s: %v", e.Path, e.Err)
}

func (e *TemplateLoadError) Unwrap() error {
	return e.Err
}

// TemplateRenderError reports a template skeleton that cannot be filled.
type TemplateRenderError struct {
	Path        string
	Field       string
	Placeholder string
	Reason      string
}

func (e *TemplateRenderError) Error() string {
	if e.Placeholder != "" {
		return fmt.Sprintf("template %s: %s text: %s {%s}", e.Path, e.Field, e.Reason, e.Placeholder)
	}
	return fmt.Sprintf("template %s: %s text: %s", e.Path, e.Field, e.Reason)
}

// NoTemplatesFoundError is returned when a prompt set that must not be
// empty matched no usable template.
type NoTemplatesFoundError struct {
	Dir  string
	Lang string
}

func (e *NoTemplatesFoundError) Error() string {
	if e.Lang == "" {
		return fmt.Sprintf("no usable prompt templates in %s", e.Dir)
	}
	return fmt.Sprintf("no usable prompt templates for language %q in %s", e.Lang, e.Dir)
}
