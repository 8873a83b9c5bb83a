// Package prompt turns documents and YAML templates into ordered prompt
// sets and runs them against an LLM backend.
//
// Information Hiding:
// - Template file format and {text} placeholder rendering
// - Sidecar file layout for persisted prompts
// - Split-mode resolution between template metadata and caller options

package prompt

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template metadata keys.
const (
	MetaSplit      = "split"
	MetaSplitLevel = "split_level"
	// metaSplitHeadlineLevel is the older spelling of MetaSplitLevel.
	metaSplitHeadlineLevel = "split_headline_level"
)

// Meta is free-form template metadata. Every Prompt gets its own deep copy.
type Meta map[string]any

// Split returns the split mode named by the metadata.
func (m Meta) Split() (string, bool) {
	v, ok := m[MetaSplit]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// SplitLevel returns the heading level named by the metadata. Values that
// are not whole numbers are ignored.
func (m Meta) SplitLevel() (int, bool) {
	for _, key := range []string{MetaSplitLevel, metaSplitHeadlineLevel} {
		switch v := m[key].(type) {
		case int:
			return v, true
		case int64:
			return int(v), true
		case uint64:
			return int(v), true
		case float64:
			if v == float64(int(v)) {
				return int(v), true
			}
		}
	}
	return 0, false
}

// Clone returns a deep copy of m. A nil Meta clones to an empty one.
func (m Meta) Clone() Meta {
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return map[string]any(Meta(v).Clone())
	case Meta:
		return v.Clone()
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Template is a parsed prompt template. Templates handed out by a
// TemplateStore are shared and must not be modified.
type Template struct {
	Path   string
	System string
	User   string
	// Meta is nil when the template has no meta section.
	Meta Meta
}

type templateFile struct {
	System *string `yaml:"system"`
	User   *string `yaml:"user"`
	Meta   Meta    `yaml:"meta"`
}

// ParseTemplate parses template YAML. path is only used for identity and
// error messages.
func ParseTemplate(path string, data []byte) (*Template, error) {
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &TemplateLoadError{Path: path, Err: err}
	}
	if f.System == nil {
		return nil, &TemplateLoadError{Path: path, Err: fmt.Errorf("missing required key %q", "system")}
	}
	if f.User == nil {
		return nil, &TemplateLoadError{Path: path, Err: fmt.Errorf("missing required key %q", "user")}
	}
	return &Template{Path: path, System: *f.System, User: *f.User, Meta: f.Meta}, nil
}

// Render fills the {text} placeholder of both skeletons.
func (t *Template) Render(text string) (system, user string, err error) {
	system, err = formatText(t.System, text)
	if err != nil {
		return "", "", t.renderError("system", err)
	}
	user, err = formatText(t.User, text)
	if err != nil {
		return "", "", t.renderError("user", err)
	}
	return system, user, nil
}

func (t *Template) renderError(field string, err error) error {
	re := err.(*TemplateRenderError)
	re.Path = t.Path
	re.Field = field
	return re
}

// formatText substitutes {text}, with {{ and }} standing for literal braces.
// Any other replacement field is an error.
func formatText(skeleton, text string) (string, error) {
	var b strings.Builder
	b.Grow(len(skeleton) + len(text))
	for i := 0; i < len(skeleton); i++ {
		c := skeleton[i]
		switch c {
		case '{':
			if i+1 < len(skeleton) && skeleton[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(skeleton[i+1:], '}')
			if end < 0 {
				return "", &TemplateRenderError{Reason: "unclosed '{'"}
			}
			name := skeleton[i+1 : i+1+end]
			if name != "text" {
				return "", &TemplateRenderError{Placeholder: name, Reason: "undefined placeholder"}
			}
			b.WriteString(text)
			i += end + 1
		case '}':
			if i+1 < len(skeleton) && skeleton[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", &TemplateRenderError{Reason: "single '}' encountered"}
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
