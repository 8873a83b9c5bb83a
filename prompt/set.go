package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/richinex/llmtools/internal/logger"
	"github.com/richinex/llmtools/segment"
)

// BuildOptions are the caller defaults applied when a template's metadata
// does not decide.
type BuildOptions struct {
	// Split is the default split mode; "" means none.
	Split string
	// SplitLevel is the default heading level; 0 means segment.DefaultHeadlineLevel.
	SplitLevel int
	// RequireNonEmpty turns an empty result into a *NoTemplatesFoundError.
	RequireNonEmpty bool
}

// Entry ties a prompt to the template and document segment it came from.
type Entry struct {
	Template string
	Mode     segment.Mode
	Segment  segment.Segment
	Prompt   *Prompt
}

// PromptSet is an ordered, fixed-length list of prompts. Order is
// template-major: all segments of the first template, then the next.
type PromptSet struct {
	entries []Entry
}

// NewPromptSet wraps prompts that were built elsewhere, e.g. read back
// from sidecar files.
func NewPromptSet(prompts ...*Prompt) *PromptSet {
	entries := make([]Entry, len(prompts))
	for i, p := range prompts {
		entries[i] = Entry{Mode: segment.ModeNone, Segment: segment.Segment{Index: i}, Prompt: p}
	}
	return &PromptSet{entries: entries}
}

// Len returns the number of prompts.
func (s *PromptSet) Len() int {
	return len(s.entries)
}

// Prompts returns the prompts in execution order.
func (s *PromptSet) Prompts() []*Prompt {
	out := make([]*Prompt, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.Prompt
	}
	return out
}

// Entries returns the prompts with their provenance, in execution order.
func (s *PromptSet) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// SetBuilder builds prompt sets from a directory of templates.
type SetBuilder struct {
	store *TemplateStore
	log   *logger.Logger
}

// NewSetBuilder creates a builder loading templates through store.
func NewSetBuilder(store *TemplateStore, log *logger.Logger) *SetBuilder {
	if log == nil {
		log = logger.NewNop()
	}
	return &SetBuilder{store: store, log: log}
}

// TemplatePaths lists the templates in dir for lang, sorted by file name.
// Language templates are named *-<lang>.yaml; an empty lang matches every
// .yaml file.
func TemplatePaths(dir, lang string) ([]string, error) {
	suffix := ".yaml"
	if lang != "" {
		suffix = "-" + lang + ".yaml"
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read template directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Build renders one prompt per (template, segment) pair. Templates without
// a meta section or with an unknown split mode are skipped with a warning.
func (b *SetBuilder) Build(text, dir, lang string, opts BuildOptions) (*PromptSet, error) {
	paths, err := TemplatePaths(dir, lang)
	if err != nil {
		return nil, err
	}

	set := &PromptSet{}
	for _, path := range paths {
		t, err := b.store.Load(path)
		if err != nil {
			return nil, err
		}
		if t.Meta == nil {
			b.log.Warn("rejecting prompt template because of missing meta", "template", path)
			continue
		}

		mode, level, err := resolveSplit(t.Meta, opts)
		if err != nil {
			b.log.Warn("rejecting prompt template", "template", path, "error", err)
			continue
		}

		segs, err := segment.Split(text, mode, level)
		if err != nil {
			return nil, err
		}
		for _, seg := range segs {
			p, err := FromTemplate(t, seg.Content)
			if err != nil {
				return nil, err
			}
			set.entries = append(set.entries, Entry{Template: path, Mode: mode, Segment: seg, Prompt: p})
		}
		b.log.Debug("expanded prompt template", "template", path, "split", mode, "segments", len(segs))
	}

	if set.Len() == 0 && opts.RequireNonEmpty {
		return nil, &NoTemplatesFoundError{Dir: dir, Lang: lang}
	}
	return set, nil
}

// resolveSplit applies template metadata over caller options over the
// hard defaults.
func resolveSplit(meta Meta, opts BuildOptions) (segment.Mode, int, error) {
	name, ok := meta.Split()
	if !ok {
		name = opts.Split
	}
	mode, err := segment.ParseMode(name)
	if err != nil {
		return "", 0, err
	}

	level, ok := meta.SplitLevel()
	if !ok {
		level = opts.SplitLevel
		if level == 0 {
			level = segment.DefaultHeadlineLevel
		}
	}
	return mode, level, nil
}
