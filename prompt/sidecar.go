package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// Sidecar file extensions. A prompt persisted at base.prompt keeps its
// metadata, output and deltas next to it.
const (
	PromptExt = ".prompt"
	MetaExt   = ".meta"
	OutputExt = ".output"
	DeltasExt = ".deltas"
)

const (
	systemMarker = "== System =="
	userMarker   = "== User =="
)

// Serialize renders the .prompt file body.
func Serialize(system, user string) string {
	return "\n" + systemMarker + "\n" + system + "\n" + userMarker + "\n" + user
}

// Deserialize parses a .prompt file body. Surrounding whitespace of both
// sections is dropped.
func Deserialize(s string) (system, user string) {
	_, rest, _ := strings.Cut(s, systemMarker)
	system, user, _ = strings.Cut(rest, userMarker)
	return strings.TrimSpace(system), strings.TrimSpace(user)
}

func basePath(path string) (string, error) {
	if !strings.HasSuffix(path, PromptExt) {
		return "", fmt.Errorf("prompt file %q does not end in %s", path, PromptExt)
	}
	return strings.TrimSuffix(path, PromptExt), nil
}

// ReadPrompt loads a prompt and whichever of its sidecars exist.
func ReadPrompt(path string) (*Prompt, error) {
	base, err := basePath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompt: %w", err)
	}
	system, user := Deserialize(string(data))
	p := New(system, user, nil)
	p.Path = path

	if raw, ok, err := readOptional(base + MetaExt); err != nil {
		return nil, err
	} else if ok {
		if err := json.Unmarshal(raw, &p.Meta); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", base+MetaExt, err)
		}
		if p.Meta == nil {
			p.Meta = Meta{}
		}
	}

	if raw, ok, err := readOptional(base + OutputExt); err != nil {
		return nil, err
	} else if ok {
		out := string(raw)
		p.Output = &out
	}

	if raw, ok, err := readOptional(base + DeltasExt); err != nil {
		return nil, err
	} else if ok {
		if !json.Valid(raw) {
			return nil, fmt.Errorf("failed to parse %s: invalid JSON", base+DeltasExt)
		}
		p.Deltas = json.RawMessage(raw)
	}

	return p, nil
}

// Write saves the prompt to path and its sidecars next to it. An empty
// path reuses p.Path.
func (p *Prompt) Write(path string) error {
	if path == "" {
		path = p.Path
	}
	if path == "" {
		return errors.New("no filename provided for prompt")
	}
	base, err := basePath(path)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(Serialize(p.System, p.User)), 0o644); err != nil {
		return fmt.Errorf("failed to write prompt: %w", err)
	}

	meta := p.Meta
	if meta == nil {
		meta = Meta{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to encode prompt meta: %w", err)
	}
	if err := os.WriteFile(base+MetaExt, metaJSON, 0o644); err != nil {
		return fmt.Errorf("failed to write prompt meta: %w", err)
	}

	if p.Output != nil {
		if err := os.WriteFile(base+OutputExt, []byte(*p.Output), 0o644); err != nil {
			return fmt.Errorf("failed to write prompt output: %w", err)
		}
	}
	if p.Deltas != nil {
		if err := os.WriteFile(base+DeltasExt, p.Deltas, 0o644); err != nil {
			return fmt.Errorf("failed to write prompt deltas: %w", err)
		}
	}

	p.Path = path
	return nil
}

func readOptional(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, true, nil
}
