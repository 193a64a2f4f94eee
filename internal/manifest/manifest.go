// Package manifest loads tool declarations from YAML.
//
//	tools:
//	  - name: lookup_order
//	    description: Find an order by id
//	    tags: [read_only]
//	    timeout: 2s
//	    parameters:
//	      type: object
//	      properties:
//	        id: {type: string}
//	      required: [id]
//	    response: {status: shipped}
//
// A tool with a response gets a static implementation returning it; tools
// without one are declared only and must be implemented elsewhere.
package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/skosovsky/toolpipe"
)

// Manifest is the root document.
type Manifest struct {
	Tools []Entry `yaml:"tools"`
}

// Entry is one declared tool.
type Entry struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Tags        []string       `yaml:"tags,omitempty"`
	Parameters  map[string]any `yaml:"parameters,omitempty"`
	Timeout     time.Duration  `yaml:"timeout,omitempty"`
	Response    any            `yaml:"response,omitempty"`
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a manifest. Unknown keys are rejected.
func Parse(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return &m, nil
		}
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// Tools converts the entries into installable tools. Entries without a
// response have a nil Implementation.
func (m *Manifest) Tools() ([]toolpipe.Tool, error) {
	tools := make([]toolpipe.Tool, 0, len(m.Tools))
	for i, e := range m.Tools {
		params, err := normalize(e.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %d (%s): parameters: %w", i, e.Name, err)
		}
		t := toolpipe.Tool{Definition: toolpipe.ToolDefinition{
			Name:        e.Name,
			Description: e.Description,
			Parameters:  params,
			Tags:        e.Tags,
		}}
		if e.Response != nil {
			resp, err := normalize(e.Response)
			if err != nil {
				return nil, fmt.Errorf("tool %d (%s): response: %w", i, e.Name, err)
			}
			t.Implementation = &staticImpl{value: resp, timeout: e.Timeout}
		}
		tools = append(tools, t)
	}
	return tools, nil
}

// Install registers every definition with reg and every static implementation with exec.
func (m *Manifest) Install(reg *toolpipe.Registry, exec *toolpipe.Executor) error {
	tools, err := m.Tools()
	if err != nil {
		return err
	}
	var errs []error
	for _, t := range tools {
		if t.Implementation == nil {
			if reg == nil {
				continue
			}
			ok, err := reg.RegisterTool(t.Definition)
			if err != nil {
				errs = append(errs, err)
			} else if !ok {
				errs = append(errs, fmt.Errorf("tool %q: %s in registry", t.Definition.Name, toolpipe.CodeRegistrationConflict))
			}
			continue
		}
		if err := toolpipe.Install(reg, exec, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// normalize round-trips a YAML value through JSON so nested maps are
// map[string]any and numbers are float64, as encoding/json would produce.
func normalize[T any](v T) (T, error) {
	var out T
	if isNil(v) {
		return out, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(data, &out)
	return out, err
}

func isNil(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case map[string]any:
		return x == nil
	}
	return false
}

type staticImpl struct {
	value   any
	timeout time.Duration
}

func (s *staticImpl) Invoke(context.Context, json.RawMessage) (any, error) {
	return s.value, nil
}

func (s *staticImpl) Timeout() time.Duration { return s.timeout }
