// Package specfile loads declarative MCP server definitions from disk and
// keeps the registry in sync with them: a YAML file describes the desired
// servers, a watcher picks up edits, and a diff drives the minimal set of
// register/unregister calls.
package specfile

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mcpgate/mcpgate/pkg/store"
)

// Server is one declarative server entry.
type Server struct {
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name,omitempty"`
	Description    string            `yaml:"description,omitempty"`
	Type           string            `yaml:"type"`
	URL            string            `yaml:"url,omitempty"`
	Headers        map[string]string `yaml:"headers,omitempty"`
	Command        string            `yaml:"command,omitempty"`
	Args           []string          `yaml:"args,omitempty"`
	Env            map[string]string `yaml:"env,omitempty"`
	TimeoutSeconds int               `yaml:"timeoutSeconds,omitempty"`
	Disabled       bool              `yaml:"disabled,omitempty"`
}

// File is the top-level shape of the server spec file.
type File struct {
	Servers []Server `yaml:"servers"`
}

// Load reads and validates a spec file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spec file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates spec file bytes.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing spec file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks ids, transports, and transport-specific requirements.
func (f *File) Validate() error {
	seen := make(map[string]bool)
	for i, s := range f.Servers {
		if s.ID == "" {
			return fmt.Errorf("server %d: id is required", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("server %q: duplicate id", s.ID)
		}
		seen[s.ID] = true

		switch s.Type {
		case "STDIO":
			if s.Command == "" {
				return fmt.Errorf("server %q: stdio servers need a command", s.ID)
			}
		case "SSE", "STREAMABLE_HTTP":
			if s.URL == "" {
				return fmt.Errorf("server %q: %s servers need a url", s.ID, s.Type)
			}
		default:
			return fmt.Errorf("server %q: unknown type %q", s.ID, s.Type)
		}
	}
	return nil
}

// Specs converts the file to persisted server specs, sorted by id so
// registration order is stable.
func (f *File) Specs() []*store.ServerSpec {
	specs := make([]*store.ServerSpec, 0, len(f.Servers))
	for _, s := range f.Servers {
		name := s.Name
		if name == "" {
			name = s.ID
		}
		specs = append(specs, &store.ServerSpec{
			ID:             s.ID,
			Name:           name,
			Description:    s.Description,
			Type:           s.Type,
			URL:            s.URL,
			Headers:        s.Headers,
			Command:        s.Command,
			Args:           s.Args,
			Env:            s.Env,
			TimeoutSeconds: s.TimeoutSeconds,
			Disabled:       s.Disabled,
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].ID < specs[j].ID })
	return specs
}
