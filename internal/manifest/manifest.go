// Package manifest holds the per-job mapping from asset name to generation
// prompt that travels with a video job as prompts.json.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"unicode/utf8"
)

// Manifest maps asset names to prompts. Setting a name twice keeps the
// later prompt. The zero value is ready to use.
type Manifest struct {
	prompts map[string]string
}

// New returns an empty manifest.
func New() *Manifest {
	return &Manifest{prompts: make(map[string]string)}
}

// Set records prompt for assetName, replacing any earlier prompt.
func (m *Manifest) Set(assetName, prompt string) {
	if m.prompts == nil {
		m.prompts = make(map[string]string)
	}
	m.prompts[assetName] = prompt
}

// Prompt returns the prompt for assetName.
func (m *Manifest) Prompt(assetName string) (string, bool) {
	p, ok := m.prompts[assetName]
	return p, ok
}

// Len is the number of distinct asset names.
func (m *Manifest) Len() int { return len(m.prompts) }

// Names returns the asset names in sorted order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.prompts))
	for name := range m.prompts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map returns a copy of the mapping.
func (m *Manifest) Map() map[string]string {
	out := make(map[string]string, len(m.prompts))
	for k, v := range m.prompts {
		out[k] = v
	}
	return out
}

// EncodeError reports an entry that cannot be represented in the manifest.
type EncodeError struct {
	AssetName string
	Reason    string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("manifest: asset %q: %s", e.AssetName, e.Reason)
}

// Encode renders the manifest as an indented JSON object. Names and prompts
// must be valid UTF-8; encoding/json would otherwise replace bad bytes
// silently and the worker would read a different prompt.
func (m *Manifest) Encode() ([]byte, error) {
	for _, name := range m.Names() {
		if !utf8.ValidString(name) {
			return nil, &EncodeError{AssetName: name, Reason: "name is not valid UTF-8"}
		}
		if !utf8.ValidString(m.prompts[name]) {
			return nil, &EncodeError{AssetName: name, Reason: "prompt is not valid UTF-8"}
		}
	}

	prompts := m.prompts
	if prompts == nil {
		prompts = map[string]string{}
	}
	data, err := json.MarshalIndent(prompts, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Decode parses a prompts.json document.
func Decode(data []byte) (*Manifest, error) {
	m := New()
	if err := json.Unmarshal(data, &m.prompts); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	if m.prompts == nil {
		m.prompts = make(map[string]string)
	}
	return m, nil
}

// Read loads the manifest at path.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
