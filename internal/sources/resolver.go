// Package sources resolves the source reference of a video task to a
// readable stream. Plain paths go to the local filesystem; "scheme://key"
// references go to the provider registered for that scheme.
package sources

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"renderfleet/internal/adapters/sources/localfs"
	"renderfleet/internal/ports"
)

// Resolver routes source references to providers by scheme.
type Resolver struct {
	providers map[string]ports.SourceProvider
}

// NewResolver returns a Resolver with the local filesystem registered for
// plain paths and file:// references, plus any extra providers.
func NewResolver(extra ...ports.SourceProvider) *Resolver {
	r := &Resolver{providers: make(map[string]ports.SourceProvider)}
	r.Register(localfs.New(""))
	for _, p := range extra {
		r.Register(p)
	}
	return r
}

// Register adds p under p.Provider(), replacing any previous provider for
// that scheme.
func (r *Resolver) Register(p ports.SourceProvider) {
	r.providers[strings.ToLower(p.Provider())] = p
}

// Schemes lists the registered schemes.
func (r *Resolver) Schemes() []string {
	out := make([]string, 0, len(r.providers))
	for s := range r.providers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Open opens ref.
func (r *Resolver) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	scheme, key := Parse(ref)
	p, ok := r.providers[scheme]
	if !ok {
		return nil, fmt.Errorf("no source provider for scheme %q", scheme)
	}
	return p.Open(ctx, key)
}

// Name returns the file name an asset fetched from ref should be stored
// under. Providers implementing ports.Namer are asked; otherwise it is the
// last element of the key.
func (r *Resolver) Name(ctx context.Context, ref string) (string, error) {
	scheme, key := Parse(ref)
	p, ok := r.providers[scheme]
	if !ok {
		return "", fmt.Errorf("no source provider for scheme %q", scheme)
	}
	if n, ok := p.(ports.Namer); ok {
		return n.Name(ctx, key)
	}
	return BaseName(key), nil
}

// BaseName is the last path element of key, or "" when key has none.
func BaseName(key string) string {
	if key == "" {
		return ""
	}
	name := filepath.Base(filepath.FromSlash(key))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

// Parse splits ref into scheme and key. References without "://" are local
// paths with scheme "file".
func Parse(ref string) (scheme, key string) {
	if i := strings.Index(ref, "://"); i > 0 && !strings.ContainsAny(ref[:i], `/\`) {
		return strings.ToLower(ref[:i]), ref[i+3:]
	}
	return "file", ref
}
