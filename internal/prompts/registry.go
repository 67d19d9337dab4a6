package prompts

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Registry holds every version of each task prompt. Versions are ordered
// numerically, so 1.10.0 is newer than 1.9.0.
type Registry struct {
	mu      sync.RWMutex
	prompts map[string][]*Prompt // ID -> versions, oldest first
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry the built-in prompts live in.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{prompts: make(map[string][]*Prompt)}
}

// Register adds p. Re-registering an existing ID and version replaces it.
// The placeholders found in Content are recorded in p.Vars.
func (r *Registry) Register(p *Prompt) error {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return errors.New("prompt needs an id")
	}
	if strings.TrimSpace(p.Content) == "" {
		return fmt.Errorf("prompt %s: empty template", p.ID)
	}
	if _, err := parseVersion(p.Version); err != nil {
		return fmt.Errorf("prompt %s: %w", p.ID, err)
	}
	p.Vars = placeholders(p.Content)

	r.mu.Lock()
	defer r.mu.Unlock()

	versions := r.prompts[p.ID]
	for i, existing := range versions {
		if compareVersions(existing.Version, p.Version) == 0 {
			versions[i] = p
			return nil
		}
	}
	versions = append(versions, p)
	sort.SliceStable(versions, func(i, j int) bool {
		return compareVersions(versions[i].Version, versions[j].Version) < 0
	})
	r.prompts[p.ID] = versions
	return nil
}

// MustRegister is Register for package init code.
func (r *Registry) MustRegister(p *Prompt) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Lookup returns one exact version.
func (r *Registry) Lookup(id string, version PromptVersion) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.prompts[id]
	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}
	for _, p := range versions {
		if compareVersions(p.Version, version) == 0 {
			return p, nil
		}
	}
	return nil, fmt.Errorf("prompt %s version %s not found", id, version)
}

// Latest returns the newest version that is not deprecated, or the newest
// deprecated one when nothing else is left.
func (r *Registry) Latest(id string) (*Prompt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions := r.prompts[id]
	if len(versions) == 0 {
		return nil, fmt.Errorf("prompt not found: %s", id)
	}
	for i := len(versions) - 1; i >= 0; i-- {
		if !versions[i].Deprecated {
			return versions[i], nil
		}
	}
	return versions[len(versions)-1], nil
}

// IDs lists the registered prompt IDs, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.prompts))
	for id := range r.prompts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func parseVersion(v PromptVersion) ([]int, error) {
	parts := strings.Split(string(v), ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid version %q", v)
		}
		out[i] = n
	}
	return out, nil
}

// compareVersions orders dotted numeric versions; missing parts count as 0.
// Unparseable versions never reach it since Register rejects them.
func compareVersions(a, b PromptVersion) int {
	pa, _ := parseVersion(a)
	pb, _ := parseVersion(b)
	for i := 0; i < len(pa) || i < len(pb); i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	}
	return 0
}

func placeholders(content string) []string {
	seen := make(map[string]bool)
	var vars []string
	for _, ph := range placeholderRe.FindAllString(content, -1) {
		name := ph[2 : len(ph)-2]
		if !seen[name] {
			seen[name] = true
			vars = append(vars, name)
		}
	}
	return vars
}
