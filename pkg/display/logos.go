package display

import (
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
)

// LogoPathPrefix is where quote logos are served from.
const LogoPathPrefix = "/assets/images/"

// ImageFailureSet records symbols whose logo failed to load. Entries are never
// removed; a new set is created for each mount.
type ImageFailureSet struct {
	mu      sync.RWMutex
	symbols map[string]struct{}
}

// NewImageFailureSet returns an empty set.
func NewImageFailureSet() *ImageFailureSet {
	return &ImageFailureSet{symbols: make(map[string]struct{})}
}

// Add records symbol and reports whether it was not already present.
func (s *ImageFailureSet) Add(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.symbols[symbol]; ok {
		return false
	}
	s.symbols[symbol] = struct{}{}
	return true
}

// Has reports whether symbol's logo has failed.
func (s *ImageFailureSet) Has(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.symbols[symbol]
	return ok
}

// Len returns the number of failed symbols.
func (s *ImageFailureSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.symbols)
}

// Symbols returns the failed symbols, sorted.
func (s *ImageFailureSet) Symbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Logo is how one quote's logo renders.
type Logo struct {
	Src      string `json:"src"`
	Alt      string `json:"alt"`
	Badge    string `json:"badge"`
	Fallback bool   `json:"fallback"`
}

// LogoPath maps a symbol to its static image path.
func LogoPath(symbol string) string {
	return LogoPathPrefix + strings.ToLower(symbol) + ".png"
}

// Badge returns the fallback initials: the first two characters of the
// symbol, or "??" when it is empty.
func Badge(symbol string) string {
	r := []rune(symbol)
	switch {
	case len(r) == 0:
		return "??"
	case len(r) < 2:
		return string(r)
	default:
		return string(r[:2])
	}
}

// logoResolver decides per symbol between the image and the badge. When
// assets is set, a symbol whose file is missing counts as a failed load.
type logoResolver struct {
	assets   fs.FS
	failures *ImageFailureSet
	onFail   func(symbol, source string)
}

func (r *logoResolver) resolve(symbol, name string) Logo {
	alt := name
	if alt == "" {
		alt = symbol
	}
	logo := Logo{
		Src:   LogoPath(symbol),
		Alt:   alt + " logo",
		Badge: Badge(symbol),
	}
	if r.failures.Has(symbol) {
		logo.Fallback = true
		return logo
	}
	if r.assets != nil && !r.exists(symbol) {
		r.fail(symbol, "missing")
		logo.Fallback = true
	}
	return logo
}

func (r *logoResolver) exists(symbol string) bool {
	rel := path.Join("images", strings.ToLower(symbol)+".png")
	if !fs.ValidPath(rel) {
		return false
	}
	_, err := fs.Stat(r.assets, rel)
	return err == nil
}

func (r *logoResolver) fail(symbol, source string) bool {
	added := r.failures.Add(symbol)
	if added && r.onFail != nil {
		r.onFail(symbol, source)
	}
	return added
}
