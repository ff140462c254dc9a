package filematch

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

const (
	KindMesh    = "mesh"
	KindScene   = "scene"
	KindTexture = "texture"
)

type Matcher struct {
	extensions map[string]bool
	patterns   []glob.Glob
}

func New(extensions, patterns []string) (*Matcher, error) {
	m := &Matcher{
		extensions: make(map[string]bool),
	}

	for _, ext := range extensions {
		m.extensions[normalizeExt(ext)] = true
	}

	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		m.patterns = append(m.patterns, g)
	}

	return m, nil
}

func normalizeExt(ext string) string {
	normalized := strings.ToLower(ext)
	if !strings.HasPrefix(normalized, ".") {
		normalized = "." + normalized
	}
	return normalized
}

func (m *Matcher) MatchesExtension(ext string) bool {
	if len(m.extensions) == 0 || ext == "" {
		return false
	}
	return m.extensions[normalizeExt(ext)]
}

func (m *Matcher) MatchesPattern(path string) bool {
	if len(m.patterns) == 0 {
		return false
	}
	path = filepath.ToSlash(path)
	filename := filepath.Base(path)
	for _, g := range m.patterns {
		if g.Match(filename) || g.Match(path) {
			return true
		}
	}
	return false
}

// Matches reports whether path matches by extension or, failing that, by pattern.
func (m *Matcher) Matches(path string) bool {
	if m.MatchesExtension(filepath.Ext(path)) {
		return true
	}
	return path != "" && m.MatchesPattern(path)
}

type MatcherSet struct {
	matchers []namedMatcher
}

type namedMatcher struct {
	name    string
	matcher *Matcher
}

func NewMatcherSet() *MatcherSet {
	return &MatcherSet{}
}

// DefaultSet classifies the formats Blender exports and Unreal imports.
func DefaultSet() *MatcherSet {
	ms := NewMatcherSet()
	// static inputs; New cannot fail without patterns
	_ = ms.Add(KindMesh, []string{"fbx", "obj", "gltf", "glb", "usd", "usda", "usdc"}, nil)
	_ = ms.Add(KindScene, []string{"blend"}, nil)
	_ = ms.Add(KindTexture, []string{"png", "jpg", "jpeg", "tga", "exr"}, nil)
	return ms
}

func (ms *MatcherSet) Add(name string, extensions, patterns []string) error {
	m, err := New(extensions, patterns)
	if err != nil {
		return err
	}
	ms.matchers = append(ms.matchers, namedMatcher{name: name, matcher: m})
	return nil
}

// Match returns the name of the first matcher accepting path, or "".
func (ms *MatcherSet) Match(path string) string {
	for _, nm := range ms.matchers {
		if nm.matcher.Matches(path) {
			return nm.name
		}
	}
	return ""
}

func (ms *MatcherSet) MatchByExtension(ext string) string {
	for _, nm := range ms.matchers {
		if nm.matcher.MatchesExtension(ext) {
			return nm.name
		}
	}
	return ""
}

func (ms *MatcherSet) Names() []string {
	names := make([]string, len(ms.matchers))
	for i, nm := range ms.matchers {
		names[i] = nm.name
	}
	return names
}
