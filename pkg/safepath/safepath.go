// Absolute filesystem paths with an explicit is-descendant-of relation.
// Raw string prefix checks are how "/home2" ends up matching "/home"; every
// path comparison in this codebase goes through this type instead.
package safepath

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Path is an absolute, cleaned filesystem path. The zero value is invalid;
// construct via Parse.
type Path struct {
	s string
}

func Parse(raw string) (Path, error) {
	if !filepath.IsAbs(raw) {
		return Path{}, fmt.Errorf("safepath: not an absolute path: %q", raw)
	}

	return Path{filepath.Clean(raw)}, nil
}

// MustParse panics on invalid input. Only for statically known inputs.
func MustParse(raw string) Path {
	p, err := Parse(raw)
	if err != nil {
		panic(err)
	}

	return p
}

func (p Path) String() string {
	return p.s
}

func (p Path) Equals(other Path) bool {
	return p.s == other.s
}

// IsDescendantOf reports whether p lies strictly below ancestor, i.e. is
// separated from it by at least one path component.
func (p Path) IsDescendantOf(ancestor Path) bool {
	prefix := ancestor.s
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}

	return len(p.s) > len(prefix) && strings.HasPrefix(p.s, prefix)
}

// Within reports whether p equals root or descends from it.
func (p Path) Within(root Path) bool {
	return p.Equals(root) || p.IsDescendantOf(root)
}

func (p Path) Join(elem ...string) Path {
	return Path{filepath.Join(append([]string{p.s}, elem...)...)}
}

// Parent returns the containing directory. The filesystem root is its own
// parent, so upward walks must check for the fixed point.
func (p Path) Parent() Path {
	return Path{filepath.Dir(p.s)}
}

// RelativeTo returns the path of p relative to root ("." when equal).
func (p Path) RelativeTo(root Path) (string, error) {
	if p.Equals(root) {
		return ".", nil
	}
	if !p.IsDescendantOf(root) {
		return "", fmt.Errorf("safepath: %s is not within %s", p, root)
	}

	prefix := root.s
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}

	return p.s[len(prefix):], nil
}

// RebaseOnto maps p from under oldRoot to the same relative location under
// newRoot. oldRoot itself maps to newRoot.
func (p Path) RebaseOnto(oldRoot Path, newRoot Path) (Path, error) {
	rel, err := p.RelativeTo(oldRoot)
	if err != nil {
		return Path{}, err
	}

	return newRoot.Join(rel), nil
}
