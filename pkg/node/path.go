// ABOUTME: Normalized hierarchical path type
// ABOUTME: Supports parent/child derivation and name extraction

package node

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath is returned when a path string cannot be normalized.
var ErrInvalidPath = errors.New("invalid path")

// Path is a normalized, slash-separated hierarchical identifier.
// The zero value is not a valid path; construct through ParsePath.
type Path struct {
	s string
}

// RootPath is the repository root ("/").
var RootPath = Path{s: "/"}

// ParsePath validates and normalizes a path string.
// Accepted paths are absolute, contain no empty or relative ("." / "..")
// segments, and carry no trailing slash except for the root itself.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if !strings.HasPrefix(s, "/") {
		return Path{}, fmt.Errorf("%w: not absolute: %q", ErrInvalidPath, s)
	}
	if s == "/" {
		return RootPath, nil
	}
	if strings.HasSuffix(s, "/") {
		return Path{}, fmt.Errorf("%w: trailing slash: %q", ErrInvalidPath, s)
	}
	for _, seg := range strings.Split(s[1:], "/") {
		if seg == "" {
			return Path{}, fmt.Errorf("%w: empty segment: %q", ErrInvalidPath, s)
		}
		if seg == "." || seg == ".." {
			return Path{}, fmt.Errorf("%w: relative segment: %q", ErrInvalidPath, s)
		}
	}
	return Path{s: s}, nil
}

// MustPath parses a path and panics on error. Intended for tests and
// compile-time-constant paths.
func MustPath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the normalized path string.
func (p Path) String() string { return p.s }

// IsZero reports whether the path is the invalid zero value.
func (p Path) IsZero() bool { return p.s == "" }

// IsRoot reports whether the path is the repository root.
func (p Path) IsRoot() bool { return p.s == "/" }

// Name returns the last segment of the path; the root's name is empty.
func (p Path) Name() string {
	if p.IsRoot() || p.IsZero() {
		return ""
	}
	return p.s[strings.LastIndexByte(p.s, '/')+1:]
}

// Parent returns the parent path; the root is its own parent.
func (p Path) Parent() Path {
	if p.IsRoot() || p.IsZero() {
		return RootPath
	}
	idx := strings.LastIndexByte(p.s, '/')
	if idx == 0 {
		return RootPath
	}
	return Path{s: p.s[:idx]}
}

// Child derives a child path with the given name.
func (p Path) Child(name string) (Path, error) {
	if name == "" || strings.ContainsRune(name, '/') {
		return Path{}, fmt.Errorf("%w: bad child name: %q", ErrInvalidPath, name)
	}
	if p.IsRoot() {
		return ParsePath("/" + name)
	}
	return ParsePath(p.s + "/" + name)
}

// Depth returns the number of segments; the root has depth 0.
func (p Path) Depth() int {
	if p.IsRoot() || p.IsZero() {
		return 0
	}
	return strings.Count(p.s, "/")
}

// IsAncestorOf reports whether p is a strict ancestor of other.
func (p Path) IsAncestorOf(other Path) bool {
	if p.IsZero() || other.IsZero() || p == other {
		return false
	}
	if p.IsRoot() {
		return true
	}
	return strings.HasPrefix(other.s, p.s+"/")
}
