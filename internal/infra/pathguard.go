package infra

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jpaulw/macmaint/internal/domain"
)

// PathGuard implements domain.PathValidator. It is a pure predicate:
// no side effects, safe to call in any mode.
type PathGuard struct {
	skipRe *regexp.Regexp // may be nil
}

// NewPathGuard creates a validator with an optional skip pattern
// matched against the target's base name.
func NewPathGuard(skipRe *regexp.Regexp) *PathGuard {
	return &PathGuard{skipRe: skipRe}
}

// Validate canonicalizes path (symlinks and relative segments
// resolved) and rejects it unless it is a descendant of root and its
// name does not match the skip pattern.
func (g *PathGuard) Validate(path, root string) error {
	canonRoot, err := canonicalize(root)
	if err != nil {
		return &domain.PathValidationError{Path: path, Root: root, Reason: "root not resolvable: " + err.Error()}
	}
	canon, err := canonicalize(path)
	if err != nil {
		return &domain.PathValidationError{Path: path, Root: root, Reason: "not resolvable: " + err.Error()}
	}

	rel, err := filepath.Rel(canonRoot, canon)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &domain.PathValidationError{Path: path, Root: root, Reason: "outside allowed root " + canonRoot}
	}

	if g.skipRe != nil && g.skipRe.MatchString(filepath.Base(canon)) {
		return &domain.PathValidationError{Path: path, Root: root, Reason: "matches skip pattern"}
	}
	return nil
}

// canonicalize resolves path to an absolute, symlink-free form.
// A path that does not exist yet is resolved through its nearest
// existing ancestor so intended targets can still be checked.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	current := abs
	var tail []string
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent, base := filepath.Split(filepath.Clean(current))
		if parent == current || base == "" {
			return "", err
		}
		tail = append(tail, base)
		current = filepath.Clean(parent)
	}
}

// Ensure PathGuard implements domain.PathValidator.
var _ domain.PathValidator = (*PathGuard)(nil)
