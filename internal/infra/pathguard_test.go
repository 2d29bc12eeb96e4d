package infra

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpaulw/macmaint/internal/domain"
)

// TestValidate_Descendant verifies paths inside the root pass
func TestValidate_Descendant(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "Some App")
	require.NoError(t, os.Mkdir(target, 0o755))

	g := NewPathGuard(nil)
	assert.NoError(t, g.Validate(target, root))
}

// TestValidate_EscapeRejected verifies relative escapes are rejected
func TestValidate_EscapeRejected(t *testing.T) {
	root := t.TempDir()
	g := NewPathGuard(nil)

	err := g.Validate(filepath.Join(root, "..", "..", "etc"), root)
	require.Error(t, err)

	var pathErr *domain.PathValidationError
	require.ErrorAs(t, err, &pathErr)
	assert.Contains(t, pathErr.Reason, "outside allowed root")
}

// TestValidate_RootItself verifies the root validates against itself
func TestValidate_RootItself(t *testing.T) {
	root := t.TempDir()
	g := NewPathGuard(nil)
	assert.NoError(t, g.Validate(filepath.Join(root, "x"), root))
	assert.NoError(t, g.Validate(root, root))
}

// TestValidate_SymlinkEscapeRejected verifies symlinks cannot smuggle
// a target outside the root
func TestValidate_SymlinkEscapeRejected(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "sneaky")
	require.NoError(t, os.Symlink(outside, link))

	g := NewPathGuard(nil)
	err := g.Validate(link, root)
	require.Error(t, err)
}

// TestValidate_SkipPattern verifies protected names are rejected
func TestValidate_SkipPattern(t *testing.T) {
	root := t.TempDir()
	protected := filepath.Join(root, "com.apple.Safari")
	require.NoError(t, os.Mkdir(protected, 0o755))

	g := NewPathGuard(regexp.MustCompile(`^com\.apple\.`))
	err := g.Validate(protected, root)
	require.Error(t, err)

	var pathErr *domain.PathValidationError
	require.ErrorAs(t, err, &pathErr)
	assert.Contains(t, pathErr.Reason, "skip pattern")

	// Non-matching sibling passes.
	ok := filepath.Join(root, "ThirdPartyApp")
	require.NoError(t, os.Mkdir(ok, 0o755))
	assert.NoError(t, g.Validate(ok, root))
}

// TestValidate_NonexistentLeaf verifies planned targets resolve
// through their parent
func TestValidate_NonexistentLeaf(t *testing.T) {
	root := t.TempDir()
	g := NewPathGuard(nil)

	// An archive path that does not exist yet must still validate.
	assert.NoError(t, g.Validate(filepath.Join(root, "App__DELETE-20261130.zip"), root))

	// But a nonexistent leaf outside the root is still rejected.
	err := g.Validate(filepath.Join(os.TempDir(), "elsewhere.zip"), root)
	assert.Error(t, err)
}
