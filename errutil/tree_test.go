package errutil_test

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tfmlabs/tfmd/errutil"
)

func TestTree(t *testing.T) {
	t.Parallel()

	t.Run("NilErr", func(t *testing.T) {
		t.Parallel()
		assert.PanicsWithValue(t, "nil error", func() { errutil.Tree(nil) })
	})

	t.Run("SimpleStringErr", func(t *testing.T) {
		t.Parallel()
		tree := errutil.Tree(errors.New("track not found"))
		expected := errutil.ErrInfo{
			Message:  "track not found",
			TypeName: "*errors.errorString",
			Children: nil,
		}
		assertErrInfoAreEqual(t, expected, tree)
	})

	t.Run("JoinedSimpleStringErrs", func(t *testing.T) {
		t.Parallel()
		tree := errutil.Tree(
			errors.Join(
				errors.New("channel fetch failed"),
				errors.New("folder fetch failed"),
			),
		)
		expected := errutil.ErrInfo{
			Message:  "channel fetch failed\nfolder fetch failed",
			TypeName: "*errors.joinError",
			Children: []errutil.ErrInfo{
				{
					Message:  "channel fetch failed",
					TypeName: "*errors.errorString",
					Children: nil,
				},
				{
					Message:  "folder fetch failed",
					TypeName: "*errors.errorString",
					Children: nil,
				},
			},
		}
		assertErrInfoAreEqual(t, expected, tree)
	})

	t.Run("UnwrapableErr", func(t *testing.T) {
		t.Parallel()
		_, err := os.ReadDir("nonexistent")
		tree := errutil.Tree(fmt.Errorf("failed to read cache dir: %w", err))
		expected := errutil.ErrInfo{
			Message:  "failed to read cache dir: open nonexistent: no such file or directory",
			TypeName: "*fmt.wrapError",
			Children: []errutil.ErrInfo{
				{
					Message:  "open nonexistent: no such file or directory",
					TypeName: "*fs.PathError",
					Children: []errutil.ErrInfo{
						{
							Message:  "no such file or directory",
							TypeName: "syscall.Errno",
							Children: nil,
						},
					},
				},
			},
		}
		assertErrInfoAreEqual(t, expected, tree)
	})
}

func assertErrInfoAreEqual(t *testing.T, expected, actual errutil.ErrInfo) {
	t.Helper()
	assert.Exactly(t, expected.Message, actual.Message, "unequal Message field: expected: %q, actual: %q", expected.Message, actual.Message)
	assert.Exactly(t, expected.TypeName, actual.TypeName, "unequal TypeName field: expected: %q, actual: %q", expected.TypeName, actual.TypeName)
	assert.Len(t, actual.Children, len(expected.Children), "unequal Children length: expected: %d, actual: %d", len(expected.Children), len(actual.Children))
	for i, child := range actual.Children {
		assertErrInfoAreEqual(t, expected.Children[i], child)
	}
}
