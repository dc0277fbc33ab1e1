package mlworkflow

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFirstN(t *testing.T) {
	list := []int{1, 2, 3}
	deepEqual(t, firstN(list, 2), []int{1, 2})
	deepEqual(t, firstN(list, 3), list)
	deepEqual(t, firstN(list, 10), list)
	deepEqual(t, len(firstN(list, 0)), 0)
}

func TestCloseAndDeleteUnlessOK(t *testing.T) {
	newFile := func() *os.File {
		return must(os.Create(filepath.Join(t.TempDir(), "f")))
	}

	f := newFile()
	ok := false
	closeAndDeleteUnlessOK(f, &ok)
	if _, err := os.Stat(f.Name()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file survived a not-ok cleanup")
	}

	f = newFile()
	ensure(f.Close())
	ok = true
	closeAndDeleteUnlessOK(f, &ok)
	if _, err := os.Stat(f.Name()); err != nil {
		t.Errorf("file deleted despite ok: %v", err)
	}
}
