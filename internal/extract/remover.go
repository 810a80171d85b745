package extract

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"
)

// Remover deletes conflicting paths under a root directory.
type Remover interface {
	Remove(root, rel string) error
}

// FSRemover removes paths from the local filesystem. The relative path is
// resolved with securejoin, so ".." components and symlinked parents
// cannot lead outside root.
type FSRemover struct{}

// Remove deletes root/rel recursively. A path that is already gone is not
// an error. The final component is not followed if it is a symlink; the
// link itself is removed.
func (FSRemover) Remove(root, rel string) error {
	parent, err := securejoin.SecureJoin(root, filepath.Dir(rel))
	if err != nil {
		return fmt.Errorf("resolve %s under %s: %w", rel, root, err)
	}
	base := filepath.Base(rel)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return fmt.Errorf("refusing to remove %q under %s", rel, root)
	}
	full := filepath.Join(parent, base)
	if full == filepath.Clean(root) {
		return fmt.Errorf("refusing to remove target directory %s", root)
	}

	if err := os.RemoveAll(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", full, err)
	}
	return nil
}
