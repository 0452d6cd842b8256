package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	apperrors "platform-snapshot/internal/errors"
)

// ReadFile loads a snapshot from a path on disk, decoding it by file name
func ReadFile(path string, codec Codec) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.NewSetupError(fmt.Sprintf("snapshot file %s does not exist", path), err)
	}
	if err != nil {
		return nil, apperrors.NewSetupError(fmt.Sprintf("cannot read snapshot file %s", path), err)
	}
	return codec.Unmarshal(filepath.Base(path), data)
}
