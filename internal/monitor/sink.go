package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rileyhilliard/fleetwatch/internal/errors"
)

// Publisher receives every snapshot after it lands in the Store. Errors
// are logged by the scheduler and never stop collection.
type Publisher interface {
	Publish(snap *FleetSnapshot) error
}

// FileSink writes each snapshot as indented JSON to Path. The file is
// replaced by rename so readers see either the old or the new document.
type FileSink struct {
	Path string
}

// NewFileSink creates a sink for path.
func NewFileSink(path string) *FileSink {
	return &FileSink{Path: path}
}

// Publish writes snap to the sink's path.
func (f *FileSink) Publish(snap *FleetSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrAggregation,
			"Couldn't encode snapshot", "")
	}
	data = append(data, '\n')

	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".*")
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't write snapshot file "+f.Path,
			"Check that "+dir+" exists and is writable")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't write snapshot file "+f.Path, "")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't write snapshot file "+f.Path, "")
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't write snapshot file "+f.Path, "")
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		os.Remove(tmpName)
		return errors.WrapWithCode(err, errors.ErrConfig, "Couldn't replace snapshot file "+f.Path, "")
	}
	return nil
}
