package restyutil

import (
	"log/slog"
	"lotwatch/dev/env"
	"os"
	"path/filepath"
)

// FilesystemOutput writes every dumped http message into its own file, it
// implements telemetry.InstrumentOutput.
type FilesystemOutput struct {
	directory string
}

// NewFilesystemOutput clears `dir` (which may use the <dev_state> prefix)
// and returns an output writing into it.
func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	dir, err := devenv.ResolvePath(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.RemoveAll(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(o.directory, id+".txt"), []byte(contents), 0600)
	if err != nil {
		slog.Warn("failed to write message info file", "id", id, "err", err)
	}
}
