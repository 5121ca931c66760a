package descriptor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/supplychain-registry-client/interfaces"
)

// FileSource reads the descriptor from the local file system.
type FileSource struct {
	path        string
	log         *slog.Logger
	locationURI string
}

// NewFileSource creates a source reading path.
func NewFileSource(path string, log *slog.Logger) *FileSource {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &FileSource{
		path:        path,
		log:         log,
		locationURI: "file://" + abs,
	}
}

// Fetch reads the file. Returns ErrContentNotFound if it doesn't exist.
func (s *FileSource) Fetch(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, interfaces.ErrContentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read descriptor file: %w", err)
	}

	s.log.Debug("Read descriptor file", slog.String("path", s.path), slog.Int("size", len(data)))
	return data, nil
}

// Available checks that the file exists.
func (s *FileSource) Available(ctx context.Context) bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *FileSource) Name() string {
	return "file-" + filepath.Base(s.path)
}

func (s *FileSource) LocationURI() string {
	return s.locationURI
}
