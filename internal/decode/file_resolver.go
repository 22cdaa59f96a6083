package decode

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/afero"
)

// FileResolver checks that requested track paths exist and are regular
// files before any decoder is spawned for them
type FileResolver struct {
	fs afero.Fs
}

// NewFileResolver creates a resolver over the given filesystem
func NewFileResolver(fs afero.Fs) *FileResolver {
	return &FileResolver{fs: fs}
}

// Resolve validates that path names a readable regular file
func (f *FileResolver) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("track path cannot be empty")
	}

	info, err := f.fs.Stat(path)
	if err != nil {
		slog.Debug("track not found", "path", path, "error", err)
		return "", fmt.Errorf("track not found: %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("track path is a directory: %s", path)
	}

	return path, nil
}

// ResolveWithExtensions tries each supported extension against a base
// path and returns the first existing candidate
func (f *FileResolver) ResolveWithExtensions(basePath string, extensions []string) (string, error) {
	if basePath == "" {
		return "", fmt.Errorf("base path cannot be empty")
	}

	for _, ext := range extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		candidate := basePath + ext
		if _, err := f.fs.Stat(candidate); err == nil {
			slog.Debug("track resolved",
				"base_path", basePath,
				"resolved_path", candidate)
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no track found for base path %s with extensions %v",
		basePath, extensions)
}
