package drapto

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

// ProgressUpdate captures a single Drapto progress observation.
type ProgressUpdate struct {
	Percent float64
	Stage   string
	Message string
	Warning bool
}

// Client encodes inputPath into outputDir and returns the encoded file path.
type Client interface {
	Encode(ctx context.Context, inputPath, outputDir string, progress func(ProgressUpdate)) (string, error)
}

func validateArgs(inputPath, outputDir string) error {
	if strings.TrimSpace(inputPath) == "" {
		return errors.New("input path required")
	}
	if strings.TrimSpace(outputDir) == "" {
		return errors.New("output directory required")
	}
	return nil
}

// OutputPath is where Drapto writes the encode of inputPath.
func OutputPath(inputPath, outputDir string) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		stem = base
	}
	return filepath.Join(strings.TrimSpace(outputDir), stem+".mkv")
}
