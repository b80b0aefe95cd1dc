package drapto

import (
	"context"

	draptolib "github.com/five82/drapto"
)

// Library implements Client using the Drapto Go library directly.
type Library struct {
	opts []draptolib.Option
}

// NewLibrary constructs a Library client. Responsive mode is always on so
// encodes yield CPU to the render workers.
func NewLibrary(opts ...draptolib.Option) *Library {
	return &Library{opts: append([]draptolib.Option{draptolib.WithResponsive()}, opts...)}
}

// Encode encodes a video file using the Drapto library.
func (l *Library) Encode(ctx context.Context, inputPath, outputDir string, progress func(ProgressUpdate)) (string, error) {
	if err := validateArgs(inputPath, outputDir); err != nil {
		return "", err
	}

	encoder, err := draptolib.New(l.opts...)
	if err != nil {
		return "", err
	}

	var rep draptolib.Reporter
	if progress != nil {
		rep = newProgressReporter(progress)
	}
	if _, err := encoder.EncodeWithReporter(ctx, inputPath, outputDir, rep); err != nil {
		return "", err
	}
	return OutputPath(inputPath, outputDir), nil
}

var _ Client = (*Library)(nil)
