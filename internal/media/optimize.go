package media

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/joebot/courier/internal/logging"
)

// Options controls when and how images are recompressed.
type Options struct {
	// MaxImageSize caps the longer side of a recompressed image, in pixels.
	MaxImageSize int
	// Quality is the encoder quality factor, 0–1.
	Quality float64
	// MaxFileSize is the compression trigger: files at or below it are
	// left untouched.
	MaxFileSize int64
}

// DefaultOptions are used for zero fields of Options.
var DefaultOptions = Options{
	MaxImageSize: 1920,
	Quality:      0.8,
	MaxFileSize:  1 * mib,
}

func (o Options) withDefaults() Options {
	if o.MaxImageSize <= 0 {
		o.MaxImageSize = DefaultOptions.MaxImageSize
	}
	if o.Quality <= 0 || o.Quality > 1 {
		o.Quality = DefaultOptions.Quality
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = DefaultOptions.MaxFileSize
	}
	return o
}

// AttachmentRef is a staged attachment with its compression metadata.
type AttachmentRef struct {
	Source *File
	Type   Kind
	Name   string
	Size   int64

	// Preview is the transient handle for showing the attachment before
	// it is sent. Whoever removes the attachment from the pending set
	// releases it.
	Preview *Preview

	OriginalSize     int64
	OptimizedSize    int64
	CompressionRatio float64

	// RemoteURL is set once the attachment has been uploaded.
	RemoteURL string
}

// PreviewURL returns the handle URL, or "" once released.
func (a *AttachmentRef) PreviewURL() string {
	if a.Preview == nil || !a.Preview.Live() {
		return ""
	}
	return a.Preview.URL
}

// Release frees the preview handle.
func (a *AttachmentRef) Release() {
	if a != nil {
		a.Preview.Release()
	}
}

// ReleaseAll releases every ref in refs.
func ReleaseAll(refs []*AttachmentRef) {
	for _, r := range refs {
		r.Release()
	}
}

// Optimizer recompresses oversized images before upload.
type Optimizer struct {
	codec    Codec
	previews *Previews
	logger   *slog.Logger
}

// NewOptimizer creates an Optimizer. A nil codec selects StdCodec and a
// nil registry a fresh one.
func NewOptimizer(codec Codec, previews *Previews, logger *slog.Logger) *Optimizer {
	if codec == nil {
		codec = StdCodec{}
	}
	if previews == nil {
		previews = NewPreviews()
	}
	return &Optimizer{codec: codec, previews: previews, logger: logging.Component(logger, "media")}
}

// Previews returns the registry handles are created in.
func (o *Optimizer) Previews() *Previews { return o.previews }

// OptimizeFile returns f unchanged when it is at or below the size
// trigger or is not an image. Oversized images are scaled to fit
// MaxImageSize and re-encoded in their original format. Video,
// animated GIFs and image types the codec cannot write are passed
// through.
func (o *Optimizer) OptimizeFile(ctx context.Context, f *File, opts Options) (*File, error) {
	opts = opts.withDefaults()
	if f.Size() <= opts.MaxFileSize || KindOf(f.Type) != KindImage {
		return f, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Type == "image/gif" && animatedGIF(f.Data) {
		o.logger.Debug("animated GIF passed through", "name", f.Name)
		return f, nil
	}

	img, err := o.codec.Decode(f.Data)
	if err != nil {
		return nil, &ProcessingError{Name: f.Name, Op: "decode", Err: err}
	}
	b := img.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), opts.MaxImageSize)

	data, err := o.codec.Encode(img, w, h, f.Type, opts.Quality)
	if errors.Is(err, ErrEncodeUnsupported) {
		o.logger.Debug("no encoder for image type, keeping original", "name", f.Name, "type", f.Type)
		return f, nil
	}
	if err != nil {
		return nil, &ProcessingError{Name: f.Name, Op: "encode", Err: err}
	}
	if int64(len(data)) >= f.Size() {
		o.logger.Debug("recompressed image is not smaller, keeping original",
			"name", f.Name, "size", humanize.IBytes(uint64(f.Size())))
		return f, nil
	}

	o.logger.Info("image optimized",
		"name", f.Name,
		"from", humanize.IBytes(uint64(f.Size())),
		"to", humanize.IBytes(uint64(len(data))),
		"width", w, "height", h)
	return &File{Name: f.Name, Type: f.Type, Data: data}, nil
}

// CreateOptimizedFile optimizes f and stages it as an attachment with
// a fresh preview handle.
func (o *Optimizer) CreateOptimizedFile(ctx context.Context, f *File, opts Options) (*AttachmentRef, error) {
	optimized, err := o.OptimizeFile(ctx, f, opts)
	if err != nil {
		return nil, err
	}
	return &AttachmentRef{
		Source:           optimized,
		Type:             KindOf(optimized.Type),
		Name:             optimized.Name,
		Size:             optimized.Size(),
		Preview:          o.previews.Create(optimized),
		OriginalSize:     f.Size(),
		OptimizedSize:    optimized.Size(),
		CompressionRatio: CompressionRatio(f.Size(), optimized.Size()),
	}, nil
}

// OptimizeFiles stages every file concurrently. On any failure the
// handles already created are released and the first error is returned.
func (o *Optimizer) OptimizeFiles(ctx context.Context, files []*File, opts Options) ([]*AttachmentRef, error) {
	refs := make([]*AttachmentRef, len(files))
	errs := make([]error, len(files))

	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func() {
			defer wg.Done()
			refs[i], errs[i] = o.CreateOptimizedFile(ctx, f, opts)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			ReleaseAll(refs)
			return nil, err
		}
	}
	return refs, nil
}

// CompressionRatio returns the saved percentage rounded to one decimal.
func CompressionRatio(original, optimized int64) float64 {
	if original <= 0 || optimized >= original {
		return 0
	}
	r := float64(original-optimized) / float64(original) * 100
	return math.Round(r*10) / 10
}
