package services

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/imgx/internal/models"
	"github.com/desertthunder/imgx/internal/shared"
)

// SupportedFormats lists the conversion targets the backend accepts.
var SupportedFormats = []string{"jpeg", "png", "webp", "avif", "bmp", "gif", "tiff", "heic"}

// NormalizeFormat lowercases f and maps jpg to jpeg.
func NormalizeFormat(f string) string {
	f = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
	if f == "jpg" {
		return "jpeg"
	}
	return f
}

// ImageOptions is one image operation's parameters.
type ImageOptions interface {
	Operation() models.Operation
	Validate() error
	fields() map[string]string
}

// ConvertOptions converts to another format. Zero Quality, Width and Height are not sent.
type ConvertOptions struct {
	Format  string
	Quality int
	Width   int
	Height  int
}

func (o ConvertOptions) Operation() models.Operation { return models.OpConvert }

func (o ConvertOptions) Validate() error {
	if !slices.Contains(SupportedFormats, NormalizeFormat(o.Format)) {
		return fmt.Errorf("%w: unsupported format %q (want one of %s)", shared.ErrInvalidArgument, o.Format, strings.Join(SupportedFormats, ", "))
	}
	if err := validQuality(o.Quality); err != nil {
		return err
	}
	if o.Width < 0 || o.Height < 0 {
		return fmt.Errorf("%w: width and height cannot be negative", shared.ErrInvalidArgument)
	}
	return nil
}

func (o ConvertOptions) fields() map[string]string {
	f := map[string]string{"target_format": NormalizeFormat(o.Format)}
	putInt(f, "quality", o.Quality)
	putInt(f, "width", o.Width)
	putInt(f, "height", o.Height)
	return f
}

// CompressOptions recompresses, optionally bounding the output dimensions.
type CompressOptions struct {
	Quality   int
	MaxWidth  int
	MaxHeight int
}

func (o CompressOptions) Operation() models.Operation { return models.OpCompress }

func (o CompressOptions) Validate() error {
	if err := validQuality(o.Quality); err != nil {
		return err
	}
	if o.MaxWidth < 0 || o.MaxHeight < 0 {
		return fmt.Errorf("%w: max dimensions cannot be negative", shared.ErrInvalidArgument)
	}
	return nil
}

func (o CompressOptions) fields() map[string]string {
	f := map[string]string{}
	putInt(f, "quality", o.Quality)
	putInt(f, "maxWidth", o.MaxWidth)
	putInt(f, "maxHeight", o.MaxHeight)
	return f
}

// CropOptions cuts a Width×Height rectangle whose top-left corner is at X, Y.
type CropOptions struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (o CropOptions) Operation() models.Operation { return models.OpCrop }

func (o CropOptions) Validate() error {
	if o.X < 0 || o.Y < 0 {
		return fmt.Errorf("%w: crop origin cannot be negative", shared.ErrInvalidArgument)
	}
	if o.Width <= 0 || o.Height <= 0 {
		return fmt.Errorf("%w: crop width and height must be positive", shared.ErrInvalidArgument)
	}
	return nil
}

func (o CropOptions) fields() map[string]string {
	return map[string]string{
		"x":      strconv.Itoa(o.X),
		"y":      strconv.Itoa(o.Y),
		"width":  strconv.Itoa(o.Width),
		"height": strconv.Itoa(o.Height),
	}
}

// ResizeOptions scales the image. With the aspect ratio kept, one dimension is enough.
type ResizeOptions struct {
	Width               int
	Height              int
	MaintainAspectRatio bool
}

func (o ResizeOptions) Operation() models.Operation { return models.OpResize }

func (o ResizeOptions) Validate() error {
	if o.Width < 0 || o.Height < 0 {
		return fmt.Errorf("%w: width and height cannot be negative", shared.ErrInvalidArgument)
	}
	if o.Width == 0 && o.Height == 0 {
		return fmt.Errorf("%w: resize needs a width or a height", shared.ErrMissingArgument)
	}
	if !o.MaintainAspectRatio && (o.Width == 0 || o.Height == 0) {
		return fmt.Errorf("%w: both width and height are required without --keep-aspect", shared.ErrMissingArgument)
	}
	return nil
}

func (o ResizeOptions) fields() map[string]string {
	f := map[string]string{"maintainAspectRatio": strconv.FormatBool(o.MaintainAspectRatio)}
	putInt(f, "width", o.Width)
	putInt(f, "height", o.Height)
	return f
}

func validQuality(q int) error {
	if q != 0 && (q < 1 || q > 100) {
		return fmt.Errorf("%w: quality must be between 1 and 100", shared.ErrInvalidArgument)
	}
	return nil
}

func putInt(f map[string]string, key string, v int) {
	if v > 0 {
		f[key] = strconv.Itoa(v)
	}
}

// ImageResult is the backend's record of a processed image.
type ImageResult struct {
	ID           string    `json:"id"`
	OriginalURL  string    `json:"originalUrl"`
	ProcessedURL string    `json:"processedUrl"`
	Format       string    `json:"format"`
	Size         int64     `json:"size"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ImageService submits image operations.
type ImageService struct {
	api *APIService
}

func NewImageService(api *APIService) *ImageService {
	return &ImageService{api: api}
}

// Process uploads content under filename and applies opts.
func (s *ImageService) Process(ctx context.Context, filename string, content []byte, opts ImageOptions) (*ImageResult, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", shared.ErrInvalidInput, filename)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	form := &Multipart{
		Fields: opts.fields(),
		Files:  []FilePart{{Field: "file", Filename: filename, Content: content}},
	}

	resp, err := s.api.Upload(ctx, "/api/image/"+string(opts.Operation()), form)
	if err != nil {
		return nil, err
	}

	var result ImageResult
	if err := resp.Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *ImageService) Convert(ctx context.Context, filename string, content []byte, opts ConvertOptions) (*ImageResult, error) {
	return s.Process(ctx, filename, content, opts)
}

func (s *ImageService) Compress(ctx context.Context, filename string, content []byte, opts CompressOptions) (*ImageResult, error) {
	return s.Process(ctx, filename, content, opts)
}

func (s *ImageService) Crop(ctx context.Context, filename string, content []byte, opts CropOptions) (*ImageResult, error) {
	return s.Process(ctx, filename, content, opts)
}

func (s *ImageService) Resize(ctx context.Context, filename string, content []byte, opts ResizeOptions) (*ImageResult, error) {
	return s.Process(ctx, filename, content, opts)
}

// Download fetches a processed image. ref is a path on the backend or an absolute URL under
// its base; other hosts are rejected so the credential is never sent elsewhere.
func (s *ImageService) Download(ctx context.Context, ref string) ([]byte, error) {
	path := ref
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		rest, ok := strings.CutPrefix(ref, s.api.BaseURL())
		if !ok {
			return nil, fmt.Errorf("%w: %s is not served by %s", shared.ErrInvalidInput, ref, s.api.BaseURL())
		}
		path = rest
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	resp, err := s.api.Do(ctx, &Request{Method: "GET", Path: path, Tier: TierUpload})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
