package raster

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "github.com/spakin/netpbm"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/adverant/nexus/ocr-worker/internal/errors"
	"github.com/adverant/nexus/ocr-worker/internal/logging"
)

const (
	// MaxPathLength bounds accepted file paths
	MaxPathLength = 4096
	// LargeFileThreshold triggers a warning but never a failure
	LargeFileThreshold = 100 * 1024 * 1024
)

// SupportedExtensions is the closed allow-list of input formats.
var SupportedExtensions = []string{
	"jpg", "jpeg", "png", "bmp", "tiff", "tif",
	"gif", "webp", "pnm", "pbm", "pgm", "ppm",
}

var logger = logging.NewLogger("raster")

// Limits carries the configured maximum dimensions. Exceeding them is only
// logged; resizing is left to the pipeline.
type Limits struct {
	MaxWidth  int
	MaxHeight int
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	base := filepath.Base(name)
	dot := strings.LastIndexByte(base, '.')
	if dot <= 0 {
		return ""
	}
	return strings.ToLower(base[dot+1:])
}

// IsSupported reports whether name carries an allow-listed extension.
func IsSupported(name string) bool {
	ext := Extension(name)
	if ext == "" {
		return false
	}
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// Validate checks that path names a readable file with a supported image
// extension and a positive size.
func Validate(path string) error {
	if path == "" {
		logger.Error("File path is empty")
		return errors.NewInvalidParameterError("file path is empty")
	}
	if len(path) >= MaxPathLength {
		logger.Error("File path too long", "length", len(path))
		return errors.NewInvalidParameterError(fmt.Sprintf("file path too long: %d bytes", len(path)))
	}

	info, err := os.Stat(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			logger.Error("File does not exist", "path", path)
			return errors.NewFileNotFoundError(path, err)
		}
		if stderrors.Is(err, fs.ErrPermission) {
			logger.Error("No permission to stat file", "path", path)
			return errors.NewPermissionDeniedError(path, err)
		}
		return errors.NewFileNotFoundError(path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Error("No read permission for file", "path", path)
		return errors.NewPermissionDeniedError(path, err)
	}
	f.Close()

	if !IsSupported(path) {
		logger.Error("Unsupported image format", "path", path, "extension", Extension(path))
		return errors.NewInvalidImageError(path, fmt.Sprintf("unsupported extension %q", Extension(path)), nil)
	}

	if !info.Mode().IsRegular() || info.Size() <= 0 {
		logger.Error("Invalid file size", "path", path, "size", info.Size())
		return errors.NewInvalidImageError(path, fmt.Sprintf("invalid file size: %d bytes", info.Size()), nil)
	}

	if info.Size() > LargeFileThreshold {
		logger.Warn("Large file size", "path", path, "size", info.Size())
	}

	return nil
}

// Load validates and decodes the image at path.
func Load(path string, limits Limits) (*Image, error) {
	if err := Validate(path); err != nil {
		return nil, err
	}

	logger.Info("Loading image", "path", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewPermissionDeniedError(path, err)
	}
	defer f.Close()

	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		logger.Error("Failed to decode image", "path", path, "error", err)
		return nil, errors.NewInvalidImageError(path, "decode failed", err)
	}

	return accept(path, img, limits)
}

// LoadFromMemory decodes an in-memory image. The language must be non-empty
// because memory calls carry no configured default of their own.
func LoadFromMemory(data []byte, language string, limits Limits) (*Image, error) {
	if len(data) == 0 {
		logger.Error("Invalid parameters for memory OCR", "size", 0)
		return nil, errors.NewInvalidParameterError("image buffer is empty")
	}
	if strings.TrimSpace(language) == "" {
		logger.Error("Invalid parameters for memory OCR", "language", "")
		return nil, errors.NewInvalidParameterError("language is required")
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		logger.Error("Could not read image from memory", "size", len(data), "error", err)
		return nil, errors.NewInvalidImageError("", "decode failed", err)
	}

	return accept("<memory>", img, limits)
}

func accept(source string, img image.Image, limits Limits) (*Image, error) {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	logger.Info("Image loaded", "source", source, "width", width, "height", height, "depth", Depth(img))

	if width <= 0 || height <= 0 {
		logger.Error("Invalid image dimensions", "width", width, "height", height)
		return nil, errors.NewInvalidImageError(source, fmt.Sprintf("invalid dimensions %dx%d", width, height), nil)
	}

	if (limits.MaxWidth > 0 && width > limits.MaxWidth) || (limits.MaxHeight > 0 && height > limits.MaxHeight) {
		logger.Warn("Image exceeds maximum dimensions, will be resized",
			"width", width, "height", height, "max_width", limits.MaxWidth, "max_height", limits.MaxHeight)
	}

	return New(img), nil
}
