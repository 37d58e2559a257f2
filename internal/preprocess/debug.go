package preprocess

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"github.com/adverant/nexus/ocr-worker/internal/raster"
)

// SaveDebugImage writes img as PNG into dir, named <prefix>_<unix nanos>.png,
// and returns the written path.
func SaveDebugImage(img *raster.Image, dir, prefix string) (string, error) {
	if img.Released() {
		return "", fmt.Errorf("cannot save released image")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create debug directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_%d.png", prefix, time.Now().UnixNano()))
	if err := imaging.Save(img.Pix(), path); err != nil {
		return "", fmt.Errorf("failed to save debug image: %w", err)
	}
	return path, nil
}
