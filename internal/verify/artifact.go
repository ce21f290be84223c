package verify

import (
	"bytes"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
)

// writeScreenshot writes the capture to disk, creating parent directories if
// absent. An existing file at the path is overwritten.
func writeScreenshot(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}
	return nil
}

// writeThumbnail decodes the captured PNG, scales it to the given width
// preserving aspect ratio, and writes it next to the screenshot. Returns the
// thumbnail path.
func writeThumbnail(screenshotPath string, data []byte, width int) (string, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode screenshot: %w", err)
	}

	thumb := resize.Resize(uint(width), 0, img, resize.Lanczos3)

	path := thumbnailPath(screenshotPath)
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create thumbnail file: %w", err)
	}
	defer out.Close()

	if err := png.Encode(out, thumb); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return path, nil
}

// thumbnailPath derives the thumbnail location from the screenshot location,
// e.g. artifacts/shot.png -> artifacts/shot.thumb.png.
func thumbnailPath(screenshotPath string) string {
	ext := filepath.Ext(screenshotPath)
	if ext == "" {
		return screenshotPath + ".thumb.png"
	}
	return strings.TrimSuffix(screenshotPath, ext) + ".thumb" + ext
}
