package evaluator

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
	"github.com/wailsapp/mimetype"
)

const thumbnailWidth = 600

// thumbnail scales a PNG or JPEG down to maxWidth and re-encodes it as JPEG.
func thumbnail(content []byte, maxWidth uint) ([]byte, string, error) {
	mType := mimetype.Detect(content)
	if mType == nil {
		return nil, "", fmt.Errorf("unknown image type")
	}

	var img image.Image
	var err error
	switch mType.String() {
	case "image/jpeg":
		img, err = jpeg.Decode(bytes.NewReader(content))
	case "image/png":
		img, err = png.Decode(bytes.NewReader(content))
	default:
		return nil, "", fmt.Errorf("unsupported image format: %s", mType.String())
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}

	width := uint(img.Bounds().Dx())
	if width > maxWidth {
		width = maxWidth
	}
	resized := resize.Resize(width, 0, img, resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, "", fmt.Errorf("failed to encode image to JPEG: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}
