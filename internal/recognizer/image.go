package recognizer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// ErrDecode is returned for images the decoder cannot handle.
var ErrDecode = errors.New("cannot decode image")

// cropPadding widens a face bounding box by this fraction of its size on
// each side before cropping, so the saved crop keeps some context.
const cropPadding = 0.15

// decodeImage decodes jpeg, png or bmp data.
func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrDecode
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// CropFace cuts the padded bounding box [x1, y1, x2, y2] out of the image
// and re-encodes it as JPEG. Coordinates outside the image are clamped.
func CropFace(data []byte, bbox []float64) ([]byte, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("bounding box needs 4 coordinates, got %d", len(bbox))
	}

	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()

	padX := (bbox[2] - bbox[0]) * cropPadding
	padY := (bbox[3] - bbox[1]) * cropPadding

	rect := image.Rect(
		clamp(int(bbox[0]-padX), bounds.Min.X, bounds.Max.X),
		clamp(int(bbox[1]-padY), bounds.Min.Y, bounds.Max.Y),
		clamp(int(bbox[2]+padX), bounds.Min.X, bounds.Max.X),
		clamp(int(bbox[3]+padY), bounds.Min.Y, bounds.Max.Y),
	)
	if rect.Dx() <= 0 || rect.Dy() <= 0 {
		return nil, fmt.Errorf("bounding box %v lies outside the image", bbox)
	}

	cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(cropped, cropped.Bounds(), img, rect.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, cropped, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode crop: %w", err)
	}
	return buf.Bytes(), nil
}

// ResizeImage resizes an image to fit within maxSize (width or height) while
// keeping aspect ratio, re-encoding as JPEG.
func ResizeImage(data []byte, maxSize int) ([]byte, error) {
	img, err := decodeImage(data)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if width <= maxSize && height <= maxSize {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		return buf.Bytes(), nil
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = int(float64(height) * float64(maxSize) / float64(width))
	} else {
		newHeight = maxSize
		newWidth = int(float64(width) * float64(maxSize) / float64(height))
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
