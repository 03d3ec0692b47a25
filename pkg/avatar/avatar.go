package avatar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

const (
	// MaxDimension is the longest edge of a stored avatar.
	MaxDimension = 256
	jpegQuality  = 85
)

var ErrDecode = errors.New("avatar: unsupported or corrupt image")

// Store persists encoded avatars and returns a public URL.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

type Processor struct {
	store Store
}

func NewProcessor(store Store) *Processor {
	return &Processor{store: store}
}

// Process resizes the image and uploads it under avatars/{userID}/.
func (p *Processor) Process(ctx context.Context, userID string, data []byte) (string, error) {
	out, err := Resize(data, MaxDimension)
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("avatars/%s/%d-%s.jpg", userID, time.Now().Unix(), uuid.NewString()[:8])
	return p.store.Put(ctx, key, out, "image/jpeg")
}

// Resize scales the image so its longest edge is at most maxDimension and
// re-encodes it as JPEG. Smaller images keep their size.
func Resize(data []byte, maxDimension int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	bounds := img.Bounds()
	w, h := fit(bounds.Dx(), bounds.Dy(), maxDimension)

	resized := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode avatar: %w", err)
	}
	return buf.Bytes(), nil
}

func fit(width, height, limit int) (int, int) {
	if width <= limit && height <= limit {
		return width, height
	}
	if width > height {
		return limit, max(1, height*limit/width)
	}
	return max(1, width*limit/height), limit
}
