// Package imaging compresses survey background images for transport.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// Quality selects how hard the encoder works. Background images are blurred
// screenshots, so the default favours speed.
type Quality string

const (
	QualityDefault Quality = "default"
	QualityNone    Quality = "none"
	QualitySpeed   Quality = "speed"
	QualityBest    Quality = "best"
)

// DefaultQuality is the compression quality used when none is configured.
const DefaultQuality = QualitySpeed

// ValidQualities returns all valid quality values.
func ValidQualities() []Quality {
	return []Quality{QualityDefault, QualityNone, QualitySpeed, QualityBest}
}

// Codec compresses images to PNG and back.
type Codec struct {
	encoder png.Encoder
}

// NewCodec creates a Codec for the given quality.
// Unknown values use DefaultQuality.
func NewCodec(q Quality) *Codec {
	return &Codec{encoder: png.Encoder{CompressionLevel: compressionLevel(q)}}
}

func compressionLevel(q Quality) png.CompressionLevel {
	switch q {
	case QualityDefault:
		return png.DefaultCompression
	case QualityNone:
		return png.NoCompression
	case QualityBest:
		return png.BestCompression
	default:
		return png.BestSpeed
	}
}

// Compress encodes img. A nil image yields nil data.
func (c *Codec) Compress(img image.Image) ([]byte, error) {
	if img == nil {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := c.encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress decodes data produced by Compress. Empty data yields a nil image.
func (c *Codec) Decompress(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, nil
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	return img, nil
}
