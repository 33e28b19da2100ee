package extract

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// Page is one rasterized page. Either Image or PNG is set.
type Page struct {
	Number int
	Image  image.Image
	PNG    []byte
}

// EncodePNG returns the page as PNG bytes, encoding Image on demand
func (p Page) EncodePNG() ([]byte, error) {
	if len(p.PNG) > 0 {
		return p.PNG, nil
	}
	if p.Image == nil {
		return nil, fmt.Errorf("page %d has no image data", p.Number)
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, p.Image); err != nil {
		return nil, fmt.Errorf("encode page %d: %w", p.Number, err)
	}
	return buf.Bytes(), nil
}
