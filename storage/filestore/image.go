package filestore

import (
	"bytes"
	"io"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// NormalizeImage decodes r, caps its longest side at maxDim (keeping aspect
// ratio) and re-encodes it as JPEG. Smaller images are re-encoded as-is.
func NormalizeImage(r io.Reader, maxDim int) (io.Reader, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "decoding image")
	}

	bounds := img.Bounds()
	if w, h := bounds.Dx(), bounds.Dy(); w > maxDim || h > maxDim {
		if w >= h {
			img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, errors.Wrap(err, "encoding image")
	}
	return &buf, nil
}
