package verification

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"
)

// Fetcher loads an uploaded proof artifact by reference (storage key or URL).
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (data []byte, contentType string, err error)
}

var imageExt = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|bmp)$`)

// maxImageEdge bounds the long side of images sent to the model.
const maxImageEdge = 1568

// IsImageRef reports whether an artifact reference looks like an image:
// by extension, by living under the proofs storage prefix, or by name.
func IsImageRef(ref string) bool {
	p := ref
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		p = u.Path
	}
	return imageExt.MatchString(p) ||
		strings.HasPrefix(p, "proofs/") ||
		strings.Contains(p, "/proofs/") ||
		strings.Contains(strings.ToLower(ref), "image")
}

type attachedImage struct {
	data     []byte
	mimeType string
}

func (a attachedImage) dataURL() string {
	return "data:" + a.mimeType + ";base64," + base64.StdEncoding.EncodeToString(a.data)
}

// prepareImage sniffs the content type when the store did not give a
// useful one and shrinks oversized images. ok is false for non-images.
func prepareImage(data []byte, contentType string) (attachedImage, bool) {
	mimeType := strings.TrimSpace(strings.Split(contentType, ";")[0])
	if mimeType == "" || mimeType == "application/octet-stream" || mimeType == "binary/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return attachedImage{}, false
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		// webp and friends: pass through untouched
		return attachedImage{data: data, mimeType: mimeType}, true
	}

	b := img.Bounds()
	if b.Dx() <= maxImageEdge && b.Dy() <= maxImageEdge {
		return attachedImage{data: data, mimeType: mimeType}, true
	}

	resized := imaging.Fit(img, maxImageEdge, maxImageEdge, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return attachedImage{data: data, mimeType: mimeType}, true
	}
	return attachedImage{data: buf.Bytes(), mimeType: "image/jpeg"}, true
}
