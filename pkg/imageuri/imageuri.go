// Package imageuri handles the inline image payload used for every image in
// the editor: a data URI of the form data:<mime>;base64,<data>.
package imageuri

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrMalformed = errors.New("imageuri: malformed data URI")
	ErrNotImage  = errors.New("imageuri: payload is not an image")
)

// Image is a decoded payload.
type Image struct {
	MIME string
	Data []byte
}

// Encode returns the data URI for data with the given MIME type.
func Encode(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Parse decodes a base64 data URI.
func Parse(uri string) (Image, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return Image{}, fmt.Errorf("%w: missing data: prefix", ErrMalformed)
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return Image{}, fmt.Errorf("%w: missing payload separator", ErrMalformed)
	}
	mime, ok := strings.CutSuffix(header, ";base64")
	if !ok {
		return Image{}, fmt.Errorf("%w: only base64 payloads are supported", ErrMalformed)
	}
	if mime == "" {
		mime = "text/plain"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Image{MIME: mime, Data: data}, nil
}

// Version returns a short content hash of a payload. It changes whenever the
// image does, so it can key browser caches.
func Version(uri string) string {
	sum := sha256.Sum256([]byte(uri))
	return hex.EncodeToString(sum[:8])
}

// Sniff detects the MIME type of raw bytes and returns ErrNotImage unless it
// is an image type.
func Sniff(data []byte) (string, error) {
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return mt.String(), nil
		}
	}
	return "", fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
}

// FromBytes sniffs data and encodes it as a data URI.
func FromBytes(data []byte) (string, error) {
	mime, err := Sniff(data)
	if err != nil {
		return "", err
	}
	return Encode(mime, data), nil
}

// Extension returns the file extension, with leading dot, for an image MIME type.
func Extension(mime string) string {
	if mt := mimetype.Lookup(mime); mt != nil && mt.Extension() != "" {
		return mt.Extension()
	}
	return ".png"
}
