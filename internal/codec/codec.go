// Package codec converts images to and from base64 text, optionally wrapped in a data URL.
package codec

import (
	"bytes"
	"encoding/base64"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// MIME types used by the worker
const (
	MimePNG = "image/png"
	MimeOBJ = "text/plain"
	MimeGLB = "model/gltf-binary"
)

// SplitDataURL separates a "data:<mime>;base64," header from its payload.
// Plain base64 input is returned unchanged with an empty mime type.
func SplitDataURL(s string) (mime, payload string) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return "", s
	}
	comma := strings.IndexByte(s, ',')
	if comma < 0 {
		return "", s
	}
	header := s[len("data:"):comma]
	mime = strings.TrimSuffix(header, ";base64")
	return mime, s[comma+1:]
}

// DataURL wraps base64 data in a data URL
func DataURL(mime, b64 string) string {
	return "data:" + mime + ";base64," + b64
}

// DecodeBytes decodes base64 text, with or without a data URL header
func DecodeBytes(s string) ([]byte, error) {
	_, payload := SplitDataURL(s)
	if payload == "" {
		return nil, errors.New("empty base64 payload")
	}
	payload = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, payload)

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// some clients strip the padding
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, errors.Wrap(err, "invalid base64 payload")
	}
	return raw, nil
}

// DecodeImage decodes a base64 (or data URL) encoded image of any registered format
func DecodeImage(s string) (image.Image, error) {
	raw, err := DecodeBytes(s)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	return img, nil
}

// EncodeImage encodes img as PNG and returns the base64 text
func EncodeImage(img image.Image) (string, error) {
	raw, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// EncodePNG encodes img as PNG bytes
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, errors.Wrap(err, "failed to encode image")
	}
	return buf.Bytes(), nil
}

// EncodeBytes returns the standard base64 encoding of data
func EncodeBytes(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
