// Package imagedata validates sector image payloads.
//
// A payload is a base64 data URI (the same form a browser FileReader
// produces with readAsDataURL) whose bytes match the declared image type.
package imagedata

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// MaxSize is the largest decoded image accepted.
const MaxSize = 10 << 20 // 10 MB

// ErrInvalid wraps every payload rejection.
var ErrInvalid = errors.New("imagedata: invalid image payload")

// allowedTypes lists every image type a browser file picker hands over and
// the content sniffer can confirm.
var allowedTypes = map[string]bool{
	"image/png":     true,
	"image/jpeg":    true,
	"image/gif":     true,
	"image/webp":    true,
	"image/svg+xml": true,
	"image/bmp":     true,
	"image/x-icon":  true,
	"image/avif":    true,
}

// aliases maps alternative names of an allowed type to its canonical name.
var aliases = map[string]string{
	"image/jpg":                "image/jpeg",
	"image/pjpeg":              "image/jpeg",
	"image/vnd.microsoft.icon": "image/x-icon",
	"image/x-ms-bmp":           "image/bmp",
}

func canonical(mediaType string) string {
	if c, ok := aliases[mediaType]; ok {
		return c
	}
	return mediaType
}

// Image is a decoded payload.
type Image struct {
	MediaType string
	Data      []byte
}

// Parse decodes a data:<mediatype>;base64,<data> URI and verifies the content.
func Parse(uri string) (*Image, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, fmt.Errorf("%w: not a data URI", ErrInvalid)
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: missing comma separator", ErrInvalid)
	}
	if !strings.HasSuffix(meta, ";base64") {
		return nil, fmt.Errorf("%w: only base64 data URIs are supported", ErrInvalid)
	}

	mediaType := strings.ToLower(strings.Split(strings.TrimSuffix(meta, ";base64"), ";")[0])
	if !allowedTypes[canonical(mediaType)] {
		return nil, fmt.Errorf("%w: unsupported media type %q", ErrInvalid, mediaType)
	}

	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxSize+3 {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrInvalid, MaxSize)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("%w: bad base64: %v", ErrInvalid, err)
		}
	}
	if len(data) > MaxSize {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrInvalid, MaxSize)
	}

	if err := checkContent(data, mediaType); err != nil {
		return nil, err
	}
	return &Image{MediaType: mediaType, Data: data}, nil
}

// FromBytes sniffs raw file content and returns it as a data URI.
func FromBytes(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrInvalid)
	}
	if len(data) > MaxSize {
		return "", fmt.Errorf("%w: image exceeds %d bytes", ErrInvalid, MaxSize)
	}
	mediaType := detect(data)
	if !allowedTypes[mediaType] {
		return "", fmt.Errorf("%w: unsupported content type %q", ErrInvalid, mediaType)
	}
	return Encode(mediaType, data), nil
}

// Encode builds a base64 data URI.
func Encode(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// checkContent verifies the bytes match the declared media type.
func checkContent(data []byte, mediaType string) error {
	if detected := detect(data); detected != canonical(mediaType) {
		return fmt.Errorf("%w: content does not match %s (detected: %s)", ErrInvalid, mediaType, detected)
	}
	return nil
}

// detect sniffs magic bytes first. Only content the sniffer reports as text
// is checked for SVG markup.
func detect(data []byte) string {
	if isAVIF(data) {
		return "image/avif"
	}
	sniffed := strings.Split(http.DetectContentType(data), ";")[0]
	if strings.HasPrefix(sniffed, "text/") && looksLikeSVG(data) {
		return "image/svg+xml"
	}
	return sniffed
}

// isAVIF reports an ISO-BMFF ftyp box with an AVIF major brand.
func isAVIF(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "avif" || brand == "avis"
}

func looksLikeSVG(data []byte) bool {
	prefix := data
	if len(prefix) > 1024 {
		prefix = prefix[:1024]
	}
	return bytes.Contains(prefix, []byte("<svg"))
}
