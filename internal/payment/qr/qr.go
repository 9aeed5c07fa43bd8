package qr

import (
	"errors"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 256

// Encode renders url as a PNG QR code, size pixels square.
func Encode(url string, size int) ([]byte, error) {
	if url == "" {
		return nil, errors.New("qr: empty content")
	}
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(url, qrcode.Medium, size)
}
