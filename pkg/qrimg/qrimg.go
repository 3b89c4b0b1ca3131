// Package qrimg renders pairing tokens as scannable QR images.
package qrimg

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const defaultSize = 256

// DataURL encodes token as a PNG QR code and returns it as a
// data:image/png;base64 URL, ready to drop into an <img src>.
func DataURL(token string) (string, error) {
	return DataURLSize(token, defaultSize)
}

// DataURLSize is DataURL with an explicit pixel size (square).
func DataURLSize(token string, size int) (string, error) {
	if token == "" {
		return "", fmt.Errorf("qrimg: empty token")
	}
	if size <= 0 {
		size = defaultSize
	}
	png, err := qrcode.Encode(token, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("qrimg: encode: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
