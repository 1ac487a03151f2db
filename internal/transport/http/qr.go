package http

import (
	"encoding/base64"

	"github.com/skip2/go-qrcode"
)

const qrSize = 320 // mobile-friendly size

func qrPNG(url string) ([]byte, error) {
	return qrcode.Encode(url, qrcode.Medium, qrSize)
}

// qrDataURL embeds the PNG so admin pages can show it inline.
func qrDataURL(url string) (string, error) {
	png, err := qrPNG(url)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
