package gateway

import (
	"encoding/base64"
	"strings"

	"github.com/skip2/go-qrcode"
)

const dataURIPrefix = "data:image/png;base64,"

// RenderQR turns a raw pairing code into a PNG data URI
func RenderQR(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", err
	}
	return dataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// QRPayload picks the image the gateway sent, rendering the raw code when the
// image is missing.
func QRPayload(image, code string) (string, error) {
	if image = strings.TrimSpace(image); image != "" {
		if !strings.HasPrefix(image, "data:") {
			image = dataURIPrefix + image
		}
		return image, nil
	}
	if code = strings.TrimSpace(code); code != "" {
		return RenderQR(code)
	}
	return "", ErrNoQRCode
}
