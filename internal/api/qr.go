package api

import (
	"fmt"
	"strings"

	"github.com/matheus3301/wpparchive/internal/model"
	"github.com/skip2/go-qrcode"
)

const defaultQRSize = 256

// RenderQR draws a pairing artifact. Codes that are already image data URLs
// are passed through untouched.
func RenderQR(a model.PairingArtifact, format string, size int) (*QRResponse, error) {
	resp := &QRResponse{Code: a.Code, IssuedAt: a.IssuedAt}
	if strings.HasPrefix(a.Code, "data:image/") {
		resp.DataURL = a.Code
		return resp, nil
	}

	q, err := qrcode.New(a.Code, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	switch format {
	case "", QRTerminal:
		resp.Terminal = q.ToSmallString(false)
	case QRPNG:
		if size <= 0 {
			size = defaultQRSize
		}
		png, err := q.PNG(size)
		if err != nil {
			return nil, fmt.Errorf("render png: %w", err)
		}
		resp.PNG = png
	default:
		return nil, fmt.Errorf("unknown qr format %q", format)
	}
	return resp, nil
}
