package services

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/skip2/go-qrcode"
)

// QRCodeService renders funding request QR codes.
type QRCodeService struct{}

// NewQRCodeService creates a new QR code service.
func NewQRCodeService() *QRCodeService {
	return &QRCodeService{}
}

// GenerateQRCode encodes a funding URI for the given address and amount
// as a PNG.
func (s *QRCodeService) GenerateQRCode(address, amount string) ([]byte, error) {
	qr, err := qrcode.New(address+"?amount="+amount, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(256)); err != nil {
		return nil, fmt.Errorf("failed to encode QR code to PNG: %w", err)
	}
	return buf.Bytes(), nil
}
