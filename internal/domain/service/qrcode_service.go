package service

// QRCodeService renders provisioning URIs as scannable images.
type QRCodeService interface {
	// GeneratePNG encodes content as a PNG QR code.
	GeneratePNG(content string) ([]byte, error)
}
