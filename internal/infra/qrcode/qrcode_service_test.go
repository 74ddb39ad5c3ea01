package qrcode

import (
	"bytes"
	"image/png"
	"testing"

	"portal/config"

	"github.com/skip2/go-qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURI = "otpauth://totp/School%20Portal:a@school.edu?issuer=School%20Portal&secret=JBSWY3DPEHPK3PXP"

func TestNewQRCodeService_Levels(t *testing.T) {
	tests := []struct {
		name  string
		level string
		want  qrcode.RecoveryLevel
	}{
		{"Low error correction", "L", qrcode.Low},
		{"Medium error correction", "M", qrcode.Medium},
		{"High error correction", "Q", qrcode.High},
		{"Highest error correction", "H", qrcode.Highest},
		{"Default error correction", "invalid", qrcode.Medium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newQRCodeService(256, tt.level)
			assert.Equal(t, tt.want, svc.errorCorrectionLevel)
		})
	}
}

func TestQRCodeService_GeneratePNG(t *testing.T) {
	svc := NewQRCodeService(&config.Config{TwoFactor: &config.TwoFactorConfig{QRSize: 256, QRErrorCorrectionLevel: "M"}})

	qrBytes, err := svc.GeneratePNG(testURI)
	require.NoError(t, err)
	require.NotEmpty(t, qrBytes)

	// PNG magic number
	assert.Equal(t, []byte{0x89, 0x50, 0x4E, 0x47}, qrBytes[:4])
}

func TestQRCodeService_GeneratePNG_DifferentSizes(t *testing.T) {
	for _, size := range []int{128, 256, 512} {
		svc := newQRCodeService(size, "M")

		qrBytes, err := svc.GeneratePNG(testURI)
		require.NoError(t, err)

		img, err := png.Decode(bytes.NewReader(qrBytes))
		require.NoError(t, err)
		assert.Equal(t, size, img.Bounds().Dx())
	}
}

func TestQRCodeService_GeneratePNG_EmptyContent(t *testing.T) {
	svc := NewQRCodeService(&config.Config{})

	_, err := svc.GeneratePNG("")
	assert.Error(t, err)
}
