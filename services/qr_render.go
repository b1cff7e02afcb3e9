package services

import (
	appContext "github.com/alphabatem/common/context"
	qrcode "github.com/skip2/go-qrcode"
)

// Renderer turns a QR payload into image bytes. The registry only depends on
// this narrow surface; rendering options are not part of the core.
type Renderer interface {
	Render(payload string, size int) ([]byte, error)
}

// QRRenderService renders QR payloads to PNG.
type QRRenderService struct {
	appContext.DefaultService
}

const QR_RENDER_SVC = "qr_render_svc"

const defaultQRSize = 512

func (svc QRRenderService) Id() string {
	return QR_RENDER_SVC
}

func (svc *QRRenderService) Configure(ctx *appContext.Context) error {
	return svc.DefaultService.Configure(ctx)
}

func (svc *QRRenderService) Start() error {
	return nil
}

func (svc *QRRenderService) Render(payload string, size int) ([]byte, error) {
	if size <= 0 {
		size = defaultQRSize
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}
