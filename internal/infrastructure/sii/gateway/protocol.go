// Package gateway implementa el cliente de los servicios web del SII: semilla, token,
// envío de sobres y consulta de estado. Las dos familias (DTE y boletas) comparten la
// misma máquina de estados; solo cambian endpoints y codificación.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// Ambientes del SII.
const (
	EnvCert = "cert" // certificación (maullin / apicert / pangal)
	EnvProd = "prod" // producción (palena / api / rahue)
)

// User-Agent exigido por el upload del SII.
const userAgent = "Mozilla/4.0 (compatible; PROG 1.0; Windows NT 5.0; YComp 5.0.2.4)"

// Upload datos del archivo a enviar.
type Upload struct {
	FileName  string
	Data      []byte
	SenderRUT string // RutEnvia
	IssuerRUT string // RutEmisor
}

// UploadResult respuesta de un envío aceptado para procesamiento (con TrackID).
type UploadResult struct {
	TrackID    string
	StatusCode string
	ReceivedAt string
	Raw        []byte
}

// StatusResult estado de un envío según el SII.
type StatusResult struct {
	Code   string // EPR, RCT, REC, ...
	Detail string // glosa
	Status string // entity.ShipmentStatus*
	Raw    []byte
}

// Protocol estrategia de endpoints y codificación de una familia de envíos. Los
// métodos Parse* devuelven errores sin envolver; el cliente agrega operación y payload.
type Protocol interface {
	SetType() sii.DocSetType
	SeedRequest(ctx context.Context) (*http.Request, error)
	ParseSeed(body []byte) (string, error)
	TokenRequest(ctx context.Context, signedSeed []byte) (*http.Request, error)
	ParseToken(body []byte) (string, error)
	UploadRequest(ctx context.Context, u Upload, token string) (*http.Request, error)
	ParseUpload(body []byte) (UploadResult, error)
	StatusRequest(ctx context.Context, senderRUT, trackID, token string) (*http.Request, error)
	ParseStatus(body []byte) (StatusResult, error)
}

// NewProtocol devuelve la estrategia para la familia del sobre en el ambiente dado.
func NewProtocol(setType sii.DocSetType, env string) (Protocol, error) {
	if env != EnvCert && env != EnvProd {
		return nil, fmt.Errorf("gateway: ambiente desconocido %q (usar 'cert' o 'prod')", env)
	}
	if setType == sii.DocSetVoucher {
		return NewVoucherProtocol(env), nil
	}
	return NewETDProtocol(env), nil
}

// StatusFromCode traduce el código de estado del SII al estado del envío.
func StatusFromCode(code string) string {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "EPR":
		return entity.ShipmentStatusAccepted
	case "RCT", "RFR", "RSC", "RCO", "RCH", "RPT", "RLV":
		return entity.ShipmentStatusRejected
	default:
		return entity.ShipmentStatusPending
	}
}

// multipartUpload arma el formulario del upload: identificadores de emisor y
// remitente más el archivo.
func multipartUpload(u Upload, fileField string) (*bytes.Buffer, string, error) {
	rutSender, dvSender, err := sii.SplitRUT(u.SenderRUT)
	if err != nil {
		return nil, "", fmt.Errorf("rut remitente: %w", err)
	}
	rutCompany, dvCompany, err := sii.SplitRUT(u.IssuerRUT)
	if err != nil {
		return nil, "", fmt.Errorf("rut emisor: %w", err)
	}

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	fields := [][2]string{
		{"rutSender", rutSender},
		{"dvSender", dvSender},
		{"rutCompany", rutCompany},
		{"dvCompany", dvCompany},
	}
	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	part, err := w.CreateFormFile(fileField, u.FileName)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(u.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return body, w.FormDataContentType(), nil
}

func tokenCookie(req *http.Request, token string) {
	req.AddCookie(&http.Cookie{Name: "TOKEN", Value: token})
}
