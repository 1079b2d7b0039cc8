package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/charset"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

const (
	voucherTokenCert = "https://apicert.sii.cl"
	voucherTokenProd = "https://api.sii.cl"
	voucherSendCert  = "https://pangal.sii.cl"
	voucherSendProd  = "https://rahue.sii.cl"

	pathVoucherSeed   = "/recursos/v1/boleta.electronica.semilla"
	pathVoucherToken  = "/recursos/v1/boleta.electronica.token"
	pathVoucherUpload = "/recursos/v1/boleta.electronica.envio"
)

// VoucherProtocol envío de boletas: API REST con semilla/token en XML y envío/estado en JSON.
type VoucherProtocol struct {
	tokenServer string // semilla, token y estado
	sendServer  string // envío
}

// NewVoucherProtocol protocolo de boletas del ambiente indicado.
func NewVoucherProtocol(env string) *VoucherProtocol {
	if env == EnvProd {
		return &VoucherProtocol{tokenServer: voucherTokenProd, sendServer: voucherSendProd}
	}
	return &VoucherProtocol{tokenServer: voucherTokenCert, sendServer: voucherSendCert}
}

// WithServers reemplaza los servidores base.
func (p *VoucherProtocol) WithServers(tokenServer, sendServer string) *VoucherProtocol {
	p.tokenServer = strings.TrimRight(tokenServer, "/")
	p.sendServer = strings.TrimRight(sendServer, "/")
	return p
}

func (p *VoucherProtocol) SetType() sii.DocSetType { return sii.DocSetVoucher }

func (p *VoucherProtocol) SeedRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.tokenServer+pathVoucherSeed, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/xml")
	return req, nil
}

func (p *VoucherProtocol) ParseSeed(body []byte) (string, error) {
	doc, err := charset.ReadDocument(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return seedFrom(doc.Root())
}

func (p *VoucherProtocol) TokenRequest(ctx context.Context, signedSeed []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenServer+pathVoucherToken, bytes.NewReader(signedSeed))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("Content-Type", "application/xml")
	return req, nil
}

func (p *VoucherProtocol) ParseToken(body []byte) (string, error) {
	doc, err := charset.ReadDocument(body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
	}
	return tokenFrom(doc.Root())
}

func (p *VoucherProtocol) UploadRequest(ctx context.Context, u Upload, token string) (*http.Request, error) {
	body, contentType, err := multipartUpload(u, "archivo")
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sendServer+pathVoucherUpload, body)
	if err != nil {
		return nil, fmt.Errorf("upload: crear request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	tokenCookie(req, token)
	return req, nil
}

// jsonText acepta un valor JSON string o numérico (trackid llega como número).
type jsonText string

func (t *jsonText) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = jsonText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = jsonText(n.String())
	return nil
}

type voucherUploadResponse struct {
	RutEmisor      string   `json:"rut_emisor"`
	RutEnvia       string   `json:"rut_envia"`
	TrackID        jsonText `json:"trackid"`
	FechaRecepcion string   `json:"fecha_recepcion"`
	Estado         string   `json:"estado"`
	File           string   `json:"file"`
}

func (p *VoucherProtocol) ParseUpload(body []byte) (UploadResult, error) {
	var resp voucherUploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return UploadResult{}, fmt.Errorf("%w: respuesta no es JSON", domain.ErrSending)
	}
	if resp.TrackID == "" {
		return UploadResult{}, fmt.Errorf("%w: sin trackid (estado %q)", domain.ErrSending, resp.Estado)
	}
	return UploadResult{
		TrackID:    string(resp.TrackID),
		StatusCode: resp.Estado,
		ReceivedAt: resp.FechaRecepcion,
		Raw:        body,
	}, nil
}

func (p *VoucherProtocol) StatusRequest(ctx context.Context, senderRUT, trackID, token string) (*http.Request, error) {
	rut, dv, err := sii.SplitRUT(senderRUT)
	if err != nil {
		return nil, fmt.Errorf("estado: rut consultante: %w", err)
	}
	url := fmt.Sprintf("%s%s/%s-%s-%s", p.tokenServer, pathVoucherUpload, rut, dv, trackID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	tokenCookie(req, token)
	return req, nil
}

type voucherStatusResponse struct {
	TrackID     jsonText `json:"trackid"`
	Estado      string   `json:"estado"`
	Estadistica []struct {
		Tipo       int `json:"tipo"`
		Informados int `json:"informados"`
		Aceptados  int `json:"aceptados"`
		Rechazados int `json:"rechazados"`
		Reparos    int `json:"reparos"`
	} `json:"estadistica"`
}

func (p *VoucherProtocol) ParseStatus(body []byte) (StatusResult, error) {
	var resp voucherStatusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return StatusResult{}, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if resp.Estado == "" {
		return StatusResult{}, fmt.Errorf("%w: falta estado", domain.ErrMalformedResponse)
	}
	var parts []string
	for _, e := range resp.Estadistica {
		parts = append(parts, fmt.Sprintf("tipo %d: informados %d, aceptados %d, rechazados %d, reparos %d",
			e.Tipo, e.Informados, e.Aceptados, e.Rechazados, e.Reparos))
	}
	return StatusResult{
		Code:   resp.Estado,
		Detail: strings.Join(parts, "; "),
		Status: StatusFromCode(resp.Estado),
		Raw:    body,
	}, nil
}
