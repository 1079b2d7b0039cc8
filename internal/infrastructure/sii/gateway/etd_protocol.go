package gateway

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/charset"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// ── Endpoints ────────────────────────────────────────────────────────────────

const (
	etdServerCert = "https://maullin.sii.cl"
	etdServerProd = "https://palena.sii.cl"

	pathSeed   = "/DTEWS/CrSeed.jws"
	pathToken  = "/DTEWS/GetTokenFromSeed.jws"
	pathStatus = "/DTEWS/QueryEstUp.jws"
	pathUpload = "/cgi_dte/UPL/DTEUpload"

	soapNS = "http://schemas.xmlsoap.org/soap/envelope/"
)

// ETDProtocol envío de DTE: servicios SOAP para semilla, token y estado; upload multipart.
type ETDProtocol struct {
	server string
}

// NewETDProtocol protocolo DTE del ambiente indicado.
func NewETDProtocol(env string) *ETDProtocol {
	if env == EnvProd {
		return &ETDProtocol{server: etdServerProd}
	}
	return &ETDProtocol{server: etdServerCert}
}

// WithServer reemplaza el servidor base (pruebas contra servidores locales).
func (p *ETDProtocol) WithServer(url string) *ETDProtocol {
	p.server = strings.TrimRight(url, "/")
	return p
}

func (p *ETDProtocol) SetType() sii.DocSetType { return sii.DocSetETD }

// ── Estructuras SOAP ─────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName xml.Name `xml:"soapenv:Envelope"`
	XmlnsS  string   `xml:"xmlns:soapenv,attr"`
	Header  struct{} `xml:"soapenv:Header"`
	Body    soapBody `xml:"soapenv:Body"`
}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "soapenv:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type getSeedBody struct {
	XMLName xml.Name `xml:"getSeed"`
}

type getTokenBody struct {
	XMLName xml.Name `xml:"getToken"`
	PszXML  string   `xml:"pszXml"`
}

type getEstUpBody struct {
	XMLName        xml.Name `xml:"getEstUp"`
	RutConsultante string   `xml:"RutConsultante"`
	DvConsultante  string   `xml:"DvConsultante"`
	TrackID        string   `xml:"TrackId"`
	Token          string   `xml:"Token"`
}

func (p *ETDProtocol) soapRequest(ctx context.Context, path string, content interface{}) (*http.Request, error) {
	payload, err := xml.Marshal(soapEnvelope{XmlnsS: soapNS, Body: soapBody{Content: content}})
	if err != nil {
		return nil, fmt.Errorf("soap: serializar envelope: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.server+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("soap: crear request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", "")
	return req, nil
}

// soapReturn extrae la respuesta del SII (XML serializado como texto) del elemento
// {operación}Return y la parsea.
func soapReturn(body []byte, op string) (*etree.Element, error) {
	env, err := charset.ReadDocument(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	if fault := env.FindElement("//faultstring"); fault != nil {
		return nil, fmt.Errorf("%w: SOAP Fault: %s", domain.ErrMalformedResponse, fault.Text())
	}
	ret := env.FindElement("//" + op + "Return")
	if ret == nil || strings.TrimSpace(ret.Text()) == "" {
		return nil, fmt.Errorf("%w: falta %sReturn", domain.ErrMalformedResponse, op)
	}
	inner, err := charset.ReadDocument([]byte(strings.TrimSpace(ret.Text())))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	return inner.Root(), nil
}

func findText(el *etree.Element, path string) string {
	if n := el.FindElement(path); n != nil {
		return strings.TrimSpace(n.Text())
	}
	return ""
}

// ── Semilla y token ──────────────────────────────────────────────────────────

func (p *ETDProtocol) SeedRequest(ctx context.Context) (*http.Request, error) {
	return p.soapRequest(ctx, pathSeed, getSeedBody{})
}

func (p *ETDProtocol) ParseSeed(body []byte) (string, error) {
	resp, err := soapReturn(body, "getSeed")
	if err != nil {
		return "", err
	}
	return seedFrom(resp)
}

func (p *ETDProtocol) TokenRequest(ctx context.Context, signedSeed []byte) (*http.Request, error) {
	return p.soapRequest(ctx, pathToken, getTokenBody{PszXML: string(signedSeed)})
}

func (p *ETDProtocol) ParseToken(body []byte) (string, error) {
	resp, err := soapReturn(body, "getToken")
	if err != nil {
		return "", err
	}
	return tokenFrom(resp)
}

// seedFrom lee RESP_BODY/SEMILLA de una respuesta con ESTADO 00.
func seedFrom(resp *etree.Element) (string, error) {
	if state := findText(resp, "//ESTADO"); state != "" && state != "00" {
		return "", fmt.Errorf("%w: ESTADO %s al pedir semilla", domain.ErrMalformedResponse, state)
	}
	seed := findText(resp, "//SEMILLA")
	if seed == "" {
		return "", fmt.Errorf("%w: falta SEMILLA", domain.ErrMalformedResponse)
	}
	return seed, nil
}

func tokenFrom(resp *etree.Element) (string, error) {
	if state := findText(resp, "//ESTADO"); state != "00" {
		return "", fmt.Errorf("%w: ESTADO %q %s", domain.ErrAuthentication, state, findText(resp, "//GLOSA"))
	}
	token := findText(resp, "//TOKEN")
	if token == "" {
		return "", fmt.Errorf("%w: respuesta sin TOKEN", domain.ErrAuthentication)
	}
	return token, nil
}

// ── Upload y estado ──────────────────────────────────────────────────────────

func (p *ETDProtocol) UploadRequest(ctx context.Context, u Upload, token string) (*http.Request, error) {
	body, contentType, err := multipartUpload(u, "archivo")
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.server+pathUpload, body)
	if err != nil {
		return nil, fmt.Errorf("upload: crear request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)
	tokenCookie(req, token)
	return req, nil
}

// ParseUpload lee RECEPCIONDTE. Solo un TRACKID indica envío recibido.
func (p *ETDProtocol) ParseUpload(body []byte) (UploadResult, error) {
	doc, err := charset.ReadDocument(body)
	if err != nil {
		return UploadResult{}, fmt.Errorf("%w: respuesta no es XML", domain.ErrSending)
	}
	resp := doc.Root()
	trackID := findText(resp, "//TRACKID")
	if trackID == "" {
		return UploadResult{}, fmt.Errorf("%w: sin TRACKID (STATUS %s)", domain.ErrSending, findText(resp, "//STATUS"))
	}
	return UploadResult{
		TrackID:    trackID,
		StatusCode: findText(resp, "//STATUS"),
		ReceivedAt: findText(resp, "//TIMESTAMP"),
		Raw:        body,
	}, nil
}

func (p *ETDProtocol) StatusRequest(ctx context.Context, senderRUT, trackID, token string) (*http.Request, error) {
	rut, dv, err := sii.SplitRUT(senderRUT)
	if err != nil {
		return nil, fmt.Errorf("estado: rut consultante: %w", err)
	}
	return p.soapRequest(ctx, pathStatus, getEstUpBody{
		RutConsultante: rut,
		DvConsultante:  dv,
		TrackID:        trackID,
		Token:          token,
	})
}

func (p *ETDProtocol) ParseStatus(body []byte) (StatusResult, error) {
	resp, err := soapReturn(body, "getEstUp")
	if err != nil {
		return StatusResult{}, err
	}
	code := findText(resp, "//ESTADO")
	if code == "" {
		return StatusResult{}, fmt.Errorf("%w: falta ESTADO", domain.ErrMalformedResponse)
	}
	return StatusResult{
		Code:   code,
		Detail: findText(resp, "//GLOSA"),
		Status: StatusFromCode(code),
		Raw:    body,
	}, nil
}
