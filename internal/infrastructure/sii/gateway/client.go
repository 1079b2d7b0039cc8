package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/infrastructure/metrics"
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/rs/zerolog"
)

// State estado de una presentación al SII.
type State string

const (
	StateNew            State = "NEW"
	StateSeedRequested  State = "SEED_REQUESTED"
	StateSeedSigned     State = "SEED_SIGNED"
	StateTokenObtained  State = "TOKEN_OBTAINED"
	StateUploaded       State = "UPLOADED"
	StateStatusPending  State = "STATUS_PENDING"
	StateStatusAccepted State = "STATUS_ACCEPTED"
	StateStatusRejected State = "STATUS_REJECTED"
)

// maxResponseSize límite de lectura de respuestas del SII.
const maxResponseSize = 1 << 20

// Submission avance de una presentación: semilla → token → upload → estado.
type Submission struct {
	State      State
	Seed       string
	SignedSeed []byte
	Token      string
	Upload     *UploadResult
	Status     *StatusResult
}

// Client ejecuta la máquina de estados contra el SII usando la estrategia de la familia.
// No reintenta: los errores de transporte se devuelven para que el llamador decida.
type Client struct {
	protocol   Protocol
	signer     sii.EnvelopeSigner
	httpClient *http.Client
	log        zerolog.Logger
	metrics    *metrics.Metrics
}

// NewClient crea el cliente con timeout explícito por llamada.
func NewClient(protocol Protocol, signer sii.EnvelopeSigner, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		protocol:   protocol,
		signer:     signer,
		httpClient: &http.Client{Timeout: timeout},
		log:        zerolog.Nop(),
	}
}

// WithLogger asigna el logger de transiciones (nivel debug).
func (c *Client) WithLogger(l zerolog.Logger) *Client {
	c.log = l
	return c
}

// WithMetrics asigna el colector de métricas.
func (c *Client) WithMetrics(m *metrics.Metrics) *Client {
	c.metrics = m
	return c
}

// SetType familia de sobres que atiende el cliente.
func (c *Client) SetType() sii.DocSetType { return c.protocol.SetType() }

func (c *Client) transition(s *Submission, to State) {
	c.log.Debug().Str("set_type", string(c.protocol.SetType())).
		Str("from", string(s.State)).Str("state", string(to)).Msg("sii: transición")
	s.State = to
}

// call ejecuta la request y devuelve el cuerpo. Errores de red o HTTP 5xx son
// ErrGatewayUnavailable + ErrTransport.
func (c *Client) call(op string, req *http.Request) ([]byte, error) {
	start := time.Now()
	body, err := c.do(op, req)
	c.metrics.ObserveGatewayCall(op, time.Since(start), err)
	return body, err
}

func (c *Client) do(op string, req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.GatewayError{Op: op, Err: fmt.Errorf("%w: %w: %v", domain.ErrGatewayUnavailable, domain.ErrTransport, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &domain.GatewayError{Op: op, Err: fmt.Errorf("%w: %w: leer respuesta: %v", domain.ErrGatewayUnavailable, domain.ErrTransport, err)}
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &domain.GatewayError{Op: op, Raw: raw, Err: fmt.Errorf("%w: %w: HTTP %d", domain.ErrGatewayUnavailable, domain.ErrTransport, resp.StatusCode)}
	}
	return raw, nil
}

// RequestSeed pide una semilla. Una respuesta ilegible también cuenta como servicio no disponible.
func (c *Client) RequestSeed(ctx context.Context, s *Submission) error {
	req, err := c.protocol.SeedRequest(ctx)
	if err != nil {
		return err
	}
	body, err := c.call("seed", req)
	if err != nil {
		return err
	}
	seed, err := c.protocol.ParseSeed(body)
	if err != nil {
		return &domain.GatewayError{Op: "seed", Raw: body, Err: fmt.Errorf("%w: %w", domain.ErrGatewayUnavailable, err)}
	}
	s.Seed = seed
	c.transition(s, StateSeedRequested)
	return nil
}

// SignSeed envuelve la semilla en getToken/item/Semilla y la firma con el certificado del emisor.
func (c *Client) SignSeed(s *Submission) error {
	if s.State != StateSeedRequested || s.Seed == "" {
		return fmt.Errorf("%w: firmar semilla en estado %s", domain.ErrConflict, s.State)
	}
	signed, err := SignSeed(c.signer, s.Seed)
	c.metrics.ObserveSignature("seed", err)
	if err != nil {
		return err
	}
	s.SignedSeed = signed
	c.transition(s, StateSeedSigned)
	return nil
}

// SignSeed arma el documento getToken con la semilla y lo firma (Reference URI="").
func SignSeed(signer sii.EnvelopeSigner, seed string) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0"`)
	doc.CreateElement("getToken").CreateElement("item").CreateElement("Semilla").SetText(seed)
	raw, err := doc.WriteToBytes()
	if err != nil {
		return nil, err
	}
	signed, err := signer.Sign(raw, "")
	if err != nil {
		return nil, fmt.Errorf("firmar semilla: %w", err)
	}
	return signed, nil
}

// ExchangeToken canjea la semilla firmada por un token de sesión.
func (c *Client) ExchangeToken(ctx context.Context, s *Submission) error {
	if s.State != StateSeedSigned {
		return fmt.Errorf("%w: pedir token en estado %s", domain.ErrConflict, s.State)
	}
	req, err := c.protocol.TokenRequest(ctx, s.SignedSeed)
	if err != nil {
		return err
	}
	body, err := c.call("token", req)
	if err != nil {
		return err
	}
	token, err := c.protocol.ParseToken(body)
	if err != nil {
		if !errors.Is(err, domain.ErrAuthentication) {
			err = fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
		}
		return &domain.GatewayError{Op: "token", Raw: body, Err: err}
	}
	s.Token = token
	c.transition(s, StateTokenObtained)
	return nil
}

// Authenticate recorre semilla → firma → token.
func (c *Client) Authenticate(ctx context.Context) (*Submission, error) {
	s := &Submission{State: StateNew}
	if err := c.RequestSeed(ctx, s); err != nil {
		return s, err
	}
	if err := c.SignSeed(s); err != nil {
		return s, err
	}
	if err := c.ExchangeToken(ctx, s); err != nil {
		return s, err
	}
	return s, nil
}

// Upload sube el sobre firmado. Sin TrackID en la respuesta el envío es un
// ErrSending aunque el HTTP haya sido exitoso.
func (c *Client) Upload(ctx context.Context, s *Submission, u Upload) (*UploadResult, error) {
	if s.State != StateTokenObtained || s.Token == "" {
		return nil, fmt.Errorf("%w: subir en estado %s", domain.ErrConflict, s.State)
	}
	req, err := c.protocol.UploadRequest(ctx, u, s.Token)
	if err != nil {
		return nil, err
	}
	body, err := c.call("upload", req)
	if err != nil {
		return nil, err
	}
	res, err := c.protocol.ParseUpload(body)
	if err != nil {
		if !errors.Is(err, domain.ErrSending) {
			err = fmt.Errorf("%w: %w", domain.ErrSending, err)
		}
		return nil, &domain.GatewayError{Op: "upload", Raw: body, Err: err}
	}
	s.Upload = &res
	c.transition(s, StateUploaded)
	c.log.Debug().Str("trackid", res.TrackID).Msg("sii: envío recibido")
	return &res, nil
}

// PollStatus consulta el estado de un envío. Es idempotente y no reintenta.
func (c *Client) PollStatus(ctx context.Context, s *Submission, senderRUT, trackID string) (*StatusResult, error) {
	if s.Token == "" {
		return nil, fmt.Errorf("%w: consultar estado sin token", domain.ErrConflict)
	}
	req, err := c.protocol.StatusRequest(ctx, senderRUT, trackID, s.Token)
	if err != nil {
		return nil, err
	}
	body, err := c.call("status", req)
	if err != nil {
		return nil, err
	}
	res, err := c.protocol.ParseStatus(body)
	if err != nil {
		return nil, &domain.GatewayError{Op: "status", Raw: body, Err: err}
	}
	s.Status = &res
	c.transition(s, stateFor(res.Status))
	c.log.Debug().Str("trackid", trackID).Str("code", res.Code).Msg("sii: estado del envío")
	return &res, nil
}

func stateFor(status string) State {
	switch status {
	case entity.ShipmentStatusAccepted:
		return StateStatusAccepted
	case entity.ShipmentStatusRejected:
		return StateStatusRejected
	default:
		return StateStatusPending
	}
}
