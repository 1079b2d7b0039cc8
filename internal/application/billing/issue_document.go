package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/dte"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
	"github.com/jhoicas/dte-sii/internal/infrastructure/metrics"
	"github.com/jhoicas/dte-sii/pkg/logger"
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// IssueRequest cobro a documentar y su destinatario.
type IssueRequest struct {
	Charge   entity.Charge
	Receptor entity.Receptor
	DocType  sii.DocumentType // 33, 34, 39 o 41
}

// IssueService emite documentos: folio → construcción → totales → timbre → firma → persistencia.
//
// Todo ocurre dentro de una transacción que bloquea el estado de folios del tipo:
// si cualquier paso falla el folio se devuelve y no queda documento emitido.
type IssueService struct {
	tx      IssuanceTxRunner
	signer  DocumentSigner
	loadCAF CAFLoader
	parse   DocumentParser
	issuer  entity.Issuer
	cert    *entity.IssuerCertificate
	workers int
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewIssueService construye el servicio. workers limita las firmas concurrentes de un lote.
func NewIssueService(
	tx IssuanceTxRunner,
	signer DocumentSigner,
	loadCAF CAFLoader,
	parse DocumentParser,
	issuer entity.Issuer,
	cert *entity.IssuerCertificate,
	workers int,
	log *logger.Logger,
	m *metrics.Metrics,
) *IssueService {
	if workers <= 0 {
		workers = 1
	}
	return &IssueService{
		tx:      tx,
		signer:  signer,
		loadCAF: loadCAF,
		parse:   parse,
		issuer:  issuer,
		cert:    cert,
		workers: workers,
		log:     log.Component("issuance").ForIssuer(issuer.RUT),
		metrics: m,
		now:     time.Now,
	}
}

// WithClock reemplaza el reloj (tests).
func (s *IssueService) WithClock(now func() time.Time) *IssueService {
	s.now = now
	return s
}

// RegisterCAF guarda un archivo CAF e inicializa el estado de folios del tipo si no existe.
func (s *IssueService) RegisterCAF(ctx context.Context, raw []byte) (*entity.FolioCertificate, error) {
	cert, err := s.loadCAF(raw)
	if err != nil {
		return nil, err
	}
	if cert.IssuerRUT() != s.issuer.RUT {
		return nil, fmt.Errorf("%w: CAF emitido para %s", domain.ErrInvalidCAF, cert.IssuerRUT())
	}
	err = s.tx.RunIssuance(ctx, func(folios repository.FolioRepository, _ repository.DocumentRepository) error {
		stored, err := s.storedCertificates(ctx, folios, cert.DocType())
		if err != nil {
			return err
		}
		// Un CAF idéntico lo rechaza el repositorio con ErrDuplicate.
		if err := stored.InsertCertificate(cert); err != nil && !errors.Is(err, domain.ErrDuplicateCertificate) {
			return err
		}
		if err := folios.SaveCertificate(ctx, cert); err != nil {
			return err
		}
		state, err := folios.GetForUpdate(ctx, s.issuer.RUT, cert.DocType())
		if err != nil {
			return err
		}
		if state != nil {
			return nil
		}
		return folios.Save(ctx, s.issuer.RUT, dte.FolioState{DocType: cert.DocType(), LastUsed: cert.RangeFrom() - 1})
	})
	if err != nil {
		return nil, fmt.Errorf("registrar CAF: %w", err)
	}
	s.log.Info().Int("doc_type", int(cert.DocType())).Int64("from", cert.RangeFrom()).
		Int64("to", cert.RangeTo()).Msg("CAF registrado")
	return cert, nil
}

// IssueFromCharge emite una boleta o factura con una línea (monto con IVA incluido)
// y vencimiento igual al del cobro.
func (s *IssueService) IssueFromCharge(ctx context.Context, in IssueRequest) (*entity.Document, error) {
	docs, err := s.IssueBatch(ctx, []IssueRequest{in})
	if err != nil {
		return nil, err
	}
	return docs[0], nil
}

// pending documento con folio asignado a la espera de firma.
type pending struct {
	doc       *entity.Document
	authority *dte.FolioAuthority
	chargeID  string
}

// IssueBatch emite varios documentos en una sola transacción. Los folios se asignan en
// orden; las firmas corren en paralelo (hasta workers) y deben completarse todas.
func (s *IssueService) IssueBatch(ctx context.Context, reqs []IssueRequest) ([]*entity.Document, error) {
	if err := s.checkCertificate(); err != nil {
		return nil, err
	}
	for _, r := range reqs {
		if !r.Charge.Billable() {
			return nil, fmt.Errorf("%w: cobro %s no documentable (estado %s, monto %d)",
				domain.ErrValidation, r.Charge.ID, r.Charge.Status, r.Charge.Amount)
		}
	}

	var out []*entity.Document
	err := s.tx.RunIssuance(ctx, func(folios repository.FolioRepository, documents repository.DocumentRepository) error {
		authorities := make(map[sii.DocumentType]*dte.FolioAuthority)
		batch := make([]pending, 0, len(reqs))
		for _, r := range reqs {
			a, err := s.authority(ctx, folios, authorities, r.DocType)
			if err != nil {
				s.release(batch)
				return err
			}
			doc, err := s.fromCharge(a, r)
			if err != nil {
				s.release(batch)
				return err
			}
			batch = append(batch, pending{doc: doc, authority: a, chargeID: r.Charge.ID})
		}

		if err := s.signAll(ctx, batch); err != nil {
			s.release(batch)
			return err
		}
		if err := s.persist(ctx, folios, documents, authorities, batch); err != nil {
			s.release(batch)
			return err
		}
		out = make([]*entity.Document, len(batch))
		for i, p := range batch {
			out[i] = p.doc
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Int("documents", len(reqs)).Msg("emisión fallida")
		return nil, err
	}
	for _, doc := range out {
		s.metrics.IncFolioIssued(strconv.Itoa(int(doc.DocType())))
		s.log.Info().Int("doc_type", int(doc.DocType())).Int64("folio", doc.Folio()).
			Int64("total", doc.TotalAmount()).Msg("documento emitido")
	}
	return out, nil
}

// NullifyDocument emite una nota de crédito que anula el documento persistido.
func (s *IssueService) NullifyDocument(ctx context.Context, docType sii.DocumentType, folio int64, reason string) (*entity.Document, error) {
	return s.IssueCorrection(ctx, docType, folio, sii.DocTypeCreditNote, sii.RefCodeNullify, reason, nil)
}

// IssueCorrection emite una nota de crédito o débito sobre un documento ya emitido.
// CORRIGE MONTO requiere las líneas corregidas en details.
func (s *IssueService) IssueCorrection(
	ctx context.Context,
	refType sii.DocumentType, refFolio int64,
	noteType sii.DocumentType, code sii.ReferenceCode, reason string,
	details []entity.DetailLine,
) (*entity.Document, error) {
	if noteType != sii.DocTypeCreditNote && noteType != sii.DocTypeDebitNote {
		return nil, fmt.Errorf("%w: tipo %d no es nota de crédito o débito", domain.ErrValidation, int(noteType))
	}
	if err := s.checkCertificate(); err != nil {
		return nil, err
	}

	var note *entity.Document
	err := s.tx.RunIssuance(ctx, func(folios repository.FolioRepository, documents repository.DocumentRepository) error {
		rec, err := documents.GetByFolio(ctx, s.issuer.RUT, refType, refFolio)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("documento %d-%d: %w", int(refType), refFolio, domain.ErrNotFound)
		}
		referenced, err := s.parse(rec.XMLData)
		if err != nil {
			return err
		}

		authorities := make(map[sii.DocumentType]*dte.FolioAuthority)
		a, err := s.authority(ctx, folios, authorities, noteType)
		if err != nil {
			return err
		}
		params := dte.CorrectionParams{
			Issuer:      s.issuer,
			Referenced:  referenced,
			Code:        code,
			Reason:      reason,
			Details:     details,
			DateEmitted: s.now(),
		}
		build := dte.NewCreditNote
		if noteType == sii.DocTypeDebitNote {
			build = dte.NewDebitNote
		}
		doc, err := build(a, params)
		if err != nil {
			return err
		}
		batch := []pending{{doc: doc, authority: a}}
		if err := dte.CalculateTotals(doc, true); err != nil {
			s.release(batch)
			return err
		}
		if err := s.signAll(ctx, batch); err != nil {
			s.release(batch)
			return err
		}
		if err := s.persist(ctx, folios, documents, authorities, batch); err != nil {
			s.release(batch)
			return err
		}
		note = doc
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Int("doc_type", int(noteType)).Int64("ref_folio", refFolio).Msg("emisión de nota fallida")
		return nil, err
	}
	s.metrics.IncFolioIssued(strconv.Itoa(int(note.DocType())))
	s.log.Info().Int("doc_type", int(note.DocType())).Int64("folio", note.Folio()).
		Int64("ref_folio", refFolio).Msg("nota emitida")
	return note, nil
}

func (s *IssueService) checkCertificate() error {
	if s.cert == nil || !s.cert.UsableAt(s.now()) {
		return fmt.Errorf("%w: certificado del emisor inactivo o vencido", domain.ErrCertificateExpired)
	}
	return nil
}

// authority arma la autoridad del tipo desde los CAF persistidos y el estado bloqueado.
func (s *IssueService) authority(
	ctx context.Context,
	folios repository.FolioRepository,
	cache map[sii.DocumentType]*dte.FolioAuthority,
	docType sii.DocumentType,
) (*dte.FolioAuthority, error) {
	if a, ok := cache[docType]; ok {
		return a, nil
	}
	state, err := folios.GetForUpdate(ctx, s.issuer.RUT, docType)
	if err != nil {
		return nil, err
	}
	a, err := s.storedCertificates(ctx, folios, docType)
	if err != nil {
		return nil, err
	}
	if _, to := a.Range(); to == 0 {
		return nil, fmt.Errorf("%w: tipo %d sin CAF", domain.ErrCertificateNotFound, int(docType))
	}
	if state != nil {
		if err := a.Restore(*state); err != nil {
			return nil, err
		}
	}
	cache[docType] = a
	return a, nil
}

// storedCertificates autoridad sin estado con los CAF persistidos del tipo.
func (s *IssueService) storedCertificates(
	ctx context.Context,
	folios repository.FolioRepository,
	docType sii.DocumentType,
) (*dte.FolioAuthority, error) {
	raws, err := folios.ListCertificates(ctx, s.issuer.RUT, docType)
	if err != nil {
		return nil, err
	}
	a := dte.NewFolioAuthority(docType)
	for _, raw := range raws {
		cert, err := s.loadCAF(raw)
		if err != nil {
			return nil, err
		}
		if err := a.InsertCertificate(cert); err != nil && !errors.Is(err, domain.ErrDuplicateCertificate) {
			return nil, err
		}
	}
	return a, nil
}

func (s *IssueService) fromCharge(a *dte.FolioAuthority, r IssueRequest) (*entity.Document, error) {
	line := entity.NewDetailLine(1, r.Charge.Service, decimal.NewFromInt(1), decimal.NewFromInt(r.Charge.Amount))
	line.Description = r.Charge.Description
	if r.Charge.Exempt {
		line.Exemption = sii.ExemptionExempt
	}
	params := dte.DocumentParams{
		Issuer:      s.issuer,
		Receptor:    r.Receptor,
		Details:     []entity.DetailLine{line},
		DateEmitted: s.now(),
	}
	if !r.Charge.ExpiresAt.IsZero() {
		due := r.Charge.ExpiresAt
		params.DueDate = &due
	}

	var build func(*dte.FolioAuthority, dte.DocumentParams) (*entity.Document, error)
	switch r.DocType {
	case sii.DocTypeVoucher:
		build = dte.NewVoucher
	case sii.DocTypeExemptVoucher:
		build = dte.NewExemptVoucher
	case sii.DocTypeBill:
		build = dte.NewBill
	case sii.DocTypeExemptBill:
		build = dte.NewExemptBill
	default:
		return nil, fmt.Errorf("%w: tipo %d no se emite desde un cobro", domain.ErrValidation, int(r.DocType))
	}
	doc, err := build(a, params)
	if err != nil {
		return nil, err
	}
	if err := dte.CalculateTotals(doc, true); err != nil {
		if rerr := a.ReturnFolio(doc.Folio()); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}
	return doc, nil
}

// signAll timbra y firma el lote con concurrencia acotada. Cualquier error cancela el resto.
func (s *IssueService) signAll(ctx context.Context, batch []pending) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, p := range batch {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cert, err := p.authority.CertificateFor(p.doc.Folio())
			if err != nil {
				return err
			}
			err = s.signer.Sign(p.doc, cert)
			s.metrics.ObserveSignature("document", err)
			if err != nil {
				return fmt.Errorf("%s: %w", p.doc.ReferenceID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *IssueService) persist(
	ctx context.Context,
	folios repository.FolioRepository,
	documents repository.DocumentRepository,
	authorities map[sii.DocumentType]*dte.FolioAuthority,
	batch []pending,
) error {
	now := s.now()
	for _, p := range batch {
		rec := entity.NewDocumentRecord(uuid.New().String(), p.doc, p.chargeID, now)
		if err := documents.Create(ctx, rec); err != nil {
			return err
		}
	}
	for _, a := range authorities {
		if err := folios.Save(ctx, s.issuer.RUT, a.State()); err != nil {
			return err
		}
	}
	return nil
}

// release devuelve los folios de un lote que no llegó a persistirse.
func (s *IssueService) release(batch []pending) {
	for _, p := range batch {
		if err := p.authority.ReturnFolio(p.doc.Folio()); err != nil {
			s.log.Warn().Err(err).Int64("folio", p.doc.Folio()).Msg("no se pudo devolver el folio")
			continue
		}
		s.metrics.IncFolioReturned(strconv.Itoa(int(p.doc.DocType())))
	}
}
