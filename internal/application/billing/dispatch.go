package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
	"github.com/jhoicas/dte-sii/internal/infrastructure/metrics"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/gateway"
	"github.com/jhoicas/dte-sii/pkg/logger"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

const defaultBatchSize = 500

// FolioUsageBuilder arma y firma el reporte de consumo de folios.
type FolioUsageBuilder interface {
	Build(r *entity.FolioUsageReport) error
}

// DispatchService arma sobres con los documentos firmados pendientes, los sube al SII
// y da seguimiento al estado de cada envío.
type DispatchService struct {
	tx        DispatchTxRunner
	documents repository.DocumentRepository
	shipments repository.ShipmentRepository
	builder   DocSetBuilder
	usage     FolioUsageBuilder
	parse     DocumentParser
	gateways  map[sii.DocSetType]Gateway
	cover     entity.Cover
	batchSize int
	log       *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewDispatchService construye el servicio. cover aporta los RUT y la resolución; el
// timestamp se fija en cada envío.
func NewDispatchService(
	tx DispatchTxRunner,
	documents repository.DocumentRepository,
	shipments repository.ShipmentRepository,
	builder DocSetBuilder,
	usage FolioUsageBuilder,
	parse DocumentParser,
	gateways []Gateway,
	cover entity.Cover,
	log *logger.Logger,
	m *metrics.Metrics,
) *DispatchService {
	byType := make(map[sii.DocSetType]Gateway, len(gateways))
	for _, g := range gateways {
		byType[g.SetType()] = g
	}
	return &DispatchService{
		tx:        tx,
		documents: documents,
		shipments: shipments,
		builder:   builder,
		usage:     usage,
		parse:     parse,
		gateways:  byType,
		cover:     cover,
		batchSize: defaultBatchSize,
		log:       log.Component("dispatch").ForIssuer(cover.IssuerRUT),
		metrics:   m,
		now:       time.Now,
	}
}

// WithClock reemplaza el reloj (tests).
func (s *DispatchService) WithClock(now func() time.Time) *DispatchService {
	s.now = now
	return s
}

// WithBatchSize máximo de documentos por sobre.
func (s *DispatchService) WithBatchSize(n int) *DispatchService {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// Dispatch envía los documentos firmados pendientes de la familia indicada. Sin
// pendientes devuelve nil, nil. Si el upload falla los documentos siguen en SIGNED
// y no se registra envío.
func (s *DispatchService) Dispatch(ctx context.Context, setType sii.DocSetType) (*entity.ShipmentRecord, error) {
	gw, ok := s.gateways[setType]
	if !ok {
		return nil, fmt.Errorf("%w: sin cliente SII para sobres %s", domain.ErrValidation, setType)
	}
	recs, err := s.documents.ListSigned(ctx, s.cover.IssuerRUT, setType, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("listar documentos firmados: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}

	now := s.now()
	cover := s.cover
	cover.Timestamp = now
	set := entity.NewDocSet(setType, cover, now)
	ids := make([]string, 0, len(recs))
	refs := make([]string, 0, len(recs))
	for _, rec := range recs {
		doc, err := s.parse(rec.XMLData)
		if err != nil {
			return nil, fmt.Errorf("documento %d-%d: %w", int(rec.DocType), rec.Folio, err)
		}
		if err := set.Add(doc); err != nil {
			return nil, err
		}
		ids = append(ids, rec.ID)
		refs = append(refs, doc.ReferenceID())
	}
	err = s.builder.Build(set)
	s.metrics.ObserveSignature("docset", err)
	if err != nil {
		return nil, fmt.Errorf("armar sobre: %w", err)
	}

	sub, err := gw.Authenticate(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("set_type", string(setType)).Msg("autenticación SII fallida")
		return nil, err
	}
	res, err := gw.Upload(ctx, sub, gateway.Upload{
		FileName:  set.FileName(),
		Data:      set.XMLData(),
		SenderRUT: cover.SenderRUT,
		IssuerRUT: cover.IssuerRUT,
	})
	if err != nil {
		s.log.Error().Err(err).Str("set_type", string(setType)).Int("documents", len(recs)).Msg("envío fallido")
		return nil, err
	}

	shipment := &entity.ShipmentRecord{
		ID:           uuid.New().String(),
		DocSetRef:    set.ReferenceURI(),
		SetType:      string(setType),
		IssuerRUT:    cover.IssuerRUT,
		TrackID:      res.TrackID,
		Status:       entity.ShipmentStatusPending,
		StatusCode:   res.StatusCode,
		RawResponse:  res.Raw,
		DocumentRefs: refs,
		UploadedAt:   now,
		UpdatedAt:    now,
	}
	err = s.tx.RunDispatch(ctx, func(documents repository.DocumentRepository, shipments repository.ShipmentRepository) error {
		if err := shipments.Create(ctx, shipment); err != nil {
			return err
		}
		return documents.MarkSent(ctx, ids, shipment.ID)
	})
	if err != nil {
		// El SII ya recibió el sobre: el trackid queda en el log para conciliar.
		s.log.Error().Err(err).Str("trackid", res.TrackID).Str("docset", shipment.DocSetRef).
			Msg("envío recibido por el SII pero no registrado")
		return nil, fmt.Errorf("registrar envío %s: %w", res.TrackID, err)
	}
	s.log.Info().Str("trackid", res.TrackID).Str("set_type", string(setType)).
		Int("documents", len(recs)).Msg("sobre enviado")
	return shipment, nil
}

// RefreshStatus consulta el estado de los envíos pendientes y devuelve cuántos
// actualizó. Un error en un envío no detiene el resto.
func (s *DispatchService) RefreshStatus(ctx context.Context) (int, error) {
	pending, err := s.shipments.ListPending(ctx, s.cover.IssuerRUT, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("listar envíos pendientes: %w", err)
	}

	sessions := make(map[sii.DocSetType]*gateway.Submission)
	failed := make(map[sii.DocSetType]bool)
	var errs []error
	updated := 0
	for _, sh := range pending {
		setType := sii.DocSetType(sh.SetType)
		gw, ok := s.gateways[setType]
		if !ok || failed[setType] {
			continue
		}
		sub, ok := sessions[setType]
		if !ok {
			sub, err = gw.Authenticate(ctx)
			if err != nil {
				failed[setType] = true
				errs = append(errs, fmt.Errorf("autenticar %s: %w", setType, err))
				continue
			}
			sessions[setType] = sub
		}

		st, err := gw.PollStatus(ctx, sub, s.cover.SenderRUT, sh.TrackID)
		if err != nil {
			errs = append(errs, fmt.Errorf("estado %s: %w", sh.TrackID, err))
			continue
		}
		now := s.now()
		sh.Status = st.Status
		sh.StatusCode = st.Code
		sh.StatusDetail = st.Detail
		sh.RawResponse = st.Raw
		sh.LastCheckedAt = &now
		sh.UpdatedAt = now
		if err := s.shipments.UpdateStatus(ctx, sh); err != nil {
			errs = append(errs, fmt.Errorf("guardar estado %s: %w", sh.TrackID, err))
			continue
		}
		updated++
		if sh.Final() {
			s.metrics.IncShipment(sh.Status)
			s.log.Info().Str("trackid", sh.TrackID).Str("state", sh.Status).Str("code", sh.StatusCode).
				Msg("envío resuelto")
		}
	}
	return updated, errors.Join(errs...)
}

// FolioUsage arma y firma el consumo de folios de un tipo para el día indicado
// con los documentos persistidos. nulled son los folios anulados del día.
func (s *DispatchService) FolioUsage(
	ctx context.Context,
	docType sii.DocumentType,
	day time.Time,
	correlative int,
	nulled []int64,
) (*entity.FolioUsageReport, error) {
	if s.usage == nil {
		return nil, fmt.Errorf("%w: sin generador de consumo de folios", domain.ErrValidation)
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	to := from.AddDate(0, 0, 1)
	recs, err := s.documents.ListIssued(ctx, s.cover.IssuerRUT, docType, from, to)
	if err != nil {
		return nil, fmt.Errorf("listar documentos emitidos: %w", err)
	}

	cover := s.cover
	cover.Timestamp = s.now()
	report := entity.NewFolioUsageReport(docType, cover, from, from)
	report.SetCorrelative(correlative)
	report.AddNulled(nulled...)
	for _, rec := range recs {
		doc, err := s.parse(rec.XMLData)
		if err != nil {
			return nil, fmt.Errorf("documento %d-%d: %w", int(rec.DocType), rec.Folio, err)
		}
		if err := report.Add(doc); err != nil {
			return nil, err
		}
	}
	err = s.usage.Build(report)
	s.metrics.ObserveSignature("folio_usage", err)
	if err != nil {
		return nil, fmt.Errorf("armar consumo de folios: %w", err)
	}
	s.log.Info().Int("doc_type", int(docType)).Int("documents", len(recs)).
		Str("day", from.Format("2006-01-02")).Msg("consumo de folios generado")
	return report, nil
}
