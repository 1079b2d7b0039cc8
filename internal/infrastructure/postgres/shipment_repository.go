package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
)

var _ repository.ShipmentRepository = (*ShipmentRepo)(nil)

// ShipmentRepo implementación de ShipmentRepository (usable con pool o tx).
type ShipmentRepo struct {
	q Querier
}

// NewShipmentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewShipmentRepository(q Querier) *ShipmentRepo {
	return &ShipmentRepo{q: q}
}

func (r *ShipmentRepo) Create(ctx context.Context, s *entity.ShipmentRecord) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	const q = `
		INSERT INTO shipments
			(id, doc_set_ref, set_type, issuer_rut, track_id, status, status_code, status_detail,
			 raw_response, uploaded_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.q.Exec(ctx, q,
		s.ID, s.DocSetRef, s.SetType, s.IssuerRUT, s.TrackID, s.Status,
		nullIfEmpty(s.StatusCode), nullIfEmpty(s.StatusDetail), s.RawResponse, s.UploadedAt, s.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("trackid %s: %w", s.TrackID, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

const shipmentColumns = `
	s.id, s.doc_set_ref, s.set_type, s.issuer_rut, s.track_id, s.status, s.status_code, s.status_detail,
	s.raw_response, s.uploaded_at, s.last_checked_at, s.updated_at,
	ARRAY(SELECT d.id::text FROM documents d WHERE d.shipment_id = s.id ORDER BY d.doc_type, d.folio)`

// GetByID devuelve nil, nil si no existe.
func (r *ShipmentRepo) GetByID(ctx context.Context, id string) (*entity.ShipmentRecord, error) {
	q := `SELECT ` + shipmentColumns + ` FROM shipments s WHERE s.id = $1`
	s, err := scanShipment(r.q.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get shipment by id: %w", err)
	}
	return s, nil
}

func (r *ShipmentRepo) UpdateStatus(ctx context.Context, s *entity.ShipmentRecord) error {
	const q = `
		UPDATE shipments
		SET status          = $2,
		    status_code     = COALESCE($3, status_code),
		    status_detail   = COALESCE($4, status_detail),
		    raw_response    = COALESCE($5, raw_response),
		    last_checked_at = $6,
		    updated_at      = $7
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, q,
		s.ID, s.Status, nullIfEmpty(s.StatusCode), nullIfEmpty(s.StatusDetail), s.RawResponse,
		s.LastCheckedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update shipment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("shipment %s: %w", s.ID, domain.ErrNotFound)
	}
	return nil
}

func (r *ShipmentRepo) ListPending(ctx context.Context, issuerRUT string, limit int) ([]*entity.ShipmentRecord, error) {
	q := `SELECT ` + shipmentColumns + `
		FROM shipments s
		WHERE s.issuer_rut = $1 AND s.status = $2
		ORDER BY s.uploaded_at
		LIMIT $3`
	rows, err := r.q.Query(ctx, q, issuerRUT, entity.ShipmentStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending shipments: %w", err)
	}
	defer rows.Close()
	var list []*entity.ShipmentRecord
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func scanShipment(row pgxScanner) (*entity.ShipmentRecord, error) {
	var s entity.ShipmentRecord
	var code, detail *string
	err := row.Scan(
		&s.ID, &s.DocSetRef, &s.SetType, &s.IssuerRUT, &s.TrackID, &s.Status, &code, &detail,
		&s.RawResponse, &s.UploadedAt, &s.LastCheckedAt, &s.UpdatedAt, &s.DocumentRefs,
	)
	if err != nil {
		return nil, err
	}
	s.StatusCode = derefString(code)
	s.StatusDetail = derefString(detail)
	return &s, nil
}
