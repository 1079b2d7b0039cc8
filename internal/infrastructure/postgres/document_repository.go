package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

// voucherTypes tipos que viajan en EnvioBOLETA.
var voucherTypes = []int16{int16(sii.DocTypeVoucher), int16(sii.DocTypeExemptVoucher)}

// DocumentRepo implementación de DocumentRepository (usable con pool o tx).
type DocumentRepo struct {
	q Querier
}

// NewDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentRepository(q Querier) *DocumentRepo {
	return &DocumentRepo{q: q}
}

// Create persiste el documento firmado. El XML se guarda sin modificar.
func (r *DocumentRepo) Create(ctx context.Context, rec *entity.DocumentRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	const q = `
		INSERT INTO documents
			(id, issuer_rut, doc_type, folio, date_emitted, total_amount, tax_rate, charge_id, xml_data, xml_stamp, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.q.Exec(ctx, q,
		rec.ID, rec.IssuerRUT, int16(rec.DocType), rec.Folio, rec.DateEmitted, rec.TotalAmount,
		rec.TaxRate, nullIfEmpty(rec.ChargeID), rec.XMLData, rec.XMLStamp, rec.Status, rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("documento %d-%d: %w", int(rec.DocType), rec.Folio, domain.ErrDuplicate)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

const documentColumns = `
	id, issuer_rut, doc_type, folio, date_emitted, total_amount, tax_rate, charge_id,
	xml_data, xml_stamp, status, shipment_id, created_at`

// GetByFolio devuelve nil, nil si no existe.
func (r *DocumentRepo) GetByFolio(ctx context.Context, issuerRUT string, docType sii.DocumentType, folio int64) (*entity.DocumentRecord, error) {
	q := `SELECT ` + documentColumns + `
		FROM documents WHERE issuer_rut = $1 AND doc_type = $2 AND folio = $3`
	rec, err := scanDocument(r.q.QueryRow(ctx, q, issuerRUT, int16(docType), folio))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document by folio: %w", err)
	}
	return rec, nil
}

// ListSigned documentos SIGNED de la familia, en orden de creación.
func (r *DocumentRepo) ListSigned(ctx context.Context, issuerRUT string, setType sii.DocSetType, limit int) ([]*entity.DocumentRecord, error) {
	q := `SELECT ` + documentColumns + `
		FROM documents
		WHERE issuer_rut = $1
		  AND status = $2
		  AND (doc_type = ANY($3)) = $4
		ORDER BY created_at, doc_type, folio
		LIMIT $5`
	rows, err := r.q.Query(ctx, q, issuerRUT, entity.DocumentStatusSigned, voucherTypes, setType == sii.DocSetVoucher, limit)
	if err != nil {
		return nil, fmt.Errorf("list signed documents: %w", err)
	}
	return collectDocuments(rows)
}

// ListIssued documentos del tipo emitidos en [from, to), sin importar su estado de envío.
func (r *DocumentRepo) ListIssued(ctx context.Context, issuerRUT string, docType sii.DocumentType, from, to time.Time) ([]*entity.DocumentRecord, error) {
	q := `SELECT ` + documentColumns + `
		FROM documents
		WHERE issuer_rut = $1 AND doc_type = $2
		  AND date_emitted >= $3 AND date_emitted < $4
		ORDER BY folio`
	rows, err := r.q.Query(ctx, q, issuerRUT, int16(docType), from, to)
	if err != nil {
		return nil, fmt.Errorf("list issued documents: %w", err)
	}
	return collectDocuments(rows)
}

func collectDocuments(rows pgx.Rows) ([]*entity.DocumentRecord, error) {
	defer rows.Close()
	var list []*entity.DocumentRecord
	for rows.Next() {
		rec, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// MarkSent pasa los documentos a SENT con la referencia al envío.
func (r *DocumentRepo) MarkSent(ctx context.Context, ids []string, shipmentID string) error {
	const q = `
		UPDATE documents SET status = $2, shipment_id = $3
		WHERE id = ANY($1) AND status = $4`
	tag, err := r.q.Exec(ctx, q, ids, entity.DocumentStatusSent, shipmentID, entity.DocumentStatusSigned)
	if err != nil {
		return fmt.Errorf("mark documents sent: %w", err)
	}
	if int(tag.RowsAffected()) != len(ids) {
		return fmt.Errorf("%w: %d de %d documentos marcados", domain.ErrConflict, tag.RowsAffected(), len(ids))
	}
	return nil
}

func scanDocument(row pgxScanner) (*entity.DocumentRecord, error) {
	var rec entity.DocumentRecord
	var docType int16
	var chargeID, shipmentID *string
	err := row.Scan(
		&rec.ID, &rec.IssuerRUT, &docType, &rec.Folio, &rec.DateEmitted, &rec.TotalAmount, &rec.TaxRate, &chargeID,
		&rec.XMLData, &rec.XMLStamp, &rec.Status, &shipmentID, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.DocType = sii.DocumentType(docType)
	rec.ChargeID = derefString(chargeID)
	rec.ShipmentID = derefString(shipmentID)
	return &rec, nil
}
