package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/dte"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/domain/repository"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

var _ repository.FolioRepository = (*FolioRepo)(nil)

// FolioRepo implementación de FolioRepository (usable con pool o tx).
// GetForUpdate solo serializa emisiones cuando se usa dentro de una transacción.
type FolioRepo struct {
	q Querier
}

// NewFolioRepository construye el adaptador. Pasar pool o tx (Querier).
func NewFolioRepository(q Querier) *FolioRepo {
	return &FolioRepo{q: q}
}

// GetForUpdate bloquea la fila de estado (SELECT FOR UPDATE).
func (r *FolioRepo) GetForUpdate(ctx context.Context, issuerRUT string, docType sii.DocumentType) (*dte.FolioState, error) {
	const q = `
		SELECT last_used, returned
		FROM folio_states
		WHERE issuer_rut = $1 AND doc_type = $2
		FOR UPDATE`
	state := dte.FolioState{DocType: docType}
	err := r.q.QueryRow(ctx, q, issuerRUT, int16(docType)).Scan(&state.LastUsed, &state.Returned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get folio_state for update: %w", err)
	}
	return &state, nil
}

// Save inserta o actualiza el estado de folios.
func (r *FolioRepo) Save(ctx context.Context, issuerRUT string, state dte.FolioState) error {
	const q = `
		INSERT INTO folio_states (issuer_rut, doc_type, last_used, returned, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (issuer_rut, doc_type)
		DO UPDATE SET last_used = EXCLUDED.last_used, returned = EXCLUDED.returned, updated_at = now()`
	returned := state.Returned
	if returned == nil {
		returned = []int64{}
	}
	if _, err := r.q.Exec(ctx, q, issuerRUT, int16(state.DocType), state.LastUsed, returned); err != nil {
		return fmt.Errorf("upsert folio_state: %w", err)
	}
	return nil
}

// SaveCertificate guarda el archivo AUTORIZACION completo.
func (r *FolioRepo) SaveCertificate(ctx context.Context, cert *entity.FolioCertificate) error {
	const q = `
		INSERT INTO folio_certificates (id, issuer_rut, doc_type, range_from, range_to, caf_xml, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`
	_, err := r.q.Exec(ctx, q,
		uuid.New().String(), cert.IssuerRUT(), int16(cert.DocType()),
		cert.RangeFrom(), cert.RangeTo(), cert.Raw(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("caf [%d, %d]: %w", cert.RangeFrom(), cert.RangeTo(), domain.ErrDuplicate)
		}
		return fmt.Errorf("insert folio_certificate: %w", err)
	}
	return nil
}

func (r *FolioRepo) ListCertificates(ctx context.Context, issuerRUT string, docType sii.DocumentType) ([][]byte, error) {
	const q = `
		SELECT caf_xml
		FROM folio_certificates
		WHERE issuer_rut = $1 AND doc_type = $2
		ORDER BY range_from`
	rows, err := r.q.Query(ctx, q, issuerRUT, int16(docType))
	if err != nil {
		return nil, fmt.Errorf("list folio_certificates: %w", err)
	}
	defer rows.Close()
	var list [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan folio_certificate: %w", err)
		}
		list = append(list, raw)
	}
	return list, rows.Err()
}
