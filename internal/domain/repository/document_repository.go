package repository

import (
	"context"
	"time"

	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// DocumentRepository define el puerto de persistencia de documentos firmados.
type DocumentRepository interface {
	Create(ctx context.Context, rec *entity.DocumentRecord) error
	GetByFolio(ctx context.Context, issuerRUT string, docType sii.DocumentType, folio int64) (*entity.DocumentRecord, error)
	// ListSigned documentos firmados aún no enviados, de la familia de sobre indicada.
	ListSigned(ctx context.Context, issuerRUT string, setType sii.DocSetType, limit int) ([]*entity.DocumentRecord, error)
	// ListIssued documentos del tipo con fecha de emisión en [from, to), por folio.
	ListIssued(ctx context.Context, issuerRUT string, docType sii.DocumentType, from, to time.Time) ([]*entity.DocumentRecord, error)
	// MarkSent asocia los documentos al envío y los deja en estado SENT.
	MarkSent(ctx context.Context, ids []string, shipmentID string) error
}
