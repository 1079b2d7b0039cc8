package repository

import (
	"context"

	"github.com/jhoicas/dte-sii/internal/domain/dte"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// FolioRepository define el puerto de persistencia del estado de folios y de los CAF.
type FolioRepository interface {
	// GetForUpdate devuelve el estado de folios del emisor y tipo bloqueando la fila
	// (SELECT FOR UPDATE) hasta el fin de la transacción. Devuelve nil, nil si aún no existe.
	GetForUpdate(ctx context.Context, issuerRUT string, docType sii.DocumentType) (*dte.FolioState, error)
	Save(ctx context.Context, issuerRUT string, state dte.FolioState) error

	// SaveCertificate guarda el archivo CAF; un CAF ya registrado devuelve domain.ErrDuplicate.
	SaveCertificate(ctx context.Context, cert *entity.FolioCertificate) error
	// ListCertificates devuelve los archivos CAF del emisor y tipo, ordenados por rango.
	ListCertificates(ctx context.Context, issuerRUT string, docType sii.DocumentType) ([][]byte, error)
}
