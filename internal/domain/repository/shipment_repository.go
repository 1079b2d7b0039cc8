package repository

import (
	"context"

	"github.com/jhoicas/dte-sii/internal/domain/entity"
)

// ShipmentRepository define el puerto de persistencia de envíos al SII.
type ShipmentRepository interface {
	Create(ctx context.Context, s *entity.ShipmentRecord) error
	GetByID(ctx context.Context, id string) (*entity.ShipmentRecord, error)
	// UpdateStatus guarda estado, código, glosa y última respuesta del SII.
	UpdateStatus(ctx context.Context, s *entity.ShipmentRecord) error
	// ListPending envíos del emisor en estado PENDING, más antiguos primero.
	ListPending(ctx context.Context, issuerRUT string, limit int) ([]*entity.ShipmentRecord, error)
}
