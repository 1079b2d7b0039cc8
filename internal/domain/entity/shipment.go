package entity

import "time"

// Estados de un envío al SII.
const (
	ShipmentStatusPending  = "PENDING"  // Recibido, en validación
	ShipmentStatusAccepted = "ACCEPTED" // Aceptado (con o sin reparos)
	ShipmentStatusRejected = "REJECTED" // Rechazado por el SII
)

// ShipmentRecord resultado de subir un sobre al SII. Se crea solo tras un upload
// exitoso (con TrackID) y su estado cambia únicamente por consultas de estado.
type ShipmentRecord struct {
	ID            string
	DocSetRef     string // ReferenceURI del sobre
	SetType       string // ETD | VOUCHER
	IssuerRUT     string
	TrackID       string
	Status        string
	StatusCode    string // código del SII (EPR, RCT, REC, ...)
	StatusDetail  string
	RawResponse   []byte // última respuesta del SII
	DocumentRefs  []string
	UploadedAt    time.Time
	LastCheckedAt *time.Time
	UpdatedAt     time.Time
}

// Final indica si el estado ya no cambia.
func (s *ShipmentRecord) Final() bool {
	return s.Status == ShipmentStatusAccepted || s.Status == ShipmentStatusRejected
}
