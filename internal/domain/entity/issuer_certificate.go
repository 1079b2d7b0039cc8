package entity

import (
	"fmt"
	"time"

	"github.com/jhoicas/dte-sii/internal/domain"
)

// Estados del certificado digital del emisor.
const (
	IssuerCertInactive = "INACTIVE"
	IssuerCertActive   = "ACTIVE"
	IssuerCertDisabled = "DISABLED"
)

// IssuerCertificate metadatos del certificado con que el emisor firma sobres y documentos.
type IssuerCertificate struct {
	Serial    string
	Subject   string
	ValidFrom time.Time
	ValidTo   time.Time
	Status    string
}

// UsableAt indica si el certificado está activo y vigente en el instante dado.
func (c IssuerCertificate) UsableAt(t time.Time) bool {
	return c.Status == IssuerCertActive && !t.Before(c.ValidFrom) && !t.After(c.ValidTo)
}

// Activate pasa de INACTIVE a ACTIVE.
func (c *IssuerCertificate) Activate() error {
	if c.Status != IssuerCertInactive {
		return fmt.Errorf("%w: certificado en estado %s", domain.ErrConflict, c.Status)
	}
	c.Status = IssuerCertActive
	return nil
}

// Disable pasa de ACTIVE a DISABLED.
func (c *IssuerCertificate) Disable() error {
	if c.Status != IssuerCertActive {
		return fmt.Errorf("%w: certificado en estado %s", domain.ErrConflict, c.Status)
	}
	c.Status = IssuerCertDisabled
	return nil
}
