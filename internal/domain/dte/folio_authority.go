// Package dte contiene las reglas de dominio de los documentos tributarios
// electrónicos del SII: asignación de folios, cálculo de totales, construcción
// de documentos y validaciones.
package dte

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// FolioState estado persistible de una autoridad de folios.
type FolioState struct {
	DocType  sii.DocumentType
	LastUsed int64
	Returned []int64
}

// FolioAuthority administra los CAF de un tipo de documento y entrega folios.
// Todas las operaciones están serializadas: un folio nunca se entrega dos veces
// salvo que se haya devuelto antes.
type FolioAuthority struct {
	mu        sync.Mutex
	docType   sii.DocumentType
	certs     []*entity.FolioCertificate
	rangeFrom int64
	rangeTo   int64
	lastUsed  int64
	returned  map[int64]struct{}
}

// NewFolioAuthority crea una autoridad vacía para el tipo de documento.
func NewFolioAuthority(docType sii.DocumentType) *FolioAuthority {
	return &FolioAuthority{
		docType:  docType,
		certs:    make([]*entity.FolioCertificate, 0),
		returned: make(map[int64]struct{}),
	}
}

// DocType tipo de documento que administra.
func (a *FolioAuthority) DocType() sii.DocumentType { return a.docType }

// InsertCertificate incorpora un CAF y amplía el rango cubierto. Con el primer CAF
// el último folio usado queda en range_from - 1. Un rango que se superpone con otro
// CAF del mismo tipo se rechaza.
func (a *FolioAuthority) InsertCertificate(cert *entity.FolioCertificate) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cert.DocType() != a.docType {
		return fmt.Errorf("%w: CAF tipo %d, autoridad tipo %d", domain.ErrDocumentTypeMismatch, int(cert.DocType()), int(a.docType))
	}
	for _, c := range a.certs {
		if c.Equal(cert) {
			return fmt.Errorf("%w: [%d, %d]", domain.ErrDuplicateCertificate, cert.RangeFrom(), cert.RangeTo())
		}
		if cert.RangeFrom() <= c.RangeTo() && c.RangeFrom() <= cert.RangeTo() {
			return fmt.Errorf("%w: [%d, %d] con [%d, %d]", domain.ErrOverlappingCAF,
				cert.RangeFrom(), cert.RangeTo(), c.RangeFrom(), c.RangeTo())
		}
	}
	if len(a.certs) == 0 {
		a.rangeFrom = cert.RangeFrom()
		a.rangeTo = cert.RangeTo()
		a.lastUsed = cert.RangeFrom() - 1
	} else {
		a.rangeFrom = min(a.rangeFrom, cert.RangeFrom())
		a.rangeTo = max(a.rangeTo, cert.RangeTo())
	}
	a.certs = append(a.certs, cert)
	return nil
}

// Range envolvente [desde, hasta] de los CAF incorporados.
func (a *FolioAuthority) Range() (from, to int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rangeFrom, a.rangeTo
}

// NextFolio entrega el menor folio devuelto si existe; si no, el siguiente de la
// secuencia saltando los huecos entre CAF.
func (a *FolioAuthority) NextFolio() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.returned) > 0 {
		f := a.lowestReturned()
		delete(a.returned, f)
		return f, nil
	}
	next, ok := a.nextSequential(a.lastUsed + 1)
	if !ok {
		return 0, fmt.Errorf("%w: tipo %d, último folio %d, rango hasta %d", domain.ErrFolioExhaustion, int(a.docType), a.lastUsed, a.rangeTo)
	}
	a.lastUsed = next
	return next, nil
}

// ReturnFolio devuelve un folio emitido y no usado para que se reutilice.
func (a *FolioAuthority) ReturnFolio(folio int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if folio > a.lastUsed || a.certFor(folio) == nil {
		return fmt.Errorf("%w: %d nunca fue emitido", domain.ErrInvalidFolio, folio)
	}
	if _, ok := a.returned[folio]; ok {
		return fmt.Errorf("%w: %d ya fue devuelto", domain.ErrInvalidFolio, folio)
	}
	a.returned[folio] = struct{}{}
	return nil
}

// CertificateFor devuelve el CAF cuyo rango contiene el folio.
func (a *FolioAuthority) CertificateFor(folio int64) (*entity.FolioCertificate, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c := a.certFor(folio); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("%w: tipo %d folio %d", domain.ErrCertificateNotFound, int(a.docType), folio)
}

// FoliosLeft cantidad de folios que aún se pueden entregar.
func (a *FolioAuthority) FoliosLeft() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	left := int64(len(a.returned))
	for _, c := range a.certs {
		from := max(c.RangeFrom(), a.lastUsed+1)
		if from <= c.RangeTo() {
			left += c.RangeTo() - from + 1
		}
	}
	return left
}

// State copia del estado para persistirlo.
func (a *FolioAuthority) State() FolioState {
	a.mu.Lock()
	defer a.mu.Unlock()

	returned := make([]int64, 0, len(a.returned))
	for f := range a.returned {
		returned = append(returned, f)
	}
	sort.Slice(returned, func(i, j int) bool { return returned[i] < returned[j] })
	return FolioState{DocType: a.docType, LastUsed: a.lastUsed, Returned: returned}
}

// Restore aplica un estado persistido. Debe llamarse después de incorporar los CAF.
func (a *FolioAuthority) Restore(s FolioState) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s.DocType != a.docType {
		return fmt.Errorf("%w: estado tipo %d, autoridad tipo %d", domain.ErrDocumentTypeMismatch, int(s.DocType), int(a.docType))
	}
	if len(a.certs) == 0 {
		return fmt.Errorf("%w: autoridad sin CAF", domain.ErrCertificateNotFound)
	}
	if s.LastUsed < a.rangeFrom-1 || s.LastUsed > a.rangeTo {
		return fmt.Errorf("%w: último folio %d fuera de [%d, %d]", domain.ErrInvalidFolio, s.LastUsed, a.rangeFrom, a.rangeTo)
	}
	returned := make(map[int64]struct{}, len(s.Returned))
	for _, f := range s.Returned {
		if f > s.LastUsed || a.certFor(f) == nil {
			return fmt.Errorf("%w: folio devuelto %d", domain.ErrInvalidFolio, f)
		}
		returned[f] = struct{}{}
	}
	a.lastUsed = s.LastUsed
	a.returned = returned
	return nil
}

func (a *FolioAuthority) lowestReturned() int64 {
	first := true
	var lowest int64
	for f := range a.returned {
		if first || f < lowest {
			lowest, first = f, false
		}
	}
	return lowest
}

func (a *FolioAuthority) certFor(folio int64) *entity.FolioCertificate {
	for _, c := range a.certs {
		if c.Contains(folio) {
			return c
		}
	}
	return nil
}

// nextSequential devuelve candidate si algún CAF lo cubre; si cae en un hueco, el
// inicio del siguiente CAF.
func (a *FolioAuthority) nextSequential(candidate int64) (int64, bool) {
	if a.certFor(candidate) != nil {
		return candidate, true
	}
	var next int64
	found := false
	for _, c := range a.certs {
		if c.RangeFrom() > candidate && (!found || c.RangeFrom() < next) {
			next, found = c.RangeFrom(), true
		}
	}
	return next, found
}
