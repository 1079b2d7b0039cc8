package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// Cover carátula del envío (Caratula).
type Cover struct {
	IssuerRUT      string // RutEmisor
	SenderRUT      string // RutEnvia
	ReceptorRUT    string // RutReceptor (60803000-K para el SII)
	ResolutionDate string // FchResol
	ResolutionNum  int    // NroResol
	Timestamp      time.Time
}

// SubTotal cantidad de documentos por tipo (SubTotDTE).
type SubTotal struct {
	DocType sii.DocumentType
	Count   int
}

// DocSet sobre de envío (EnvioDTE / EnvioBOLETA). Una vez finalizado no admite cambios;
// mutarlo después es un error de programación y provoca panic.
type DocSet struct {
	id          string
	setType     sii.DocSetType
	cover       Cover
	dateEmitted time.Time
	documents   []*Document
	xmlData     []byte
	finalized   bool
}

// NewDocSet crea un sobre vacío con identificador interno propio.
func NewDocSet(setType sii.DocSetType, cover Cover, dateEmitted time.Time) *DocSet {
	return &DocSet{
		id:          strings.ReplaceAll(uuid.NewString(), "-", ""),
		setType:     setType,
		cover:       cover,
		dateEmitted: dateEmitted,
		documents:   make([]*Document, 0),
	}
}

// ID identificador interno del sobre.
func (s *DocSet) ID() string { return s.id }

func (s *DocSet) Type() sii.DocSetType   { return s.setType }
func (s *DocSet) Cover() Cover           { return s.cover }
func (s *DocSet) DateEmitted() time.Time { return s.dateEmitted }

// ReferenceURI valor del atributo ID de SetDTE (SetDTE-{id}-{DD-MM-YYYY}).
func (s *DocSet) ReferenceURI() string {
	return fmt.Sprintf("SetDTE-%s-%s", s.id, s.dateEmitted.Format("02-01-2006"))
}

// Add agrega un documento firmado. El tipo de documento debe pertenecer a la familia del sobre.
func (s *DocSet) Add(doc *Document) error {
	if s.finalized {
		panic("entity: DocSet finalizado no admite documentos")
	}
	if !doc.Sealed() {
		return fmt.Errorf("documento %s sin firmar", doc.ReferenceID())
	}
	if doc.DocType().SetType() != s.setType {
		return fmt.Errorf("documento %s no pertenece a un envío %s", doc.ReferenceID(), s.setType)
	}
	s.documents = append(s.documents, doc)
	return nil
}

// Documents documentos del sobre, en orden de inserción.
func (s *DocSet) Documents() []*Document {
	return append([]*Document(nil), s.documents...)
}

// SubTotals cuenta documentos por tipo en el orden en que aparece cada tipo.
func (s *DocSet) SubTotals() []SubTotal {
	var out []SubTotal
	index := make(map[sii.DocumentType]int)
	for _, d := range s.documents {
		i, ok := index[d.DocType()]
		if !ok {
			index[d.DocType()] = len(out)
			out = append(out, SubTotal{DocType: d.DocType(), Count: 1})
			continue
		}
		out[i].Count++
	}
	return out
}

// Finalize fija el XML firmado del sobre.
func (s *DocSet) Finalize(xmlData []byte) {
	if s.finalized {
		panic("entity: DocSet ya finalizado")
	}
	s.xmlData = append([]byte(nil), xmlData...)
	s.finalized = true
}

func (s *DocSet) Finalized() bool  { return s.finalized }
func (s *DocSet) XMLData() []byte  { return s.xmlData }
func (s *DocSet) FileName() string { return s.ReferenceURI() + ".xml" }
