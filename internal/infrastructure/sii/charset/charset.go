// Package charset lee y escribe XML en ISO-8859-1, la codificación que exige el SII.
package charset

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/domain"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Declaration declaración XML de todos los documentos generados.
const Declaration = `version="1.0" encoding="ISO-8859-1"`

// ReadDocument parsea XML en UTF-8 o ISO-8859-1 (según su declaración).
func ReadDocument(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charsetReader
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedDocument, err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("%w: sin elemento raíz", domain.ErrMalformedDocument)
	}
	return doc, nil
}

// WriteDocument serializa el documento con declaración ISO-8859-1 y transcodifica el contenido.
func WriteDocument(doc *etree.Document) ([]byte, error) {
	for _, t := range doc.Child {
		if pi, ok := t.(*etree.ProcInst); ok && pi.Target == "xml" {
			doc.RemoveChild(pi)
			break
		}
	}
	doc.InsertChildAt(0, etree.NewProcInst("xml", Declaration))
	raw, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializar XML: %w", err)
	}
	return EncodeLatin1(raw)
}

// EncodeLatin1 convierte texto UTF-8 a ISO-8859-1. Falla si hay caracteres no representables.
func EncodeLatin1(utf8 []byte) ([]byte, error) {
	out, err := charmap.ISO8859_1.NewEncoder().Bytes(utf8)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnsupportedChar, err)
	}
	return out, nil
}

// DecodeLatin1 convierte ISO-8859-1 a UTF-8.
func DecodeLatin1(latin1 []byte) ([]byte, error) {
	out, err := io.ReadAll(transform.NewReader(bytes.NewReader(latin1), charmap.ISO8859_1.NewDecoder()))
	if err != nil {
		return nil, fmt.Errorf("decodificar ISO-8859-1: %w", err)
	}
	return out, nil
}

func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1", "l1":
		return transform.NewReader(input, charmap.ISO8859_1.NewDecoder()), nil
	case "windows-1252", "cp1252":
		return transform.NewReader(input, charmap.Windows1252.NewDecoder()), nil
	case "utf-8", "utf8", "":
		return input, nil
	}
	return nil, fmt.Errorf("codificación %q no soportada", label)
}

// IsLatin1 indica si la declaración XML del documento es ISO-8859-1.
func IsLatin1(doc *etree.Document) bool {
	for _, t := range doc.Child {
		if pi, ok := t.(*etree.ProcInst); ok && pi.Target == "xml" {
			return strings.Contains(strings.ToUpper(pi.Inst), "ISO-8859-1")
		}
	}
	return false
}
