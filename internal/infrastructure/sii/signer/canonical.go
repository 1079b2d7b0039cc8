package signer

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/beevik/etree"
	"github.com/ucarion/c14n"
)

// Canonicalize serializa el elemento en forma canónica. Las declaraciones de namespace
// heredadas de sus ancestros se trasladan al elemento solo si el subárbol las usa, de modo
// que el resultado no depende del documento que lo contiene (DTE suelto o dentro de EnvioDTE).
func Canonicalize(el *etree.Element) ([]byte, error) {
	return canonicalize(el, el)
}

// canonicalize canonicaliza el (posiblemente una copia) tomando el contexto de namespaces de scope.
func canonicalize(el, scope *etree.Element) ([]byte, error) {
	c := el.Copy()
	declared := map[string]bool{}
	for _, a := range c.Attr {
		if p, ok := nsDecl(a); ok {
			declared[p] = true
		}
	}
	inherited := inheritedNamespaces(scope)
	for _, p := range usedPrefixes(c) {
		if declared[p] {
			continue
		}
		uri, ok := inherited[p]
		if !ok {
			continue
		}
		if p == "" {
			c.CreateAttr("xmlns", uri)
		} else {
			c.CreateAttr("xmlns:"+p, uri)
		}
	}

	doc := etree.NewDocument()
	doc.SetRoot(c)
	raw, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializar para c14n: %w", err)
	}
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Entity = map[string]string{}
	out, err := c14n.Canonicalize(dec)
	if err != nil {
		return nil, fmt.Errorf("c14n: %w", err)
	}
	return out, nil
}

// nsDecl devuelve el prefijo declarado por un atributo xmlns ("" para el namespace por defecto).
func nsDecl(a etree.Attr) (string, bool) {
	switch {
	case a.Space == "" && a.Key == "xmlns":
		return "", true
	case a.Space == "xmlns":
		return a.Key, true
	}
	return "", false
}

// inheritedNamespaces declaraciones visibles desde los ancestros de el; gana la más interna.
func inheritedNamespaces(el *etree.Element) map[string]string {
	ns := map[string]string{}
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			if prefix, ok := nsDecl(a); ok {
				if _, seen := ns[prefix]; !seen {
					ns[prefix] = a.Value
				}
			}
		}
	}
	return ns
}

// usedPrefixes prefijos usados por elementos y atributos del subárbol, en orden de aparición.
func usedPrefixes(root *etree.Element) []string {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		add(e.Space)
		for _, a := range e.Attr {
			if a.Space == "" || a.Space == "xmlns" || a.Space == "xml" {
				continue
			}
			add(a.Space)
		}
		for _, ch := range e.ChildElements() {
			walk(ch)
		}
	}
	walk(root)
	return out
}
