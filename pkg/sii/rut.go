package sii

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ValidateRUT valida que el RUT (con o sin puntos, con guion) tenga un dígito
// verificador correcto según el algoritmo módulo 11 del SII.
// rut puede ser "12.345.678-5", "12345678-5" o "123456785".
func ValidateRUT(rut string) error {
	body, dv, err := SplitRUT(rut)
	if err != nil {
		return err
	}
	expected, err := ComputeRUTCheckDigit(body)
	if err != nil {
		return err
	}
	if dv != expected {
		return fmt.Errorf("sii: dígito verificador del RUT inválido: esperado %s, recibido %s", expected, dv)
	}
	return nil
}

// ComputeRUTCheckDigit calcula el dígito verificador del cuerpo numérico del RUT.
// Los factores 2..7 se aplican desde el dígito menos significativo y se repiten.
func ComputeRUTCheckDigit(body string) (string, error) {
	digits := extractDigits(body)
	if len(digits) == 0 {
		return "", fmt.Errorf("sii: RUT sin dígitos")
	}
	sum := 0
	factor := 2
	for i := len(digits) - 1; i >= 0; i-- {
		sum += int(digits[i]-'0') * factor
		factor++
		if factor > 7 {
			factor = 2
		}
	}
	switch code := 11 - sum%11; code {
	case 11:
		return "0", nil
	case 10:
		return "K", nil
	default:
		return strconv.Itoa(code), nil
	}
}

// SplitRUT separa el cuerpo numérico y el dígito verificador (en mayúscula).
func SplitRUT(rut string) (body, dv string, err error) {
	clean := strings.ToUpper(strings.TrimSpace(rut))
	clean = strings.ReplaceAll(clean, ".", "")
	clean = strings.ReplaceAll(clean, "-", "")
	if len(clean) < 2 {
		return "", "", fmt.Errorf("sii: RUT %q demasiado corto", rut)
	}
	body, dv = clean[:len(clean)-1], clean[len(clean)-1:]
	for _, r := range body {
		if !unicode.IsDigit(r) {
			return "", "", fmt.Errorf("sii: RUT %q contiene caracteres no numéricos", rut)
		}
	}
	if dv != "K" && !unicode.IsDigit(rune(dv[0])) {
		return "", "", fmt.Errorf("sii: dígito verificador %q inválido", dv)
	}
	return strings.TrimLeft(body, "0"), dv, nil
}

// FormatRUT normaliza el RUT al formato "12345678-5" usado en los XML del SII.
func FormatRUT(rut string) (string, error) {
	body, dv, err := SplitRUT(rut)
	if err != nil {
		return "", err
	}
	return body + "-" + dv, nil
}

func extractDigits(s string) []byte {
	var out []byte
	for _, r := range s {
		if unicode.IsDigit(r) {
			out = append(out, byte(r))
		}
	}
	return out
}
