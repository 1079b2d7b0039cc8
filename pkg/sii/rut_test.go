package sii_test

import (
	"testing"

	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRUTCheckDigit(t *testing.T) {
	cases := []struct {
		body string
		want string
	}{
		{"12345678", "5"},
		{"11111111", "1"},
		{"76086428", "5"},
		{"60803000", "K"},
		{"10000013", "K"},
		{"22222222", "2"},
		{"1", "9"},
		{"14", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.body, func(t *testing.T) {
			dv, err := sii.ComputeRUTCheckDigit(tc.body)
			require.NoError(t, err)
			assert.Equal(t, tc.want, dv)
		})
	}
}

func TestValidateRUT_Formatos(t *testing.T) {
	for _, rut := range []string{"12.345.678-5", "12345678-5", "123456785", "60.803.000-k", "60803000-K"} {
		assert.NoError(t, sii.ValidateRUT(rut), rut)
	}
}

func TestValidateRUT_Invalidos(t *testing.T) {
	for _, rut := range []string{"12345678-4", "", "5", "12A45678-5", "12345678-X"} {
		assert.Error(t, sii.ValidateRUT(rut), rut)
	}
}

func TestSplitAndFormatRUT(t *testing.T) {
	body, dv, err := sii.SplitRUT("76.086.428-5")
	require.NoError(t, err)
	assert.Equal(t, "76086428", body)
	assert.Equal(t, "5", dv)

	formatted, err := sii.FormatRUT("060.803.000-k")
	require.NoError(t, err)
	assert.Equal(t, "60803000-K", formatted)
}
