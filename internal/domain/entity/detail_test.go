package entity_test

import (
	"testing"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetailLine_ItemAmount(t *testing.T) {
	l := entity.NewDetailLine(1, "Agua m3", decimal.NewFromInt(3), decimal.RequireFromString("333.33"))
	assert.Equal(t, int64(1000), l.ItemAmount(), "999.99 redondea a 1000")

	l.Discount = 100
	l.Surcharge = 30
	assert.Equal(t, int64(930), l.ItemAmount())

	l.FixedAmount = 777
	assert.Equal(t, int64(777), l.ItemAmount(), "MontoItem explícito prevalece")
}

func TestDetailLine_DescuentosYRecargos(t *testing.T) {
	l := entity.NewDetailLine(1, "Servicio", decimal.NewFromInt(1), decimal.NewFromInt(1000))

	require.NoError(t, l.ApplySurchargeAmount(100))
	require.NoError(t, l.ApplyDiscountPct(decimal.NewFromInt(10)))
	assert.Equal(t, int64(110), l.Discount, "10 % sobre 1100")
	assert.Equal(t, int64(990), l.ItemAmount())

	// Reaplicar el porcentaje no acumula descuentos.
	require.NoError(t, l.ApplyDiscountPct(decimal.NewFromInt(10)))
	assert.Equal(t, int64(990), l.ItemAmount())

	l.UndoDiscount()
	l.UndoSurcharge()
	assert.Equal(t, int64(1000), l.ItemAmount())

	require.NoError(t, l.ApplySurchargePct(decimal.RequireFromString("0.05")))
	assert.Equal(t, int64(1), l.Surcharge, "0.5 redondea hacia arriba")
}

func TestDetailLine_ValoresInvalidos(t *testing.T) {
	l := entity.NewDetailLine(1, "Servicio", decimal.NewFromInt(1), decimal.NewFromInt(1000))
	assert.ErrorIs(t, l.ApplyDiscountPct(decimal.Zero), domain.ErrInvalidPercentage)
	assert.ErrorIs(t, l.ApplyDiscountPct(decimal.NewFromInt(101)), domain.ErrInvalidPercentage)
	assert.ErrorIs(t, l.ApplySurchargePct(decimal.NewFromInt(-5)), domain.ErrInvalidPercentage)
	assert.ErrorIs(t, l.ApplyDiscountAmount(0), domain.ErrInvalidAmount)
	assert.ErrorIs(t, l.ApplySurchargeAmount(-1), domain.ErrValidation)
	assert.NoError(t, l.ApplyDiscountPct(decimal.NewFromInt(100)))
	assert.Equal(t, int64(0), l.ItemAmount())
}

func TestPorcentajes_DosDecimales(t *testing.T) {
	l := entity.NewDetailLine(1, "Servicio", decimal.NewFromInt(1), decimal.NewFromInt(1000))
	assert.ErrorIs(t, l.ApplyDiscountPct(decimal.RequireFromString("12.345")), domain.ErrInvalidPrecision)
	assert.ErrorIs(t, l.ApplySurchargePct(decimal.RequireFromString("0.001")), domain.ErrInvalidPrecision)
	assert.NoError(t, l.ApplyDiscountPct(decimal.RequireFromString("12.350")), "ceros a la derecha no cuentan")

	g := entity.GlobalDiscountSurcharge{
		LineNo: 1, Movement: sii.MovementDiscount, ValueType: sii.ValuePercentage,
		Value: decimal.RequireFromString("12.345"),
	}
	assert.ErrorIs(t, g.Validate(), domain.ErrInvalidPrecision)
	g.Value = decimal.RequireFromString("12.35")
	assert.NoError(t, g.Validate())
}
