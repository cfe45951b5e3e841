package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formbridge/formbridge/internal/schema"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		typ     schema.FieldType
		want    any
		wantErr bool
	}{
		{"string trims", "  Jane Doe ", schema.TypeString, "Jane Doe", false},
		{"integer", "34", schema.TypeInteger, int64(34), false},
		{"integer with thousands", "1,234", schema.TypeInteger, int64(1234), false},
		{"integer with currency", "$50,000", schema.TypeInteger, int64(50000), false},
		{"integer rejects decimal", "1.5", schema.TypeInteger, nil, true},
		{"integer rejects words", "many", schema.TypeInteger, nil, true},
		{"number", "3.85", schema.TypeNumber, 3.85, false},
		{"number with symbol", "€ 1,234.56", schema.TypeNumber, 1234.56, false},
		{"number negative", "-0.45", schema.TypeNumber, -0.45, false},
		{"number rejects residue", "12abc", schema.TypeNumber, nil, true},
		{"bool yes", "Yes", schema.TypeBoolean, true, false},
		{"bool y", "y", schema.TypeBoolean, true, false},
		{"bool one", "1", schema.TypeBoolean, true, false},
		{"bool no", "No", schema.TypeBoolean, false, false},
		{"bool zero", "0", schema.TypeBoolean, false, false},
		{"bool rejects maybe", "maybe", schema.TypeBoolean, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.raw, tt.typ)
			if tt.wantErr {
				require.Error(t, err)
				var ce *CoercionError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, tt.raw, ce.Raw)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceIsPure(t *testing.T) {
	for i := 0; i < 3; i++ {
		v, err := Coerce("$1,234", schema.TypeInteger)
		require.NoError(t, err)
		assert.Equal(t, int64(1234), v)
	}
}

func TestCoerceIdempotence(t *testing.T) {
	cases := []struct {
		raw string
		typ schema.FieldType
	}{
		{"  x  ", schema.TypeString},
		{"1,234", schema.TypeInteger},
		{"3.850", schema.TypeNumber},
		{"Yes", schema.TypeBoolean},
	}
	for _, c := range cases {
		first, err := Coerce(c.raw, c.typ)
		require.NoError(t, err)
		second, err := Coerce(FormatValue(first), c.typ)
		require.NoError(t, err)
		assert.Equal(t, first, second, "coerce(format(coerce(%q)))", c.raw)
	}
}
