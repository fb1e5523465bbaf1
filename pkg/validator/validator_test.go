package validator

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

type priced struct {
	Price decimal.Decimal `validate:"money"`
}

func TestMoney(t *testing.T) {
	cases := map[string]bool{
		"0":      true,
		"1.5":    true,
		"199.99": true,
		"1.005":  false,
		"-0.01":  false,
	}
	for in, ok := range cases {
		errs := ValidateStruct(priced{Price: decimal.RequireFromString(in)})
		assert.Equal(t, ok, len(errs) == 0, in)
		if !ok && len(errs) == 1 {
			assert.Equal(t, "money", errs[0].Tag)
			assert.Equal(t, "priced.Price", errs[0].FailedField)
		}
	}
}
