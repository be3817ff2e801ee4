package money

import "github.com/shopspring/decimal"

// Amount is a monetary value. Persisted amounts are always normalised to two
// decimal places, rounding half up.
type Amount = decimal.Decimal

func Zero() Amount { return decimal.Zero }

// Normalize rounds to two decimal places, half up.
func Normalize(a Amount) Amount { return a.Round(2) }

// Sum adds all amounts and normalises the result.
func Sum(amounts ...Amount) Amount {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return Normalize(total)
}

// Equal reports whether two amounts represent the same value.
func Equal(a, b Amount) bool { return a.Cmp(b) == 0 }
