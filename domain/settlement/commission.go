package settlement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultRate is the platform cut applied when none is configured.
var DefaultRate = Rate{d: decimal.RequireFromString(defaultRate)}

const defaultRate = "0.10"

// Rate is a commission fraction in [0, 1], held exactly.
type Rate struct {
	d decimal.Decimal
}

// ParseRate parses a decimal fraction such as "0.10". An empty string yields
// DefaultRate.
func ParseRate(s string) (Rate, error) {
	if s == "" {
		return DefaultRate, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Rate{}, fmt.Errorf("invalid commission rate %q: %w", s, err)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return Rate{}, fmt.Errorf("commission rate %q must be between 0 and 1", s)
	}
	return Rate{d: d}, nil
}

func MustParseRate(s string) Rate {
	r, err := ParseRate(s)
	if err != nil {
		panic(err)
	}
	return r
}

func (r Rate) String() string {
	return r.d.String()
}

var ErrNegativeAmount = errors.New("amount must not be negative")

// ComputeCommission returns round(finalPrice * rate) in minor units,
// rounding halves up.
func ComputeCommission(finalPrice int64, rate Rate) (int64, error) {
	if finalPrice < 0 {
		return 0, ErrNegativeAmount
	}
	// Round is half away from zero, which is half-up for non-negative values.
	return decimal.NewFromInt(finalPrice).Mul(rate.d).Round(0).IntPart(), nil
}
