// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package attr

import (
	"math/big"
	"strings"
	"sync"

	"github.com/zeebo/errs"
)

// decimal is an exact base-10 number: coeff * 10^exp. The hosted service
// carries numbers as strings with up to 38 digits of precision, which rules
// out float64; math/big keeps the arithmetic exact.
type decimal struct {
	coeff *big.Int
	exp   int
}

// pow10cache is shared across concurrent requests; cached values are never
// mutated after insertion.
var (
	pow10mu    sync.Mutex
	pow10cache = map[int]*big.Int{}
)

func pow10(n int) *big.Int {
	pow10mu.Lock()
	defer pow10mu.Unlock()
	if p, ok := pow10cache[n]; ok {
		return p
	}
	p := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	if n <= 64 {
		pow10cache[n] = p
	}
	return p
}

func parseDecimal(s string) (decimal, error) {
	text := s
	neg := false
	if strings.HasPrefix(text, "-") {
		neg = true
		text = text[1:]
	} else if strings.HasPrefix(text, "+") {
		text = text[1:]
	}

	mantissa := text
	exp := 0
	if i := strings.IndexAny(text, "eE"); i >= 0 {
		mantissa = text[:i]
		e := text[i+1:]
		eneg := false
		if strings.HasPrefix(e, "-") {
			eneg = true
			e = e[1:]
		} else if strings.HasPrefix(e, "+") {
			e = e[1:]
		}
		if e == "" {
			return decimal{}, errs.New("invalid number %q", s)
		}
		for _, r := range e {
			if r < '0' || r > '9' {
				return decimal{}, errs.New("invalid number %q", s)
			}
			exp = exp*10 + int(r-'0')
			if exp > 1000 {
				return decimal{}, errs.New("number %q out of range", s)
			}
		}
		if eneg {
			exp = -exp
		}
	}

	digits := mantissa
	if i := strings.IndexByte(mantissa, '.'); i >= 0 {
		digits = mantissa[:i] + mantissa[i+1:]
		exp -= len(mantissa) - i - 1
	}
	if digits == "" {
		return decimal{}, errs.New("invalid number %q", s)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return decimal{}, errs.New("invalid number %q", s)
		}
	}

	coeff, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return decimal{}, errs.New("invalid number %q", s)
	}
	if neg {
		coeff.Neg(coeff)
	}
	return decimal{coeff: coeff, exp: exp}, nil
}

// align brings two decimals to a common exponent.
func align(a, b decimal) (*big.Int, *big.Int, int) {
	switch {
	case a.exp == b.exp:
		return a.coeff, b.coeff, a.exp
	case a.exp > b.exp:
		scaled := new(big.Int).Mul(a.coeff, pow10(a.exp-b.exp))
		return scaled, b.coeff, b.exp
	default:
		scaled := new(big.Int).Mul(b.coeff, pow10(b.exp-a.exp))
		return a.coeff, scaled, a.exp
	}
}

func (d decimal) String() string {
	coeff := new(big.Int).Set(d.coeff)
	exp := d.exp

	neg := coeff.Sign() < 0
	if neg {
		coeff.Neg(coeff)
	}
	if coeff.Sign() == 0 {
		return "0"
	}

	// canonical form drops trailing zeros from the coefficient
	ten := big.NewInt(10)
	mod := new(big.Int)
	for {
		q, m := new(big.Int).QuoRem(coeff, ten, mod)
		if m.Sign() != 0 {
			break
		}
		coeff = q
		exp++
	}

	digits := coeff.String()
	var out string
	switch {
	case exp >= 0:
		out = digits + strings.Repeat("0", exp)
	case -exp < len(digits):
		out = digits[:len(digits)+exp] + "." + digits[len(digits)+exp:]
	default:
		out = "0." + strings.Repeat("0", -exp-len(digits)) + digits
	}
	if neg {
		out = "-" + out
	}
	return out
}

// CompareNumbers compares two decimal strings exactly.
func CompareNumbers(a, b string) (int, error) {
	da, err := parseDecimal(a)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	db, err := parseDecimal(b)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	ca, cb, _ := align(da, db)
	return ca.Cmp(cb), nil
}

// AddNumbers returns the exact sum of two decimal strings in canonical form.
func AddNumbers(a, b string) (string, error) {
	da, err := parseDecimal(a)
	if err != nil {
		return "", Error.Wrap(err)
	}
	db, err := parseDecimal(b)
	if err != nil {
		return "", Error.Wrap(err)
	}
	ca, cb, exp := align(da, db)
	return decimal{coeff: new(big.Int).Add(ca, cb), exp: exp}.String(), nil
}

// SubtractNumbers returns the exact difference of two decimal strings.
func SubtractNumbers(a, b string) (string, error) {
	da, err := parseDecimal(a)
	if err != nil {
		return "", Error.Wrap(err)
	}
	db, err := parseDecimal(b)
	if err != nil {
		return "", Error.Wrap(err)
	}
	ca, cb, exp := align(da, db)
	return decimal{coeff: new(big.Int).Sub(ca, cb), exp: exp}.String(), nil
}

// CanonicalNumber reformats a decimal string into its canonical form.
func CanonicalNumber(s string) (string, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return "", Error.Wrap(err)
	}
	return d.String(), nil
}

// IsNumber reports whether s parses as a decimal number.
func IsNumber(s string) bool {
	_, err := parseDecimal(s)
	return err == nil
}

// EpochSeconds interprets a decimal string as an epoch timestamp in
// seconds, truncating any fractional part toward zero.
func EpochSeconds(s string) (int64, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return 0, Error.Wrap(err)
	}
	coeff := new(big.Int).Set(d.coeff)
	switch {
	case d.exp > 0:
		coeff.Mul(coeff, pow10(d.exp))
	case d.exp < 0:
		if -d.exp > 40 {
			return 0, nil
		}
		coeff.Quo(coeff, pow10(-d.exp))
	}
	if !coeff.IsInt64() {
		return 0, Error.New("timestamp %q out of range", s)
	}
	return coeff.Int64(), nil
}
