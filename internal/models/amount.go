package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// Amount is a money value in minor units (cents).
type Amount int64

var errInvalidAmount = errors.New("invalid amount")

var (
	hundred       = big.NewInt(100)
	decimalRegexp = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d{1,3})?$`)
)

// ParseAmount parses a decimal string such as "12.5" or "-3.999" into cents,
// rounding half away from zero. Fractions ("1/3"), hex forms, NaN and Inf are rejected.
func ParseAmount(raw string) (Amount, bool) {
	value := strings.TrimSpace(raw)
	if !decimalRegexp.MatchString(value) {
		return 0, false
	}
	value = strings.TrimPrefix(value, "+")
	if dot := strings.IndexByte(value, '.'); dot >= 0 {
		if dot+1 == len(value) || value[dot+1] == 'e' || value[dot+1] == 'E' {
			value = value[:dot+1] + "0" + value[dot+1:]
		}
		if dot == 0 || value[dot-1] == '-' {
			value = value[:dot] + "0" + value[dot:]
		}
	}
	rat, ok := new(big.Rat).SetString(value)
	if !ok {
		return 0, false
	}
	rat.Mul(rat, new(big.Rat).SetInt(hundred))

	num := new(big.Int).Set(rat.Num())
	den := rat.Denom()
	neg := num.Sign() < 0
	num.Abs(num)

	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 && new(big.Int).Mul(rem, big.NewInt(2)).Cmp(den) >= 0 {
		quo.Add(quo, big.NewInt(1))
	}
	if !quo.IsInt64() {
		return 0, false
	}
	cents := quo.Int64()
	if neg {
		cents = -cents
	}
	return Amount(cents), true
}

// MustAmount is ParseAmount for literals known to be valid.
func MustAmount(raw string) Amount {
	a, ok := ParseAmount(raw)
	if !ok {
		panic(fmt.Sprintf("models: invalid amount %q", raw))
	}
	return a
}

func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func (a Amount) Abs() Amount {
	if a < 0 {
		return -a
	}
	return a
}

// DivRound divides by n rounding half away from zero. n <= 0 is treated as 1.
func (a Amount) DivRound(n int) Amount {
	if n <= 1 {
		return a
	}
	v := int64(a)
	d := int64(n)
	if v < 0 {
		return -Amount((-v + d/2) / d)
	}
	return Amount((v + d/2) / d)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*a = 0
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return err
		}
		raw = unquoted
	}
	parsed, ok := ParseAmount(raw)
	if !ok {
		return fmt.Errorf("%w: %q", errInvalidAmount, raw)
	}
	*a = parsed
	return nil
}
