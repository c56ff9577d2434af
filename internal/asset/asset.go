// Package asset models fixed-point token quantities tagged with a currency
// symbol, e.g. "12.5000 XDL".
package asset

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// Precision is the only supported number of decimal places.
	Precision uint8 = 4
	// Unit is one whole token expressed in base units at Precision.
	Unit int64 = 10000
	// MaxAmount bounds every amount so that sums of two amounts never overflow.
	MaxAmount int64 = 1<<62 - 1

	maxCodeLen = 7
)

var (
	// ErrInvalidSymbol indicates a malformed symbol code or precision.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrInvalidAmount indicates a malformed or out of range quantity.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Symbol identifies a currency by code and precision.
type Symbol struct {
	Code      string
	Precision uint8
}

// NewSymbol builds a symbol at the default precision.
func NewSymbol(code string) Symbol {
	return Symbol{Code: code, Precision: Precision}
}

// ParseSymbol reads the "precision,CODE" notation, e.g. "4,XDL". A bare code is
// accepted and gets the default precision.
func ParseSymbol(s string) (Symbol, error) {
	s = strings.TrimSpace(s)
	prec := Precision
	code := s
	if p, c, ok := strings.Cut(s, ","); ok {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return Symbol{}, fmt.Errorf("%w: precision %q", ErrInvalidSymbol, p)
		}
		prec = uint8(n)
		code = c
	}
	sym := Symbol{Code: code, Precision: prec}
	if !sym.IsValid() {
		return Symbol{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
	}
	return sym, nil
}

// IsValid reports whether the code is 1 to 7 upper case letters and the
// precision is sane.
func (s Symbol) IsValid() bool {
	if len(s.Code) == 0 || len(s.Code) > maxCodeLen || s.Precision > 18 {
		return false
	}
	for _, r := range s.Code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// String renders the symbol as "precision,CODE".
func (s Symbol) String() string {
	return fmt.Sprintf("%d,%s", s.Precision, s.Code)
}

// Asset is an amount of base units of a symbol.
type Asset struct {
	Amount int64
	Symbol Symbol
}

// New builds an asset from base units.
func New(amount int64, sym Symbol) Asset {
	return Asset{Amount: amount, Symbol: sym}
}

// FromUnits builds an asset holding whole tokens.
func FromUnits(units int64, sym Symbol) Asset {
	return Asset{Amount: units * Unit, Symbol: sym}
}

// Parse reads "AMOUNT CODE". The number of decimal places in AMOUNT sets the
// symbol precision, so "1.0000 XDL" and "1 XDL" name different symbols.
func Parse(s string) (Asset, error) {
	num, code, ok := strings.Cut(strings.TrimSpace(s), " ")
	if !ok {
		return Asset{}, fmt.Errorf("%w: %q must be \"AMOUNT CODE\"", ErrInvalidAmount, s)
	}
	code = strings.TrimSpace(code)
	if strings.ContainsAny(num, "eE") {
		return Asset{}, fmt.Errorf("%w: %q must be plain digits", ErrInvalidAmount, num)
	}

	d, err := decimal.NewFromString(num)
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	prec := uint8(0)
	if _, frac, found := strings.Cut(num, "."); found {
		if len(frac) > 18 {
			return Asset{}, fmt.Errorf("%w: too many decimal places", ErrInvalidAmount)
		}
		prec = uint8(len(frac))
	}
	sym := Symbol{Code: code, Precision: prec}
	if !sym.IsValid() {
		return Asset{}, fmt.Errorf("%w: %q", ErrInvalidSymbol, code)
	}

	scaled := d.Shift(int32(prec))
	limit := decimal.NewFromInt(MaxAmount)
	if scaled.Abs().GreaterThan(limit) {
		return Asset{}, fmt.Errorf("%w: magnitude out of range", ErrInvalidAmount)
	}
	return Asset{Amount: scaled.IntPart(), Symbol: sym}, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) Asset {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsValid reports whether the amount is in range and the symbol is valid.
func (a Asset) IsValid() bool {
	return a.Amount >= -MaxAmount && a.Amount <= MaxAmount && a.Symbol.IsValid()
}

// Decimal returns the amount as a decimal number of tokens.
func (a Asset) Decimal() decimal.Decimal {
	return decimal.New(a.Amount, -int32(a.Symbol.Precision))
}

// String renders the asset with exactly Symbol.Precision decimal places.
func (a Asset) String() string {
	return a.Decimal().StringFixed(int32(a.Symbol.Precision)) + " " + a.Symbol.Code
}

// MarshalText implements encoding.TextMarshaler.
func (a Asset) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Asset) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
