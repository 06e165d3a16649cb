// Package entity internal/domain/entity/currency.go
package entity

import (
	"fmt"
	"sort"
	"strings"
)

// CurrencyCode is a validated currency identifier (ISO code or ticker).
type CurrencyCode string

// ParseCurrencyCode normalizes and validates a raw code. It checks shape
// only; whether the code is recognized is the registry's concern.
func ParseCurrencyCode(raw string) (CurrencyCode, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) < 2 || len(code) > 5 {
		return "", &InvalidCurrencyError{Code: raw, Reason: "code must be 2 to 5 characters"}
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", &InvalidCurrencyError{Code: raw, Reason: "code must be uppercase alphanumeric"}
		}
	}
	return CurrencyCode(code), nil
}

func (c CurrencyCode) String() string { return string(c) }

// CurrencyKind distinguishes fiat currencies from crypto assets.
type CurrencyKind string

const (
	FiatKind   CurrencyKind = "fiat"
	CryptoKind CurrencyKind = "crypto"
)

// Currency carries the metadata known about a recognized currency.
type Currency struct {
	Code           CurrencyCode
	Name           string
	Kind           CurrencyKind
	IssuingCountry string  // fiat only
	Algorithm      string  // crypto only
	MarketCap      float64 // crypto only
}

// DisplayInfo renders the currency for logs and CLI output.
func (c Currency) DisplayInfo() string {
	switch c.Kind {
	case CryptoKind:
		return fmt.Sprintf("[CRYPTO] %s - %s (Algo: %s)", c.Code, c.Name, c.Algorithm)
	default:
		return fmt.Sprintf("[FIAT] %s - %s (Issuing: %s)", c.Code, c.Name, c.IssuingCountry)
	}
}

// NewFiatCurrency creates a fiat currency entry.
func NewFiatCurrency(name string, code CurrencyCode, issuingCountry string) Currency {
	return Currency{Code: code, Name: name, Kind: FiatKind, IssuingCountry: issuingCountry}
}

// NewCryptoCurrency creates a crypto currency entry.
func NewCryptoCurrency(name string, code CurrencyCode, algorithm string, marketCap float64) Currency {
	return Currency{Code: code, Name: name, Kind: CryptoKind, Algorithm: algorithm, MarketCap: marketCap}
}

// Registry is the set of currencies the service recognizes. Query codes
// are validated against it before any cache or graph lookup.
type Registry struct {
	currencies map[CurrencyCode]Currency
}

// NewRegistry builds a registry from the given currencies.
func NewRegistry(currencies ...Currency) *Registry {
	r := &Registry{currencies: make(map[CurrencyCode]Currency, len(currencies))}
	for _, c := range currencies {
		r.currencies[c.Code] = c
	}
	return r
}

// Register adds or replaces a currency.
func (r *Registry) Register(c Currency) {
	r.currencies[c.Code] = c
}

// Resolve parses a raw code and checks it is recognized.
func (r *Registry) Resolve(raw string) (Currency, error) {
	code, err := ParseCurrencyCode(raw)
	if err != nil {
		return Currency{}, err
	}
	c, ok := r.currencies[code]
	if !ok {
		return Currency{}, &InvalidCurrencyError{Code: code.String(), Reason: "currency is not recognized"}
	}
	return c, nil
}

// Contains reports whether the code is recognized.
func (r *Registry) Contains(code CurrencyCode) bool {
	_, ok := r.currencies[code]
	return ok
}

// Codes returns all recognized codes in lexicographic order.
func (r *Registry) Codes() []CurrencyCode {
	codes := make([]CurrencyCode, 0, len(r.currencies))
	for code := range r.currencies {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// builtinCurrencies is the metadata table for currencies the service ships
// with. Codes configured without a table entry are registered generically.
var builtinCurrencies = map[CurrencyCode]Currency{
	"USD": NewFiatCurrency("US Dollar", "USD", "United States"),
	"EUR": NewFiatCurrency("Euro", "EUR", "Eurozone"),
	"GBP": NewFiatCurrency("Pound Sterling", "GBP", "United Kingdom"),
	"RUB": NewFiatCurrency("Russian Ruble", "RUB", "Russia"),
	"JPY": NewFiatCurrency("Japanese Yen", "JPY", "Japan"),
	"CNY": NewFiatCurrency("Chinese Yuan", "CNY", "China"),
	"CAD": NewFiatCurrency("Canadian Dollar", "CAD", "Canada"),
	"AUD": NewFiatCurrency("Australian Dollar", "AUD", "Australia"),
	"CHF": NewFiatCurrency("Swiss Franc", "CHF", "Switzerland"),
	"BTC": NewCryptoCurrency("Bitcoin", "BTC", "SHA-256", 1.12e12),
	"ETH": NewCryptoCurrency("Ethereum", "ETH", "Ethash", 3.72e11),
	"SOL": NewCryptoCurrency("Solana", "SOL", "PoH", 6.5e10),
	"BNB": NewCryptoCurrency("BNB", "BNB", "PoSA", 8.4e10),
	"ADA": NewCryptoCurrency("Cardano", "ADA", "Ouroboros", 1.5e10),
	"LTC": NewCryptoCurrency("Litecoin", "LTC", "Scrypt", 4.5e9),
}

// BuildRegistry assembles a registry from configured fiat and crypto code
// lists, filling in builtin metadata where available.
func BuildRegistry(fiat, crypto []string) (*Registry, error) {
	r := NewRegistry()
	add := func(raw string, kind CurrencyKind) error {
		code, err := ParseCurrencyCode(raw)
		if err != nil {
			return err
		}
		if c, ok := builtinCurrencies[code]; ok {
			r.Register(c)
			return nil
		}
		r.Register(Currency{Code: code, Name: code.String(), Kind: kind})
		return nil
	}
	for _, raw := range fiat {
		if err := add(raw, FiatKind); err != nil {
			return nil, err
		}
	}
	for _, raw := range crypto {
		if err := add(raw, CryptoKind); err != nil {
			return nil, err
		}
	}
	// USD is the quote currency for every upstream source, so it is always
	// recognized even when the configured lists omit it.
	if !r.Contains("USD") {
		r.Register(builtinCurrencies["USD"])
	}
	return r, nil
}

// DefaultRegistry returns a registry with every builtin currency.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, c := range builtinCurrencies {
		r.Register(c)
	}
	return r
}
