package ryepay

import "strings"

// PartialAddress is the canonical partial-address shape. Wallet adapters
// normalize their sheet-native contact shapes into this before anything
// reaches the commerce client. Province, country, and postal code are always
// forwarded in buyer-identity updates, even when empty; the remaining contact
// fields are sent only once a first name is present.
type PartialAddress struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Address1     string
	Address2     string
	City         string
	ProvinceCode string
	CountryCode  string
	PostalCode   string
}

// HasContact reports whether the sheet disclosed the full contact rather
// than the redacted pre-authorization subset (province/country/postal only).
func (a PartialAddress) HasContact() bool {
	return a.FirstName != ""
}

// ParsedName is a full name split into the fields the commerce API expects.
// Splitting policy: first token is the first name, second token is the last
// name, any remainder is discarded. This is a known lossy simplification;
// multi-word last names are not preserved.
type ParsedName struct {
	First string
	Last  string
}

// ParseFullName applies the documented splitting policy to a display name.
func ParseFullName(full string) ParsedName {
	parts := strings.Fields(full)
	name := ParsedName{}
	if len(parts) > 0 {
		name.First = parts[0]
	}
	if len(parts) > 1 {
		name.Last = parts[1]
	}
	return name
}

// PostalCodeCompleter expands a truncated postal code into a full one for
// countries whose wallet sheets redact part of it. The heuristic itself
// lives with the embedding application; the default keeps the code as-is.
type PostalCodeCompleter interface {
	CompletePostalCode(postalCode, countryCode string) string
}

// PostalCodeCompleterFunc lifts bare functions into [PostalCodeCompleter].
type PostalCodeCompleterFunc func(postalCode, countryCode string) string

func (f PostalCodeCompleterFunc) CompletePostalCode(postalCode, countryCode string) string {
	return f(postalCode, countryCode)
}

// identityPostalCompleter is the default no-op completion.
func identityPostalCompleter(postalCode, _ string) string {
	return postalCode
}
