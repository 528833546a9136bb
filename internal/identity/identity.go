// Package identity derives stable customer identifiers from canonical orders.
//
// The two backends share no customer key, so identity is resolved by strict
// field precedence: national tax id, then email, then name, then a synthetic
// per-order key. The result is a best-effort heuristic, not a guaranteed
// unique key: the name fallback can collide across distinct customers.
package identity

import (
	"strings"

	"github.com/opensource-commerce/kestrel/internal/domain"
)

// Key prefixes, one per identity signal. The prefix keeps a document that
// happens to look like an email from colliding with a real email key.
const (
	PrefixDocument = "doc:"
	PrefixEmail    = "email:"
	PrefixName     = "name:"
	PrefixUnknown  = "unknown:"
)

// Resolve returns the customer identity key for an order. Pure and
// deterministic; never fails. Precedence, first match wins:
//
//  1. Document (tax id), canonicalized: "doc:<digits>"
//  2. Email containing "@", lower-cased: "email:<address>"
//  3. Name, trimmed/lower-cased/whitespace-collapsed: "name:<normalized>"
//  4. Synthetic per-order key: "unknown:<source>:<orderID>"
//
// The synthetic fallback guarantees genuinely unidentifiable orders never
// merge into a shared "unknown" bucket, which would corrupt frequency and
// monetary aggregates.
func Resolve(o domain.Order) string {
	if doc := CanonicalDocument(o.Document); doc != "" {
		return PrefixDocument + doc
	}

	email := strings.ToLower(strings.TrimSpace(o.Email))
	if strings.Contains(email, "@") {
		return PrefixEmail + email
	}

	if name := normalizeName(o.CustomerName); name != "" {
		return PrefixName + name
	}

	return PrefixUnknown + string(o.Source) + ":" + o.ID
}

// CanonicalDocument strips punctuation and normalizes case in a tax id, so
// "123.456.789-00" and "12345678900" canonicalize identically. Returns ""
// when nothing remains.
func CanonicalDocument(doc string) string {
	var b strings.Builder
	for _, r := range doc {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z':
			// Alphanumeric CNPJs exist since 2026; letters are significant.
			b.WriteRune(r - 'a' + 'A')
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeName(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, " ")
}
