// Package query builds the GraphQL filter arguments sent to the DAO subgraph.
package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidAddress is returned when an address-shaped filter is not a
// well-formed hex address.
var ErrInvalidAddress = errors.New("invalid address")

// FetchPolicy tells the indexer client whether a cached response may be used.
// It is passed through untouched by the entity layer.
type FetchPolicy string

const (
	// FetchNetworkOnly always executes the query against the indexer.
	FetchNetworkOnly FetchPolicy = ""
	// FetchCacheFirst answers from the last response for an identical query
	// when one is available.
	FetchCacheFirst FetchPolicy = "cache-first"
)

// Where maps a subgraph field to a filter value. A nil value means the field
// is not filtered.
type Where map[string]any

// Options are the common search options shared by every entity.
type Options struct {
	Where          Where
	First          int
	Skip           int
	OrderBy        string
	OrderDirection string
}

// Request is a query ready to be executed by an indexer.
type Request struct {
	Query       string
	FetchPolicy FetchPolicy
}

// IsAddress reports whether s is a well-formed 0x-prefixed hex address.
func IsAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && common.IsHexAddress(s)
}

// ValidateAddress returns an error wrapping ErrInvalidAddress if s is not a
// well-formed address.
func ValidateAddress(s string) error {
	if !IsAddress(s) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return nil
}

// WhereClause renders the body of a `where: { … }` argument. Nil values are
// skipped. Keys named in addressKeys are validated and lowercased. Every other
// value is embedded as a string term.
//
// Values are interpolated verbatim.
func WhereClause(where Where, addressKeys ...string) (string, error) {
	keys := make([]string, 0, len(where))
	for k, v := range where {
		if v == nil {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		value := fmt.Sprint(where[key])
		if isAddressKey(key, addressKeys) {
			if err := ValidateAddress(value); err != nil {
				return "", fmt.Errorf("where.%s: %w", key, err)
			}
			value = strings.ToLower(value)
		}
		fmt.Fprintf(&b, "%s: \"%s\"\n", key, value)
	}
	return b.String(), nil
}

// Arguments renders the parenthesised argument list of a collection query, or
// an empty string when no argument is set.
func Arguments(opts Options, where string) string {
	var b strings.Builder
	if where != "" {
		fmt.Fprintf(&b, "where: {\n%s}\n", where)
	}
	if opts.First > 0 {
		fmt.Fprintf(&b, "first: %d\n", opts.First)
	}
	if opts.Skip > 0 {
		fmt.Fprintf(&b, "skip: %d\n", opts.Skip)
	}
	if opts.OrderBy != "" {
		fmt.Fprintf(&b, "orderBy: %s\n", opts.OrderBy)
	}
	if opts.OrderDirection != "" {
		fmt.Fprintf(&b, "orderDirection: %s\n", opts.OrderDirection)
	}
	if b.Len() == 0 {
		return ""
	}
	return "(" + b.String() + ")"
}

// Collection builds a complete query selecting fields from a collection.
func Collection(collection string, opts Options, fields string, addressKeys ...string) (string, error) {
	where, err := WhereClause(opts.Where, addressKeys...)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("{\n  %s %s {\n%s\n  }\n}", collection, Arguments(opts, where), fields), nil
}

// Single builds a query selecting one entity by id.
func Single(entity, id, fields string) string {
	return fmt.Sprintf("{\n  %s (id: \"%s\") {\n%s\n  }\n}", entity, id, fields)
}

func isAddressKey(key string, addressKeys []string) bool {
	for _, k := range addressKeys {
		if k == key {
			return true
		}
	}
	return false
}
