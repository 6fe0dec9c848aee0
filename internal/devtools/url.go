package devtools

import (
	"net/url"
	"strings"
)

// QueryParams is an ordered query-parameter list. Encoding preserves
// insertion order; parameters added through AddOptional with a nil value
// are omitted entirely rather than encoded empty.
type QueryParams struct {
	pairs []queryPair
}

type queryPair struct {
	key   string
	value string
}

// Add appends a parameter.
func (q *QueryParams) Add(key, value string) *QueryParams {
	q.pairs = append(q.pairs, queryPair{key: key, value: value})
	return q
}

// AddOptional appends a parameter only when value is non-nil.
func (q *QueryParams) AddOptional(key string, value *string) *QueryParams {
	if value != nil {
		q.Add(key, *value)
	}
	return q
}

// Prepend inserts a parameter at the front.
func (q *QueryParams) Prepend(key, value string) *QueryParams {
	q.pairs = append([]queryPair{{key: key, value: value}}, q.pairs...)
	return q
}

// Encode renders the query string (no leading '?'), percent-encoded, in
// insertion order.
func (q *QueryParams) Encode() string {
	var b strings.Builder
	for i, p := range q.pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(percentEncode(p.key))
		b.WriteByte('=')
		b.WriteString(percentEncode(p.value))
	}
	return b.String()
}

// Len returns the number of parameters.
func (q *QueryParams) Len() int {
	return len(q.pairs)
}

// percentEncode escapes a query component using %20 for spaces rather than
// '+', matching what browsers and the tool's front end expect.
func percentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// BuildToolURL assembles a page URL against the server's base URL. When the
// server supports path-style routing the page identifier becomes a path
// segment; otherwise it is carried as the leading "page" query parameter.
func BuildToolURL(base, page string, pathStyle bool, q *QueryParams) string {
	base = strings.TrimRight(base, "/")

	path := "/"
	if page != "" {
		if pathStyle {
			path = "/" + page
		} else {
			if q == nil {
				q = &QueryParams{}
			}
			q.Prepend("page", page)
		}
	}

	u := base + path
	if q != nil && q.Len() > 0 {
		u += "?" + q.Encode()
	}
	return u
}
