package lastfm

import (
	"net/url"
	"strings"
)

// Param is a single request parameter.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered list of request parameters.
//
// Order is preserved when building the query string. Signing sorts the keys
// on its own, so callers never need to care about order for correctness.
type Params []Param

// Set replaces the value of key, or appends it if absent.
func (p *Params) Set(key, value string) {
	for i := range *p {
		if (*p)[i].Key == key {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, Param{Key: key, Value: value})
}

// Get returns the value of key and whether it was present.
func (p Params) Get(key string) (string, bool) {
	for _, param := range p {
		if param.Key == key {
			return param.Value, true
		}
	}
	return "", false
}

// Has reports whether key is present.
func (p Params) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Clone returns a copy that can be modified independently.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	copy(out, p)
	return out
}

// BuildQueryString joins key=value pairs with '&' in the order given.
//
// Values are percent-encoded (spaces become %20); keys are written as-is so
// indexed names like "track[0]" reach the service unchanged.
func BuildQueryString(params Params) string {
	var sb strings.Builder
	for i, param := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(param.Key)
		sb.WriteByte('=')
		sb.WriteString(escapeValue(param.Value))
	}
	return sb.String()
}

func escapeValue(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}
