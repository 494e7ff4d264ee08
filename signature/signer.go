// Package signature computes the api_sig the oDesk API expects on every
// signed call and encodes parameter sets into query strings.
//
// The algorithm must stay bit-exact with the service:
//
//	api_sig = md5_hex(secret + normalize(params + {api_key}))
//
// where normalize sorts keys at every level and concatenates
// key + urldecode(value) with no separators.
package signature

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Params is a parameter set. Values are strings (other scalars are
// formatted with fmt) or nested mappings.
type Params map[string]any

// KeyAPIKey is the parameter carrying the application key.
const KeyAPIKey = "api_key"

// Clone returns a shallow copy of p. Nested mappings are shared.
func (p Params) Clone() Params {
	out := make(Params, len(p)+3)
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Sign returns the lowercase hex MD5 signature of params for the given
// shared secret. apiKey is inserted into a copy of params before
// normalization; params itself is not modified.
func Sign(secret, apiKey string, params Params) string {
	signed := params.Clone()
	signed[KeyAPIKey] = apiKey

	sum := md5.Sum([]byte(secret + Normalize(signed)))
	return hex.EncodeToString(sum[:])
}

// Normalize flattens a mapping into the string that gets signed.
// Anything that is not a mapping normalizes to "".
func Normalize(v any) string {
	var b strings.Builder
	normalize(&b, v, "")
	return b.String()
}

// normalize mirrors the service's flattening: a nested mapping is walked
// with its own key as prefix, and that prefix replaces (does not extend)
// the prefix of the level above.
func normalize(b *strings.Builder, v any, prefix string) {
	m, ok := asMap(v)
	if !ok {
		return
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		value := m[k]
		if _, nested := asMap(value); nested {
			normalize(b, value, k)
			continue
		}
		b.WriteString(prefix)
		b.WriteString(k)
		b.WriteString(URLDecode(scalar(value)))
	}
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case Params:
		return m, true
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func scalar(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		if s {
			return "1"
		}
		return ""
	default:
		return fmt.Sprint(s)
	}
}

// URLDecode decodes like PHP's urldecode: '+' becomes a space, valid %XX
// escapes are decoded and malformed escapes are kept as they are.
func URLDecode(s string) string {
	if !strings.ContainsAny(s, "+%") {
		return s
	}

	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			out = append(out, ' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			out = append(out, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
