package signature

import (
	"net/url"
	"sort"
	"strings"
)

// KeySignature is the parameter carrying the request signature.
const KeySignature = "api_sig"

// BuildQuery encodes params the way PHP's http_build_query does: nested
// mappings become key[child]=value, nil values are skipped and booleans
// encode as 1/0. Keys are sorted so the output is deterministic.
func BuildQuery(params Params) string {
	var parts []string
	buildQuery(&parts, params, "")
	return strings.Join(parts, "&")
}

func buildQuery(parts *[]string, m map[string]any, prefix string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := k
		if prefix != "" {
			name = prefix + "[" + k + "]"
		}

		value := m[k]
		if nested, ok := asMap(value); ok {
			buildQuery(parts, nested, name)
			continue
		}

		var s string
		switch v := value.(type) {
		case nil:
			continue
		case bool:
			s = "0"
			if v {
				s = "1"
			}
		default:
			s = scalar(v)
		}
		*parts = append(*parts, url.QueryEscape(name)+"="+url.QueryEscape(s))
	}
}

// KeysQuery returns the api_key/api_sig pair that leads every signed query.
func KeysQuery(apiKey, sig string) string {
	return KeyAPIKey + "=" + url.QueryEscape(apiKey) + "&" + KeySignature + "=" + sig
}

// SignedQuery signs params and returns "api_key=..&api_sig=..[&params]".
func SignedQuery(secret, apiKey string, params Params) string {
	q := KeysQuery(apiKey, Sign(secret, apiKey, params))
	if rest := BuildQuery(params); rest != "" {
		q += "&" + rest
	}
	return q
}
