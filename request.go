package inspectcore

import (
	"net/url"
	"strings"
)

// RequestRecord is the immutable-after-construction request descriptor
// produced by BuildRequest (spec.md §3, §4.A). Stages below it may only
// mutate the tag set and the decision, never the record itself.
type RequestRecord struct {
	ClientIP  string
	Authority string
	Method    string
	Path      string
	Query     string
	URI       string

	Args    *FieldContainer
	Headers *FieldContainer
	Cookies *FieldContainer
}

// RequestMetadata carries the small out-of-band metadata map the proxy
// supplies alongside headers (spec.md §6). xff_trusted_hops defaults to 1
// when absent or non-positive.
type RequestMetadata struct {
	XFFTrustedHops int
}

const defaultXFFTrustedHops = 1

// BuildRequest normalizes proxy-supplied metaheaders and metadata into a
// RequestRecord. metaheaders keys are expected already lower-cased,
// including pseudo-headers (":authority", ":path", ":method").
// peerAddr is the direct TCP peer address, used as a fallback when no
// x-forwarded-for header is present.
func BuildRequest(metaheaders map[string]string, meta RequestMetadata, peerAddr string) *RequestRecord {
	hops := meta.XFFTrustedHops
	if hops <= 0 {
		hops = defaultXFFTrustedHops
	}

	clientIP := resolveClientIP(metaheaders, hops, peerAddr)

	authority := metaheaders[":authority"]
	if authority == "" {
		authority = metaheaders["host"]
	}

	rawPath := metaheaders[":path"]
	method := metaheaders[":method"]

	path, query := splitPathQuery(rawPath)

	headers := NewFieldContainer()
	for k, v := range metaheaders {
		if strings.HasPrefix(k, ":") {
			continue
		}
		headers.Add(k, v)
	}

	args := NewFieldContainer()
	if query != "" {
		for _, part := range strings.Split(query, "&") {
			if part == "" {
				continue
			}
			k, v := splitQueryPair(part)
			args.Add(k, v)
		}
	}

	cookies := NewFieldContainer()
	if raw, ok := headers.Get("cookie"); ok {
		for _, part := range strings.Split(raw, "; ") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			k, v := splitCookiePair(part)
			if k == "" {
				continue
			}
			cookies.Add(k, v)
		}
	}

	return &RequestRecord{
		ClientIP:  clientIP,
		Authority: authority,
		Method:    method,
		Path:      path,
		Query:     query,
		URI:       rawPath,
		Args:      args,
		Headers:   headers,
		Cookies:   cookies,
	}
}

// resolveClientIP resolves the client IP from x-forwarded-for honoring a
// trusted-hop count (spec.md §4.A, §9 Open Question). The forwarded-for
// header is parsed as a left-to-right list; the entry at index len-hops is
// taken, clamped into range. Only an absent header, or one with no
// non-empty entries, falls back to the direct peer address; a present
// header is never bypassed in favor of the peer (that would hide a spoofed
// value behind a default). Entries are not validated as IP addresses.
func resolveClientIP(metaheaders map[string]string, hops int, peerAddr string) string {
	raw, ok := metaheaders["x-forwarded-for"]
	if !ok || strings.TrimSpace(raw) == "" {
		return extractIP(peerAddr)
	}

	parts := strings.Split(raw, ",")
	entries := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			entries = append(entries, p)
		}
	}
	if len(entries) == 0 {
		return extractIP(peerAddr)
	}

	idx := clampIndex(len(entries)-hops, len(entries))
	return entries[idx]
}

func splitPathQuery(raw string) (path, query string) {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i], raw[i+1:]
	}
	return raw, ""
}

func splitQueryPair(part string) (key, value string) {
	if i := strings.IndexByte(part, '='); i >= 0 {
		key = urlDecode(part[:i])
		value = urlDecode(part[i+1:])
		return key, value
	}
	return urlDecode(part), ""
}

// splitCookiePair decodes a single "name=value" cookie pair per RFC 6265.
func splitCookiePair(part string) (key, value string) {
	i := strings.IndexByte(part, '=')
	if i < 0 {
		return "", ""
	}
	key = strings.TrimSpace(part[:i])
	value = strings.Trim(strings.TrimSpace(part[i+1:]), `"`)
	return key, value
}

func urlDecode(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return decoded
}
