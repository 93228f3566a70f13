package proxy

import (
	"net/http"
	"net/url"
	"strings"
)

// hopHeaders are never forwarded in either direction. Accept-Encoding is
// dropped from requests separately so the transport negotiates compression
// and hands back a decoded body.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Encoding",
}

// handshakeHeaders are added again by the websocket dialer.
var handshakeHeaders = map[string]bool{
	"Upgrade":                  true,
	"Connection":               true,
	"Sec-Websocket-Key":        true,
	"Sec-Websocket-Version":    true,
	"Sec-Websocket-Extensions": true,
	"Sec-Websocket-Protocol":   true,
}

func isHopHeader(name string) bool {
	name = http.CanonicalHeaderKey(name)
	for _, h := range hopHeaders {
		if h == name {
			return true
		}
	}
	return false
}

// copyHeader copies src into dst, skipping hop-by-hop headers and any header
// named in src's Connection header.
func copyHeader(dst, src http.Header, skip ...string) {
	listed := map[string]bool{}
	for _, v := range src.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				listed[http.CanonicalHeaderKey(name)] = true
			}
		}
	}
	for _, name := range skip {
		listed[http.CanonicalHeaderKey(name)] = true
	}
	for k, vv := range src {
		if isHopHeader(k) || listed[k] {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// rewriteLocation maps redirects that point at the upstream onto the public
// prefix. Relative references and other hosts are returned unchanged, as are
// paths already at or below the prefix.
func rewriteLocation(loc, target, prefix string) string {
	if prefix == "/" || loc == "" {
		return loc
	}
	u, err := url.Parse(loc)
	if err != nil {
		return loc
	}

	base := strings.TrimSuffix(prefix, "/")
	if u.Host != "" {
		if !strings.EqualFold(u.Host, target) {
			return loc
		}
		out := u.EscapedPath()
		if out == "" {
			out = "/"
		}
		if !underBase(out, base) {
			out = base + out
		}
		if u.RawQuery != "" {
			out += "?" + u.RawQuery
		}
		if u.Fragment != "" {
			out += "#" + u.EscapedFragment()
		}
		return out
	}

	if !strings.HasPrefix(loc, "/") || underBase(u.Path, base) {
		return loc
	}
	return base + loc
}

// underBase matches base on a path segment boundary.
func underBase(path, base string) bool {
	return path == base || strings.HasPrefix(path, base+"/")
}

// rewriteCookiePath forces the Path attribute of a Set-Cookie value to prefix,
// appending one when the cookie has none.
func rewriteCookiePath(value, prefix string) string {
	parts := strings.Split(value, ";")
	found := false
	for i := 1; i < len(parts); i++ {
		attr := strings.TrimSpace(parts[i])
		name := attr
		if j := strings.IndexByte(attr, '='); j >= 0 {
			name = strings.TrimSpace(attr[:j])
		}
		if strings.EqualFold(name, "path") {
			parts[i] = " Path=" + prefix
			found = true
		}
	}
	out := strings.Join(parts, ";")
	if !found {
		out += "; Path=" + prefix
	}
	return out
}
