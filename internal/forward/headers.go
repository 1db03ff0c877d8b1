package forward

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Transport-encoding header constants.
const (
	// HeaderContentTransferEncoding flags a transport-encoded request body.
	HeaderContentTransferEncoding = "Content-Transfer-Encoding"

	// TransferEncodingBase64 is the only transport encoding understood by
	// the forwarder.
	TransferEncodingBase64 = "base64"
)

// hopHeaders are connection-scoped headers that are never forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// sanitizeHeaders builds the outbound header set: every inbound header
// except Host, Authorization, and the hop-by-hop set. When the body was
// transport-decoded the consumed encoding marker and the now-stale
// Content-Length are dropped as well.
func sanitizeHeaders(in http.Header, bodyDecoded bool) http.Header {
	out := in.Clone()
	if out == nil {
		out = make(http.Header)
	}

	out.Del("Host")
	out.Del("Authorization")
	for _, h := range hopHeaders {
		out.Del(h)
	}

	if bodyDecoded {
		out.Del(HeaderContentTransferEncoding)
		out.Del("Content-Length")
	}

	return out
}

// HeaderDecoration configures per-target outbound header rewriting.
// Added values are text templates over DecorationData.
type HeaderDecoration struct {
	// Add maps header names to templated values set on the outbound
	// request.
	Add map[string]string

	// Remove lists header names dropped from the outbound request.
	Remove []string
}

// DecorationData is the template context available to decoration values.
type DecorationData struct {
	// RequestID is the correlation id of the inbound request.
	RequestID string

	// Target is the backend target name.
	Target string

	// Method is the request method.
	Method string

	// Path is the request path.
	Path string
}

// decorationFuncs are the template helpers available to decoration
// values.
func decorationFuncs() template.FuncMap {
	return template.FuncMap{
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"title": cases.Title(language.English).String,
		"trim":  strings.TrimSpace,
	}
}

// headerDecorator applies a compiled HeaderDecoration.
type headerDecorator struct {
	add    map[string]*template.Template
	remove []string
}

// newHeaderDecorator compiles the decoration templates. A value that does
// not parse fails construction.
func newHeaderDecorator(cfg *HeaderDecoration) (*headerDecorator, error) {
	if cfg == nil || (len(cfg.Add) == 0 && len(cfg.Remove) == 0) {
		return nil, nil
	}

	d := &headerDecorator{
		add:    make(map[string]*template.Template, len(cfg.Add)),
		remove: append([]string(nil), cfg.Remove...),
	}

	for name, value := range cfg.Add {
		tmpl, err := template.New(name).Funcs(decorationFuncs()).Parse(value)
		if err != nil {
			return nil, fmt.Errorf("header %q: failed to parse value template: %w", name, err)
		}
		d.add[name] = tmpl
	}

	return d, nil
}

// apply rewrites the outbound headers in place.
func (d *headerDecorator) apply(h http.Header, data DecorationData) error {
	if d == nil {
		return nil
	}

	for name, tmpl := range d.add {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return fmt.Errorf("header %q: failed to render value: %w", name, err)
		}
		h.Set(name, buf.String())
	}

	for _, name := range d.remove {
		h.Del(name)
	}

	return nil
}
