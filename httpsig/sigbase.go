package httpsig

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultLabel is the signature label used in Signature-Input.
const DefaultLabel = "sig1"

// SignatureInput holds the signature parameters carried in the
// Signature-Input header and in the @signature-params line of the base.
type SignatureInput struct {
	Label      string
	Components []Component
	Created    int64
	KeyID      string
}

// Params serializes the parameters without the label:
//
//	(@method @target-uri content-type);created=1700000000;keyid="test-key"
func (in SignatureInput) Params() string {
	var b strings.Builder

	b.WriteByte('(')
	for i, c := range in.Components {
		if i > 0 {
			b.WriteByte(' ')
		}

		b.WriteString(string(c))
	}
	b.WriteByte(')')

	b.WriteString(";created=")
	b.WriteString(strconv.FormatInt(in.Created, 10))
	b.WriteString(";keyid=")
	b.WriteString(quoteRFC8941(in.KeyID))

	return b.String()
}

// String returns the Signature-Input header value.
func (in SignatureInput) String() string {
	label := in.Label
	if label == "" {
		label = DefaultLabel
	}

	return label + "=" + in.Params()
}

// BuildSignatureBase constructs the signature base. Each covered component
// produces a line `"<component>": <value>` and the last line is
// `"@signature-params": <params>`. Lines are joined with "\n" and there is
// no trailing newline. Missing headers produce empty values.
//
// The base must be computed after every other header is final.
func BuildSignatureBase(r Request, in SignatureInput) string {
	var base strings.Builder

	for _, c := range in.Components {
		fmt.Fprintf(&base, "\"%s\": %s\n", c, componentValue(c, r))
	}

	fmt.Fprintf(&base, "\"@signature-params\": %s", in.Params())

	return base.String()
}

// ParseSignatureInput parses a Signature-Input header value. An optional
// "<label>=" prefix is stripped. The components list, created and keyid
// are all required; there are no defaults.
func ParseSignatureInput(raw string) (SignatureInput, error) {
	var in SignatureInput

	raw = strings.TrimSpace(raw)

	label := DefaultLabel
	if eq, open := strings.IndexByte(raw, '='), strings.IndexByte(raw, '('); eq > 0 && (open < 0 || eq < open) {
		label = strings.TrimSpace(raw[:eq])
		raw = raw[eq+1:]
	}

	in.Label = label

	var haveComponents, haveCreated, haveKeyID bool

	for _, part := range splitQuoteAware(raw, ';') {
		if strings.HasPrefix(part, "(") && strings.HasSuffix(part, ")") {
			in.Components = parseInnerList(part[1 : len(part)-1])
			haveComponents = len(in.Components) > 0

			continue
		}

		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}

		switch strings.TrimSpace(key) {
		case "created":
			ts, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return in, fmt.Errorf("%w: invalid created parameter", ErrValidation)
			}

			in.Created = ts
			haveCreated = true

		case "keyid":
			in.KeyID = unquote(strings.TrimSpace(value))
			haveKeyID = true
		}
	}

	switch {
	case !haveComponents:
		return in, fmt.Errorf("%w: missing covered components", ErrValidation)
	case !haveCreated:
		return in, fmt.Errorf("%w: missing created parameter", ErrValidation)
	case !haveKeyID:
		return in, fmt.Errorf("%w: missing keyid parameter", ErrValidation)
	}

	return in, nil
}

// parseInnerList parses the space separated component list. Identifiers
// sent in RFC 8941 quoted form are accepted and unquoted.
func parseInnerList(s string) []Component {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}

	items := make([]Component, 0, len(fields))
	for _, f := range fields {
		items = append(items, Component(unquote(f)))
	}

	return items
}

// splitQuoteAware splits s on delim while respecting "..." quoted regions.
// Backslash-escaped quotes (\") inside quoted strings are handled. Each
// resulting part is trimmed of whitespace and empty parts are skipped.
func splitQuoteAware(s string, delim byte) []string {
	var result []string
	var part strings.Builder
	inQuote := false

	for i := 0; i < len(s); i++ {
		ch := s[i]

		if inQuote {
			if ch == '\\' && i+1 < len(s) {
				part.WriteByte(ch)
				i++
				part.WriteByte(s[i])
				continue
			}

			if ch == '"' {
				inQuote = false
			}

			part.WriteByte(ch)
			continue
		}

		if ch == '"' {
			inQuote = true
			part.WriteByte(ch)
			continue
		}

		if ch == delim {
			p := strings.TrimSpace(part.String())
			if p != "" {
				result = append(result, p)
			}

			part.Reset()
			continue
		}

		part.WriteByte(ch)
	}

	if p := strings.TrimSpace(part.String()); p != "" {
		result = append(result, p)
	}

	return result
}

// quoteRFC8941 produces an RFC 8941 quoted-string. Only backslash and
// double-quote are escaped (Section 3.3.3).
func quoteRFC8941(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')

	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '\\' || ch == '"' {
			b.WriteByte('\\')
		}

		b.WriteByte(ch)
	}

	b.WriteByte('"')

	return b.String()
}

// unquote removes surrounding double quotes and unescapes RFC 8941
// escape sequences (\\ → \ and \" → ").
func unquote(s string) string {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}

	s = s[1 : len(s)-1]
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			b.WriteByte(s[i])

			continue
		}

		b.WriteByte(s[i])
	}

	return b.String()
}
