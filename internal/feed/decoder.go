package feed

import (
	"bytes"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
)

// replacementThreshold is the number of U+FFFD runes in a UTF-8 decoding
// above which the payload is treated as mislabeled Latin-1.
const replacementThreshold = 2

var (
	utf8BOM = []byte{0xEF, 0xBB, 0xBF}

	xmlEncodingRe = regexp.MustCompile(`(?i)^\s*<\?xml[^>]*?\sencoding\s*=\s*["']([A-Za-z0-9._:\-]+)["']`)

	latin1Family = map[string]bool{
		"iso-8859-1":   true,
		"iso8859-1":    true,
		"iso_8859-1":   true,
		"latin1":       true,
		"latin-1":      true,
		"l1":           true,
		"windows-1252": true,
		"cp1252":       true,
		"x-cp1252":     true,
		"iso-8859-15":  true,
		"latin-9":      true,
		"us-ascii":     true,
		"ascii":        true,
	}
)

// Decode turns a feed payload into text. Valid UTF-8 is returned unchanged
// whatever the hint says; anything else is decoded with the hinted charset
// or, failing that, with a Windows-1252 fallback when UTF-8 decoding leaves
// replacement characters behind. It never fails.
func Decode(raw []byte, hint string) string {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if utf8.Valid(raw) {
		return string(raw)
	}

	label := normalizeCharset(hint)
	latin := latin1Family[label]

	if label != "" && !latin && label != "utf-8" && label != "utf8" {
		if enc, err := htmlindex.Get(label); err == nil {
			if out, err := enc.NewDecoder().Bytes(raw); err == nil {
				return string(out)
			}
		}
	}

	// Each invalid byte becomes its own U+FFFD.
	text := string([]rune(string(raw)))
	if latin || strings.Count(text, string(utf8.RuneError)) >= replacementThreshold {
		if out, err := charmap.Windows1252.NewDecoder().Bytes(raw); err == nil {
			return string(out)
		}
	}
	return text
}

// CharsetFromContentType returns the charset parameter of a Content-Type
// header, or "".
func CharsetFromContentType(ct string) string {
	if ct == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(ct); err == nil {
		return params["charset"]
	}
	lower := strings.ToLower(ct)
	if i := strings.Index(lower, "charset="); i != -1 {
		v := ct[i+len("charset="):]
		if j := strings.IndexAny(v, "; "); j != -1 {
			v = v[:j]
		}
		return strings.Trim(v, `"'`)
	}
	return ""
}

// SniffCharset reads the encoding attribute of an XML declaration.
func SniffCharset(raw []byte) string {
	head := bytes.TrimPrefix(raw, utf8BOM)
	if len(head) > 512 {
		head = head[:512]
	}
	if m := xmlEncodingRe.FindSubmatch(head); m != nil {
		return string(m[1])
	}
	return ""
}

func normalizeCharset(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), `"'`))
}
