package media

import (
	_ "embed"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed media_types.toml
var mediaTypesTOML []byte

type TypeConfig struct {
	Extensions   []string `toml:"extensions"`
	MIMEPrefixes []string `toml:"mime_prefixes"`
	URLPatterns  []string `toml:"url_patterns"`
}

type TypesConfig struct {
	Video TypeConfig `toml:"video"`
	Audio TypeConfig `toml:"audio"`
	Image TypeConfig `toml:"image"`
	PDF   TypeConfig `toml:"pdf"`
}

// TypeDetector classifies media references found in feed items.
type TypeDetector struct {
	config *TypesConfig
}

func NewTypeDetector() (*TypeDetector, error) {
	var config TypesConfig
	if err := toml.Unmarshal(mediaTypesTOML, &config); err != nil {
		return nil, err
	}

	return &TypeDetector{config: &config}, nil
}

// MustTypeDetector panics if the embedded table does not parse.
func MustTypeDetector() *TypeDetector {
	d, err := NewTypeDetector()
	if err != nil {
		panic(err)
	}
	return d
}

type typeRule struct {
	t   Type
	cfg TypeConfig
}

// rules lists the categories in match priority order.
func (d *TypeDetector) rules() []typeRule {
	return []typeRule{
		{TypeVideo, d.config.Video},
		{TypeAudio, d.config.Audio},
		{TypeImage, d.config.Image},
		{TypePDF, d.config.PDF},
	}
}

func (d *TypeDetector) DetectType(url string) Type {
	lower := strings.ToLower(url)
	isURL := strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "//")

	if ext := extension(lower); ext != "" {
		for _, c := range d.rules() {
			if d.hasExtension(c.cfg.Extensions, ext) {
				return c.t
			}
		}
	}

	if isURL {
		for _, c := range d.rules() {
			if d.matchesPattern(lower, c.cfg.URLPatterns) {
				return c.t
			}
		}
	}

	return TypeUnknown
}

// DetectMIME classifies a declared content type such as "image/jpeg".
func (d *TypeDetector) DetectMIME(mime string) Type {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i != -1 {
		mime = strings.TrimSpace(mime[:i])
	}
	if mime == "" {
		return TypeUnknown
	}
	for _, c := range d.rules() {
		for _, p := range c.cfg.MIMEPrefixes {
			if strings.HasPrefix(mime, p) {
				return c.t
			}
		}
	}
	return TypeUnknown
}

// IsImage reports whether a reference is an image, trusting a declared
// MIME type over the URL shape. A bare "image" medium counts as well.
func (d *TypeDetector) IsImage(url, mime, medium string) bool {
	if strings.EqualFold(medium, "image") {
		return true
	}
	if t := d.DetectMIME(mime); t != TypeUnknown {
		return t == TypeImage
	}
	return d.DetectType(url) == TypeImage
}

// extension returns the path extension without the dot, ignoring query
// strings and fragments.
func extension(lower string) string {
	if i := strings.IndexAny(lower, "?#"); i != -1 {
		lower = lower[:i]
	}
	slash := strings.LastIndex(lower, "/")
	dot := strings.LastIndex(lower, ".")
	if dot == -1 || dot < slash {
		return ""
	}
	return lower[dot+1:]
}

func (d *TypeDetector) hasExtension(extensions []string, ext string) bool {
	for _, e := range extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func (d *TypeDetector) matchesPattern(url string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(url, pattern) {
			return true
		}
	}
	return false
}
