// Package annotate derives topic tags and a short reading note from article
// text. Output depends only on the input text.
package annotate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/samber/lo"
)

type kind int

const (
	kindEntity kind = iota
	kindSession
	kindOutcome
	kindIncident
	kindSanction
)

type term struct {
	tag     string
	display string
	kind    kind
	re      *regexp.Regexp
}

// word wraps alternatives in letter/digit boundaries; \b is ASCII-only and
// misfires next to accented letters.
func word(alternatives string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}])(?:` + alternatives + `)(?:$|[^\p{L}\p{N}])`)
}

// vocabulary is matched in order; tag order follows it.
var vocabulary = []term{
	{"colapinto", "Colapinto", kindEntity, word(`colapinto`)},
	{"alpine", "Alpine", kindEntity, word(`alpine`)},
	{"gasly", "Gasly", kindEntity, word(`gasly`)},
	{"verstappen", "Verstappen", kindEntity, word(`verstappen`)},
	{"hamilton", "Hamilton", kindEntity, word(`hamilton`)},
	{"leclerc", "Leclerc", kindEntity, word(`leclerc`)},
	{"norris", "Norris", kindEntity, word(`norris`)},
	{"piastri", "Piastri", kindEntity, word(`piastri`)},
	{"russell", "Russell", kindEntity, word(`russell`)},
	{"alonso", "Alonso", kindEntity, word(`alonso`)},
	{"sainz", "Sainz", kindEntity, word(`sainz`)},
	{"ferrari", "Ferrari", kindEntity, word(`ferrari`)},
	{"mercedes", "Mercedes", kindEntity, word(`mercedes`)},
	{"red-bull", "Red Bull", kindEntity, word(`red\s*bull`)},
	{"mclaren", "McLaren", kindEntity, word(`mclaren`)},
	{"aston-martin", "Aston Martin", kindEntity, word(`aston\s*martin`)},
	{"williams", "Williams", kindEntity, word(`williams`)},

	{"testing", "", kindSession, word(`testing|tests?|pruebas|pretemporada|pre-?season`)},
	{"practice", "", kindSession, word(`practice|fp[123]|libres|pr[aá]cticas?|entrenamientos?`)},
	{"qualifying", "", kindSession, word(`qualifying|quali|clasificaci[oó]n|clasificatoria`)},
	{"sprint", "", kindSession, word(`sprint`)},
	{"race", "", kindSession, word(`race|carrera`)},

	{"pole", "", kindOutcome, word(`pole|pole position`)},
	{"podium", "", kindOutcome, word(`podium|podio`)},
	{"win", "", kindOutcome, word(`wins?|won|victoria|gan[oóa]|ganador`)},
	{"points", "", kindOutcome, word(`points|puntos`)},

	{"crash", "", kindIncident, word(`crash(?:es|ed)?|choque|choc[oó]|accidente`)},
	{"dnf", "", kindIncident, word(`dnf|abandon(?:o|ó|a|ar)?|retired`)},
	{"sanction", "", kindSanction, word(`penalt(?:y|ies)|sanction(?:ed)?|sanci[oó]n|sancionad[oa]|penalizaci[oó]n|penalizad[oa]|stewards|comisarios`)},
}

var displayNames = lo.Associate(
	lo.Filter(vocabulary, func(t term, _ int) bool { return t.display != "" }),
	func(t term) (string, string) { return t.tag, t.display },
)

// Annotation is the derived view of one article.
type Annotation struct {
	Note string
	Tags []string
}

type Annotator struct{}

func New() *Annotator {
	return &Annotator{}
}

// Annotate tags the combined title and snippet and renders a note naming
// source.
func (a *Annotator) Annotate(title, snippet, source string) Annotation {
	tags := Tags(title + " " + snippet)
	return Annotation{
		Note: Note(tags, source),
		Tags: tags,
	}
}

// Tags returns the vocabulary tags found in text, in vocabulary order.
func Tags(text string) []string {
	text = strings.ToLower(text)
	tags := make([]string, 0, 4)
	for _, t := range vocabulary {
		if t.re.MatchString(text) {
			tags = append(tags, t.tag)
		}
	}
	return lo.Uniq(tags)
}

type angle int

const (
	angleDefault angle = iota
	angleResult
	angleIncident
	angleSanction
)

var templates = map[angle]string{
	angleSanction: "%s informa una sanción%s. Revisá la decisión de los comisarios y cómo cambia la grilla.",
	angleIncident: "%s cubre un incidente%s. Separá el daño real del ruido y esperá el parte del equipo.",
	angleResult:   "%s repasa un resultado%s. Compará contra el compañero de equipo y el contexto del stint.",
	angleDefault:  "%s publica una novedad%s. Leé el titular como señal, no como conclusión.",
}

// Note renders the reading note for a tag set.
func Note(tags []string, source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		source = "La fuente"
	}

	about := ""
	for _, tag := range tags {
		if name, ok := displayNames[tag]; ok {
			about = " sobre " + name
			break
		}
	}

	return fmt.Sprintf(templates[pickAngle(tags)], source, about)
}

func pickAngle(tags []string) angle {
	best := angleDefault
	for _, tag := range tags {
		var a angle
		switch kindOf(tag) {
		case kindSanction:
			a = angleSanction
		case kindIncident:
			a = angleIncident
		case kindOutcome:
			a = angleResult
		default:
			continue
		}
		if a > best {
			best = a
		}
	}
	return best
}

func kindOf(tag string) kind {
	for _, t := range vocabulary {
		if t.tag == tag {
			return t.kind
		}
	}
	return kindEntity
}

// JoinTags encodes a tag set for storage.
func JoinTags(tags []string) string {
	return strings.Join(tags, ",")
}

// SplitTags decodes a stored tag string; empty input yields an empty slice.
func SplitTags(s string) []string {
	parts := lo.Map(strings.Split(s, ","), func(p string, _ int) string {
		return strings.TrimSpace(p)
	})
	return lo.Uniq(lo.Compact(parts))
}
