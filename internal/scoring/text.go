package scoring

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var htmlTagPattern = regexp.MustCompile(`(?i)<\s*(html|body|div|p|br|span|table|td|a|b|i|strong|em|ul|li|h[1-6])\b[^>]*>`)

// LooksLikeHTML reports whether s appears to be an HTML document or fragment.
func LooksLikeHTML(s string) bool {
	return htmlTagPattern.MatchString(s)
}

// ExtractText reduces an HTML body to its visible text. Plain text is
// returned unchanged; unparseable markup falls back to the raw input.
func ExtractText(body string) string {
	if !LooksLikeHTML(body) {
		return body
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}
	doc.Find("script, style, head").Remove()
	doc.Find("br, p, div, li, tr, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}

var folder = cases.Fold()

// Normalize applies NFC normalization and Unicode case folding.
func Normalize(s string) string {
	return folder.String(norm.NFC.String(s))
}

// Tokenize splits normalized text into letter/digit runs.
func Tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// phrase is a keyword compiled to its token sequence.
type phrase struct {
	text   string
	tokens []string
}

func compilePhrase(s string) (phrase, bool) {
	tokens := Tokenize(Normalize(s))
	if len(tokens) == 0 {
		return phrase{}, false
	}
	return phrase{text: strings.Join(tokens, " "), tokens: tokens}, true
}

func compilePhrases(list []string) []phrase {
	out := make([]phrase, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		p, ok := compilePhrase(s)
		if !ok || seen[p.text] {
			continue
		}
		seen[p.text] = true
		out = append(out, p)
	}
	return out
}

// count returns the number of positions in tokens where p occurs.
func (p phrase) count(tokens []string) int {
	n := len(p.tokens)
	hits := 0
	for i := 0; i+n <= len(tokens); i++ {
		match := true
		for j := 0; j < n; j++ {
			if tokens[i+j] != p.tokens[j] {
				match = false
				break
			}
		}
		if match {
			hits++
		}
	}
	return hits
}
