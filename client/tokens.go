package client

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Form field names of the landing page's go-link form.
const (
	FieldCSRFToken     = "_csrfToken"
	FieldAdFormData    = "ad_form_data"
	FieldTokenFields   = "_Token[fields]"
	FieldTokenUnlocked = "_Token[unlocked]"
)

// Tokens are the anti-forgery values scraped from the landing page.
type Tokens struct {
	CSRFToken     string
	AdFormData    string
	TokenFields   string
	TokenUnlocked string
}

// Form returns the /links/go payload in the order the browser submits it.
func (t Tokens) Form() string {
	pairs := [][2]string{
		{"_method", "POST"},
		{FieldCSRFToken, t.CSRFToken},
		{FieldAdFormData, t.AdFormData},
		{FieldTokenFields, t.TokenFields},
		{FieldTokenUnlocked, t.TokenUnlocked},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, url.QueryEscape(p[0])+"="+url.QueryEscape(p[1]))
	}
	return strings.Join(parts, "&")
}

// candidate is one way of locating a token value in the landing HTML.
type candidate interface {
	find(html string) string
}

type regexCandidate struct {
	re *regexp.Regexp
}

func (c regexCandidate) find(html string) string {
	m := c.re.FindStringSubmatch(html)
	if len(m) > 1 {
		return m[1]
	}
	return ""
}

// inputCandidate looks the field up in the parsed DOM, which copes with
// attribute orders the regexes do not.
type inputCandidate struct {
	name string
}

func (c inputCandidate) find(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return doc.Find(fmt.Sprintf("input[name=%q]", c.name)).First().AttrOr("value", "")
}

// attributeCandidates matches name="<field>" ... value="<v>" across newlines,
// then the same with single quotes.
func attributeCandidates(field string) []candidate {
	double := `(?s)name="` + regexp.QuoteMeta(field) + `".*?value="([^"]+)"`
	single := strings.ReplaceAll(double, `"`, `'`)
	return []candidate{
		regexCandidate{regexp.MustCompile(double)},
		regexCandidate{regexp.MustCompile(single)},
	}
}

type tokenField struct {
	name       string
	candidates []candidate
}

// extract evaluates the candidates in order. First non-empty match wins.
func (f tokenField) extract(html string) string {
	for _, c := range f.candidates {
		if v := c.find(html); v != "" {
			return v
		}
	}
	return ""
}

var (
	csrfTokenField     = tokenField{FieldCSRFToken, attributeCandidates(FieldCSRFToken)}
	tokenFieldsField   = tokenField{FieldTokenFields, attributeCandidates(FieldTokenFields)}
	tokenUnlockedField = tokenField{FieldTokenUnlocked, attributeCandidates(FieldTokenUnlocked)}
	adFormDataField    = tokenField{
		name: FieldAdFormData,
		candidates: append(attributeCandidates(FieldAdFormData),
			// Script-embedded form: ad_form_data: '...' or ad_form_data = "..."
			regexCandidate{regexp.MustCompile(`(?s)ad_form_data\s*[:=]\s*['"]([^'"]+)['"]`)},
			inputCandidate{FieldAdFormData},
		),
	}
)

// ExtractTokens pulls all four tokens out of the landing HTML. Missing
// tokens come back empty; callers decide which are mandatory.
func ExtractTokens(html string) Tokens {
	return Tokens{
		CSRFToken:     csrfTokenField.extract(html),
		AdFormData:    adFormDataField.extract(html),
		TokenFields:   tokenFieldsField.extract(html),
		TokenUnlocked: tokenUnlockedField.extract(html),
	}
}

// describeLanding summarises a landing page for diagnostics when the
// mandatory token is missing.
func describeLanding(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return fmt.Sprintf("unparseable page (%d bytes)", len(html))
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = "(no title)"
	}
	goLink := "absent"
	if doc.Find("form#go-link").Length() > 0 {
		goLink = "present"
	}
	return fmt.Sprintf("title=%q forms=%d go-link form %s, %d bytes",
		title, doc.Find("form").Length(), goLink, len(html))
}
