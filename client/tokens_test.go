package client

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractTokens(t *testing.T) {
	t.Run("Double-quoted attributes", func(t *testing.T) {
		tokens := ExtractTokens(landingHTML)
		require.Equal(t, "csrf-123", tokens.CSRFToken)
		require.Equal(t, "adf-XYZ==", tokens.AdFormData)
		require.Equal(t, "fields%3Aabc", tokens.TokenFields)
		require.Equal(t, "adcopy_challenge%7Cg-recaptcha-response", tokens.TokenUnlocked)
	})

	t.Run("Single-quoted attributes", func(t *testing.T) {
		html := `<input type='hidden' name='ad_form_data' value='XYZ'/>
<input type='hidden' name='_csrfToken' autocomplete='off' value='c1'/>`
		tokens := ExtractTokens(html)
		require.Equal(t, "XYZ", tokens.AdFormData)
		require.Equal(t, "c1", tokens.CSRFToken)
	})

	t.Run("Name and value on different lines", func(t *testing.T) {
		html := "<input type=\"hidden\"\n  name=\"ad_form_data\"\n  value=\"multi\"/>"
		require.Equal(t, "multi", ExtractTokens(html).AdFormData)
	})

	t.Run("Assignment style only applies to ad_form_data", func(t *testing.T) {
		html := `<script>var app_vars = {ad_form_data: 'XYZ', _csrfToken: 'nope'};</script>`
		tokens := ExtractTokens(html)
		require.Equal(t, "XYZ", tokens.AdFormData)
		require.Empty(t, tokens.CSRFToken)
		require.Empty(t, tokens.TokenFields)
		require.Empty(t, tokens.TokenUnlocked)
	})

	t.Run("Equals assignment with double quotes", func(t *testing.T) {
		html := `<script>window.ad_form_data = "QWE";</script>`
		require.Equal(t, "QWE", ExtractTokens(html).AdFormData)
	})

	t.Run("Attribute form wins over assignment form", func(t *testing.T) {
		html := `<script>ad_form_data: 'from-script'</script><input name="ad_form_data" value="from-form">`
		require.Equal(t, "from-form", ExtractTokens(html).AdFormData)
	})

	t.Run("DOM lookup handles value before name", func(t *testing.T) {
		html := `<form><input value="v-first" type="hidden" name="ad_form_data"></form>`
		require.Equal(t, "v-first", ExtractTokens(html).AdFormData)
	})

	t.Run("Nothing found", func(t *testing.T) {
		require.Equal(t, Tokens{}, ExtractTokens(`<html><body>gone</body></html>`))
	})
}

func TestTokensForm(t *testing.T) {
	tokens := Tokens{
		CSRFToken:     "c",
		AdFormData:    "a==",
		TokenFields:   "f",
		TokenUnlocked: "u",
	}
	require.Equal(t,
		"_method=POST&_csrfToken=c&ad_form_data=a%3D%3D&_Token%5Bfields%5D=f&_Token%5Bunlocked%5D=u",
		tokens.Form())

	t.Run("Missing optional tokens are sent empty", func(t *testing.T) {
		require.Equal(t,
			"_method=POST&_csrfToken=&ad_form_data=a&_Token%5Bfields%5D=&_Token%5Bunlocked%5D=",
			Tokens{AdFormData: "a"}.Form())
	})
}

func TestDescribeLanding(t *testing.T) {
	desc := describeLanding(landingHTML)
	require.Contains(t, desc, `title="Your link is almost ready"`)
	require.Contains(t, desc, "forms=1")
	require.Contains(t, desc, "go-link form present")

	desc = describeLanding(`<p>bare</p>`)
	require.Contains(t, desc, "(no title)")
	require.Contains(t, desc, "go-link form absent")
}
