package threat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeHTML(t *testing.T) {
	assert.Equal(t, "&lt;script&gt;alert(1)&lt;/script&gt;", Sanitize("<script>alert(1)</script>", EncodeHTML))
	assert.Equal(t, "a &amp; b", Sanitize("a & b", EncodeHTML))
	assert.Equal(t, "&quot;quoted&quot;", Sanitize(`"quoted"`, EncodeHTML))
}

func TestSanitizeSQL(t *testing.T) {
	assert.Equal(t, "O''Brien", Sanitize("O'Brien", EncodeSQL))
	assert.Equal(t, "'' OR ''1''=''1", Sanitize("' OR '1'='1", EncodeSQL))
}

func TestSanitizeURL(t *testing.T) {
	assert.Equal(t, "a+b%2Fc", Sanitize("a b/c", EncodeURL))
}

func TestSanitizeXML(t *testing.T) {
	assert.Equal(t, "&lt;a&gt; &amp; &apos;b&apos;", Sanitize("<a> & 'b'", EncodeXML))
}

func TestSanitizeScript(t *testing.T) {
	out := Sanitize("</script>", EncodeScript)
	assert.NotContains(t, out, "<")
	assert.NotContains(t, out, ">")
}

func TestSanitizeAttribute(t *testing.T) {
	out := Sanitize(`" onmouseover="alert(1)`, EncodeAttribute)
	assert.NotContains(t, out, `"`)
	assert.NotContains(t, out, "=")
}

func TestSanitizeUnknownContextDefaultsToHTML(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;", Sanitize("<b>", EncodingContext("bogus")))
}

func TestSanitizeIdempotentOnSafeStrings(t *testing.T) {
	safe := []string{
		"",
		"backup20260831",
		"username42",
	}
	for _, in := range safe {
		for _, ec := range []EncodingContext{EncodeHTML, EncodeAttribute, EncodeScript, EncodeCSS, EncodeURL, EncodeXML, EncodeSQL} {
			assert.Equal(t, in, Sanitize(in, ec), "context %s input %q", ec, in)
			assert.Equal(t, in, Sanitize(Sanitize(in, ec), ec), "context %s input %q", ec, in)
		}
	}
}
