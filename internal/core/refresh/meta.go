package refresh

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ExtractMeta returns the content attribute of the first <meta http-equiv="refresh">
// element found in an HTML prefix. The prefix may be truncated mid-document or
// mid-rune; invalid UTF-8 is replaced rather than rejected.
func ExtractMeta(prefix []byte) (string, bool) {
	decoded := transform.NewReader(bytes.NewReader(prefix), unicode.UTF8.NewDecoder())
	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return "", false
	}

	var (
		content string
		found   bool
	)
	doc.Find("meta[http-equiv]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		equiv, _ := sel.Attr("http-equiv")
		if !strings.EqualFold(strings.TrimSpace(equiv), "refresh") {
			return true
		}
		content, found = sel.Attr("content")
		found = found && strings.TrimSpace(content) != ""
		return false
	})
	return content, found
}
