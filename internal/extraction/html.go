package extraction

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	complianceMarker = "STATEMENT OF COMPLIANCE"
	policiesMarker   = "ACCOUNTING POLICIES"
	policiesPrefix   = "2."
)

// StatementOfCompliance returns the text of the statement of compliance section:
// the first <p> mentioning it and each following sibling <p>, up to the note that
// opens "2. ... Accounting Policies". Paragraph texts are joined with newlines.
// A document without the section yields "".
func StatementOfCompliance(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", &HTMLError{Message: "failed to parse document", Cause: err}
	}

	var start *goquery.Selection
	doc.Find("p").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(strings.ToUpper(paragraphText(s)), complianceMarker) {
			start = s
			return false
		}
		return true
	})
	if start == nil {
		return "", nil
	}

	var parts []string
	for cur := start; cur.Length() > 0; cur = cur.NextAllFiltered("p").First() {
		text := paragraphText(cur)
		if strings.HasPrefix(text, policiesPrefix) && strings.Contains(strings.ToUpper(text), policiesMarker) {
			break
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// paragraphText returns the node text with whitespace runs collapsed
func paragraphText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
