package enrich

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/irdatalab/mojavez-harvester/pkg/mojavez"
)

// ErrNoDetail is returned when a track document yields no extractable
// fields at all.
var ErrNoDetail = errors.New("enrich: no detail fields extracted")

// labelFields maps the track page's field labels to detail fields. The
// labels match the registry's published field names; the page renders them
// as label/value pairs.
var labelFields = map[string]func(*mojavez.Detail, string){
	"شماره درخواست":     func(d *mojavez.Detail, v string) { d.RequestNumber = v },
	"عنوان مجوز":        func(d *mojavez.Detail, v string) { d.LicenseTitle = v },
	"مرجع صدور":         func(d *mojavez.Detail, v string) { d.OrganizationTitle = v },
	"کد آیسیک":          func(d *mojavez.Detail, v string) { d.ISICCode = v },
	"نوع صدور":          func(d *mojavez.Detail, v string) { d.IssueType = v },
	"تاریخ صدور / تمدید": func(d *mojavez.Detail, v string) { d.IssuedAt = v },
	"تاریخ اعتبار":      func(d *mojavez.Detail, v string) { d.ExpiresAt = v },
	"استان":             func(d *mojavez.Detail, v string) { d.ProvinceTitle = v },
	"شهرستان":           func(d *mojavez.Detail, v string) { d.TownshipTitle = v },
	"کدپستی":            func(d *mojavez.Detail, v string) { d.PostalCode = v },
	"نشانی کسب و کار":   func(d *mojavez.Detail, v string) { d.BusinessAddress = v },
	"وضعیت مجوز":        func(d *mojavez.Detail, v string) { d.StatusTitle = v },
}

// ExtractDetail parses a track document and pulls the license fields out of
// its label/value markup. The extraction is heuristic: any element whose own
// text is a known label contributes the text of its next sibling, or of its
// parent's next sibling when the label wraps alone. Returns ErrNoDetail when
// nothing matched.
func ExtractDetail(body io.Reader, requestNumber string) (*mojavez.Detail, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parsing track document: %w", err)
	}

	detail := &mojavez.Detail{
		RequestNumber: requestNumber,
		Source:        mojavez.SourceHTML,
	}

	doc.Find("th, td, dt, dd, span, strong, label, b, div").Each(func(_ int, sel *goquery.Selection) {
		assign, ok := labelFields[normalizeLabel(sel.Text())]
		if !ok {
			return
		}
		value := strings.TrimSpace(sel.Next().Text())
		if value == "" {
			value = strings.TrimSpace(sel.Parent().Next().Text())
		}
		if value != "" {
			assign(detail, value)
		}
	})

	// The page may echo a different request number; the record key wins.
	detail.RequestNumber = requestNumber

	if detail.Empty() {
		return nil, ErrNoDetail
	}
	return detail, nil
}

// normalizeLabel collapses whitespace and strips the trailing colon
// variants the page uses.
func normalizeLabel(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.TrimSuffix(s, ":")
	s = strings.TrimSuffix(s, "：")
	return strings.TrimSpace(s)
}
