package vmr

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// folderMarker is the javascript call folder rows trigger; file rows use a
// different handler, so its presence is the folder/file discriminator.
const folderMarker = "getFolderandFileList"

// ParseGrid extracts grid entries from the folder listing HTML. Row names
// live in span.mail-sender elements; the click handler sits on the span or
// an enclosing row.
func ParseGrid(html string) ([]Entry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parsing grid html: %w", err)
	}

	var entries []Entry
	doc.Find("span.mail-sender").Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Text())
		if name == "" {
			return
		}

		onclick := rowOnClick(s)
		entry := Entry{
			Name:     name,
			OnClick:  onclick,
			IsFolder: strings.Contains(onclick, folderMarker),
		}
		if href, ok := rowHref(s); ok {
			entry.Href = href
		}
		entries = append(entries, entry)
	})
	return entries, nil
}

// rowOnClick finds the click handler for a grid row, checking the name span
// first and then walking up to the enclosing row.
func rowOnClick(s *goquery.Selection) string {
	if v, ok := s.Attr("onclick"); ok {
		return v
	}
	if v, ok := s.Closest("tr").Attr("onclick"); ok {
		return v
	}
	if v, ok := s.Closest("[onclick]").Attr("onclick"); ok {
		return v
	}
	return ""
}

func rowHref(s *goquery.Selection) (string, bool) {
	if a := s.Closest("tr").Find("a[href]").First(); a.Length() > 0 {
		return a.Attr("href")
	}
	return "", false
}
