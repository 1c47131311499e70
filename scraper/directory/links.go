package directory

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// ExtractLinks returns the href of every anchor in an HTML document, in
// document order.
func ExtractLinks(body []byte) ([]string, error) {
	z := html.NewTokenizer(bytes.NewReader(body))
	var links []string

	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return links, nil
			}
			return nil, fmt.Errorf("parse listing: %w", z.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if strings.EqualFold(string(key), "href") {
					links = append(links, strings.TrimSpace(string(val)))
				}
				if !more {
					break
				}
			}
		}
	}
}
