package crawler

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// ExtractLinks returns the absolute http(s) targets of <a href> elements in
// an HTML document, resolved against base, without fragments and without
// duplicates, in document order.
func ExtractLinks(r io.Reader, base *url.URL) []string {
	z := html.NewTokenizer(r)
	seen := make(map[string]bool)
	var links []string

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return links
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := z.TagAttr()
				if string(key) == "href" {
					if abs := resolve(base, string(val)); abs != "" && !seen[abs] {
						seen[abs] = true
						links = append(links, abs)
					}
				}
				if !more {
					break
				}
			}
		}
	}
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u := base.ResolveReference(ref)
	if !isWeb(u) {
		return ""
	}
	u.Fragment = ""
	return u.String()
}
