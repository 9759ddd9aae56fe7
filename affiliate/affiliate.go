// Package affiliate builds Amazon France affiliate links for report products.
package affiliate

import (
	"net/url"
	"strings"
)

const amazonSearchBase = "https://www.amazon.fr/s"

// Link is one outbound product link rendered alongside a report.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// SearchURL builds an Amazon search URL for the query, adding the partner tag
// when one is configured. An empty query yields an empty URL.
func SearchURL(query, tag string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}
	values := url.Values{}
	values.Set("k", query)
	if tag = strings.TrimSpace(tag); tag != "" {
		values.Set("tag", tag)
	}
	return amazonSearchBase + "?" + values.Encode()
}

// Links builds one link per recommended product, falling back to the report's
// search query when no product list was produced.
func Links(products []string, searchQuery, tag string) []Link {
	links := make([]Link, 0, len(products))
	seen := make(map[string]bool)
	for _, product := range products {
		product = strings.TrimSpace(product)
		if product == "" || seen[strings.ToLower(product)] {
			continue
		}
		seen[strings.ToLower(product)] = true
		links = append(links, Link{Label: product, URL: SearchURL(product, tag)})
	}
	if len(links) == 0 {
		if u := SearchURL(searchQuery, tag); u != "" {
			links = append(links, Link{Label: strings.TrimSpace(searchQuery), URL: u})
		}
	}
	return links
}
