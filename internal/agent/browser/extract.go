package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"placewatch/internal/agent"
	"placewatch/internal/model"
)

// Selectors locate the parts of a place page. They are configuration, not
// code: when the page markup changes only these strings need updating.
type Selectors struct {
	Name          string
	Address       string
	Rating        string
	Total         string
	Item          string
	ItemAuthor    string
	ItemText      string
	ItemDate      string
	ItemRating    string
	ScrollPane    string
	TabKeywords   []string
	SortKeywords  []string
	NewestOptions []string
	ExpandLabel   string
}

// DefaultSelectors match the Google Maps place panel.
func DefaultSelectors() Selectors {
	return Selectors{
		Name:          "h1",
		Address:       `[data-item-id="address"]`,
		Rating:        ".fontDisplayLarge",
		Total:         "div.F7nice",
		Item:          "div.jftiEf",
		ItemAuthor:    "div.d4r55",
		ItemText:      "span.wiI7pd",
		ItemDate:      "span.rsqaWe",
		ItemRating:    `span[role="img"]`,
		ScrollPane:    "div.m6QErb.DxyBCb",
		TabKeywords:   []string{"reseñas", "opiniones", "reviews", "revisiones"},
		SortKeywords:  []string{"ordenar", "sort"},
		NewestOptions: []string{"recientes", "newest", "más nuevas"},
		ExpandLabel:   "Ver más",
	}
}

const anonymousAuthor = "Anónimo"

// ParseItems extracts every feedback block from page HTML in document order.
func ParseItems(html string, sel Selectors) ([]model.RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var items []model.RawItem
	doc.Find(sel.Item).Each(func(_ int, block *goquery.Selection) {
		author := strings.TrimSpace(block.Find(sel.ItemAuthor).First().Text())
		if author == "" {
			author = anonymousAuthor
		}
		it := model.RawItem{
			Author:   author,
			Text:     strings.TrimSpace(block.Find(sel.ItemText).First().Text()),
			DateText: strings.TrimSpace(block.Find(sel.ItemDate).First().Text()),
		}
		block.Find(sel.ItemRating).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			label := strings.ToLower(s.AttrOr("aria-label", ""))
			if !strings.Contains(label, "estrella") && !strings.Contains(label, "star") {
				return true
			}
			it.Rating = agent.ParseRating(label)
			return false
		})
		items = append(items, it)
	})
	return items, nil
}

// ParseInfo reads the place header: name, address, overall rating and the
// displayed item total.
func ParseInfo(html string, sel Selectors) (agent.PageInfo, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return agent.PageInfo{}, fmt.Errorf("parse html: %w", err)
	}

	info := agent.PageInfo{
		DisplayName: strings.TrimSpace(doc.Find(sel.Name).First().Text()),
	}

	addr := doc.Find(sel.Address).First()
	info.Address = strings.TrimSpace(addr.Text())
	if info.Address == "" {
		label := addr.AttrOr("aria-label", "")
		if _, after, ok := strings.Cut(label, ":"); ok {
			label = after
		}
		info.Address = strings.TrimSpace(label)
	}

	ratingText := strings.TrimSpace(doc.Find(sel.Rating).First().Text())
	info.Rating = agent.ParseRating(ratingText)

	total := doc.Find(sel.Total).First()
	info.DisplayedTotal = totalFromText(total.Text(), ratingText)
	if info.DisplayedTotal == 0 {
		total.Find("[aria-label]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			info.DisplayedTotal = agent.ParseCount(s.AttrOr("aria-label", ""))
			return info.DisplayedTotal == 0
		})
	}
	return info, nil
}

// totalFromText reads "4,5(1.234)" style headers, where the count sits in
// parentheses after the rating.
func totalFromText(text, ratingText string) int {
	text = strings.TrimSpace(text)
	if _, after, ok := strings.Cut(text, "("); ok {
		inner, _, _ := strings.Cut(after, ")")
		return agent.ParseCount(inner)
	}
	if ratingText != "" {
		text = strings.TrimPrefix(text, ratingText)
	}
	return agent.ParseCount(text)
}
