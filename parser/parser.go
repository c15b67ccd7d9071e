package parser

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"ads-scraper/models"
)

// Listing page markup
const (
	RowSelector         = "tr.odd, tr.even"
	TextCellSelector    = "td.text"
	AnchorSelector      = "a"
	DescriptionSelector = "div.zoznam_desc"
	CountrySelector     = "span.zoznam_country"
	CitySelector        = "span.zoznam_city"
	PriceSelector       = "div.zoznam_cena.round2"
	PaginationSelector  = "div.paginate"

	// Separator is stripped from country and city text
	Separator = " · "
)

// ErrMissingNode is returned when a listing row lacks an expected element
var ErrMissingNode = errors.New("missing expected node")

// Parser extracts ads from listing page HTML
type Parser struct{}

// NewParser creates a new Parser instance
func NewParser() *Parser {
	return &Parser{}
}

// ParseAds extracts every ad row from a listing page, in document order.
// Any row missing one of the expected nodes fails the whole page.
func (p *Parser) ParseAds(page models.Page) ([]models.Ad, error) {
	doc, err := p.document(page)
	if err != nil {
		return nil, err
	}

	var ads []models.Ad
	var rowErr error
	doc.Find(RowSelector).EachWithBreak(func(i int, row *goquery.Selection) bool {
		ad, err := extractAd(row)
		if err != nil {
			rowErr = fmt.Errorf("page %d (%s), row %d: %w", page.Number, page.URL, i+1, err)
			return false
		}
		ads = append(ads, ad)
		return true
	})
	if rowErr != nil {
		return nil, rowErr
	}

	return ads, nil
}

// CountPages reads the pagination block and returns the number of pages.
// The last pagination link ends with ",<count>"; no pagination block means one page.
func (p *Parser) CountPages(page models.Page) (int, error) {
	doc, err := p.document(page)
	if err != nil {
		return 0, err
	}

	paginate := doc.Find(PaginationSelector).First()
	if paginate.Length() == 0 {
		return 1, nil
	}

	links := paginate.Find(AnchorSelector)
	if links.Length() == 0 {
		return 1, nil
	}

	href, ok := links.Last().Attr("href")
	if !ok {
		return 0, fmt.Errorf("last pagination link has no href: %w", ErrMissingNode)
	}

	parts := strings.Split(href, ",")
	last := strings.Trim(strings.TrimSpace(parts[len(parts)-1]), "/")
	count, err := strconv.Atoi(last)
	if err != nil {
		return 0, fmt.Errorf("invalid page count in pagination link %q: %w", href, err)
	}
	if count < 1 {
		return 0, fmt.Errorf("invalid page count %d in pagination link %q", count, href)
	}
	return count, nil
}

// document decodes the page body to UTF-8 and parses it
func (p *Parser) document(page models.Page) (*goquery.Document, error) {
	body, err := decodeBody(page.Body, page.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode page %d: %w", page.Number, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// decodeBody keeps bodies that are already UTF-8 and converts the rest
// using the declared or sniffed charset
func decodeBody(body []byte, contentType string) ([]byte, error) {
	if utf8.Valid(body) {
		return body, nil
	}
	enc, _, _ := charset.DetermineEncoding(body, contentType)
	return enc.NewDecoder().Bytes(body)
}

// extractAd extracts a single ad from a listing row
func extractAd(row *goquery.Selection) (models.Ad, error) {
	cell, err := find(row, TextCellSelector)
	if err != nil {
		return models.Ad{}, err
	}

	anchor, err := find(cell, AnchorSelector)
	if err != nil {
		return models.Ad{}, err
	}

	desc, err := find(cell, DescriptionSelector)
	if err != nil {
		return models.Ad{}, err
	}

	country, err := find(cell, CountrySelector)
	if err != nil {
		return models.Ad{}, err
	}

	city, err := find(cell, CitySelector)
	if err != nil {
		return models.Ad{}, err
	}

	price, err := find(row, PriceSelector)
	if err != nil {
		return models.Ad{}, err
	}

	return models.Ad{
		Title:            anchor.AttrOr("title", ""),
		Link:             anchor.AttrOr("href", ""),
		ShortDescription: strippedText(desc),
		Country:          stripSeparator(country.Text()),
		City:             stripSeparator(city.Text()),
		Price:            strings.TrimSpace(price.Text()), // indentation only, inner spaces kept
	}, nil
}

// find returns the first match of selector under s or an ErrMissingNode error
func find(s *goquery.Selection, selector string) (*goquery.Selection, error) {
	found := s.Find(selector).First()
	if found.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingNode, selector)
	}
	return found, nil
}

// stripSeparator removes the list separator and surrounding whitespace.
// The trim is deliberate: cells carry markup indentation that is never part of the value.
func stripSeparator(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, Separator, ""))
}

// strippedText joins every descendant text node with its whitespace trimmed
func strippedText(s *goquery.Selection) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(strings.TrimSpace(n.Data))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return sb.String()
}
