// Package extract turns listing cards into normalized job records.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
)

// Selectors locates each field inside a listing card.
type Selectors struct {
	Title         string
	TitleInner    string
	Organization  string
	Salary        string
	SalaryInner   string
	SalaryIndex   int
	Experience    string
	Qualification string
	Location      string
	TagsContainer string
	TagItem       string
}

// DefaultSelectors matches the drop__card markup of the listing site.
func DefaultSelectors() Selectors {
	return Selectors{
		Title:         "span.ribbon1",
		TitleInner:    "span",
		Organization:  "span.drop__profession",
		Salary:        "span.salary-price",
		SalaryInner:   "span",
		SalaryIndex:   1,
		Experience:    "span.drop__exp",
		Qualification: "div.salary",
		Location:      "div.location",
		TagsContainer: "div.tags-part",
		TagItem:       "a.tags-item",
	}
}

// lookup returns a field value and whether its element was found.
type lookup func(card *goquery.Selection) (string, bool)

// Extractor implements crawler.Extractor.
type Extractor struct {
	sel           Selectors
	title         lookup
	organization  lookup
	salary        lookup
	experience    lookup
	qualification lookup
	location      lookup
}

// New builds an Extractor for the given selectors.
func New(sel Selectors) *Extractor {
	return &Extractor{
		sel:           sel,
		title:         nested(sel.Title, sel.TitleInner, 0),
		organization:  text(sel.Organization),
		salary:        nested(sel.Salary, sel.SalaryInner, sel.SalaryIndex),
		experience:    text(sel.Experience),
		qualification: text(sel.Qualification),
		location:      text(sel.Location),
	}
}

// NewDefault builds an Extractor for DefaultSelectors.
func NewDefault() *Extractor {
	return New(DefaultSelectors())
}

// Extract reads every field of card independently. A field whose element is
// missing becomes crawler.NotAvailable; missing tags become an empty slice.
func (e *Extractor) Extract(card *goquery.Selection, category string) crawler.JobRecord {
	return crawler.JobRecord{
		JobTitle:      orNA(e.title, card),
		Organization:  orNA(e.organization, card),
		Salary:        orNA(e.salary, card),
		Experience:    orNA(e.experience, card),
		Qualification: orNA(e.qualification, card),
		Location:      orNA(e.location, card),
		Tags:          e.tags(card),
		AgeLimit:      crawler.NotAvailable,
		Vacancies:     crawler.NotAvailable,
		Category:      category,
	}
}

func (e *Extractor) tags(card *goquery.Selection) []string {
	out := []string{}
	if card == nil {
		return out
	}
	container := card.Find(e.sel.TagsContainer).First()
	if container.Length() == 0 {
		return out
	}
	container.Find(e.sel.TagItem).Each(func(_ int, s *goquery.Selection) {
		out = append(out, clean(s.Text()))
	})
	return out
}

func orNA(fn lookup, card *goquery.Selection) string {
	if card == nil {
		return crawler.NotAvailable
	}
	if v, ok := fn(card); ok {
		return v
	}
	return crawler.NotAvailable
}

func text(selector string) lookup {
	return func(card *goquery.Selection) (string, bool) {
		el := card.Find(selector).First()
		if el.Length() == 0 {
			return "", false
		}
		return clean(el.Text()), true
	}
}

// nested finds the first outer match, then the index-th inner match below it.
func nested(outer, inner string, index int) lookup {
	return func(card *goquery.Selection) (string, bool) {
		el := card.Find(outer).First()
		if el.Length() == 0 {
			return "", false
		}
		target := el.Find(inner).Eq(index)
		if target.Length() == 0 {
			return "", false
		}
		return clean(target.Text()), true
	}
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
