// Package crawler defines core types shared across subsystems.
package crawler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// NotAvailable is the sentinel stored in a field that could not be extracted.
const NotAvailable = "N/A"

// Fetch modes reported on Page.
const (
	ModeStatic = "static"
	ModeScroll = "scroll"
)

// Category names one crawlable listing and its source URL.
type Category struct {
	Name string `mapstructure:"name" json:"name" validate:"required,category"`
	URL  string `mapstructure:"url" json:"url" validate:"required,url"`
}

// JobRecord is one normalized job posting.
type JobRecord struct {
	JobTitle      string   `json:"job_title"`
	Organization  string   `json:"organization"`
	Salary        string   `json:"salary"`
	Experience    string   `json:"experience"`
	Qualification string   `json:"qualification"`
	Location      string   `json:"location"`
	Tags          []string `json:"tags"`
	AgeLimit      string   `json:"age_limit"`
	Vacancies     string   `json:"vacancies"`
	Category      string   `json:"category"`
}

var categoryNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// ValidCategoryName reports whether name is a slug safe to use in file names.
func ValidCategoryName(name string) bool {
	return categoryNamePattern.MatchString(name)
}

// DedupKey identifies duplicate postings.
type DedupKey struct {
	JobTitle     string
	Organization string
	Location     string
}

// Key returns the record's dedup key.
func (r JobRecord) Key() DedupKey {
	return DedupKey{JobTitle: r.JobTitle, Organization: r.Organization, Location: r.Location}
}

// CategoryResult is the deduplicated, ordered record list for one category.
type CategoryResult struct {
	Category string
	Records  []JobRecord
}

// Page is what a Fetcher hands back for one category URL.
type Page struct {
	URL            string
	Mode           string
	HTML           string
	Cards          []*goquery.Selection
	ScrollAttempts int
	Duration       time.Duration
	// Err holds the recovered failure, if any. Cards is empty whenever Err is set.
	Err error
}

// Metadata describes a knowledge base build.
type Metadata struct {
	TotalJobs      int       `json:"total_jobs"`
	ExtractionTime time.Time `json:"extraction_time"`
}

// KnowledgeBase is the persisted, category-partitioned aggregate of a crawl run.
type KnowledgeBase struct {
	Metadata   Metadata   `json:"metadata"`
	Categories Partitions `json:"categories"`
}

// Partitions keeps category results in crawl order. It encodes as a JSON object
// keyed by category name.
type Partitions []CategoryResult

// Lookup returns the records stored under category.
func (p Partitions) Lookup(category string) ([]JobRecord, bool) {
	for _, part := range p {
		if part.Category == category {
			return part.Records, true
		}
	}
	return nil, false
}

// Total returns the sum of all partition lengths.
func (p Partitions) Total() int {
	total := 0
	for _, part := range p {
		total += len(part.Records)
	}
	return total
}

// MarshalJSON encodes the partitions as an ordered JSON object.
func (p Partitions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, part := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(part.Category)
		if err != nil {
			return nil, fmt.Errorf("marshal category name: %w", err)
		}
		records := part.Records
		if records == nil {
			records = []JobRecord{}
		}
		value, err := json.Marshal(records)
		if err != nil {
			return nil, fmt.Errorf("marshal category %q: %w", part.Category, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object while preserving key order.
func (p *Partitions) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read categories: %w", err)
	}
	if tok == nil {
		*p = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("categories must be a JSON object")
	}
	var out Partitions
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read category name: %w", err)
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected category key %v", keyTok)
		}
		var records []JobRecord
		if err := dec.Decode(&records); err != nil {
			return fmt.Errorf("decode category %q: %w", name, err)
		}
		out = append(out, CategoryResult{Category: name, Records: records})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("close categories: %w", err)
	}
	*p = out
	return nil
}
