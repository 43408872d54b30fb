package kb

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
)

// DefaultLimit caps every read result.
const DefaultLimit = 15

// ErrEmptyKnowledgeBase is returned when an artifact has no categories.
var ErrEmptyKnowledgeBase = errors.New("knowledge base has no categories")

// Index answers read queries over a committed knowledge base.
type Index struct {
	kb    crawler.KnowledgeBase
	limit int
}

// NewIndex wraps kb. A non-positive limit falls back to DefaultLimit.
func NewIndex(kb crawler.KnowledgeBase, limit int) *Index {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Index{kb: kb, limit: limit}
}

// Load reads the artifact at path.
func Load(path string, limit int) (*Index, error) {
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}
	var kb crawler.KnowledgeBase
	if err := json.Unmarshal(data, &kb); err != nil {
		return nil, fmt.Errorf("decode knowledge base %s: %w", path, err)
	}
	if len(kb.Categories) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyKnowledgeBase)
	}
	return NewIndex(kb, limit), nil
}

// Metadata returns the artifact metadata.
func (ix *Index) Metadata() crawler.Metadata {
	return ix.kb.Metadata
}

// Categories lists partition names in artifact order.
func (ix *Index) Categories() []string {
	out := make([]string, 0, len(ix.kb.Categories))
	for _, part := range ix.kb.Categories {
		out = append(out, part.Category)
	}
	return out
}

// HasCategory reports whether the artifact has a partition named category.
func (ix *Index) HasCategory(category string) bool {
	_, ok := ix.kb.Categories.Lookup(category)
	return ok
}

// TotalJobCount returns metadata.total_jobs.
func (ix *Index) TotalJobCount() int {
	return ix.kb.Metadata.TotalJobs
}

// RecordsByCategory returns the first records of category, or nil when the
// category is unknown.
func (ix *Index) RecordsByCategory(category string) []crawler.JobRecord {
	records, _ := ix.kb.Categories.Lookup(category)
	return ix.head(records)
}

// MatchCategory reports the first partition whose name occurs in the
// lowercased query.
func (ix *Index) MatchCategory(tokens []string) (string, bool) {
	query := strings.ToLower(strings.Join(tokens, " "))
	for _, part := range ix.kb.Categories {
		name := strings.ToLower(part.Category)
		if name != "" && strings.Contains(query, name) {
			return part.Category, true
		}
	}
	return "", false
}

// SearchRecords returns up to limit records. A query naming a category
// returns that partition verbatim. Otherwise a record matches when any token
// is a case-insensitive substring of its title, organization, or qualification.
func (ix *Index) SearchRecords(tokens []string) []crawler.JobRecord {
	if category, ok := ix.MatchCategory(tokens); ok {
		return ix.RecordsByCategory(category)
	}

	needles := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		needles = append(needles, strings.Fields(strings.ToLower(tok))...)
	}
	if len(needles) == 0 {
		return nil
	}

	var out []crawler.JobRecord
	for _, part := range ix.kb.Categories {
		for _, rec := range part.Records {
			if matches(rec, needles) {
				out = append(out, rec)
				if len(out) == ix.limit {
					return out
				}
			}
		}
	}
	return out
}

func matches(rec crawler.JobRecord, needles []string) bool {
	text := strings.ToLower(rec.JobTitle + " " + rec.Organization + " " + rec.Qualification)
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func (ix *Index) head(records []crawler.JobRecord) []crawler.JobRecord {
	if len(records) > ix.limit {
		return records[:ix.limit]
	}
	return records
}
