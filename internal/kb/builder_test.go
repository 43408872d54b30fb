package kb

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type recordingExporter struct {
	combined [][]crawler.JobRecord
	err      error
}

func (e *recordingExporter) WriteCategory(string, []crawler.JobRecord) error { return nil }

func (e *recordingExporter) WriteCombined(records []crawler.JobRecord) error {
	e.combined = append(e.combined, records)
	return e.err
}

var buildTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func job(title, org, loc, category string) crawler.JobRecord {
	return crawler.JobRecord{
		JobTitle: title, Organization: org, Location: loc,
		Salary: crawler.NotAvailable, Experience: crawler.NotAvailable, Qualification: "B.Tech",
		Tags: []string{}, AgeLimit: crawler.NotAvailable, Vacancies: crawler.NotAvailable,
		Category: category,
	}
}

func newTestBuilder(t *testing.T, exp crawler.Exporter) *Builder {
	t.Helper()
	b, err := NewBuilder(exp, fixedClock{buildTime}, "engineering", nil)
	require.NoError(t, err)
	return b
}

func TestBuildTotalsPartitionsAndDedupsCombined(t *testing.T) {
	t.Parallel()

	exp := &recordingExporter{}
	b := newTestBuilder(t, exp)

	shared := job("Data Analyst", "RBI", "Mumbai", "science")
	sharedCommerce := shared
	sharedCommerce.Category = "commerce"
	results := []crawler.CategoryResult{
		{Category: "science", Records: []crawler.JobRecord{shared, job("Chemist", "DRDO", "Pune", "science")}},
		{Category: "commerce", Records: []crawler.JobRecord{sharedCommerce}},
	}

	kb := b.Build(results)

	assert.Equal(t, 3, kb.Metadata.TotalJobs)
	assert.Equal(t, buildTime, kb.Metadata.ExtractionTime)
	require.Len(t, kb.Categories, 2)
	assert.Equal(t, "science", kb.Categories[0].Category)
	assert.Equal(t, "commerce", kb.Categories[1].Category)
	commerce, ok := kb.Categories.Lookup("commerce")
	require.True(t, ok)
	assert.Len(t, commerce, 1)

	require.Len(t, exp.combined, 1)
	require.Len(t, exp.combined[0], 2)
	assert.Equal(t, "science", exp.combined[0][0].Category, "first occurrence wins in the combined export")
}

func TestBuildEmptyRunUsesGlobalSample(t *testing.T) {
	t.Parallel()

	exp := &recordingExporter{}
	b := newTestBuilder(t, exp)

	kb := b.Build([]crawler.CategoryResult{{Category: "science"}})

	assert.Equal(t, 1, kb.Metadata.TotalJobs)
	require.Len(t, kb.Categories, 2)
	eng, ok := kb.Categories.Lookup("engineering")
	require.True(t, ok)
	require.Len(t, eng, 1)
	assert.Equal(t, "Sample Job", eng[0].JobTitle)
	assert.Equal(t, "engineering", eng[0].Category)
	require.Len(t, exp.combined, 1)
	assert.Equal(t, eng, exp.combined[0])
}

func TestBuildGlobalSampleJoinsExistingDefaultPartition(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(t, nil)
	kb := b.Build([]crawler.CategoryResult{{Category: "engineering"}, {Category: "science"}})

	require.Len(t, kb.Categories, 2)
	assert.Equal(t, "engineering", kb.Categories[0].Category)
	assert.Len(t, kb.Categories[0].Records, 1)
	assert.Empty(t, kb.Categories[1].Records)
}

func TestBuildExportFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	exp := &recordingExporter{err: errors.New("disk full")}
	b := newTestBuilder(t, exp)

	kb := b.Build([]crawler.CategoryResult{{Category: "education", Records: []crawler.JobRecord{crawler.SampleRecord("education")}}})
	assert.Equal(t, 1, kb.Metadata.TotalJobs)
}

func TestBuildDoesNotAliasInput(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(t, nil)
	in := []crawler.JobRecord{job("A", "B", "C", "engineering")}
	kb := b.Build([]crawler.CategoryResult{{Category: "engineering", Records: in}})
	kb.Categories[0].Records[0].JobTitle = "changed"
	assert.Equal(t, "A", in[0].JobTitle)
}

func TestTotalMatchesSumOfPartitions(t *testing.T) {
	t.Parallel()

	b := newTestBuilder(t, nil)
	var results []crawler.CategoryResult
	want := 0
	for i, cat := range []string{"engineering", "science", "commerce", "education"} {
		var recs []crawler.JobRecord
		for j := 0; j <= i; j++ {
			// Same key in every category: counted once per partition.
			recs = append(recs, job(fmt.Sprintf("Job %d", j), "Org", "Delhi", cat))
		}
		want += len(recs)
		results = append(results, crawler.CategoryResult{Category: cat, Records: recs})
	}
	assert.Equal(t, want, b.Build(results).Metadata.TotalJobs)
}

func TestNewBuilderValidation(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder(nil, nil, "engineering", nil)
	require.Error(t, err)
	_, err = NewBuilder(nil, fixedClock{}, "", nil)
	require.Error(t, err)
}
