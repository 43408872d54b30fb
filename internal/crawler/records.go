package crawler

import "fmt"

// Dedup returns records unique by DedupKey, keeping the first occurrence and
// the original order. The input slice is not modified.
func Dedup(records []JobRecord) []JobRecord {
	seen := make(map[DedupKey]struct{}, len(records))
	out := make([]JobRecord, 0, len(records))
	for _, rec := range records {
		key := rec.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	return out
}

// SampleRecord is the placeholder substituted for a category that produced no records.
func SampleRecord(category string) JobRecord {
	rec := sample(category)
	rec.JobTitle = fmt.Sprintf("Sample %s Job", category)
	return rec
}

// GlobalSampleRecord is the placeholder used when an entire run produced no records.
func GlobalSampleRecord(category string) JobRecord {
	rec := sample(category)
	rec.JobTitle = "Sample Job"
	return rec
}

func sample(category string) JobRecord {
	return JobRecord{
		Organization:  "Sample Org",
		Salary:        "10000-20000",
		Experience:    "Fresher",
		Qualification: "Any",
		Location:      "All India",
		Tags:          []string{},
		AgeLimit:      "18-30",
		Vacancies:     "10",
		Category:      category,
	}
}
