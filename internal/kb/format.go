package kb

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
)

const (
	formatLimit  = 5
	emptyMessage = "Please ask about government jobs."
)

// FormatRecords renders the first five records as a numbered markdown list.
func FormatRecords(records []crawler.JobRecord, heading string) string {
	if len(records) == 0 {
		return fmt.Sprintf("No jobs found for '%s'.", heading)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Here are some %s:\n\n", heading)
	for i, rec := range records {
		if i == formatLimit {
			break
		}
		fmt.Fprintf(&b, "%d. **%s** at _%s_\n", i+1, rec.JobTitle, rec.Organization)
		fmt.Fprintf(&b, "   - Salary: %s\n", rec.Salary)
		fmt.Fprintf(&b, "   - Experience: %s\n", rec.Experience)
		fmt.Fprintf(&b, "   - Qualification: %s\n", rec.Qualification)
		fmt.Fprintf(&b, "   - Location: %s\n", rec.Location)
		fmt.Fprintf(&b, "   - Vacancies: %s\n\n", rec.Vacancies)
	}
	return strings.TrimSpace(b.String())
}

// Respond answers a free-text chat message.
func (ix *Index) Respond(message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return emptyMessage
	}
	tokens := strings.Fields(message)
	if category, ok := ix.MatchCategory(tokens); ok {
		return FormatRecords(ix.RecordsByCategory(category), titleCase(category)+" jobs")
	}
	return FormatRecords(ix.SearchRecords(tokens), message)
}

func titleCase(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
