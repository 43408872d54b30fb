package crawler

import (
	"context"
	"io"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Fetcher acquires the listing cards for one category URL. Implementations
// never fail: errors are logged and reported through Page.Err with no cards.
type Fetcher interface {
	Fetch(ctx context.Context, url string) Page
}

// Extractor turns one listing card into a complete JobRecord.
type Extractor interface {
	Extract(card *goquery.Selection, category string) JobRecord
}

// Exporter persists flat per-category and combined exports.
type Exporter interface {
	WriteCategory(category string, records []JobRecord) error
	WriteCombined(records []JobRecord) error
}

// Waiter throttles outbound fetches.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// RecordStore persists the records of a crawl run.
type RecordStore interface {
	UpsertRecords(ctx context.Context, runID string, extractedAt time.Time, records []JobRecord) error
}

// Publisher pushes refresh events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher digests a committed artifact.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
