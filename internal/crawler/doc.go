// Package crawler implements the category crawl pipeline: it drives a page
// fetcher and a record extractor per category, deduplicates the result, and
// degrades to a sample record when a category yields nothing.
package crawler
