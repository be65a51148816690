package feed

import (
	"time"
)

type Metadata struct {
	Title       string
	Link        string
	Description string
	ImageURL    string
	Language    string
}

type Item struct {
	GUID        string
	Title       string
	Link        string
	Author      string
	ContentHTML string
	ContentText string
	PublishedAt *time.Time
}

// Discovery is a resolved native feed for a submitted page URL.
type Discovery struct {
	FeedURL string
	SiteURL string
	Title   string
}

type FetchResult struct {
	StatusCode   int
	FinalURL     string
	ContentType  string
	ETag         string
	LastModified string
	Body         []byte
}

func (r *FetchResult) NotModified() bool {
	return r.StatusCode == 304
}
