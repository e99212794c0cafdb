// Package types holds the domain types shared across the content pipeline:
// content items, lessons, slides and the error taxonomy.
package types

import "time"

// SourceKind identifies how a content item's text was obtained.
type SourceKind string

const (
	SourcePage SourceKind = "page"
	SourcePDF  SourceKind = "pdf"
	SourceText SourceKind = "text"
)

// ContentItem is a unit of fetched educational material. Items are
// immutable once stored; identity is unique in the content cache.
type ContentItem struct {
	ID          string       `json:"id"`
	URL         string       `json:"url"`
	Title       string       `json:"title"`
	Topic       string       `json:"topic"`
	Text        string       `json:"text"`
	Excerpts    []string     `json:"excerpts"`
	ImageURLs   []string     `json:"image_urls,omitempty"`
	LocalImages []LocalImage `json:"local_images,omitempty"`
	Kind        SourceKind   `json:"kind"`
	FetchedAt   time.Time    `json:"fetched_at"`
}

// ItemID returns the item's identity, deriving it from URL or text when
// ID is unset.
func (c *ContentItem) ItemID() string {
	if c.ID != "" {
		return c.ID
	}
	if c.URL != "" {
		if id, err := ContentID(c.URL); err == nil {
			return id
		}
	}
	return TextID(c.Text)
}

// HasImages reports whether any downloaded image is available.
func (c *ContentItem) HasImages() bool { return len(c.LocalImages) > 0 }

// ImagePaths returns the local paths of the downloaded images.
func (c *ContentItem) ImagePaths() []string {
	out := make([]string, 0, len(c.LocalImages))
	for _, img := range c.LocalImages {
		out = append(out, img.Path)
	}
	return out
}

// LocalImage is a downloaded image. Local file names are derived from a
// hash, so SourceURL is the only record of the original name.
type LocalImage struct {
	Path      string `json:"path"`
	SourceURL string `json:"source_url"`
}
