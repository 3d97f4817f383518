// Package extraction holds the data model shared by every stage of the
// extraction pipeline: input items, the sequential-id-addressed graph
// (entities, facts, quotes, quantitative data, relations), and the
// per-phase result envelopes that carry that graph between phases.
package extraction

import "time"

// Article is a scraped news article input item.
type Article struct {
	URL            string    `json:"url"`
	StoragePath    string    `json:"storage_path"`
	Outlet         string    `json:"outlet"`
	Country        string    `json:"country"`
	OutletType     string    `json:"outlet_type"`
	Headline       string    `json:"headline"`
	PublishedAt    time.Time `json:"published_at"`
	Author         string    `json:"author"`
	Language       string    `json:"language"`
	Section        string    `json:"section"`
	SourceTags     []string  `json:"source_tags,omitempty"`
	IsOpinion      bool      `json:"is_opinion"`
	IsOfficial     bool      `json:"is_official"`
	FullText       string    `json:"full_text"`
}

// Fragment is a manually-ingested long-document fragment input item.
type Fragment struct {
	ID             string         `json:"id"`
	SourceDocID    string         `json:"source_document_id"`
	Position       int            `json:"sequential_position"`
	SectionTitle   string         `json:"section_title,omitempty"`
	PageRangeStart *int           `json:"page_range_start,omitempty"`
	PageRangeEnd   *int           `json:"page_range_end,omitempty"`
	Text           string         `json:"text"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ItemKind identifies which input unit kind is being processed.
type ItemKind string

const (
	ItemKindArticle  ItemKind = "article"
	ItemKindFragment ItemKind = "fragment"
)

// SourceMetadata is the normalized view of an input item's metadata used to
// fill prompt placeholders, independent of whether the item is an Article
// or a Fragment.
type SourceMetadata struct {
	Title         string
	SourceType    string
	OriginCountry string
	SourceDate    time.Time
}

// ArticleMetadata extracts the SourceMetadata view of an Article.
func ArticleMetadata(a *Article) SourceMetadata {
	return SourceMetadata{
		Title:         a.Headline,
		SourceType:    a.OutletType,
		OriginCountry: a.Country,
		SourceDate:    a.PublishedAt,
	}
}

// FragmentMetadata extracts the SourceMetadata view of a Fragment.
// Fragments carry no publication date or country of their own; callers
// populate SourceDate from ingestion time and leave OriginCountry empty
// unless metadata supplies one.
func FragmentMetadata(f *Fragment, ingestedAt time.Time) SourceMetadata {
	title := f.SectionTitle
	if title == "" {
		title = f.SourceDocID
	}
	meta := SourceMetadata{
		Title:      title,
		SourceType: "fragment",
		SourceDate: ingestedAt,
	}
	if country, ok := f.Metadata["origin_country"].(string); ok {
		meta.OriginCountry = country
	}
	return meta
}
