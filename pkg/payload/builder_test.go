package payload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsgraph/extractor/pkg/apperrors"
	"github.com/newsgraph/extractor/pkg/extraction"
)

func validArticle() *extraction.Article {
	return &extraction.Article{
		URL:         "https://example.com/a",
		StoragePath: "bucket/2026/01/15/article.html.gz",
		Outlet:      "Daily Times",
		Country:     "US",
		OutletType:  "newspaper",
		Headline:    "Government announces tax reform",
		PublishedAt: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestBuildArticle_HappyPath(t *testing.T) {
	b := New()
	in := Input{
		RequestID: "req-1",
		Phase2: &extraction.Phase2Result{
			Facts:    []extraction.Fact{{SequentialID: 1, Content: "reform announced", Type: extraction.FactAnnouncement}},
			Entities: []extraction.Entity{{SequentialID: 1, Name: "Ministry of Finance", Type: extraction.EntityInstitution}},
		},
		Phase3: &extraction.Phase3Result{
			Quotes: []extraction.Quote{{SequentialID: 1, Text: "We will act.", Relevance: 4}},
		},
		Phase4: &extraction.Phase4Result{
			Entities: []extraction.Entity{{SequentialID: 1, Name: "Ministry of Finance", Type: extraction.EntityInstitution, DirectoryUUID: "dir-1"}},
			Relations: extraction.Relations{
				FactEntity: []extraction.FactEntityRelation{{FactID: 1, EntityID: 1, Role: extraction.RoleProtagonist, Relevance: 5}},
			},
		},
	}

	out, err := b.BuildArticle(validArticle(), in)
	require.NoError(t, err)
	require.Len(t, out.Entities, 1)
	assert.Equal(t, "dir-1", out.Entities[0].DBID)
	require.Len(t, out.Facts, 1)
	require.Len(t, out.Quotes, 1)
	require.Len(t, out.Relations.FactEntity, 1)
	assert.Equal(t, "req-1", out.RequestID)
	assert.Equal(t, "article", out.ItemKind)
}

func TestBuildArticle_RejectsBadStoragePath(t *testing.T) {
	b := New()
	article := validArticle()
	article.StoragePath = "bad path.html.gz"

	in := Input{RequestID: "req-2", Phase2: &extraction.Phase2Result{}, Phase3: &extraction.Phase3Result{}, Phase4: &extraction.Phase4Result{}}
	_, err := b.BuildArticle(article, in)
	require.Error(t, err)

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.KindPayloadAssembly, appErr.Kind)
}

func TestBuildArticle_RejectsReferentialClosureViolation(t *testing.T) {
	b := New()
	in := Input{
		RequestID: "req-3",
		Phase2:    &extraction.Phase2Result{Entities: []extraction.Entity{{SequentialID: 1, Name: "X"}}},
		Phase3:    &extraction.Phase3Result{},
		Phase4: &extraction.Phase4Result{
			Entities: []extraction.Entity{{SequentialID: 1, Name: "X"}},
			Relations: extraction.Relations{
				FactEntity: []extraction.FactEntityRelation{{FactID: 99, EntityID: 1, Role: extraction.RoleProtagonist, Relevance: 5}},
			},
		},
	}

	_, err := b.BuildArticle(validArticle(), in)
	require.Error(t, err)
	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.KindPayloadAssembly, appErr.Kind)
}

func TestDetectPossibleDuplicates_GroupsByNormalizedName(t *testing.T) {
	entities := []extraction.Entity{
		{SequentialID: 1, Name: "Ministry of Finance"},
		{SequentialID: 2, Name: "ministry of finance"},
		{SequentialID: 3, Name: "President Smith"},
	}
	dupes := detectPossibleDuplicates(entities)
	require.Len(t, dupes, 1)
	assert.Equal(t, 1, dupes[0].KeptID)
	assert.Equal(t, []int{2}, dupes[0].DuplicateIDs)
}

func TestValidateStoragePath(t *testing.T) {
	assert.NoError(t, ValidateStoragePath("bucket/2026/01/15/article.html.gz"))
	assert.Error(t, ValidateStoragePath("bad path.html.gz"))
	assert.Error(t, ValidateStoragePath("bucket/2026/1/15/article.html.gz"))
	assert.Error(t, ValidateStoragePath("bucket/2026/01/15/article.pdf.gz"))
}
