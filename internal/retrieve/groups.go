package retrieve

import (
	"sort"

	"github.com/kutub-ai/cli/internal/vectorstore"
)

// Relevance tiers derived from a group's best similarity, for presentation.
const (
	TierHigh   = "high"
	TierMedium = "medium"
	TierLow    = "low"
)

// PageGroup holds one page's retrieved chunks.
type PageGroup struct {
	PageNumber     int
	Chunks         []*vectorstore.Chunk
	BestSimilarity float64
}

// DocumentGroup holds one document's retrieved pages.
type DocumentGroup struct {
	DocumentID     string
	Pages          []PageGroup
	BestSimilarity float64
	Tier           string
}

// GroupByDocument arranges ranked chunks by document then page. Documents
// are ordered by best similarity; pages within a document by page number.
func GroupByDocument(chunks []*vectorstore.Chunk) []DocumentGroup {
	type pageKey struct {
		doc  string
		page int
	}
	pages := make(map[pageKey]*PageGroup)
	docBest := make(map[string]float64)
	var docOrder []string

	for _, c := range chunks {
		key := pageKey{c.DocumentID, c.PageNumber}
		pg, ok := pages[key]
		if !ok {
			pg = &PageGroup{PageNumber: c.PageNumber}
			pages[key] = pg
		}
		pg.Chunks = append(pg.Chunks, c)
		if c.Similarity > pg.BestSimilarity {
			pg.BestSimilarity = c.Similarity
		}
		if _, seen := docBest[c.DocumentID]; !seen {
			docOrder = append(docOrder, c.DocumentID)
		}
		if c.Similarity > docBest[c.DocumentID] {
			docBest[c.DocumentID] = c.Similarity
		}
	}

	groups := make([]DocumentGroup, 0, len(docOrder))
	for _, docID := range docOrder {
		group := DocumentGroup{
			DocumentID:     docID,
			BestSimilarity: docBest[docID],
			Tier:           tierFor(docBest[docID]),
		}
		for key, pg := range pages {
			if key.doc == docID {
				group.Pages = append(group.Pages, *pg)
			}
		}
		sort.Slice(group.Pages, func(i, j int) bool {
			return group.Pages[i].PageNumber < group.Pages[j].PageNumber
		})
		groups = append(groups, group)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].BestSimilarity > groups[j].BestSimilarity
	})
	return groups
}

func tierFor(similarity float64) string {
	switch {
	case similarity >= 0.75:
		return TierHigh
	case similarity >= 0.5:
		return TierMedium
	default:
		return TierLow
	}
}
