package queries

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/specdeck/specdeck/internal/spec"
)

// SearchHit is one fuzzy search result, ranked by edit distance.
type SearchHit struct {
	TaskView
	Score int `json:"score"`
}

// SearchTasks ranks task and verify nodes against a free-text query,
// matching IDs and titles case-insensitively. Lower scores are better;
// ties keep document order.
func SearchTasks(doc *spec.Document, query string, limit int) []SearchHit {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	var hits []SearchHit
	doc.Walk(func(n *spec.Node) bool {
		if n.Type != spec.TypeTask && n.Type != spec.TypeVerify {
			return true
		}
		score := bestRank(query, n.ID, n.Title, n.Description)
		if score < 0 {
			return true
		}
		hits = append(hits, SearchHit{TaskView: viewOf(n), Score: score})
		return true
	})
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score < hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// bestRank returns the lowest rank of query against the candidates, or
// -1 when none match.
func bestRank(query string, candidates ...string) int {
	best := -1
	for _, c := range candidates {
		if c == "" {
			continue
		}
		r := fuzzy.RankMatchNormalizedFold(query, c)
		if r < 0 {
			continue
		}
		if best < 0 || r < best {
			best = r
		}
	}
	return best
}

// suggestThreshold is the maximum edit distance for a did-you-mean
// candidate.
const suggestThreshold = 3

// Suggest returns up to max node IDs resembling the unknown id, for
// did-you-mean hints on lookup misses.
func Suggest(doc *spec.Document, id string, max int) []string {
	type candidate struct {
		id   string
		dist int
	}
	var cands []candidate
	doc.Walk(func(n *spec.Node) bool {
		d := fuzzy.LevenshteinDistance(strings.ToLower(id), strings.ToLower(n.ID))
		if d <= suggestThreshold {
			cands = append(cands, candidate{id: n.ID, dist: d})
		}
		return true
	})
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })
	var out []string
	for _, c := range cands {
		out = append(out, c.id)
		if len(out) == max {
			break
		}
	}
	return out
}
