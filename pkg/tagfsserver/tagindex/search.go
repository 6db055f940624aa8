package tagindex

import (
	"math"
	"sort"

	"github.com/function61/tagfs/pkg/tagfstypes"
	"go.etcd.io/bbolt"
)

type SearchHit struct {
	Hash  string
	Score float64
}

// free-text relevance query over tags, name and description. hits are sorted by descending
// score, ties by hash. a query that analyzes to nothing (or only has exclusions) has no hits.
func (i *Index) Search(text string) ([]SearchHit, error) {
	query := parseQuery(text)
	if query.empty() {
		return []SearchHit{}, nil
	}

	var scores map[string]float64

	if err := i.db.View(func(tx *bbolt.Tx) error {
		total, err := fileRepository.Count(tx)
		if err != nil {
			return err
		}

		s := &scorer{tx: tx, total: total, records: map[string]*tagfstypes.FileRecord{}}

		for _, group := range query.groups {
			groupScores := map[string]float64{}

			for _, cl := range group {
				clauseScores, err := s.evaluate(cl)
				if err != nil {
					return err
				}

				for hash, score := range clauseScores {
					groupScores[hash] += score
				}
			}

			scores = intersectScores(scores, groupScores)

			if len(scores) == 0 {
				return nil
			}
		}

		for _, cl := range query.excluded {
			excluded, err := s.evaluate(cl)
			if err != nil {
				return err
			}

			for hash := range excluded {
				delete(scores, hash)
			}
		}

		return nil
	}); err != nil {
		return nil, err
	}

	hits := make([]SearchHit, 0, len(scores))
	for hash, score := range scores {
		hits = append(hits, SearchHit{Hash: hash, Score: score})
	}

	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}

		return hits[a].Hash < hits[b].Hash
	})

	return hits, nil
}

// evaluates clauses inside one read transaction. records are loaded lazily for term
// frequencies and kept for the duration of the query.
type scorer struct {
	tx      *bbolt.Tx
	total   int // N in idf
	records map[string]*tagfstypes.FileRecord
}

// hashes matched by the clause, with their score
func (s *scorer) evaluate(cl clause) (map[string]float64, error) {
	scores := map[string]float64{}

	if cl.searchesField(fieldTags) {
		withTag, err := queryPartition(filesByTagIndex, []byte(cl.raw), s.tx)
		if err != nil {
			return nil, err
		}

		idf := s.idf(len(withTag))

		for hash := range withTag {
			scores[hash] += fieldWeights[fieldTags] * idf
		}
	}

	for _, f := range textFields {
		if !cl.searchesField(f) || len(cl.tokens) == 0 {
			continue
		}

		if err := s.evaluateTextField(f, cl.tokens, scores); err != nil {
			return nil, err
		}
	}

	return scores, nil
}

// all of the tokens must appear in the field for a match
func (s *scorer) evaluateTextField(f field, tokens []string, scores map[string]float64) error {
	var candidates hashSet
	dfs := map[string]int{}

	for _, token := range tokens {
		if _, seen := dfs[token]; seen {
			continue
		}

		postings, err := queryPartition(filesByTermIndex, termPartition(f, token), s.tx)
		if err != nil {
			return err
		}

		dfs[token] = len(postings)
		candidates = candidates.intersect(postings)

		if len(candidates) == 0 {
			return nil
		}
	}

	for hash := range candidates {
		record, err := s.record(hash)
		if err != nil {
			return err
		}

		fieldTokens := analyzeText(fieldText(record, f))

		for token, df := range dfs {
			tf := termFrequency(token, fieldTokens)

			scores[hash] += fieldWeights[f] * float64(tf) * s.idf(df)
		}
	}

	return nil
}

func (s *scorer) idf(df int) float64 {
	if df == 0 {
		return 0
	}

	return math.Log(1 + float64(s.total)/float64(df))
}

func (s *scorer) record(hash string) (*tagfstypes.FileRecord, error) {
	if cached, found := s.records[hash]; found {
		return cached, nil
	}

	record := &tagfstypes.FileRecord{}
	if err := fileRepository.OpenByPrimaryKey([]byte(hash), record, s.tx); err != nil {
		return nil, err
	}

	s.records[hash] = record

	return record, nil
}

func fieldText(record *tagfstypes.FileRecord, f field) string {
	switch f {
	case fieldName:
		return record.Name
	case fieldDescription:
		return record.Description
	default:
		return ""
	}
}

// nil scores means "nothing intersected yet"
func intersectScores(scores map[string]float64, other map[string]float64) map[string]float64 {
	if scores == nil {
		return other
	}

	result := map[string]float64{}
	for hash, score := range scores {
		if otherScore, found := other[hash]; found {
			result[hash] = score + otherScore
		}
	}

	return result
}

type hashSet map[string]struct{}

// nil set means "nothing intersected yet", so the first intersection yields "other"
func (h hashSet) intersect(other hashSet) hashSet {
	if h == nil {
		return other
	}

	result := hashSet{}
	for hash := range h {
		if _, found := other[hash]; found {
			result[hash] = struct{}{}
		}
	}

	return result
}

func (h hashSet) sorted() []string {
	hashes := make([]string, 0, len(h))
	for hash := range h {
		hashes = append(hashes, hash)
	}

	sort.Strings(hashes)

	return hashes
}
