package tagindex

import (
	"strings"
)

// one searchable unit of a query. a clause matches a record if the (lowercased) raw word
// is one of its tags or if all the analyzed tokens appear in one of the text fields.
type clause struct {
	fields []field // fields the clause is restricted to
	raw    string  // lowercased word, compared against tags
	tokens []string
	negate bool
}

func (c *clause) searchesField(f field) bool {
	for _, candidate := range c.fields {
		if candidate == f {
			return true
		}
	}

	return false
}

// clauses inside a group are OR'd, groups are AND'd
type parsedQuery struct {
	groups   [][]clause
	excluded []clause
}

// exclusions alone match nothing
func (p *parsedQuery) empty() bool {
	return len(p.groups) == 0
}

// supports:
//
//	sunset beach         => both terms
//	sunset OR beach      => either term
//	-beach / NOT beach   => exclude
//	tags:beach           => restrict to field
func parseQuery(text string) *parsedQuery {
	query := &parsedQuery{
		groups:   [][]clause{},
		excluded: []clause{},
	}

	words := strings.Fields(text)

	orPending := false
	negatePending := false

	for _, word := range words {
		switch word {
		case "AND":
			continue
		case "OR":
			orPending = len(query.groups) > 0
			continue
		case "NOT":
			negatePending = true
			continue
		}

		negate := negatePending
		negatePending = false

		if strings.HasPrefix(word, "-") && len(word) > 1 {
			negate = true
			word = word[1:]
		}

		cl, ok := parseClause(word)
		if !ok {
			orPending = false
			continue // analyzed to nothing (stop word etc.)
		}

		if negate {
			cl.negate = true
			query.excluded = append(query.excluded, *cl)
			orPending = false
			continue
		}

		if orPending {
			last := len(query.groups) - 1
			query.groups[last] = append(query.groups[last], *cl)
		} else {
			query.groups = append(query.groups, []clause{*cl})
		}

		orPending = false
	}

	return query
}

func parseClause(word string) (*clause, bool) {
	fields := []field{fieldTags, fieldName, fieldDescription}

	if colon := strings.Index(word, ":"); colon > 0 {
		if f, known := parseField(word[:colon]); known {
			fields = []field{f}
			word = word[colon+1:]
		}
	}

	cl := &clause{
		fields: fields,
		raw:    strings.ToLower(word),
		tokens: analyzeText(word),
	}

	if cl.raw == "" {
		return nil, false
	}

	// nothing left for the text fields ("the", "c#", "x"), but the word can still be a tag
	if len(cl.tokens) == 0 {
		if !cl.searchesField(fieldTags) {
			return nil, false
		}

		cl.fields = []field{fieldTags}
	}

	return cl, true
}
