package tagindex

import (
	"strings"
	"unicode"
)

type field string

const (
	fieldTags        field = "tags"
	fieldName        field = "name"
	fieldDescription field = "description"
)

// tags count twice as much as the text fields in relevance
var fieldWeights = map[field]float64{
	fieldTags:        2.0,
	fieldName:        1.0,
	fieldDescription: 1.0,
}

var textFields = []field{fieldName, fieldDescription}

func parseField(name string) (field, bool) {
	switch field(strings.ToLower(name)) {
	case fieldTags:
		return fieldTags, true
	case fieldName:
		return fieldName, true
	case fieldDescription:
		return fieldDescription, true
	default:
		return "", false
	}
}

// longer tokens are dropped. they'd become index bucket keys, and nobody searches for them.
const maxTokenLen = 255

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "can": true, "for": true, "from": true, "have": true, "if": true,
	"in": true, "is": true, "it": true, "may": true, "not": true, "of": true, "on": true,
	"or": true, "tbd": true, "that": true, "the": true, "this": true, "to": true, "us": true,
	"we": true, "when": true, "will": true, "with": true, "yet": true, "you": true, "your": true,
}

// lowercases, splits at anything that is not a letter or a digit and drops stop words,
// single-character tokens and overlong tokens. duplicates are kept (they're term frequency).
func analyzeText(text string) []string {
	tokens := []string{}

	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(word)) < 2 || len(word) > maxTokenLen || stopWords[word] {
			continue
		}

		tokens = append(tokens, word)
	}

	return tokens
}

func termFrequency(token string, tokens []string) int {
	tf := 0
	for _, candidate := range tokens {
		if candidate == token {
			tf++
		}
	}

	return tf
}

// "name:sunset"
func termPartition(f field, token string) []byte {
	return []byte(string(f) + ":" + token)
}
