package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// BERT special token IDs used by the exported model's vocabulary.
const (
	tokenCLS = 101
	tokenSEP = 102
)

// Tokenizer produces BERT-style model inputs (input_ids, attention_mask,
// token_type_ids) for a single text.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// HashTokenizer splits text on non-alphanumeric runes and maps each token to
// a stable ID by hashing. It is not a real WordPiece vocabulary, but catalog
// descriptions and queries hash to the same IDs, which is all the matcher
// needs from the model inputs.
type HashTokenizer struct{}

// Tokenize produces padded token IDs up to maxTokens with [CLS] and [SEP]
// markers. Words beyond maxTokens-2 are dropped.
func (t *HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = tokenCLS
	attentionMask[0] = 1

	pos := 1
	for _, tok := range splitTokens(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = tokenID(tok)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = tokenSEP
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// splitTokens lowercases the text and splits it on any rune that is neither
// a letter nor a digit, so "Fire-Pump (500GPM)" and "fire pump 500gpm"
// tokenize identically.
func splitTokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// tokenID hashes a token into the model's vocabulary range.
func tokenID(tok string) int64 {
	h := fnv.New32a()
	h.Write([]byte(tok))
	return int64(h.Sum32() % 30000)
}
