package grading

import (
	"errors"
	"math"
	"sort"
	"strings"
)

// maxFeatures caps the TF-IDF vocabulary size.
const maxFeatures = 1000

var errEmptyVocabulary = errors.New("empty vocabulary after stop-word removal")

// Similarity returns the cosine similarity in [0,1] between TF-IDF vectors of
// a and b, built over just these two documents with English stop words
// removed, unigrams and bigrams, and the vocabulary capped at 1000 terms.
// When no vocabulary survives it falls back to word-set Jaccard overlap.
func Similarity(a, b string) float64 {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return 0
	}
	sim, err := tfidfCosine(a, b)
	if err != nil {
		return Jaccard(a, b)
	}
	return sim
}

// Jaccard returns |A∩B| / |A∪B| over lower-cased whitespace-separated words,
// or 0 when either set is empty.
func Jaccard(a, b string) float64 {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

// analyze produces the unigram and bigram term counts of a document.
func analyze(doc string) map[string]int {
	tokens := tokenize(doc)
	kept := tokens[:0]
	for _, t := range tokens {
		if _, stop := englishStopWords[t]; !stop {
			kept = append(kept, t)
		}
	}
	counts := make(map[string]int, 2*len(kept))
	for i, t := range kept {
		counts[t]++
		if i+1 < len(kept) {
			counts[t+" "+kept[i+1]]++
		}
	}
	return counts
}

// vocabulary returns the terms of both documents, limited to the most
// frequent maxFeatures terms. Ties break alphabetically.
func vocabulary(docs []map[string]int) []string {
	freq := map[string]int{}
	for _, d := range docs {
		for term, n := range d {
			freq[term] += n
		}
	}
	terms := make([]string, 0, len(freq))
	for term := range freq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxFeatures {
		terms = terms[:maxFeatures]
	}
	return terms
}

func tfidfCosine(a, b string) (float64, error) {
	docs := []map[string]int{analyze(a), analyze(b)}
	vocab := vocabulary(docs)
	if len(vocab) == 0 {
		return 0, errEmptyVocabulary
	}

	n := float64(len(docs))
	vecs := make([][]float64, len(docs))
	for i := range vecs {
		vecs[i] = make([]float64, len(vocab))
	}
	for j, term := range vocab {
		df := 0
		for _, d := range docs {
			if d[term] > 0 {
				df++
			}
		}
		// smoothed idf
		idf := math.Log((1+n)/(1+float64(df))) + 1
		for i, d := range docs {
			vecs[i][j] = float64(d[term]) * idf
		}
	}

	var dot, na, nb float64
	for j := range vocab {
		dot += vecs[0][j] * vecs[1][j]
		na += vecs[0][j] * vecs[0][j]
		nb += vecs[1][j] * vecs[1][j]
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, sim)), nil
}
