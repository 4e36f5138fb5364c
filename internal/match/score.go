// Package match implements the fuzzy matching engine that proposes
// lost/found candidate pairs and evaluates citizen alerts against newly
// registered found items.
package match

import (
	"strings"
	"time"
	"unicode"

	"github.com/asegarra/lostfound/internal/store"
)

// Signal caps. The natural maximum sums to 100; the clamp guards against
// future signal additions.
const (
	categoryPoints     = 30
	colorExactPoints   = 20
	colorPartialPoints = 10
	brandPoints        = 15
	modelPoints        = 15
	dateNearPoints     = 10
	dateFarPoints      = 5
	keywordsHighPoints = 10
	keywordsLowPoints  = 5

	maxScore = 100
)

// stopwords is the fixed Spanish stop-word list dropped during description
// tokenization.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"el", "la", "los", "las", "un", "una", "unos", "unas",
		"de", "del", "en", "con", "por", "para", "que", "como",
		"se", "su", "sus", "al", "lo", "le", "les", "me", "te",
		"mi", "tu", "es", "son", "fue", "hay", "muy", "mas",
		"pero", "este", "esta", "estos", "estas", "ese", "esa",
		"esos", "esas", "no", "si", "ya", "entre", "sobre",
	} {
		stopwords[w] = struct{}{}
	}
}

// Breakdown records the points each signal contributed to a score. It is
// persisted alongside the candidate for operator transparency.
type Breakdown struct {
	Category int `json:"category"`
	Color    int `json:"color"`
	Brand    int `json:"brand"`
	Model    int `json:"model"`
	Date     int `json:"date"`
	Keywords int `json:"keywords"`
	Total    int `json:"total"`
}

// Score computes the similarity of a found/lost pair as a weighted sum of
// independent signals, clamped to [0,100]. It is a pure function over value
// snapshots and symmetric in its arguments.
func Score(found, lost store.Item) Breakdown {
	var b Breakdown

	if found.CategoryID != nil && lost.CategoryID != nil && *found.CategoryID == *lost.CategoryID {
		b.Category = categoryPoints
	}

	if found.Color != nil && lost.Color != nil {
		fc, lc := strings.ToLower(strings.TrimSpace(*found.Color)), strings.ToLower(strings.TrimSpace(*lost.Color))
		switch {
		case fc == "" || lc == "":
		case fc == lc:
			b.Color = colorExactPoints
		case strings.Contains(fc, lc) || strings.Contains(lc, fc):
			b.Color = colorPartialPoints
		}
	}

	if equalFoldPtr(found.Brand, lost.Brand) {
		b.Brand = brandPoints
	}
	if equalFoldPtr(found.Model, lost.Model) {
		b.Model = modelPoints
	}

	if found.DiscoveredAt != nil && lost.DiscoveredAt != nil {
		switch d := daysApart(*found.DiscoveredAt, *lost.DiscoveredAt); {
		case d <= 3:
			b.Date = dateNearPoints
		case d <= 7:
			b.Date = dateFarPoints
		}
	}

	switch n := overlap(Tokenize(found.Description), Tokenize(lost.Description)); {
	case n >= 3:
		b.Keywords = keywordsHighPoints
	case n >= 1:
		b.Keywords = keywordsLowPoints
	}

	b.Total = b.Category + b.Color + b.Brand + b.Model + b.Date + b.Keywords
	if b.Total > maxScore {
		b.Total = maxScore
	}
	return b
}

// Tokenize lowercases the text, splits on non letter/digit runes, and drops
// stop words and tokens shorter than three runes. The result is a
// deduplicated set.
func Tokenize(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len([]rune(w)) <= 2 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}

// daysApart returns the absolute difference in UTC calendar days.
func daysApart(a, b time.Time) int {
	ad := a.UTC().Truncate(24 * time.Hour)
	bd := b.UTC().Truncate(24 * time.Hour)
	d := int(ad.Sub(bd).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}

func equalFoldPtr(a, b *string) bool {
	if a == nil || b == nil {
		return false
	}
	if strings.TrimSpace(*a) == "" || strings.TrimSpace(*b) == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(*a), strings.TrimSpace(*b))
}
