// Package matcher resolves free-text service names to configured services.
package matcher

import (
	"sort"
	"strings"
	"unicode"

	"chatbook/internal/models"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	AcceptThreshold = 0.82
	AmbiguityMargin = 0.05
	MaxSuggestions  = 3

	// scoreEpsilon keeps a gap of exactly AmbiguityMargin ambiguous despite
	// float rounding (1.0-0.95 is slightly above 0.05).
	scoreEpsilon = 1e-9
)

const (
	ReasonMissing   = "missing"
	ReasonAmbiguous = "ambiguous"
	ReasonNotFound  = "not_found"
)

// Result is the outcome of Resolve. Service is nil unless the match was
// accepted; Suggestions is filled either way (except for empty input).
type Result struct {
	Service     *models.ServiceDefinition
	Score       float64
	Suggestions []string
	Reason      string
}

type scored struct {
	idx   int
	score float64
}

// Resolve matches input against every service name and alias.
func Resolve(input string, services []models.ServiceDefinition) Result {
	needle := Normalize(input)
	if needle == "" {
		return Result{Reason: ReasonMissing}
	}

	ranked := make([]scored, 0, len(services))
	for i := range services {
		ranked = append(ranked, scored{idx: i, score: serviceScore(needle, &services[i])})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	res := Result{}
	for i := 0; i < len(ranked) && i < MaxSuggestions; i++ {
		res.Suggestions = append(res.Suggestions, services[ranked[i].idx].Name)
	}

	if len(ranked) == 0 || ranked[0].score < AcceptThreshold {
		res.Reason = ReasonNotFound
		if len(ranked) > 0 {
			res.Score = ranked[0].score
		}
		return res
	}

	res.Score = ranked[0].score
	if len(ranked) > 1 && ranked[0].score-ranked[1].score <= AmbiguityMargin+scoreEpsilon {
		res.Reason = ReasonAmbiguous
		return res
	}

	res.Service = &services[ranked[0].idx]
	return res
}

func serviceScore(needle string, svc *models.ServiceDefinition) float64 {
	best := 0.0
	candidates := append([]string{svc.Name, svc.Key}, svc.Aliases...)
	for _, c := range candidates {
		n := Normalize(c)
		if n == "" {
			continue
		}
		if n == needle {
			return 1.0
		}
		if s := Dice(needle, n); s > best {
			best = s
		}
	}
	return best
}

var fold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritics and collapses every run of
// non-alphanumeric characters to one space.
func Normalize(s string) string {
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	space := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// Dice is the Sørensen–Dice coefficient over character bigrams, ignoring
// spaces. Bigrams are counted as a multiset.
func Dice(a, b string) float64 {
	a = strings.ReplaceAll(a, " ", "")
	b = strings.ReplaceAll(b, " ", "")
	if a == b {
		return 1.0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	counts := make(map[[2]rune]int, len(ra))
	for i := 0; i < len(ra)-1; i++ {
		counts[[2]rune{ra[i], ra[i+1]}]++
	}

	shared := 0
	for i := 0; i < len(rb)-1; i++ {
		bg := [2]rune{rb[i], rb[i+1]}
		if counts[bg] > 0 {
			counts[bg]--
			shared++
		}
	}

	return 2 * float64(shared) / float64(len(ra)-1+len(rb)-1)
}
