package glossary

import (
	"sort"
	"strings"
	"unicode"

	"github.com/leapstack-labs/leapmeta/pkg/core"
)

// Match ranks.
const (
	RankSubstring = 1
	RankPrefix    = 2
	RankSynonym   = 3
	RankExact     = 4
)

// Match is a search hit.
type Match struct {
	Term Term `json:"term"`
	Rank int  `json:"rank"`
}

// Search finds terms matching q, best first. Exact name beats synonym, which
// beats name prefix, which beats a substring of the name or definition.
func (g *Glossary) Search(q string) []Match {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return nil
	}

	var out []Match
	for _, t := range g.List() {
		if rank := rankTerm(t, q); rank > 0 {
			out = append(out, Match{Term: t, Rank: rank})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rank > out[j].Rank
	})
	return out
}

func rankTerm(t Term, q string) int {
	name := strings.ToLower(t.Name)
	switch {
	case name == q:
		return RankExact
	case containsFold(t.Synonyms, q):
		return RankSynonym
	case strings.HasPrefix(name, q):
		return RankPrefix
	case strings.Contains(name, q), strings.Contains(strings.ToLower(t.Definition), q):
		return RankSubstring
	}
	return 0
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

// Suggestion proposes linking a term to a column.
type Suggestion struct {
	TermID   string  `json:"term_id"`
	TermName string  `json:"term_name"`
	Target   string  `json:"target"`
	Score    float64 `json:"score"`
	Reason   string  `json:"reason"`
}

// Suggest proposes term-to-column links by comparing the tokens of column
// names with term names and synonyms. Pairs already linked, either on the
// term or on the column, are skipped. Results are sorted by target, then
// score (highest first), then term name.
func (g *Glossary) Suggest(assets []*core.Asset) []Suggestion {
	terms := g.List()
	var out []Suggestion

	for _, a := range assets {
		for _, col := range a.Technical.Columns {
			target := core.ColumnRef{Asset: a.ID, Column: col.Name}.String()
			colTokens := tokens(col.Name)
			if len(colTokens) == 0 {
				continue
			}
			for _, t := range terms {
				if containsFold(t.Links, target) || containsFold(col.GlossaryTerms, t.Name) {
					continue
				}
				score, reason := matchScore(t, colTokens)
				if score == 0 {
					continue
				}
				out = append(out, Suggestion{TermID: t.ID, TermName: t.Name, Target: target, Score: score, Reason: reason})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Target != out[j].Target {
			return out[i].Target < out[j].Target
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].TermName < out[j].TermName
	})
	return out
}

// matchScore compares a column's tokens with a term's name and synonyms.
// An identical token sequence scores 1.0; a term whose tokens all occur in
// the column name scores 0.7.
func matchScore(t Term, colTokens []string) (float64, string) {
	best, reason := 0.0, ""
	candidates := append([]string{t.Name}, t.Synonyms...)
	for i, cand := range candidates {
		kind := "name"
		if i > 0 {
			kind = "synonym " + cand
		}
		termTokens := tokens(cand)
		if len(termTokens) == 0 {
			continue
		}
		switch {
		case strings.Join(termTokens, " ") == strings.Join(colTokens, " "):
			if best < 1 {
				best, reason = 1, "column matches term "+kind
			}
		case subset(termTokens, colTokens):
			if best < 0.7 {
				best, reason = 0.7, "column contains term "+kind
			}
		}
	}
	return best, reason
}

// tokens splits an identifier or phrase into lower-case words.
// "customerEmail", "customer_email" and "Customer Email" all give
// [customer email].
func tokens(s string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]) {
				flush()
			}
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()
	return out
}

func subset(small, big []string) bool {
	set := make(map[string]bool, len(big))
	for _, s := range big {
		set[s] = true
	}
	for _, s := range small {
		if !set[s] {
			return false
		}
	}
	return true
}
