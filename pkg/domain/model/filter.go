package model

import (
	"strings"
	"time"
)

// MemoryFilter narrows a similarity search. All present conditions must
// hold. String conditions are LIKE patterns: '%' matches any run of
// characters, '_' matches exactly one, and '\' escapes the next character.
// A nil field places no constraint on the record.
type MemoryFilter struct {
	DocumentID *string
	SourceID   *string
	Source     *string
	Author     *string
	StartDate  *time.Time
	EndDate    *time.Time
}

// MemorySearch is a nearest-neighbor request against the memory store
type MemorySearch struct {
	Embedding []float32
	Limit     int
	Filter    MemoryFilter
}

// EffectiveLimit returns Limit, or DefaultTopK when Limit is not positive
func (s *MemorySearch) EffectiveLimit() int {
	if s.Limit <= 0 {
		return DefaultTopK
	}
	return s.Limit
}

// PatternField pairs a filter pattern with the record attribute it targets.
type PatternField struct {
	Name    string
	Pattern *string
	Value   func(m *Memory) string
}

// PatternFields returns the string conditions of the filter in a fixed
// order. Backends use Name to map to their own column or field names.
func (f *MemoryFilter) PatternFields() []PatternField {
	return []PatternField{
		{Name: "document_id", Pattern: f.DocumentID, Value: func(m *Memory) string { return m.DocumentID }},
		{Name: "source_id", Pattern: f.SourceID, Value: func(m *Memory) string { return m.SourceID }},
		{Name: "source", Pattern: f.Source, Value: func(m *Memory) string { return m.Source.String() }},
		{Name: "author", Pattern: f.Author, Value: func(m *Memory) string { return m.Author }},
	}
}

// IsActive reports whether the pattern actually constrains results.
// Absent and match-all patterns admit every record, including those
// without the attribute.
func (p PatternField) IsActive() bool {
	return p.Pattern != nil && !IsMatchAllPattern(*p.Pattern)
}

// Match reports whether m satisfies every condition of the filter
func (f *MemoryFilter) Match(m *Memory) bool {
	for _, p := range f.PatternFields() {
		if !p.IsActive() {
			continue
		}
		v := p.Value(m)
		if v == "" {
			return false
		}
		if !MatchPattern(*p.Pattern, v) {
			return false
		}
	}

	if f.StartDate != nil && m.CreatedAt.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && m.CreatedAt.After(*f.EndDate) {
		return false
	}

	return true
}

// IsMatchAllPattern reports whether pattern consists solely of '%'
func IsMatchAllPattern(pattern string) bool {
	return pattern != "" && strings.Trim(pattern, "%") == ""
}

// LiteralPattern returns the unescaped text of a pattern that contains no
// wildcards. ok is false when the pattern has an unescaped '%' or '_'.
func LiteralPattern(pattern string) (literal string, ok bool) {
	var b strings.Builder
	for _, tok := range parsePattern(pattern) {
		if tok.kind != tokenLiteral {
			return "", false
		}
		b.WriteRune(tok.r)
	}
	return b.String(), true
}

// MatchPattern evaluates a LIKE pattern against value. Matching is case
// sensitive and operates on runes.
func MatchPattern(pattern, value string) bool {
	toks := parsePattern(pattern)
	s := []rune(value)

	ti, si := 0, 0
	starT, starS := -1, 0
	for si < len(s) {
		if ti < len(toks) {
			switch tok := toks[ti]; {
			case tok.kind == tokenAnyOne, tok.kind == tokenLiteral && tok.r == s[si]:
				ti++
				si++
				continue
			case tok.kind == tokenAnyRun:
				starT, starS = ti, si
				ti++
				continue
			}
		}
		if starT < 0 {
			return false
		}
		// backtrack: let the last '%' absorb one more rune
		ti = starT + 1
		starS++
		si = starS
	}

	for ti < len(toks) && toks[ti].kind == tokenAnyRun {
		ti++
	}
	return ti == len(toks)
}

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenAnyOne
	tokenAnyRun
)

type patternToken struct {
	kind tokenKind
	r    rune
}

func parsePattern(pattern string) []patternToken {
	runes := []rune(pattern)
	toks := make([]patternToken, 0, len(runes))
	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; r {
		case '\\':
			// trailing escape is kept as a literal backslash
			if i+1 < len(runes) {
				i++
				toks = append(toks, patternToken{kind: tokenLiteral, r: runes[i]})
			} else {
				toks = append(toks, patternToken{kind: tokenLiteral, r: r})
			}
		case '%':
			toks = append(toks, patternToken{kind: tokenAnyRun})
		case '_':
			toks = append(toks, patternToken{kind: tokenAnyOne})
		default:
			toks = append(toks, patternToken{kind: tokenLiteral, r: r})
		}
	}
	return toks
}
