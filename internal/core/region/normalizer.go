package region

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ev119/erlocator/internal/core"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Candidate strategies, applied in the order listed by Rules.CandidateOrder.
const (
	StrategyFull        = "full"
	StrategyFirstToken  = "first_token"
	StrategyStripSuffix = "strip_suffix"
	StrategyLastToken   = "last_token"
)

// Rules is the locale data driving normalization and candidate generation.
type Rules struct {
	Region1Aliases    map[string]string `yaml:"region1_aliases"`
	CityMarkers       []string          `yaml:"city_markers"`
	DistrictMarkers   []string          `yaml:"district_markers"`
	StripChars        string            `yaml:"strip_chars"`
	PrimarySuffixes   []string          `yaml:"primary_suffixes"`
	SecondarySuffixes []string          `yaml:"secondary_suffixes"`
	CandidateOrder    []string          `yaml:"candidate_order"`
}

// DefaultRules returns the embedded rule set.
func DefaultRules() (Rules, error) {
	return ParseRules(defaultRulesYAML)
}

// ParseRules decodes a YAML rule set.
func ParseRules(data []byte) (Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("parse region rules: %w", err)
	}
	if len(rules.CandidateOrder) == 0 {
		rules.CandidateOrder = []string{StrategyFull, StrategyFirstToken, StrategyStripSuffix, StrategyLastToken}
	}
	for _, strategy := range rules.CandidateOrder {
		switch strategy {
		case StrategyFull, StrategyFirstToken, StrategyStripSuffix, StrategyLastToken:
		default:
			return Rules{}, fmt.Errorf("parse region rules: unknown candidate strategy %q", strategy)
		}
	}
	return rules, nil
}

// LoadRules reads rules from path, or returns the embedded defaults when path is empty.
func LoadRules(path string) (Rules, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied rules file
	if err != nil {
		return Rules{}, fmt.Errorf("read region rules: %w", err)
	}
	return ParseRules(data)
}

// Normalizer maps free-text administrative names onto the realtime API's
// naming and generates fallback spellings. It is safe for concurrent use.
type Normalizer struct {
	rules Rules
}

// New creates a normalizer over the given rules.
func New(rules Rules) *Normalizer {
	return &Normalizer{rules: rules}
}

// NewDefault creates a normalizer over the embedded rules.
func NewDefault() (*Normalizer, error) {
	rules, err := DefaultRules()
	if err != nil {
		return nil, err
	}
	return New(rules), nil
}

// Canonicalize1 maps a province/metropolitan name to its short form.
// Unmapped names pass through trimmed; blank input reports false.
func (n *Normalizer) Canonicalize1(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if alias, ok := n.rules.Region1Aliases[s]; ok {
		return alias, true
	}
	return s, true
}

// Canonicalize2 strips punctuation and collapses whitespace.
func (n *Normalizer) Canonicalize2(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if n.rules.StripChars != "" {
		s = strings.Map(func(r rune) rune {
			if strings.ContainsRune(n.rules.StripChars, r) {
				return -1
			}
			return r
		}, s)
	}
	s = collapseSpaces(s)
	if s == "" {
		return "", false
	}
	return s, true
}

// ExtractPair derives the canonical region pair from a street address.
// "<province> <city-or-county> <district> ..." joins city and district into region2.
func (n *Normalizer) ExtractPair(address string) (core.RegionPair, bool) {
	parts := strings.Fields(address)
	if len(parts) < 2 {
		return core.RegionPair{}, false
	}

	region2 := parts[1]
	if len(parts) >= 3 && hasAnySuffix(parts[1], n.rules.CityMarkers) && hasAnySuffix(parts[2], n.rules.DistrictMarkers) {
		region2 = parts[1] + " " + parts[2]
	}

	r1, ok := n.Canonicalize1(parts[0])
	if !ok {
		return core.RegionPair{}, false
	}
	r2, ok := n.Canonicalize2(region2)
	if !ok {
		return core.RegionPair{}, false
	}
	return core.RegionPair{Region1: r1, Region2: r2}, true
}

// Candidates returns region2 spellings to try, most specific first.
// The result is deterministic and free of duplicates.
func (n *Normalizer) Candidates(region2 string) []string {
	s := collapseSpaces(region2)
	if s == "" {
		return nil
	}

	set := newOrderedSet()
	tokens := strings.Fields(s)
	multi := len(tokens) > 1

	for _, strategy := range n.rules.CandidateOrder {
		switch strategy {
		case StrategyFull:
			set.add(s)
		case StrategyFirstToken:
			if multi {
				set.add(tokens[0])
			}
		case StrategyStripSuffix:
			if stripped := stripSuffix(s, n.rules.PrimarySuffixes); stripped != s {
				set.add(stripped)
			}
		case StrategyLastToken:
			if multi {
				set.add(tokens[len(tokens)-1])
			}
		}
	}

	for _, candidate := range set.values() {
		set.add(stripSuffix(candidate, n.rules.SecondarySuffixes))
	}

	return set.values()
}

// stripSuffix removes the longest matching suffix once and trims the result.
func stripSuffix(s string, suffixes []string) string {
	longest := ""
	for _, suffix := range suffixes {
		if len(suffix) > len(longest) && strings.HasSuffix(s, suffix) {
			longest = suffix
		}
	}
	if longest == "" {
		return s
	}
	return strings.TrimSpace(strings.TrimSuffix(s, longest))
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if suffix != "" && strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]struct{})}
}

func (o *orderedSet) add(value string) {
	if value == "" {
		return
	}
	if _, ok := o.seen[value]; ok {
		return
	}
	o.seen[value] = struct{}{}
	o.items = append(o.items, value)
}

func (o *orderedSet) values() []string {
	out := make([]string, len(o.items))
	copy(out, o.items)
	return out
}
