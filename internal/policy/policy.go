// Package policy loads the bank policy knowledge base and finds the
// policies relevant to a customer message. Matching is keyword-driven with
// a secondary content heuristic, no LLM calls involved.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

//go:embed kb.md
var embeddedKB string

// DefaultMaxResults bounds how many policies a search returns.
const DefaultMaxResults = 3

// Policy is one rule from the knowledge base.
type Policy struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

// FormatCitation renders the policy for inclusion in an agent response.
func (p *Policy) FormatCitation() string {
	return fmt.Sprintf("Per %s: %s", p.ID, p.Content)
}

// ShortCitation renders a compact reference.
func (p *Policy) ShortCitation() string {
	return fmt.Sprintf("[%s: %s]", p.ID, p.Title)
}

// keywordMappings routes common customer phrasing to policy IDs.
var keywordMappings = map[string][]string{
	// Card-related
	"card replacement":    {"POLICY-001"},
	"new card":            {"POLICY-001"},
	"replace card":        {"POLICY-001"},
	"lost card":           {"POLICY-002"},
	"stolen card":         {"POLICY-002"},
	"card stolen":         {"POLICY-002"},
	"dispute":             {"POLICY-003"},
	"disputed charge":     {"POLICY-003"},
	"unauthorized charge": {"POLICY-003"},
	"chargeback":          {"POLICY-003"},
	"atm limit":           {"POLICY-004"},
	"withdrawal limit":    {"POLICY-004"},
	"transaction limit":   {"POLICY-004"},
	"spending limit":      {"POLICY-004"},
	// Account-related
	"maintenance fee":    {"POLICY-005", "POLICY-006"},
	"monthly fee":        {"POLICY-005", "POLICY-006"},
	"waive fee":          {"POLICY-006"},
	"fee waiver":         {"POLICY-006"},
	"overdraft":          {"POLICY-007"},
	"nsf":                {"POLICY-007"},
	"insufficient funds": {"POLICY-007"},
	"close account":      {"POLICY-008"},
	"account closure":    {"POLICY-008"},
	// Transfer-related
	"wire transfer":          {"POLICY-009"},
	"wire":                   {"POLICY-009"},
	"international transfer": {"POLICY-009"},
	"ach":                    {"POLICY-010"},
	"transfer time":          {"POLICY-010"},
	"bill pay":               {"POLICY-011"},
	"late payment":           {"POLICY-011"},
	// Interest-related
	"interest rate":          {"POLICY-012"},
	"savings rate":           {"POLICY-012"},
	"cd":                     {"POLICY-013"},
	"certificate of deposit": {"POLICY-013"},
	"early withdrawal":       {"POLICY-013"},
	// Security-related
	"fraud":          {"POLICY-014", "POLICY-002"},
	"fraudulent":     {"POLICY-014"},
	"unauthorized":   {"POLICY-014", "POLICY-002", "POLICY-003"},
	"locked out":     {"POLICY-015"},
	"account locked": {"POLICY-015"},
	"login":          {"POLICY-015"},
	"two factor":     {"POLICY-016"},
	"2fa":            {"POLICY-016"},
	"verification":   {"POLICY-016"},
	// Service-related
	"complaint":         {"POLICY-017"},
	"response time":     {"POLICY-017"},
	"branch hours":      {"POLICY-018"},
	"hours":             {"POLICY-018"},
	"statement":         {"POLICY-019"},
	"bank statement":    {"POLICY-019"},
	"power of attorney": {"POLICY-020"},
	"poa":               {"POLICY-020"},
}

// Store holds the parsed knowledge base.
type Store struct {
	policies map[string]*Policy
}

// NewStore parses the embedded knowledge base.
func NewStore() *Store {
	return &Store{policies: parseKB(embeddedKB)}
}

// NewStoreFromFile parses an external knowledge base file, for deployments
// that maintain their own policy document.
func NewStoreFromFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy file: %w", err)
	}
	return &Store{policies: parseKB(string(data))}, nil
}

var policyHeading = regexp.MustCompile(`^### (POLICY-\d+): (.+)$`)

func parseKB(content string) map[string]*Policy {
	policies := make(map[string]*Policy)
	category := "General"

	var current *Policy
	var body []string
	flush := func() {
		if current != nil {
			current.Content = strings.TrimSpace(strings.Join(body, "\n"))
			policies[current.ID] = current
			current = nil
		}
		body = nil
	}

	for _, line := range strings.Split(content, "\n") {
		if m := policyHeading.FindStringSubmatch(line); m != nil {
			flush()
			current = &Policy{ID: m[1], Title: strings.TrimSpace(m[2]), Category: category}
			continue
		}
		if strings.HasPrefix(line, "## ") && !strings.HasPrefix(line, "### ") {
			flush()
			category = strings.TrimSpace(strings.TrimPrefix(line, "## "))
			continue
		}
		if strings.HasPrefix(line, "---") {
			flush()
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()
	return policies
}

// Get returns a policy by ID, or nil when unknown.
func (s *Store) Get(id string) *Policy {
	return s.policies[id]
}

// All returns every policy sorted by ID.
func (s *Store) All() []*Policy {
	out := make([]*Policy, 0, len(s.policies))
	for _, p := range s.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Search finds policies relevant to a customer message. Keyword matches
// come first; a content heuristic then picks up policies whose title terms
// overlap the message. Results are sorted by ID and capped at maxResults
// (DefaultMaxResults when maxResults <= 0).
func (s *Store) Search(message string, maxResults int) []*Policy {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	lower := strings.ToLower(message)

	found := make(map[string]bool)
	for keyword, ids := range keywordMappings {
		if strings.Contains(lower, keyword) {
			for _, id := range ids {
				found[id] = true
			}
		}
	}

	words := strings.Fields(lower)
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[w] = true
	}

	for id, p := range s.policies {
		if found[id] {
			continue
		}
		content := strings.ToLower(p.Content)
		overlap := false
		for w := range wordSet {
			if len(w) > 4 && strings.Contains(content, w) {
				overlap = true
				break
			}
		}
		if !overlap {
			continue
		}
		for _, tw := range strings.Fields(strings.ToLower(p.Title)) {
			if wordSet[tw] {
				found[id] = true
				break
			}
		}
	}

	ids := make([]string, 0, len(found))
	for id := range found {
		if _, ok := s.policies[id]; ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > maxResults {
		ids = ids[:maxResults]
	}

	out := make([]*Policy, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.policies[id])
	}
	return out
}

// FormatForPrompt renders policies for injection into an LLM prompt.
// Returns the empty string when there is nothing to cite.
func FormatForPrompt(policies []*Policy) string {
	if len(policies) == 0 {
		return ""
	}
	lines := []string{"[Relevant Bank Policies - cite these in your response:]"}
	for _, p := range policies {
		lines = append(lines, fmt.Sprintf("\n%s (%s):", p.ID, p.Title), p.Content)
	}
	return strings.Join(lines, "\n")
}
