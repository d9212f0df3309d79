package service

import (
	"strconv"
	"strings"

	"github.com/cadencehq/cadence/internal/domain"
)

// ScoreBreakdown itemizes how a contact's qualification score was reached.
// Returned alongside the total for auditability.
type ScoreBreakdown struct {
	Role       int `json:"role"`
	OrgSize    int `json:"org_size"`
	OrgType    int `json:"org_type"`
	Industry   int `json:"industry"`
	Signals    int `json:"signals"`
	PainPoints int `json:"pain_points"`
	Website    int `json:"website"`
	Total      int `json:"total"`
}

// Scorer computes a deterministic qualification score in [0,100] from a
// contact's structured attributes. It is a pure function of the contact:
// no clock, no I/O, no randomness.
type Scorer struct{}

func NewScorer() *Scorer {
	return &Scorer{}
}

var decisionMakerRoles = []string{"founder", "ceo", "cto", "coo", "owner", "vp", "vice president", "head of", "director", "partner"}

var influencerRoles = []string{"manager", "lead", "principal", "architect"}

var recognizedSignals = map[string]bool{
	"funding":           true,
	"hiring":            true,
	"expansion":         true,
	"new_product":       true,
	"leadership_change": true,
}

// Score computes the contact's qualification score with its breakdown.
func (s *Scorer) Score(c *domain.Contact) (int, ScoreBreakdown) {
	var b ScoreBreakdown

	b.Role = scoreRole(c.Role)
	b.OrgSize = scoreOrgSize(c.Attributes.Get(domain.AttrOrgSize))
	b.OrgType = scoreOrgType(c.Attributes.Get(domain.AttrOrgType))

	if c.Attributes.Get(domain.AttrIndustry) != "" {
		b.Industry = 10
	}

	for _, sig := range c.Attributes.List(domain.AttrSignals) {
		if recognizedSignals[strings.ToLower(strings.ReplaceAll(sig, " ", "_"))] {
			b.Signals += 8
		}
	}
	if b.Signals > 24 {
		b.Signals = 24
	}

	b.PainPoints = 7 * len(c.Attributes.List(domain.AttrPainPoints))
	if b.PainPoints > 21 {
		b.PainPoints = 21
	}

	if c.Attributes.Get(domain.AttrWebsite) != "" {
		b.Website = 5
	}

	total := b.Role + b.OrgSize + b.OrgType + b.Industry + b.Signals + b.PainPoints + b.Website
	if total > 100 {
		total = 100
	}
	b.Total = total

	return total, b
}

func scoreRole(role string) int {
	r := strings.ToLower(role)
	if r == "" {
		return 0
	}
	for _, kw := range decisionMakerRoles {
		if strings.Contains(r, kw) {
			return 25
		}
	}
	for _, kw := range influencerRoles {
		if strings.Contains(r, kw) {
			return 15
		}
	}
	return 5
}

func scoreOrgSize(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0
	}
	switch {
	case n <= 10:
		return 8
	case n <= 200:
		return 15
	case n <= 1000:
		return 10
	default:
		return 5
	}
}

func scoreOrgType(raw string) int {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "startup", "scaleup":
		return 10
	case "smb", "agency":
		return 8
	case "enterprise":
		return 6
	case "nonprofit", "government":
		return 3
	default:
		return 0
	}
}
