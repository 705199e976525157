// internal/segment/resolver.go
package segment

import (
	"encoding/json"
	"strings"

	"github.com/hearthside/crm-backend/internal/apperrors"
	"github.com/hearthside/crm-backend/internal/model"
	"github.com/hearthside/crm-backend/internal/repository"
)

// Resolver expands a segment into concrete delivery recipients. Explicit
// membership is the source of truth; the filter DSL only contributes
// contacts that were never manually added or removed.
type Resolver struct {
	SegmentRepo repository.SegmentRepositoryInterface
	ContactRepo repository.ContactRepositoryInterface

	// PublicBaseURL is the externally reachable host used to build each
	// recipient's unsubscribe link, e.g. "https://app.hearthside.org".
	PublicBaseURL string
}

// Resolve returns the recipient set for a segment, each carrying the
// delivery variable map. Unknown segment yields NotFound; a segment from
// another org yields ErrForbidden.
func (r *Resolver) Resolve(orgID, segmentID string) ([]model.Recipient, error) {
	seg, err := r.SegmentRepo.GetByID(segmentID)
	if err != nil {
		return nil, err
	}
	if seg.OrgID != orgID {
		return nil, apperrors.ErrForbidden
	}

	contacts, err := r.ContactRepo.GetByIDs(seg.Members)
	if err != nil {
		return nil, err
	}

	recipients := make([]model.Recipient, 0, len(contacts))
	seen := make(map[string]bool, len(contacts))
	for _, c := range contacts {
		recipients = append(recipients, r.recipient(c))
		seen[c.ID] = true
	}

	// DSL pass: rule matches add contacts not already decided by an
	// explicit add or remove. Manually removed contacts stay out no
	// matter what the rules say.
	rules := parseRules(seg.DSLJSON)
	if len(rules) > 0 {
		excluded := make(map[string]bool, len(seg.Excluded))
		for _, id := range seg.Excluded {
			excluded[id] = true
		}
		all, err := r.ContactRepo.ListByOrg(orgID)
		if err != nil {
			return nil, err
		}
		for _, c := range all {
			if seen[c.ID] || excluded[c.ID] {
				continue
			}
			if matchesAll(c, rules) {
				recipients = append(recipients, r.recipient(c))
				seen[c.ID] = true
			}
		}
	}

	return recipients, nil
}

func (r *Resolver) recipient(c model.Contact) model.Recipient {
	base := strings.TrimRight(r.PublicBaseURL, "/")
	return model.Recipient{
		ContactID: c.ID,
		Email:     c.Email,
		Variables: map[string]string{
			"first_name":      c.FirstName,
			"last_name":       c.LastName,
			"email":           c.Email,
			"unsubscribe_url": base + "/unsubscribe/" + c.ID,
		},
	}
}

func parseRules(dslJSON json.RawMessage) []model.SegmentRule {
	if len(dslJSON) == 0 {
		return nil
	}
	var rules []model.SegmentRule
	if err := json.Unmarshal(dslJSON, &rules); err != nil {
		// advisory data; a malformed DSL never blocks resolution
		return nil
	}
	return rules
}

func matchesAll(c model.Contact, rules []model.SegmentRule) bool {
	for _, rule := range rules {
		if !matches(c, rule) {
			return false
		}
	}
	return true
}

func matches(c model.Contact, rule model.SegmentRule) bool {
	var field string
	switch rule.Field {
	case "email":
		field = c.Email
	case "first_name":
		field = c.FirstName
	case "last_name":
		field = c.LastName
	default:
		return false
	}
	switch rule.Op {
	case "eq":
		return field == rule.Value
	case "neq":
		return field != rule.Value
	case "contains":
		return strings.Contains(strings.ToLower(field), strings.ToLower(rule.Value))
	}
	return false
}
