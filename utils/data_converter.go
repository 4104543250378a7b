package utils

import (
	"strings"

	"enrollment-crm/logger"
	"enrollment-crm/models"
)

// Duplicate is a lead dropped by DeduplicateLeads: Index repeats the
// earlier lead at Of.
type Duplicate struct {
	Index int
	Of    int
}

// DeduplicateLeads removes duplicate leads within the same list based on
// the email+phone combination. Comparison ignores case and phone
// punctuation. Leads with neither are always kept.
func DeduplicateLeads(leads []models.Lead) ([]models.Lead, []Duplicate) {
	seen := make(map[string]int)
	unique := []models.Lead{}
	dups := []Duplicate{}

	for i, lead := range leads {
		key := LeadKey(lead.Email, lead.Phone)
		if key == "" {
			unique = append(unique, lead)
			continue
		}
		if first, ok := seen[key]; ok {
			dups = append(dups, Duplicate{Index: i, Of: first})
			continue
		}
		seen[key] = i
		unique = append(unique, lead)
	}

	if len(dups) > 0 {
		logger.Info("Removed %d duplicate leads from collection", len(dups))
	}

	return unique, dups
}

// LeadKey identifies a lead by lowercased email and phone digits. Leads
// with neither get "".
func LeadKey(email, phone string) string {
	key := strings.ToLower(strings.TrimSpace(email)) + "|" + DigitsOnly(phone)
	if key == "|" {
		return ""
	}
	return key
}

// DigitsOnly strips everything but 0-9.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SplitCourseIDs splits a comma-joined id list, dropping empty segments.
func SplitCourseIDs(s string) []string {
	ids := []string{}
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
