package sync

import (
	"context"
	"log"
	"strconv"
)

// UpdateScore looks up all analytics profiles for an email and emits a
// profile-property update with the CRM score for each match that has a
// resolvable id. Returns whether at least one profile was updated, so the
// caller can distinguish "updated" from "skipped — no matching profile".
func (p PostHogFetcherAndUpdater) UpdateScore(email string, score string, ctx context.Context) (bool, error) {
	persons, err := p.SearchPersonsByEmail(email, ctx)
	if err != nil {
		return false, err
	}

	updated := false
	for _, person := range persons {
		if person.ID == "" {
			continue
		}

		// a non-numeric score degrades to the zero value the parse
		// primitive returns, with a warning rather than a silent drop
		value, parseErr := strconv.ParseFloat(score, 64)
		if parseErr != nil {
			log.Printf("Warning: non-numeric HubSpot score %q for %s", score, email)
		}

		err := p.Capture(CaptureRequest{
			Event:      "hubspot score updated",
			DistinctID: person.DistinctID,
			Properties: map[string]interface{}{"hubspot_score": score},
			Set:        map[string]interface{}{"hubspot_score": value},
		}, ctx)
		if err != nil {
			return updated, err
		}

		log.Printf("Updated person %s with score %s", email, score)
		updated = true
	}

	return updated, nil
}
