package sync

import (
	"context"
	"log"
)

// Syncer is the per-run entry point built from a SyncContext. The host calls
// OnEvent once per inbound event and RunEveryMinute once per interval; it
// must not overlap two runs of the same scheduled job, because the
// checkpoint store is not protected by any lock.
type Syncer struct {
	*SyncContext
	HubSpot HubSpotFetcherAndUpdater
	PostHog PostHogFetcherAndUpdater
}

// NewSyncer builds a Syncer from already-validated configuration and a
// checkpoint store.
func NewSyncer(config Config, storage Storage) Syncer {
	sc := &SyncContext{Config: config, Storage: storage}
	return Syncer{
		SyncContext: sc,
		HubSpot:     HubSpotFetcherAndUpdater{sc},
		PostHog:     PostHogFetcherAndUpdater{sc},
	}
}

// Setup validates connectivity to the CRM. A failure is a fatal
// *ConfigurationError — the host should abort startup (and may retry
// initialisation later).
func (s Syncer) Setup(ctx context.Context) error {
	return s.HubSpot.CheckConnection(ctx)
}

// OnEvent routes one inbound event. Events outside the triggering set, events
// without a valid email and emails on ignored domains are dropped silently;
// everything else becomes a contact upsert.
func (s Syncer) OnEvent(event CapturedEvent, ctx context.Context) error {
	if !s.Config.TriggeringEventSet()[event.Name()] {
		return nil
	}
	email, ok := EmailFromEvent(event)
	if !ok {
		return nil
	}
	if s.Config.IgnoredDomainSet()[EmailDomain(email)] {
		return nil
	}

	sentAt, hasSentAt := event.SentAt()
	properties := MapContactProperties(event.MergedProperties(), s.Config.AdditionalPropertyMappings, sentAt, hasSentAt)
	properties["email"] = email

	_, err := s.HubSpot.CreateOrUpdateContact(email, properties, ctx)
	return err
}

// RunEveryMinute runs one scheduled tick: one page each of the companies,
// deals and contacts passes, then score writeback over the contacts loaded
// this tick. Per-entity errors are logged and never abort the rest of the
// tick.
func (s Syncer) RunEveryMinute(ctx context.Context) error {
	if !s.Config.SyncScores() {
		log.Printf("Not syncing HubSpot scores into PostHog - config not set.")
		return nil
	}

	if err := s.SyncCompanies(ctx); err != nil {
		log.Printf("Error syncing companies: %v", err)
	}
	if err := s.SyncDeals(ctx); err != nil {
		log.Printf("Error syncing deals: %v", err)
	}
	loadedContacts, err := s.SyncContacts(ctx)
	if err != nil {
		log.Printf("Error syncing contacts: %v", err)
	}

	var updated, skipped, processed, errored int
	for _, contact := range loadedContacts {
		if contact.Email != "" && contact.Score != "" {
			ok, err := s.PostHog.UpdateScore(contact.Email, contact.Score, ctx)
			switch {
			case err != nil:
				log.Printf("Error updating HubSpot score for %s - skipping: %v", contact.Email, err)
				errored++
			case ok:
				updated++
			default:
				skipped++
			}
		}
		processed++
	}
	log.Printf("Successfully updated HubSpot scores for %d records, skipped %d records, processed %d HubSpot contacts, errors: %d",
		updated, skipped, processed, errored)

	cursor, exists, err := s.Storage.Get(nextContactsPageKey)
	if err != nil {
		return err
	}
	counts := map[string]interface{}{"num_updated": updated}
	if !exists || cursor == "" {
		return s.PostHog.Capture(CaptureRequest{
			Event:      "hubspot contact sync all contacts completed",
			DistinctID: "hubspot_sync",
			Properties: counts,
		}, ctx)
	}
	return s.PostHog.Capture(CaptureRequest{
		Event:      "hubspot contact sync batch completed",
		DistinctID: "hubspot_sync",
		Properties: counts,
	}, ctx)
}

// ClearCheckpoints resets the pagination cursors and the completion date,
// forcing the next interval run to restart from a fresh full pass.
// Externally triggerable as a maintenance job. Seen-markers are kept.
func (s Syncer) ClearCheckpoints() error {
	keys := []string{
		nextContactsPageKey,
		nextDealsPageKey,
		nextCompaniesPageKey,
		lastCompletedDateKey,
	}
	for _, key := range keys {
		if err := s.Storage.Del(key); err != nil {
			return err
		}
	}
	return nil
}
