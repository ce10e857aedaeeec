package sync

import (
	"context"
	"log"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Checkpoint store keys. Cursors hold the opaque next-page link for an
// entity type (credentials are re-attached at request time); the completion
// date records the UTC day the last full contacts pass finished.
const (
	nextContactsPageKey  = "next_hubspot_contacts_url"
	nextDealsPageKey     = "next_hubspot_deals_url"
	nextCompaniesPageKey = "next_hubspot_companies_url"
	lastCompletedDateKey = "last_job_complete_day"
	seenDealKeyPrefix    = "hubspot_deal_"
	seenCompanyKeyPrefix = "hubspot_company_"

	completedDateFormat = "2006-01-02"
)

var (
	contactProperties = []string{
		"email", "hubspotscore", "company", "firstname", "lastname",
		"phone", "address", "city", "state", "zip", "country", "website",
	}
	dealProperties    = []string{"dealname", "amount", "dealstage", "pipeline", "closedate"}
	companyProperties = []string{"name", "domain", "industry", "city", "country"}
)

// Contact is the per-pass hand-off from the contacts page to the score
// writeback. Not persisted beyond the pass.
type Contact struct {
	Email string
	Score string
}

// SyncContacts runs one page of the contacts pass: resume from the stored
// cursor (or start fresh unless the pass already completed today), project
// each record into an analytics profile update, and advance or clear the
// cursor. Returns the contacts loaded from this page for score writeback.
func (s Syncer) SyncContacts(ctx context.Context) ([]Contact, error) {
	cursor, _, err := s.Storage.Get(nextContactsPageKey)
	if err != nil {
		return nil, err
	}
	today := time.Now().UTC().Format(completedDateFormat)
	if cursor == "" && s.Config.ProductionMode() {
		lastFinishDate, exists, err := s.Storage.Get(lastCompletedDateKey)
		if err != nil {
			return nil, err
		}
		if exists && lastFinishDate == today {
			log.Printf("Not syncing contacts - sync already completed for %s", today)
			return nil, nil
		}
	}

	page, err := s.HubSpot.FetchObjectsPage("contacts", cursor, contactProperties, s.Config.SyncCompanies(), ctx)
	if err != nil {
		// cursor is left untouched so the next tick retries this page
		return nil, err
	}

	var loaded []Contact
	for _, record := range page.Results {
		email, _ := record.Property("email")
		score, _ := record.Property("hubspotscore")
		loaded = append(loaded, Contact{Email: email, Score: score})
		if email == "" {
			continue
		}

		// refresh the profile even when none existed before
		captureErr := s.PostHog.Capture(CaptureRequest{
			Event:      "hubspot contact synced",
			DistinctID: email,
			Set:        contactAttributes(record),
		}, ctx)
		if captureErr != nil {
			log.Printf("Error updating profile for %s - skipping: %v", email, captureErr)
			continue
		}

		if s.Config.SyncCompanies() {
			for _, companyID := range record.AssociatedCompanyIDs() {
				memberErr := s.PostHog.Capture(CaptureRequest{
					Event:      "hubspot contact company membership",
					DistinctID: email,
					Properties: map[string]interface{}{
						"$groups": map[string]interface{}{s.Config.CompaniesGroupType: companyID},
					},
				}, ctx)
				if memberErr != nil {
					log.Printf("Error adding %s to company %s: %v", email, companyID, memberErr)
				}
			}
		}
	}
	log.Printf("Loaded %d contacts from HubSpot", len(loaded))

	if page.NextLink != "" {
		if err := s.Storage.Set(nextContactsPageKey, page.NextLink); err != nil {
			return loaded, err
		}
		return loaded, nil
	}
	if err := s.Storage.Del(nextContactsPageKey); err != nil {
		return loaded, err
	}
	if err := s.Storage.Set(lastCompletedDateKey, today); err != nil {
		return loaded, err
	}
	return loaded, nil
}

// contactAttributes projects CRM contact properties into analytics profile
// attributes, normalising phone and country through the registered modifiers.
func contactAttributes(record ObjectRecord) map[string]interface{} {
	paths := map[string]string{
		"company":   "properties.company",
		"firstname": "properties.firstname",
		"lastname":  "properties.lastname",
		"phone":     "properties.phone|@phone:1",
		"address":   "properties.address",
		"city":      "properties.city",
		"state":     "properties.state",
		"zip":       "properties.zip",
		"country":   "properties.country|@countryName",
		"website":   "properties.website",
	}
	attributes := make(map[string]interface{})
	for field, path := range paths {
		if value, exists := record.Source.StringForPath(path); exists && value != "" {
			attributes[field] = value
		}
	}
	return attributes
}

// SyncCompanies runs one page of the companies pass. Skipped entirely when
// no companies group type is configured.
func (s Syncer) SyncCompanies(ctx context.Context) error {
	if !s.Config.SyncCompanies() {
		return nil
	}
	return s.syncGroupObjects(groupObjectSync{
		ObjectType:    "companies",
		GroupType:     s.Config.CompaniesGroupType,
		CursorKey:     nextCompaniesPageKey,
		SeenKeyPrefix: seenCompanyKeyPrefix,
		Properties:    companyProperties,
		NameProperty:  "name",
	}, ctx)
}

// SyncDeals runs one page of the deals pass. Skipped entirely when no deals
// group type is configured.
func (s Syncer) SyncDeals(ctx context.Context) error {
	if !s.Config.SyncDeals() {
		return nil
	}
	return s.syncGroupObjects(groupObjectSync{
		ObjectType:    "deals",
		GroupType:     s.Config.DealsGroupType,
		CursorKey:     nextDealsPageKey,
		SeenKeyPrefix: seenDealKeyPrefix,
		Properties:    dealProperties,
		NameProperty:  "dealname",
		LinkCompanies: true,
	}, ctx)
}

type groupObjectSync struct {
	ObjectType    string
	GroupType     string
	CursorKey     string
	SeenKeyPrefix string
	Properties    []string
	NameProperty  string
	LinkCompanies bool
}

// syncGroupObjects runs one page of a deals or companies pass. A paginated
// listing can re-visit records across runs, so each record id carries a
// seen-marker in the checkpoint store and only its first sighting emits a
// group-identify signal.
func (s Syncer) syncGroupObjects(params groupObjectSync, ctx context.Context) error {
	cursor, _, err := s.Storage.Get(params.CursorKey)
	if err != nil {
		return err
	}

	withAssociations := params.LinkCompanies && s.Config.SyncCompanies()
	page, err := s.HubSpot.FetchObjectsPage(params.ObjectType, cursor, params.Properties, withAssociations, ctx)
	if err != nil {
		// cursor is left untouched so the next tick retries this page
		return err
	}

	for _, record := range page.Results {
		id := record.ID()
		if id == "" {
			continue
		}
		seenKey := params.SeenKeyPrefix + id
		_, seen, err := s.Storage.Get(seenKey)
		if err != nil {
			return err
		}
		if seen {
			continue
		}
		if err := s.Storage.Set(seenKey, "1"); err != nil {
			return err
		}

		identifyErr := s.PostHog.GroupIdentify(params.GroupType, id, groupAttributes(record, params.NameProperty), ctx)
		if identifyErr != nil {
			log.Printf("Error identifying %s %s - skipping: %v", params.ObjectType, id, identifyErr)
			continue
		}

		if withAssociations {
			for _, companyID := range record.AssociatedCompanyIDs() {
				linkErr := s.PostHog.Capture(CaptureRequest{
					Event:      "hubspot deal associated to company",
					DistinctID: params.GroupType + "_" + id,
					Properties: map[string]interface{}{
						"$groups": map[string]interface{}{
							params.GroupType:            id,
							s.Config.CompaniesGroupType: companyID,
						},
					},
				}, ctx)
				if linkErr != nil {
					log.Printf("Error linking %s %s to company %s: %v", params.ObjectType, id, companyID, linkErr)
				}
			}
		}
	}
	log.Printf("Loaded %d %s from HubSpot", len(page.Results), params.ObjectType)

	if page.NextLink != "" {
		return s.Storage.Set(params.CursorKey, page.NextLink)
	}
	return s.Storage.Del(params.CursorKey)
}

// groupAttributes returns a record's properties with its name property
// promoted into a top-level "name" field.
func groupAttributes(record ObjectRecord, nameProperty string) map[string]interface{} {
	propsJSON := record.PropertiesJSON()
	if name := gjson.Get(propsJSON, nameProperty); name.Exists() {
		propsJSON, _ = sjson.Set(propsJSON, "name", name.String())
	}
	if m, ok := gjson.Parse(propsJSON).Value().(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}
