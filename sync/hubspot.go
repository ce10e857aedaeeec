package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"

	"github.com/carlmjohnson/requests"
	"github.com/tidwall/gjson"
)

const HubSpotPageLimit = "100"

// HubSpotError is the error envelope HubSpot returns for rejected requests.
type HubSpotError struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

// ConfigurationError reports a failed startup connectivity check. It is
// fatal: the host should abort initialisation and ask for re-configuration.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("unable to connect to HubSpot, please make sure your API credential is correct: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// HubSpotFetcherAndUpdater handles all HubSpot API operations.
// It embeds *SyncContext for shared sync configuration.
type HubSpotFetcherAndUpdater struct {
	*SyncContext
}

// HubSpotAPIBuilder returns a new requests.Builder configured for the
// HubSpot API with the configured credential attached.
func (h HubSpotFetcherAndUpdater) HubSpotAPIBuilder() *requests.Builder {
	return h.authorise(h.recordable(requests.URL(h.Config.HubSpotEndpoint()).Client(apiClient())))
}

// builderForLink returns a builder for a stored pagination link. Cursors are
// stored without credentials, so auth is re-attached here at request time.
func (h HubSpotFetcherAndUpdater) builderForLink(link string) *requests.Builder {
	return h.authorise(h.recordable(requests.URL(link).Client(apiClient())))
}

func (h HubSpotFetcherAndUpdater) recordable(b *requests.Builder) *requests.Builder {
	if h.RecordRequests {
		b = b.Transport(requests.Record(NewRetryTransport(nil), "testdata/.requests/hubspot"))
	}
	return b
}

func (h HubSpotFetcherAndUpdater) authorise(b *requests.Builder) *requests.Builder {
	if token := h.Config.API.Keys.HubSpotAccessToken; token != "" {
		return b.Bearer(token)
	}
	return b.Param("hapikey", h.Config.API.Keys.HubSpotAPIKey)
}

// CheckConnection issues a single bounded request against the contacts
// collection to validate the configured credential.
func (h HubSpotFetcherAndUpdater) CheckConnection(ctx context.Context) error {
	hubspotError := HubSpotError{}
	err := h.HubSpotAPIBuilder().
		Path("/crm/v3/objects/contacts").
		Param("limit", "1").
		Param("paginateAssociations", "false").
		Param("archived", "false").
		ErrorJSON(&hubspotError).
		Fetch(ctx)
	if err != nil {
		log.Printf("HubSpot error: %+v", hubspotError)
		return &ConfigurationError{Err: err}
	}
	return nil
}

// UpsertOutcome reports how a contact upsert resolved.
type UpsertOutcome int

const (
	UpsertFailed UpsertOutcome = iota
	UpsertCreated
	UpsertUpdated
)

var existingIDPattern = regexp.MustCompile(`Existing ID: ([0-9]+)`)

type contactRequest struct {
	Properties map[string]interface{} `json:"properties"`
}

// CreateOrUpdateContact creates a CRM contact with the given properties.
// On a duplicate-email conflict it extracts the existing record id from the
// error message and issues a single partial update against it instead.
// Update failure is reported, not retried.
func (h HubSpotFetcherAndUpdater) CreateOrUpdateContact(email string, properties map[string]interface{}, ctx context.Context) (UpsertOutcome, error) {
	req := contactRequest{Properties: properties}
	hubspotError := HubSpotError{}
	var body string
	err := h.HubSpotAPIBuilder().
		Path("/crm/v3/objects/contacts").
		Post().
		BodyJSON(&req).
		ToString(&body).
		ErrorJSON(&hubspotError).
		Fetch(ctx)
	if err == nil {
		// some rejections come back 2xx with an error marker in the body
		if gjson.Get(body, "status").String() == "error" {
			message := gjson.Get(body, "message").String()
			log.Printf("Unable to add contact %s to HubSpot. Error message: %s", email, message)
			return UpsertFailed, fmt.Errorf("hubspot rejected contact %s: %s", email, message)
		}
		log.Printf("Created HubSpot contact for %s", email)
		return UpsertCreated, nil
	}

	if !requests.HasStatusErr(err, http.StatusConflict) {
		log.Printf("Unable to add contact %s to HubSpot: %v. Error message: %s", email, err, hubspotError.Message)
		return UpsertFailed, err
	}

	match := existingIDPattern.FindStringSubmatch(hubspotError.Message)
	if match == nil {
		log.Printf("Conflict adding contact %s but no existing id in error message: %s", email, hubspotError.Message)
		return UpsertFailed, fmt.Errorf("conflict for contact %s with no existing id: %w", email, err)
	}
	log.Printf("Attempting to update contact %s instead...", email)

	updateError := HubSpotError{}
	updateErr := h.HubSpotAPIBuilder().
		Pathf("/crm/v3/objects/contacts/%s", match[1]).
		Patch().
		BodyJSON(&req).
		ErrorJSON(&updateError).
		Fetch(ctx)
	if updateErr != nil {
		log.Printf("Unable to update contact %s in HubSpot: %v. Error message: %s", email, updateErr, updateError.Message)
		return UpsertFailed, updateErr
	}
	log.Printf("Successfully updated HubSpot contact for %s", email)
	return UpsertUpdated, nil
}

// ObjectRecord is one CRM record in a listing page.
type ObjectRecord struct {
	Source Source
}

// ID returns the CRM record id.
func (r ObjectRecord) ID() string {
	id, _ := r.Source.StringForPath("id")
	return id
}

// Property returns a named CRM property value.
func (r ObjectRecord) Property(name string) (string, bool) {
	return r.Source.StringForPath("properties." + name)
}

// PropertiesJSON returns the raw JSON of the record's properties object.
func (r ObjectRecord) PropertiesJSON() string {
	props := r.Source.data.Get("properties")
	if !props.Exists() {
		return "{}"
	}
	return props.Raw
}

// AssociatedCompanyIDs returns the ids of companies associated with the record.
func (r ObjectRecord) AssociatedCompanyIDs() []string {
	var result []string
	for _, assoc := range r.Source.data.Get("associations.companies.results").Array() {
		if id := assoc.Get("id").String(); id != "" {
			result = append(result, id)
		}
	}
	return result
}

// ObjectsPage is one page of a paginated CRM listing.
type ObjectsPage struct {
	Results []ObjectRecord
	// NextLink is the opaque continuation link for the following page,
	// empty when this was the final page.
	NextLink string
}

// FetchObjectsPage fetches one listing page for an entity type. When cursor
// is non-empty it is used as the request URL verbatim (with auth re-attached);
// otherwise an initial page request is built with the fixed page size and the
// given property list.
func (h HubSpotFetcherAndUpdater) FetchObjectsPage(objectType string, cursor string, properties []string, withCompanyAssociations bool, ctx context.Context) (ObjectsPage, error) {
	var page ObjectsPage

	var b *requests.Builder
	if cursor != "" {
		b = h.builderForLink(cursor)
	} else {
		b = h.HubSpotAPIBuilder().
			Pathf("/crm/v3/objects/%s", objectType).
			Param("limit", HubSpotPageLimit).
			Param("paginateAssociations", "false").
			Param("archived", "false").
			Param("properties", strings.Join(properties, ","))
		if withCompanyAssociations {
			b = b.Param("associations", "companies")
		}
	}

	hubspotError := HubSpotError{}
	var body string
	err := b.
		ToString(&body).
		ErrorJSON(&hubspotError).
		Fetch(ctx)
	if err != nil {
		log.Printf("Unable to get %s from HubSpot: %v. Error message: %s", objectType, err, hubspotError.Message)
		return page, err
	}
	if !gjson.Valid(body) {
		log.Printf("Invalid HubSpot response:\n%s", body)
		return page, errors.New("invalid json response")
	}
	parsed := gjson.Parse(body)
	if parsed.Get("status").String() == "error" {
		message := parsed.Get("message").String()
		log.Printf("Unable to get %s from HubSpot. Error message: %s", objectType, message)
		return page, fmt.Errorf("hubspot error listing %s: %s", objectType, message)
	}

	for _, result := range parsed.Get("results").Array() {
		page.Results = append(page.Results, ObjectRecord{Source: Source{data: result}})
	}
	page.NextLink = parsed.Get("paging.next.link").String()
	return page, nil
}
