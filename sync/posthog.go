package sync

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// PostHogError is the error envelope PostHog returns for rejected requests.
type PostHogError map[string]interface{}

// PostHogFetcherAndUpdater handles all PostHog API operations.
// It embeds *SyncContext for shared sync configuration.
type PostHogFetcherAndUpdater struct {
	*SyncContext
}

// PostHogAPIBuilder returns a new requests.Builder configured for the
// PostHog API.
func (p PostHogFetcherAndUpdater) PostHogAPIBuilder() *requests.Builder {
	result := requests.
		URL(p.Config.API.Endpoints.PostHog).
		Client(apiClient())
	if p.RecordRequests {
		result = result.Transport(requests.Record(NewRetryTransport(nil), "testdata/.requests/posthog"))
	}
	return result
}

// CaptureRequest is one analytics signal: a named event with a distinct
// identity, free-form properties and optional profile "set" semantics.
type CaptureRequest struct {
	Event      string
	DistinctID string
	Properties map[string]interface{}
	Set        map[string]interface{}
}

type captureBody struct {
	APIKey     string                 `json:"api_key"`
	Event      string                 `json:"event"`
	DistinctID string                 `json:"distinct_id"`
	UUID       string                 `json:"uuid"`
	Timestamp  string                 `json:"timestamp"`
	Properties map[string]interface{} `json:"properties"`
}

// Capture emits a signal to the analytics ingestion API.
func (p PostHogFetcherAndUpdater) Capture(req CaptureRequest, ctx context.Context) error {
	properties := make(map[string]interface{}, len(req.Properties)+1)
	for k, v := range req.Properties {
		properties[k] = v
	}
	if req.Set != nil {
		properties["$set"] = req.Set
	}

	body := captureBody{
		APIKey:     p.Config.API.Keys.PostHogProjectToken,
		Event:      req.Event,
		DistinctID: req.DistinctID,
		UUID:       uuid.NewString(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Properties: properties,
	}

	posthogError := PostHogError{}
	err := p.PostHogAPIBuilder().
		Path("/capture/").
		BodyJSON(&body).
		ErrorJSON(&posthogError).
		Fetch(ctx)
	if err != nil {
		log.Printf("PostHog error: %+v", posthogError)
		return err
	}
	return nil
}

// GroupIdentify emits a group-identify signal associating an external entity
// (company or deal) with a set of attributes.
func (p PostHogFetcherAndUpdater) GroupIdentify(groupType string, groupKey string, set map[string]interface{}, ctx context.Context) error {
	return p.Capture(CaptureRequest{
		Event:      "$groupidentify",
		DistinctID: fmt.Sprintf("%s_%s", groupType, groupKey),
		Properties: map[string]interface{}{
			"$group_type": groupType,
			"$group_key":  groupKey,
			"$group_set":  set,
		},
	}, ctx)
}

// PostHogPerson is one analytics profile returned by a persons lookup.
type PostHogPerson struct {
	ID         string
	DistinctID string
}

// SearchPersonsByEmail returns all analytics profiles matching an email.
// The API does not guarantee uniqueness — zero, one or more matches.
func (p PostHogFetcherAndUpdater) SearchPersonsByEmail(email string, ctx context.Context) ([]PostHogPerson, error) {
	posthogError := PostHogError{}
	var body string
	err := p.PostHogAPIBuilder().
		Path("/api/projects/@current/persons/").
		Param("email", email).
		Bearer(p.Config.API.Keys.PostHogAPIToken).
		ToString(&body).
		ErrorJSON(&posthogError).
		Fetch(ctx)
	if err != nil {
		log.Printf("PostHog error: %+v", posthogError)
		return nil, err
	}

	var persons []PostHogPerson
	for _, result := range gjson.Get(body, "results").Array() {
		persons = append(persons, PostHogPerson{
			ID:         result.Get("id").String(),
			DistinctID: result.Get("distinct_ids.0").String(),
		})
	}
	return persons, nil
}
