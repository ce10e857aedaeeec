package sync

import (
	"strings"
	"time"

	"github.com/iancoleman/strcase"
)

// contactPropertyTargets maps analytics property spellings to HubSpot contact
// property names. Keys are snake_case; input spellings are folded with
// strcase.ToSnake so camelCase variants share a row (companyName and
// company_name both land on "company").
var contactPropertyTargets = map[string]string{
	"company_name":    "company",
	"company":         "company",
	"last_name":       "lastname",
	"lastname":        "lastname",
	"first_name":      "firstname",
	"firstname":       "firstname",
	"phone_number":    "phone",
	"phone":           "phone",
	"website":         "website",
	"domain":          "website",
	"company_website": "website",
}

// sendTimeSources are the mapping sources that resolve to the event's send
// timestamp rather than to a literal property value.
var sendTimeSources = map[string]bool{
	"sent_at":    true,
	"created_at": true,
}

// MapContactProperties translates event properties into HubSpot contact
// properties. Built-in dictionary rows are applied first; the comma-separated
// source:target pairs in additionalMappings are applied after and may
// overwrite a dictionary result for the same target. A source of sent_at or
// created_at assigns the event send time as a UTC midnight-truncated
// epoch-millisecond value. The contact's email is injected by the caller,
// not by this mapper.
func MapContactProperties(properties map[string]interface{}, additionalMappings string, sentAt time.Time, hasSentAt bool) map[string]interface{} {
	result := make(map[string]interface{})

	for key, value := range properties {
		if target, exists := contactPropertyTargets[strcase.ToSnake(key)]; exists {
			result[target] = value
		}
	}

	if additionalMappings == "" {
		return result
	}
	for _, mapping := range strings.Split(additionalMappings, ",") {
		source, target, ok := strings.Cut(mapping, ":")
		source = strings.TrimSpace(source)
		target = strings.TrimSpace(target)
		if !ok || source == "" || target == "" {
			continue
		}
		if sendTimeSources[source] {
			if hasSentAt {
				result[target] = midnightEpochMillis(sentAt)
			}
			continue
		}
		if value, exists := properties[source]; exists {
			result[target] = value
		}
	}

	return result
}

// midnightEpochMillis converts t to the epoch milliseconds of its UTC
// calendar day at 00:00:00, the representation HubSpot date properties use.
func midnightEpochMillis(t time.Time) int64 {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).UnixMilli()
}
