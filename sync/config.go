package sync

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/config"
)

// Config holds the configuration for one HubSpot <-> PostHog integration.
// It arrives validated from the host; the loader in this file is a
// convenience for hosts that keep their settings in YAML.
type Config struct {
	API APISettings
	// TriggeringEvents lists the event names that cause a contact upsert.
	TriggeringEvents []string
	// IgnoredEmails lists email domains that are dropped silently.
	IgnoredEmails []string
	// AdditionalPropertyMappings holds comma-separated source:target pairs
	// applied after the built-in property dictionary.
	AdditionalPropertyMappings string
	// CompaniesGroupType names the PostHog group type for HubSpot companies.
	// Empty disables company sync.
	CompaniesGroupType string
	// DealsGroupType names the PostHog group type for HubSpot deals.
	// Empty disables deal sync.
	DealsGroupType string
	// SyncMode gates the daily-skip behaviour; only "production" skips a
	// second full pass on the same calendar day.
	SyncMode string
	// StoragePath is the sqlite checkpoint database path, for hosts that
	// use the bundled SQLiteStorage rather than their own Storage.
	StoragePath string
}

type APISettings struct {
	Keys struct {
		// HubSpotAPIKey authenticates via the hapikey query parameter.
		HubSpotAPIKey string `yaml:"hubspotApiKey"`
		// HubSpotAccessToken authenticates via a bearer header and takes
		// precedence over HubSpotAPIKey when both are set.
		HubSpotAccessToken string `yaml:"hubspotAccessToken"`
		// PostHogAPIToken is the personal key used for persons lookups.
		PostHogAPIToken string `yaml:"postHogApiToken"`
		// PostHogProjectToken is the project key sent with captured events.
		PostHogProjectToken string `yaml:"postHogProjectToken"`
	}
	Endpoints struct {
		HubSpot string `yaml:"hubspot"`
		PostHog string `yaml:"postHog"`
	}
}

const DefaultHubSpotEndpoint = "https://api.hubapi.com"

// SyncCompanies reports whether company sync is enabled.
func (c Config) SyncCompanies() bool { return c.CompaniesGroupType != "" }

// SyncDeals reports whether deal sync is enabled.
func (c Config) SyncDeals() bool { return c.DealsGroupType != "" }

// ProductionMode reports whether the daily-skip behaviour applies.
func (c Config) ProductionMode() bool { return c.SyncMode == "production" }

// SyncScores reports whether CRM records are pulled back into PostHog at all.
func (c Config) SyncScores() bool { return c.API.Endpoints.PostHog != "" }

// HubSpotEndpoint returns the configured CRM endpoint or the public default.
func (c Config) HubSpotEndpoint() string {
	if c.API.Endpoints.HubSpot != "" {
		return c.API.Endpoints.HubSpot
	}
	return DefaultHubSpotEndpoint
}

// TriggeringEventSet returns the triggering event names as a set.
func (c Config) TriggeringEventSet() map[string]bool {
	return listToSet(c.TriggeringEvents)
}

// IgnoredDomainSet returns the ignored email domains as a set.
func (c Config) IgnoredDomainSet() map[string]bool {
	return listToSet(c.IgnoredEmails)
}

func listToSet(values []string) map[string]bool {
	result := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			result[v] = true
		}
	}
	return result
}

// SplitList splits a comma-separated option value, dropping empty entries.
// Hosts hand us triggeringEvents/ignoredEmails in this form.
func SplitList(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// CompositeEnvVar resolves ${NAME} references in YAML config sources.
type CompositeEnvVar interface {
	LookupEnv(child string) (string, bool)
}

// JSONCompositeEnvVar resolves config references from a single parent
// environment variable holding a JSON object of key/value pairs.
type JSONCompositeEnvVar struct {
	Parent string
}

func (c JSONCompositeEnvVar) LookupEnv(child string) (string, bool) {
	if c.Parent != "" {
		s := os.Getenv(c.Parent)
		if s != "" {
			m := make(map[string]string)
			err := json.Unmarshal([]byte(s), &m)
			if err == nil {
				v, exists := m[child]
				return v, exists
			}
		}
	}
	return "", false
}

// OSEnvVar resolves config references directly from the process environment.
type OSEnvVar struct{}

func (OSEnvVar) LookupEnv(child string) (string, bool) { return os.LookupEnv(child) }

type YAMLConfigUnmarshaler struct{}

// Unmarshal reads Config from one or more YAML sources, expanding ${NAME}
// references through compev. Later sources override earlier ones.
func (u YAMLConfigUnmarshaler) Unmarshal(compev CompositeEnvVar, sources ...io.Reader) (Config, error) {
	var result Config
	var options []config.YAMLOption
	for _, s := range sources {
		options = append(options, config.Source(s))
	}
	options = append(options, config.Expand(compev.LookupEnv))
	yaml, err := config.NewYAML(options...)
	if err != nil {
		return result, fmt.Errorf("failed to read yaml config %w", err)
	}
	readError := func(key string, cause error) error {
		return fmt.Errorf("failed to read '%s' from yaml config %w", key, cause)
	}
	key := "api"
	err = yaml.Get(key).Populate(&result.API)
	if err != nil {
		return result, readError(key, err)
	}
	// triggeringEvent is the legacy singular spelling, folded into the list
	key = "triggeringEvents"
	result.TriggeringEvents = SplitList(yaml.Get(key).String())
	key = "triggeringEvent"
	if yaml.Get(key).HasValue() {
		result.TriggeringEvents = append(result.TriggeringEvents, SplitList(yaml.Get(key).String())...)
	}
	key = "ignoredEmails"
	result.IgnoredEmails = SplitList(yaml.Get(key).String())
	key = "additionalPropertyMappings"
	result.AdditionalPropertyMappings = yaml.Get(key).String()
	key = "companiesGroupType"
	result.CompaniesGroupType = yaml.Get(key).String()
	key = "dealsGroupType"
	result.DealsGroupType = yaml.Get(key).String()
	key = "syncMode"
	result.SyncMode = yaml.Get(key).String()
	key = "storagePath"
	result.StoragePath = yaml.Get(key).String()

	return result, nil
}
