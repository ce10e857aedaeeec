package sync

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strings"
)

// PropertyDocRow represents a single row in the property mapping documentation.
type PropertyDocRow struct {
	SourceProperty string // Analytics event property name
	TargetProperty string // HubSpot contact property name
	IsBuiltin      bool   // Whether this comes from the built-in dictionary
	Notes          string // Mapping notes (send-time conversion etc.)
}

// PropertyDocumentation contains the property mapping documentation for one
// integration configuration.
type PropertyDocumentation struct {
	Rows []PropertyDocRow
}

// GeneratePropertyDocumentation generates mapping documentation from a
// configuration: the built-in dictionary rows plus any additional
// source:target pairs.
func GeneratePropertyDocumentation(config Config) PropertyDocumentation {
	doc := PropertyDocumentation{Rows: []PropertyDocRow{}}

	for _, source := range sortedKeys(contactPropertyTargets) {
		doc.Rows = append(doc.Rows, PropertyDocRow{
			SourceProperty: source,
			TargetProperty: contactPropertyTargets[source],
			IsBuiltin:      true,
		})
	}

	if config.AdditionalPropertyMappings != "" {
		for _, mapping := range strings.Split(config.AdditionalPropertyMappings, ",") {
			source, target, ok := strings.Cut(mapping, ":")
			source = strings.TrimSpace(source)
			target = strings.TrimSpace(target)
			if !ok || source == "" || target == "" {
				continue
			}
			row := PropertyDocRow{SourceProperty: source, TargetProperty: target}
			if sendTimeSources[source] {
				row.Notes = "Event send time as UTC midnight epoch milliseconds"
			}
			doc.Rows = append(doc.Rows, row)
		}
	}

	return doc
}

// sortedKeys returns the keys of a map[string]string in sorted order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatCSV formats the property documentation as CSV.
func (d PropertyDocumentation) FormatCSV() (string, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Event Property", "HubSpot Property", "Built-in", "Notes"}
	if err := writer.Write(headers); err != nil {
		return "", err
	}

	for _, row := range d.Rows {
		builtinMark := ""
		if row.IsBuiltin {
			builtinMark = "x"
		}
		record := []string{row.SourceProperty, row.TargetProperty, builtinMark, row.Notes}
		if err := writer.Write(record); err != nil {
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}

	return buf.String(), nil
}
