package sync

import (
	"testing"
	"time"
)

func TestMapContactProperties_StaticDictionary(t *testing.T) {
	result := MapContactProperties(map[string]interface{}{
		"company_name": "Acme",
		"firstName":    "Jo",
		"phoneNumber":  "555-0100",
		"unrelated":    "dropped",
	}, "", time.Time{}, false)

	if result["company"] != "Acme" {
		t.Errorf("expected company=Acme but have: %v", result["company"])
	}
	if result["firstname"] != "Jo" {
		t.Errorf("expected firstname=Jo but have: %v", result["firstname"])
	}
	if result["phone"] != "555-0100" {
		t.Errorf("expected phone=555-0100 but have: %v", result["phone"])
	}
	if _, exists := result["unrelated"]; exists {
		t.Error("expected unmapped properties to be dropped")
	}
}

func TestMapContactProperties_SendTimeSentinel(t *testing.T) {
	sentAt, err := time.Parse(time.RFC3339, "2024-01-15T10:30:00Z")
	if err != nil {
		t.Fatal(err)
	}
	result := MapContactProperties(map[string]interface{}{}, "sent_at:my_date", sentAt, true)

	midnight, err := time.Parse(time.RFC3339, "2024-01-15T00:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	expected := midnight.UnixMilli()
	if result["my_date"] != expected {
		t.Errorf("expected my_date=%d but have: %v", expected, result["my_date"])
	}
}

func TestMapContactProperties_SendTimeSentinelWithoutTimestamp(t *testing.T) {
	result := MapContactProperties(map[string]interface{}{}, "sent_at:my_date", time.Time{}, false)
	if _, exists := result["my_date"]; exists {
		t.Error("expected no my_date when the event carries no send time")
	}
}

func TestMapContactProperties_AdditionalOverwritesStatic(t *testing.T) {
	result := MapContactProperties(map[string]interface{}{
		"company_name": "Acme",
		"org":          "Acme Holdings",
	}, "org:company", time.Time{}, false)

	if result["company"] != "Acme Holdings" {
		t.Errorf("expected additional mapping to overwrite, have: %v", result["company"])
	}
}

func TestMapContactProperties_InvalidPairsIgnored(t *testing.T) {
	result := MapContactProperties(map[string]interface{}{
		"plan": "paid",
	}, "plan:,:target,missing:crm_field,plan:crm_plan", time.Time{}, false)

	if len(result) != 1 || result["crm_plan"] != "paid" {
		t.Errorf("expected only crm_plan=paid but have: %v", result)
	}
}
