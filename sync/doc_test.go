package sync

import (
	"strings"
	"testing"
)

func TestGeneratePropertyDocumentation(t *testing.T) {
	doc := GeneratePropertyDocumentation(Config{
		AdditionalPropertyMappings: "plan:product_plan,sent_at:signup_date, :bad,",
	})

	if len(doc.Rows) != len(contactPropertyTargets)+2 {
		t.Fatalf("unexpected row count: %d", len(doc.Rows))
	}
	first := doc.Rows[0]
	if first.SourceProperty != "company" || first.TargetProperty != "company" || !first.IsBuiltin {
		t.Errorf("expected sorted built-in rows first but have: %+v", first)
	}

	var sendTime *PropertyDocRow
	for i := range doc.Rows {
		if doc.Rows[i].SourceProperty == "sent_at" {
			sendTime = &doc.Rows[i]
		}
	}
	if sendTime == nil {
		t.Fatal("expected a row for the sent_at mapping")
	}
	if sendTime.IsBuiltin || sendTime.TargetProperty != "signup_date" || sendTime.Notes == "" {
		t.Errorf("unexpected sent_at row: %+v", sendTime)
	}
}

func TestPropertyDocumentation_FormatCSV(t *testing.T) {
	doc := GeneratePropertyDocumentation(Config{AdditionalPropertyMappings: "plan:product_plan"})
	have, err := doc.FormatCSV()
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(have), "\n")
	if lines[0] != "Event Property,HubSpot Property,Built-in,Notes" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if len(lines) != len(doc.Rows)+1 {
		t.Errorf("unexpected line count: %d", len(lines))
	}
	if !strings.Contains(have, "company_name,company,x,") {
		t.Errorf("expected a built-in dictionary row in:\n%s", have)
	}
	if !strings.Contains(have, "plan,product_plan,,") {
		t.Errorf("expected the additional mapping row in:\n%s", have)
	}
}
