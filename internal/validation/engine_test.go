package validation

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	lists, err := DefaultChecklists()
	require.NoError(t, err)
	return NewEngine(lists, DefaultAcceptanceThreshold)
}

func doc(name, docType, status string, conf float64) *domain.Document {
	return &domain.Document{
		ID:           name,
		FileName:     name,
		DocumentType: docType,
		Validation: domain.DocumentValidation{
			Status:      status,
			Confidence:  conf,
			Suggestions: []string{"Please upload a clearer " + docType + "."},
		},
	}
}

func itemByKey(t *testing.T, s *domain.ValidationStatus, key string) domain.ValidationItem {
	t.Helper()
	for _, it := range s.Items {
		if it.Key == key {
			return it
		}
	}
	t.Fatalf("item %s not found", key)
	return domain.ValidationItem{}
}

func motorInput(docs ...*domain.Document) Input {
	incident := today.AddDate(0, 0, -3)
	return Input{
		ClaimType:           domain.ClaimTypeMotor,
		IncidentDate:        &incident,
		IncidentDescription: "Rear-ended at a red light on the N11, bumper and tail light damaged.",
		Documents:           docs,
		Today:               today,
	}
}

func TestCompute_EmptyMotorClaim(t *testing.T) {
	e := newTestEngine(t)

	status := e.Compute(Input{ClaimType: domain.ClaimTypeMotor, Today: today})

	assert.Equal(t, domain.DecisionAwaitingDocuments, status.DecisionHint)
	assert.Equal(t, 0, status.Progress)
	assert.Equal(t, 6, status.Summary.TotalItems)
	assert.Equal(t, 6, status.Summary.MissingItems)
	assert.Equal(t, "Next: Please provide your date when the incident occurred.", status.NextPrompt)
}

func TestCompute_ItemStates(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name  string
		docs  []*domain.Document
		key   string
		state string
		conf  float64
	}{
		{"no document", nil, "police_report", domain.ItemStateMissing, 0},
		{"valid above threshold", []*domain.Document{doc("police_report.pdf", "police_report", domain.DocumentStatusValid, 0.8)}, "police_report", domain.ItemStateOK, 0.8},
		{"valid below threshold", []*domain.Document{doc("police_report.pdf", "police_report", domain.DocumentStatusValid, 0.6)}, "police_report", domain.ItemStateNeedsReview, 0.6},
		{"invalid", []*domain.Document{doc("police_report.pdf", "police_report", domain.DocumentStatusInvalid, 0.3)}, "police_report", domain.ItemStateInvalid, 0.3},
		{"assessor error", []*domain.Document{doc("police_report.pdf", "police_report", domain.DocumentStatusError, 0)}, "police_report", domain.ItemStateNeedsReview, 0},
		{"pending", []*domain.Document{doc("police_report.pdf", "police_report", domain.DocumentStatusPendingReview, 0)}, "police_report", domain.ItemStateNeedsReview, 0},
		{"one good one bad", []*domain.Document{
			doc("a.pdf", "repair_invoice", domain.DocumentStatusInvalid, 0.3),
			doc("b.pdf", "repair_invoice", domain.DocumentStatusValid, 0.9),
		}, "repair_invoice", domain.ItemStateOK, 0.9},
		{"alternative document type", []*domain.Document{doc("q.pdf", "quotation", domain.DocumentStatusValid, 0.8)}, "repair_invoice", domain.ItemStateOK, 0.8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := e.Compute(motorInput(tt.docs...))
			item := itemByKey(t, status, tt.key)
			assert.Equal(t, tt.state, item.State)
			assert.Equal(t, tt.conf, item.Confidence)
		})
	}
}

func TestCompute_FieldItems(t *testing.T) {
	e := newTestEngine(t)
	future := today.AddDate(0, 0, 2)

	in := motorInput()
	in.IncidentDate = &future
	in.IncidentDescription = "crash"

	status := e.Compute(in)

	assert.Equal(t, domain.ItemStateNeedsVerification, itemByKey(t, status, "incident_date").State)
	assert.Equal(t, domain.ItemStateNeedsVerification, itemByKey(t, status, "description").State)

	in.IncidentDate = nil
	in.IncidentDescription = ""
	status = e.Compute(in)
	assert.Equal(t, domain.ItemStateMissing, itemByKey(t, status, "incident_date").State)
	assert.Equal(t, domain.ItemStateMissing, itemByKey(t, status, "description").State)
}

func TestCompute_DecisionHints(t *testing.T) {
	e := newTestEngine(t)
	photos := doc("front.jpg", "motor_photos", domain.DocumentStatusValid, 0.8)
	license := doc("license.png", "drivers_license", domain.DocumentStatusValid, 0.9)

	status := e.Compute(motorInput(photos))
	assert.Equal(t, domain.DecisionAwaitingDocuments, status.DecisionHint)

	status = e.Compute(motorInput(photos, license))
	assert.Equal(t, domain.DecisionReadyForReview, status.DecisionHint)
	assert.Equal(t, "Optional: You may also provide repair invoice, estimate, or quotation to strengthen your claim.", status.NextPrompt)

	badReport := doc("police_report.pdf", "police_report", domain.DocumentStatusInvalid, 0.3)
	status = e.Compute(motorInput(photos, license, badReport))
	assert.Equal(t, domain.DecisionNeedsReview, status.DecisionHint)
	assert.Equal(t, "Issue with Police report or incident number (if applicable): Please upload a clearer police_report.", status.NextPrompt)

	lowLicense := doc("license.png", "drivers_license", domain.DocumentStatusValid, 0.5)
	status = e.Compute(motorInput(photos, lowLicense))
	assert.Equal(t, domain.DecisionNeedsReview, status.DecisionHint)
}

func TestCompute_UnknownClaimType(t *testing.T) {
	e := newTestEngine(t)

	status := e.Compute(Input{ClaimType: "pet", Today: today})

	require.Len(t, status.Items, 1)
	assert.Equal(t, domain.ItemStateNeedsReview, status.Items[0].State)
	assert.Equal(t, domain.DecisionNeedsReview, status.DecisionHint)
	assert.True(t, status.Summary.Balanced())

	_, err := e.Checklist("pet")
	assert.ErrorIs(t, err, ErrUnknownClaimType)
}

func TestCompute_Idempotent(t *testing.T) {
	e := newTestEngine(t)
	docs := []*domain.Document{
		doc("front.jpg", "motor_photos", domain.DocumentStatusValid, 0.8),
		doc("rear.jpg", "motor_photos", domain.DocumentStatusNeedsReview, 0.4),
		doc("police_report.pdf", "police_report", domain.DocumentStatusInvalid, 0.3),
		doc("license.png", "drivers_license", domain.DocumentStatusError, 0),
	}

	for _, claimType := range e.Checklists().Types() {
		in := motorInput(docs...)
		in.ClaimType = claimType

		first := e.Compute(in)
		second := e.Compute(in)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("%s: recomputation differs (-first +second):\n%s", claimType, diff)
		}
	}
}

func TestCompute_ProgressMonotonic(t *testing.T) {
	e := newTestEngine(t)

	for _, claimType := range e.Checklists().Types() {
		items, err := e.Checklist(claimType)
		require.NoError(t, err)

		var docs []*domain.Document
		in := motorInput()
		in.ClaimType = claimType
		prev := e.Compute(in).Progress

		for i, item := range items {
			if !item.IsDocument() || !item.Required {
				continue
			}
			docs = append(docs, doc(fmt.Sprintf("%s-%d.pdf", item.DocType, i), item.DocType, domain.DocumentStatusValid, 0.9))
			in.Documents = docs
			next := e.Compute(in).Progress
			assert.GreaterOrEqual(t, next, prev, "%s: adding %s decreased progress", claimType, item.Key)
			prev = next
		}
		assert.Equal(t, 100-optionalShare(items), prev, claimType)
	}
}

// optionalShare is the share of progress held by optional items, which stay
// missing in the monotonic test.
func optionalShare(items []ChecklistItem) int {
	var total, optional int
	for _, it := range items {
		if it.Required {
			total += requiredWeight
		} else {
			total += optionalWeight
			optional += optionalWeight
		}
	}
	return 100 - (total-optional)*100/total
}

func TestCompute_ConservationInvariant(t *testing.T) {
	e := newTestEngine(t)
	statuses := []string{
		domain.DocumentStatusValid,
		domain.DocumentStatusInvalid,
		domain.DocumentStatusNeedsReview,
		domain.DocumentStatusError,
		domain.DocumentStatusPendingReview,
	}

	for _, claimType := range append(e.Checklists().Types(), "unknown") {
		items, _ := e.Checklist(claimType)
		for si, st := range statuses {
			var docs []*domain.Document
			for i, item := range items {
				if item.IsDocument() && (i+si)%2 == 0 {
					docs = append(docs, doc(item.DocType+".pdf", item.DocType, st, float64(i%10)/10))
				}
			}
			in := motorInput(docs...)
			in.ClaimType = claimType
			s := e.Compute(in)
			c := s.Summary
			assert.Equal(t, c.TotalItems, c.CompletedItems+c.MissingItems+c.InvalidItems+c.ReviewItems, "%s/%s", claimType, st)
			assert.Len(t, s.Items, c.TotalItems)
		}
	}
}

func TestInferDocumentType(t *testing.T) {
	lists, err := DefaultChecklists()
	require.NoError(t, err)

	tests := []struct {
		claimType string
		file      string
		mime      string
		want      string
	}{
		{domain.ClaimTypeMotor, "police_report.pdf", "application/pdf", "police_report"},
		{domain.ClaimTypeMotor, "Garda Statement.pdf", "application/pdf", "police_report"},
		{domain.ClaimTypeMotor, "my-licence.png", "image/png", "drivers_license"},
		{domain.ClaimTypeMotor, "IMG_2041.jpg", "image/jpeg", "motor_photos"},
		{domain.ClaimTypeMotor, "quotation.pdf", "application/pdf", "quotation"},
		{domain.ClaimTypeTravel, "boarding-pass.pdf", "application/pdf", "boarding_pass"},
		{domain.ClaimTypeHealth, "hospital discharge.pdf", "application/pdf", "discharge"},
		{domain.ClaimTypeHealth, "notes.txt", "text/plain", domain.DocumentTypeOther},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			assert.Equal(t, tt.want, lists.InferDocumentType(tt.claimType, tt.file, tt.mime))
		})
	}
}

func TestParseChecklists_Errors(t *testing.T) {
	_, err := ParseChecklists([]byte("motor:\n  - key: x\n"))
	assert.Error(t, err)

	_, err = ParseChecklists([]byte("{}"))
	assert.Error(t, err)

	lists, err := ParseChecklists([]byte(`
motor:
  - key: photos
    title: Photos
    required: true
    doc_type: motor_photos
    accept_ext: [JPG, .png]
  - key: photos
    title: Duplicate
    doc_type: motor_photos
`))
	require.NoError(t, err)
	require.Len(t, lists["motor"], 1)
	assert.Equal(t, []string{".jpg", ".png"}, lists["motor"][0].AcceptExt)
	assert.Equal(t, 10, lists["motor"][0].MaxMB)
}
