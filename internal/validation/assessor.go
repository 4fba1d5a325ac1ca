package validation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/liliang-cn/claimdesk/internal/domain"
	"golang.org/x/sync/errgroup"
)

// DocumentRef identifies a stored document for quality assessment
type DocumentRef struct {
	DocumentID   string
	Path         string
	FileName     string
	DocumentType string
	Item         *ChecklistItem
}

// Assessment is the quality assessor's verdict on one document
type Assessment struct {
	IsValid     bool
	Confidence  float64
	Issues      []string
	Suggestions []string
}

// Assessor judges whether an uploaded document is usable evidence
type Assessor interface {
	Assess(ctx context.Context, ref DocumentRef) (Assessment, error)
}

// AssessorFunc adapts a function to the Assessor interface
type AssessorFunc func(ctx context.Context, ref DocumentRef) (Assessment, error)

// Assess implements Assessor
func (f AssessorFunc) Assess(ctx context.Context, ref DocumentRef) (Assessment, error) {
	return f(ctx, ref)
}

// Apply turns an assessment (or the assessor's failure) into the document's
// validation record. A failed assessor never yields invalid: the document
// goes to human review instead.
func Apply(doc *domain.Document, a Assessment, err error, at time.Time) {
	v := domain.DocumentValidation{ValidatedAt: &at}
	switch {
	case err != nil:
		v.Status = domain.DocumentStatusError
		v.Issues = []string{fmt.Sprintf("Automatic check unavailable: %v", err)}
		v.Suggestions = []string{"An agent will review this document."}
	case a.IsValid:
		v.Status = domain.DocumentStatusValid
		v.Confidence = round2(a.Confidence)
		v.Issues = nonNil(a.Issues)
		v.Suggestions = nonNil(a.Suggestions)
	default:
		v.Status = domain.DocumentStatusInvalid
		v.Confidence = round2(a.Confidence)
		v.Issues = nonNil(a.Issues)
		v.Suggestions = nonNil(a.Suggestions)
	}
	doc.Validation = v
}

// Outcome pairs a reference with its assessment result
type Outcome struct {
	Ref        DocumentRef
	Assessment Assessment
	Err        error
}

// AssessAll runs the assessor over refs with at most limit in flight. Each
// document's failure is captured in its outcome; only context cancellation
// aborts the batch.
func AssessAll(ctx context.Context, a Assessor, refs []DocumentRef, limit int) ([]Outcome, error) {
	outcomes := make([]Outcome, len(refs))
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, ref := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := safeAssess(gctx, a, ref)
			outcomes[i] = Outcome{Ref: ref, Assessment: res, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func safeAssess(ctx context.Context, a Assessor, ref DocumentRef) (res Assessment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("assessor panic: %v", r)
		}
	}()
	return a.Assess(ctx, ref)
}

// BasicAssessor checks size, extension and content type without looking
// inside the pixels or text.
type BasicAssessor struct {
	// MaxBytes caps uploads when the checklist item has no own limit
	MaxBytes int64
}

// NewBasicAssessor creates a BasicAssessor
func NewBasicAssessor(maxBytes int64) *BasicAssessor {
	return &BasicAssessor{MaxBytes: maxBytes}
}

const (
	basicValidConfidence   = 0.8
	basicSparseConfidence  = 0.6
	basicInvalidConfidence = 0.3
	sparsePDFBytes         = 1024
)

// Assess implements Assessor
func (b *BasicAssessor) Assess(ctx context.Context, ref DocumentRef) (Assessment, error) {
	if err := ctx.Err(); err != nil {
		return Assessment{}, err
	}

	info, err := os.Stat(ref.Path)
	if err != nil {
		return Assessment{}, fmt.Errorf("failed to stat document: %w", err)
	}
	if info.Size() == 0 {
		return Assessment{
			Confidence:  0,
			Issues:      []string{"File is empty"},
			Suggestions: []string{"Please upload the document again."},
		}, nil
	}

	var issues, suggestions []string

	limit := b.MaxBytes
	if ref.Item != nil && ref.Item.MaxMB > 0 {
		limit = int64(ref.Item.MaxMB) * 1024 * 1024
	}
	if limit > 0 && info.Size() > limit {
		issues = append(issues, fmt.Sprintf("File size (%.1fMB) exceeds limit (%.1fMB)", float64(info.Size())/(1024*1024), float64(limit)/(1024*1024)))
		suggestions = append(suggestions, "Please compress the file or upload a smaller version.")
	}

	if ref.Item != nil && !ref.Item.Accepts(ref.FileName) {
		issues = append(issues, fmt.Sprintf("File type %s is not accepted for %s", filepath.Ext(ref.FileName), lowerFirst(ref.Item.Title)))
		suggestions = append(suggestions, fmt.Sprintf("Please upload one of: %s.", strings.Join(ref.Item.AcceptExt, ", ")))
	}

	mt, err := mimetype.DetectFile(ref.Path)
	if err != nil {
		return Assessment{}, fmt.Errorf("failed to detect content type: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(ref.FileName))
	switch {
	case ext == ".pdf" && !mt.Is("application/pdf"):
		issues = append(issues, "File does not look like a PDF")
		suggestions = append(suggestions, "Please export the document as a PDF and upload it again.")
	case imageExts[ext] && !strings.HasPrefix(mt.String(), "image/"):
		issues = append(issues, "Image could not be read")
		suggestions = append(suggestions, "Please ensure the image is clear and well-lit.")
	}

	if len(issues) > 0 {
		return Assessment{
			IsValid:     false,
			Confidence:  basicInvalidConfidence,
			Issues:      issues,
			Suggestions: suggestions,
		}, nil
	}

	if mt.Is("application/pdf") && info.Size() < sparsePDFBytes {
		return Assessment{
			IsValid:     true,
			Confidence:  basicSparseConfidence,
			Issues:      []string{"PDF appears to be scanned or contains little text"},
			Suggestions: []string{"Please ensure the PDF is readable or upload a clearer version."},
		}, nil
	}

	return Assessment{
		IsValid:     true,
		Confidence:  basicValidConfidence,
		Suggestions: []string{"Document appears to be readable"},
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
