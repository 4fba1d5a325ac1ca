// Package validation computes a claim's checklist state from its documents
// and captured fields, and assesses individual document quality.
package validation

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/liliang-cn/claimdesk/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed checklists.yaml
var defaultChecklists []byte

// ErrUnknownClaimType is returned when no checklist exists for a claim type
var ErrUnknownClaimType = errors.New("unknown claim type")

// Claim fields a checklist item can be satisfied by
const (
	FieldIncidentDate        = "incident_date"
	FieldIncidentDescription = "incident_description"
)

// ChecklistItem is one required-or-optional piece of evidence
type ChecklistItem struct {
	Key             string   `yaml:"key" json:"key"`
	Title           string   `yaml:"title" json:"title"`
	Required        bool     `yaml:"required" json:"required"`
	DocType         string   `yaml:"doc_type,omitempty" json:"doc_type,omitempty"`
	ClaimFields     []string `yaml:"claim_fields,omitempty" json:"claim_fields,omitempty"`
	AcceptExt       []string `yaml:"accept_ext,omitempty" json:"accept_extensions,omitempty"`
	AlternativeDocs []string `yaml:"alternative_docs,omitempty" json:"alternative_docs,omitempty"`
	Keywords        []string `yaml:"keywords,omitempty" json:"-"`
	MaxMB           int      `yaml:"max_mb,omitempty" json:"max_size_mb"`
}

// IsDocument reports whether the item is satisfied by uploads
func (i ChecklistItem) IsDocument() bool {
	return i.DocType != ""
}

// Matches reports whether a document of docType counts toward the item
func (i ChecklistItem) Matches(docType string) bool {
	if docType == "" || !i.IsDocument() {
		return false
	}
	if docType == i.DocType {
		return true
	}
	for _, alt := range i.AlternativeDocs {
		if alt == docType {
			return true
		}
	}
	return false
}

// Accepts reports whether the file extension is allowed for the item.
// Items without an extension list accept anything.
func (i ChecklistItem) Accepts(fileName string) bool {
	if len(i.AcceptExt) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, a := range i.AcceptExt {
		if a == ext {
			return true
		}
	}
	return false
}

// Checklists maps claim type to its ordered checklist
type Checklists map[string][]ChecklistItem

// DefaultChecklists returns the built-in checklists
func DefaultChecklists() (Checklists, error) {
	return ParseChecklists(defaultChecklists)
}

// LoadChecklists reads checklists from a YAML file. An empty path yields
// the built-in set.
func LoadChecklists(path string) (Checklists, error) {
	if path == "" {
		return DefaultChecklists()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checklist file: %w", err)
	}
	return ParseChecklists(data)
}

// ParseChecklists decodes and checks a YAML checklist document
func ParseChecklists(data []byte) (Checklists, error) {
	var lists Checklists
	if err := yaml.Unmarshal(data, &lists); err != nil {
		return nil, fmt.Errorf("failed to parse checklists: %w", err)
	}
	if len(lists) == 0 {
		return nil, fmt.Errorf("no checklists defined")
	}

	for claimType, items := range lists {
		seen := make(map[string]bool, len(items))
		deduped := items[:0]
		for i := range items {
			item := items[i]
			if item.Key == "" || item.Title == "" {
				return nil, fmt.Errorf("checklist %s: item %d needs key and title", claimType, i)
			}
			if item.DocType == "" && len(item.ClaimFields) == 0 {
				return nil, fmt.Errorf("checklist %s: item %s has neither doc_type nor claim_fields", claimType, item.Key)
			}
			if seen[item.Key] {
				continue
			}
			seen[item.Key] = true
			if item.MaxMB == 0 {
				item.MaxMB = 10
			}
			for j, ext := range item.AcceptExt {
				ext = strings.ToLower(ext)
				if !strings.HasPrefix(ext, ".") {
					ext = "." + ext
				}
				item.AcceptExt[j] = ext
			}
			deduped = append(deduped, item)
		}
		lists[claimType] = deduped
	}

	return lists, nil
}

// Types returns the configured claim types in sorted order
func (c Checklists) Types() []string {
	types := make([]string, 0, len(c))
	for t := range c {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Item looks up the checklist item a document type belongs to
func (c Checklists) Item(claimType, docType string) (ChecklistItem, bool) {
	for _, item := range c[claimType] {
		if item.Matches(docType) {
			return item, true
		}
	}
	return ChecklistItem{}, false
}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".heic": true, ".webp": true, ".gif": true,
}

// InferDocumentType guesses the checklist document type of an upload from
// its file name, falling back to the claim's photo item for images.
func (c Checklists) InferDocumentType(claimType, fileName, mimeType string) string {
	items := c[claimType]
	name := strings.ToLower(strings.TrimSuffix(fileName, filepath.Ext(fileName)))
	name = strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(name)

	for _, item := range items {
		if !item.IsDocument() {
			continue
		}
		if strings.Contains(name, item.DocType) {
			return item.DocType
		}
		for _, alt := range item.AlternativeDocs {
			if strings.Contains(name, alt) {
				return alt
			}
		}
	}
	for _, item := range items {
		if !item.IsDocument() {
			continue
		}
		for _, kw := range item.Keywords {
			if strings.Contains(name, kw) {
				return item.DocType
			}
		}
	}

	ext := strings.ToLower(filepath.Ext(fileName))
	if imageExts[ext] || strings.HasPrefix(mimeType, "image/") {
		for _, item := range items {
			if strings.HasSuffix(item.DocType, "_photos") {
				return item.DocType
			}
		}
	}

	return domain.DocumentTypeOther
}
