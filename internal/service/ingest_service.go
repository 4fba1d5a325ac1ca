package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dslipak/pdf"
	"github.com/google/uuid"
	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/liliang-cn/claimdesk/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// IngestService loads policy documents into the retrieval index
type IngestService struct {
	policyRepo *repository.PolicyRepository
	chunkSize  int
	logger     *zap.Logger
}

// NewIngestService creates a new ingest service
func NewIngestService(policyRepo *repository.PolicyRepository, chunkSize int, logger *zap.Logger) *IngestService {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	return &IngestService{policyRepo: policyRepo, chunkSize: chunkSize, logger: logger}
}

// FileType constants
const (
	FileTypePDF  = "pdf"
	FileTypeMD   = "md"
	FileTypeTXT  = "txt"
	FileTypeHTML = "html"
	FileTypeADOC = "adoc"
)

// DetectFileType detects file type from filename
func DetectFileType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return FileTypePDF
	case ".md", ".markdown":
		return FileTypeMD
	case ".txt":
		return FileTypeTXT
	case ".html", ".htm":
		return FileTypeHTML
	case ".adoc", ".asciidoc":
		return FileTypeADOC
	case "":
		return ""
	default:
		return ext[1:]
	}
}

// IsSupported checks if file type is supported
func IsSupported(fileType string) bool {
	switch fileType {
	case FileTypePDF, FileTypeMD, FileTypeTXT, FileTypeHTML, FileTypeADOC:
		return true
	}
	return false
}

// IngestFile indexes one policy file, replacing any earlier version with
// the same file name
func (s *IngestService) IngestFile(ctx context.Context, path string) (*domain.PolicyDocument, error) {
	filename := filepath.Base(path)
	fileType := DetectFileType(filename)
	if !IsSupported(fileType) {
		return nil, fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidInput, fileType)
	}

	text, err := extractPolicyText(path, fileType)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	chunks := chunkText(text, s.chunkSize)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s has no text", domain.ErrInvalidInput, filename)
	}

	doc := &domain.PolicyDocument{
		ID:       uuid.New().String(),
		Filename: filename,
		FileType: fileType,
	}
	if err := s.policyRepo.Replace(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("failed to index %s: %w", filename, err)
	}

	s.logger.Info("policy indexed",
		zap.String("file", filename),
		zap.Int("chunks", doc.ChunkCount))
	return doc, nil
}

// IngestDir indexes every supported file under dir. Files that fail are
// logged and skipped.
func (s *IngestService) IngestDir(ctx context.Context, dir string) ([]*domain.PolicyDocument, error) {
	var docs []*domain.PolicyDocument
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !IsSupported(DetectFileType(d.Name())) {
			return nil
		}
		doc, err := s.IngestFile(ctx, path)
		if err != nil {
			s.logger.Warn("skipping policy file", zap.String("path", path), zap.Error(err))
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return docs, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	return docs, nil
}

// ListPolicies lists indexed policy documents
func (s *IngestService) ListPolicies(ctx context.Context) ([]*domain.PolicyDocument, error) {
	return s.policyRepo.List(ctx)
}

func extractPolicyText(path, fileType string) (string, error) {
	switch fileType {
	case FileTypePDF:
		r, err := pdf.Open(path)
		if err != nil {
			return "", err
		}
		plain, err := r.GetPlainText()
		if err != nil {
			return "", err
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(plain); err != nil {
			return "", err
		}
		return buf.String(), nil
	case FileTypeHTML:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return htmlText(data)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// htmlText keeps the readable text of an HTML page, one block per
// paragraph
func htmlText(data []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	walkHTML(doc, &sb, 0)
	return sb.String(), nil
}

func walkHTML(n *html.Node, sb *strings.Builder, depth int) {
	if depth > 64 {
		return
	}
	switch n.Type {
	case html.TextNode:
		if text := strings.TrimSpace(n.Data); text != "" {
			sb.WriteString(text)
			sb.WriteString(" ")
		}
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "nav", "footer", "svg":
			return
		case "p", "div", "section", "h1", "h2", "h3", "h4", "li", "tr":
			sb.WriteString("\n\n")
		case "br":
			sb.WriteString("\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHTML(c, sb, depth+1)
	}
}

// chunkText splits text into chunks of at most size runes, breaking on
// paragraph boundaries and, for long paragraphs, on words
func chunkText(text string, size int) []string {
	var chunks []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
	}
	add := func(piece, sep string) {
		if cur.Len() > 0 && len([]rune(cur.String()))+len([]rune(piece))+len(sep) > size {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(piece)
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.Join(strings.Fields(para), " ")
		if para == "" {
			continue
		}
		if len([]rune(para)) <= size {
			add(para, "\n\n")
			continue
		}
		flush()
		for _, word := range strings.Fields(para) {
			add(word, " ")
		}
		flush()
	}
	flush()
	return chunks
}
