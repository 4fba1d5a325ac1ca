package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/liliang-cn/claimdesk/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDetectFileType(t *testing.T) {
	tests := []struct {
		name      string
		filename  string
		want      string
		supported bool
	}{
		{"pdf", "policy.PDF", FileTypePDF, true},
		{"markdown", "terms.markdown", FileTypeMD, true},
		{"text", "notes.txt", FileTypeTXT, true},
		{"html", "faq.htm", FileTypeHTML, true},
		{"asciidoc", "guide.adoc", FileTypeADOC, true},
		{"docx", "letter.docx", "docx", false},
		{"no extension", "README", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectFileType(tt.filename)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.supported, IsSupported(got))
		})
	}
}

func TestChunkText(t *testing.T) {
	t.Run("packs paragraphs", func(t *testing.T) {
		chunks := chunkText("one two\n\nthree\r\n\r\nfour", 100)
		assert.Equal(t, []string{"one two\n\nthree\n\nfour"}, chunks)
	})

	t.Run("splits at paragraph boundaries", func(t *testing.T) {
		chunks := chunkText("aaaa bbbb\n\ncccc dddd", 12)
		assert.Equal(t, []string{"aaaa bbbb", "cccc dddd"}, chunks)
	})

	t.Run("splits long paragraphs on words", func(t *testing.T) {
		para := strings.Repeat("word ", 50)
		chunks := chunkText(para, 20)
		require.Greater(t, len(chunks), 1)
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), 20)
			assert.NotContains(t, c, "  ")
		}
	})

	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, chunkText(" \n\n \t", 50))
	})
}

func newTestIngest(t *testing.T) (*IngestService, *repository.PolicyRepository) {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "policies.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := repository.NewPolicyRepository(db)
	return NewIngestService(repo, 200, zap.NewNop()), repo
}

func TestIngestService_IngestFile(t *testing.T) {
	svc, repo := newTestIngest(t)
	ctx := context.Background()
	dir := t.TempDir()

	md := filepath.Join(dir, "motor.md")
	require.NoError(t, os.WriteFile(md, []byte("# Motor cover\n\nWindscreen damage is covered without excess.\n\nTowing is limited to 50 miles."), 0o644))
	doc, err := svc.IngestFile(ctx, md)
	require.NoError(t, err)
	assert.Equal(t, "motor.md", doc.Filename)
	assert.Equal(t, FileTypeMD, doc.FileType)
	assert.Equal(t, 1, doc.ChunkCount)

	page := filepath.Join(dir, "travel.html")
	require.NoError(t, os.WriteFile(page, []byte(`<html><head><style>p{color:red}</style><script>var excess=1</script></head>
<body><nav>Home</nav><h1>Travel</h1><p>Lost baggage claims need a property irregularity report.</p></body></html>`), 0o644))
	_, err = svc.IngestFile(ctx, page)
	require.NoError(t, err)

	sources, err := repo.Search(ctx, "baggage report", 3)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "travel.html", sources[0].Filename)
	assert.NotContains(t, sources[0].Content, "color")
	assert.NotContains(t, sources[0].Content, "Home")

	sources, err = repo.Search(ctx, "excess", 3)
	require.NoError(t, err)
	require.Len(t, sources, 1, "script text is not indexed")
	assert.Equal(t, "motor.md", sources[0].Filename)

	// reindexing a file replaces its chunks
	require.NoError(t, os.WriteFile(md, []byte("Hail damage is covered."), 0o644))
	_, err = svc.IngestFile(ctx, md)
	require.NoError(t, err)
	sources, err = repo.Search(ctx, "windscreen", 3)
	require.NoError(t, err)
	assert.Empty(t, sources)

	policies, err := svc.ListPolicies(ctx)
	require.NoError(t, err)
	assert.Len(t, policies, 2)
}

func TestIngestService_IngestFileRejects(t *testing.T) {
	svc, _ := newTestIngest(t)
	dir := t.TempDir()

	docx := filepath.Join(dir, "letter.docx")
	require.NoError(t, os.WriteFile(docx, []byte("x"), 0o644))
	_, err := svc.IngestFile(context.Background(), docx)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	blank := filepath.Join(dir, "blank.txt")
	require.NoError(t, os.WriteFile(blank, []byte("\n\n  \n"), 0o644))
	_, err = svc.IngestFile(context.Background(), blank)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestIngestService_IngestDir(t *testing.T) {
	svc, _ := newTestIngest(t)
	dir := t.TempDir()
	files := map[string]string{
		"general.txt":          "All claims must be reported within 30 days.",
		"health/outpatient.md": "Outpatient visits require an itemised bill.",
		"health/broken.pdf":    "not really a pdf",
		"images/logo.png":      "",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}

	docs, err := svc.IngestDir(context.Background(), dir)
	require.NoError(t, err)
	var names []string
	for _, d := range docs {
		names = append(names, d.Filename)
	}
	assert.ElementsMatch(t, []string{"general.txt", "outpatient.md"}, names)
}
