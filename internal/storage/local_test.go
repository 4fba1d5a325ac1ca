package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_SaveAndOpen(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	content := []byte("%PDF-1.4\nhello")
	stored, err := store.Save(context.Background(), "claim-1", "Police Report.PDF", content)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stored.Ref, "claim-1/"))
	assert.True(t, strings.HasSuffix(stored.Ref, ".pdf"))
	assert.Equal(t, "application/pdf", stored.MimeType)
	assert.Equal(t, int64(len(content)), stored.Size)

	data, err := store.Open(stored.Ref)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	entries, err := os.ReadDir(filepath.Dir(stored.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary upload file left behind")
}

func TestLocalStore_RejectsEscapes(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, ref := range []string{"", "../etc/passwd", "claim/../../x", `claim\..\x`, "."} {
		_, err := store.Path(ref)
		assert.ErrorIs(t, err, ErrInvalidRef, ref)
	}

	_, err = store.Save(context.Background(), "../other", "a.png", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidRef)
}
