package llm

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/bookkeeper/constants"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestLoadDocument(t *testing.T) {
	t.Run("pdf", func(t *testing.T) {
		doc, err := LoadDocument(writeFile(t, "Receipt.PDF", []byte("%PDF-1.7\n...")))
		require.Nil(t, err)
		assert.Equal(t, "pdf", doc.Ext)
		assert.Equal(t, constants.PDF, doc.Format)
		assert.Equal(t, "application/pdf", doc.MIMEType)
		assert.False(t, doc.IsImage())
		assert.True(t, strings.HasPrefix(doc.DataURL(), "data:application/pdf;base64,"))
		assert.Len(t, doc.Fingerprint(), 64)
	})

	t.Run("png", func(t *testing.T) {
		doc, err := LoadDocument(writeFile(t, "shot.png", pngMagic))
		require.Nil(t, err)
		assert.True(t, doc.IsImage())
		assert.Equal(t, "image/png", doc.MIMEType)
	})

	t.Run("jpeg", func(t *testing.T) {
		doc, err := LoadDocument(writeFile(t, "shot.jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0x10, 'J', 'F', 'I', 'F'}))
		require.Nil(t, err)
		assert.Equal(t, "image/jpeg", doc.MIMEType)
	})

	folder := filepath.Join(t.TempDir(), "folder.pdf")
	require.NoError(t, os.Mkdir(folder, 0o755))

	bad := map[string]string{
		"docx":          writeFile(t, "memo.docx", []byte("PK\x03\x04")),
		"no extension":  writeFile(t, "README", []byte("%PDF-")),
		"empty":         writeFile(t, "blank.pdf", nil),
		"lying pdf":     writeFile(t, "memo.pdf", []byte("PK\x03\x04")),
		"lying png":     writeFile(t, "memo.png", []byte("%PDF-1.4")),
		"missing":       filepath.Join(t.TempDir(), "gone.pdf"),
		"directory":     folder,
	}
	for name, path := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := LoadDocument(path)
			require.NotNil(t, err)
			assert.Equal(t, KindUnsupportedFormat, err.Kind)
		})
	}
}

func TestDocument_WithImage(t *testing.T) {
	doc := Document{Name: "invoice.pdf", Ext: "pdf", Format: constants.PDF, MIMEType: "application/pdf", Data: []byte("%PDF-")}
	img := doc.WithImage(pngMagic, 2)
	assert.Equal(t, "invoice-p2.png", img.Name)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.True(t, img.IsImage())
	assert.Equal(t, constants.PDF, doc.Format, "original untouched")
}

type countingProvider struct{ n int }

func (c *countingProvider) Name() string { return "counting" }
func (c *countingProvider) Extract(context.Context, Document, []string) Result {
	c.n++
	return Result{Provider: "counting"}
}

func TestRateLimited(t *testing.T) {
	inner := &countingProvider{}
	assert.Same(t, Provider(inner), NewRateLimited(inner, 0, nil), "disabled limiter returns the provider")

	p := NewRateLimited(inner, 1, nil)
	assert.Equal(t, "counting", p.Name())
	require.True(t, p.Extract(context.Background(), Document{}, nil).Success(), "first call uses the burst token")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res := p.Extract(ctx, Document{}, nil)
	require.False(t, res.Success())
	assert.Equal(t, KindRateLimit, res.Err.Kind)
	assert.Equal(t, 1, inner.n)
}
