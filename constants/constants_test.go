package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeTxType(t *testing.T) {
	tests := []struct {
		in   string
		want TxType
		ok   bool
	}{
		{"expense", Expense, true},
		{" EXPENSE ", Expense, true},
		{"Purchase", Expense, true},
		{"bill", Expense, true},
		{"income", Income, true},
		{"Refund", Income, true},
		{"sales", Income, true},
		{"", "", false},
		{"transfer", "", false},
	}
	for _, tt := range tests {
		got, ok := CanonicalizeTxType(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	assert.True(t, Income.IsValid())
	assert.False(t, TxType("EXPENSE").IsValid())
}

func TestParseProvider(t *testing.T) {
	for in, want := range map[string]Provider{
		"openai": ProviderOpenAI, "GPT": ProviderOpenAI,
		"claude": ProviderAnthropic, " anthropic ": ProviderAnthropic,
		"grok": ProviderXAI, "gemini": ProviderGoogle,
	} {
		got, err := ParseProvider(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseProvider("mistral")
	assert.Error(t, err)

	p := Providers()
	assert.Len(t, p, 4)
	p[0] = "mutated"
	assert.Equal(t, ProviderOpenAI, Providers()[0])
}

func TestExtensions(t *testing.T) {
	for _, ext := range []string{"pdf", ".PDF", "jpg", "JPEG", ".png"} {
		assert.True(t, IsAllowedExt(ext), ext)
	}
	for _, ext := range []string{"docx", "heic", "", ".txt"} {
		assert.False(t, IsAllowedExt(ext), ext)
	}
	assert.True(t, IsSupportedPath("/in/Scan.JPG"))
	assert.False(t, IsSupportedPath("/in/notes.docx"))
	assert.Equal(t, PDF, MapExtToFormat(".pdf"))
	assert.Equal(t, IMAGE, MapExtToFormat("jpeg"))
	assert.Equal(t, FileFormat(""), MapExtToFormat("gif"))
	assert.Equal(t, "image/jpeg", MimeTypeForExt("JPG"))
	assert.Equal(t, "application/octet-stream", MimeTypeForExt("docx"))
}

func TestFileState(t *testing.T) {
	path := []FileState{"", FileDiscovered, FileQueued, FileProcessing, FileArchivedSuccess}
	for i := 0; i+1 < len(path); i++ {
		assert.True(t, path[i].CanTransition(path[i+1]), "%s -> %s", path[i], path[i+1])
	}
	assert.True(t, FileProcessing.CanTransition(FileArchivedFailed))
	assert.False(t, FileDiscovered.CanTransition(FileProcessing), "no skipping")
	assert.False(t, FileArchivedSuccess.CanTransition(FileQueued), "terminal")
	assert.False(t, FileArchivedFailed.CanTransition(FileArchivedSuccess))
	assert.True(t, FileArchivedFailed.IsTerminal())
	assert.False(t, FileProcessing.IsTerminal())
}
