// Package llmtest provides a scriptable Provider and sample documents for tests.
package llmtest

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/joseph-ayodele/bookkeeper/internal/llm"
)

// Stub is a Provider whose answer is produced by Fn. Calls are counted.
type Stub struct {
	ProviderName string
	Fn           func(ctx context.Context, doc llm.Document, categories []string) llm.Result

	mu       sync.Mutex
	calls    int
	lastCats []string
}

// Returning answers every call with fields.
func Returning(name string, fields llm.RawFields) *Stub {
	return &Stub{ProviderName: name, Fn: func(context.Context, llm.Document, []string) llm.Result {
		return llm.Result{Provider: name, Fields: fields, RawResponse: []byte(`{}`)}
	}}
}

// Failing answers every call with an error of kind.
func Failing(name string, kind llm.ErrorKind) *Stub {
	return &Stub{ProviderName: name, Fn: func(context.Context, llm.Document, []string) llm.Result {
		return llm.Failed(name, llm.Errorf(kind, "scripted %s", kind))
	}}
}

func (s *Stub) Name() string { return s.ProviderName }

func (s *Stub) Extract(ctx context.Context, doc llm.Document, categories []string) llm.Result {
	s.mu.Lock()
	s.calls++
	s.lastCats = append([]string(nil), categories...)
	s.mu.Unlock()
	return s.Fn(ctx, doc, categories)
}

// Calls is the number of Extract invocations so far.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastCategories is the category list passed on the most recent call.
func (s *Stub) LastCategories() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCats
}

// OfficeDepot is the canonical receipt used across tests.
var OfficeDepot = llm.RawFields{
	Date:        "2025-10-20",
	Vendor:      "Office Depot",
	Amount:      "52.52",
	TaxAmount:   "0",
	Category:    "Office Supplies",
	Description: "printer paper and toner",
	Type:        "expense",
}

var pngHeader = []byte{
	0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n',
	0x00, 0x00, 0x00, 0x0d, 'I', 'H', 'D', 'R',
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x02, 0x00, 0x00, 0x00,
}

// WritePDF writes a minimal PDF named name under dir. The body embeds name so
// fingerprints differ per file.
func WritePDF(t testing.TB, dir, name string) string {
	t.Helper()
	return write(t, dir, name, []byte("%PDF-1.4\n% "+name+"\n%%EOF\n"))
}

// WritePNG writes bytes that sniff as image/png.
func WritePNG(t testing.TB, dir, name string) string {
	t.Helper()
	return write(t, dir, name, append(append([]byte{}, pngHeader...), []byte(name)...))
}

// WriteFile writes arbitrary content.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	return write(t, dir, name, data)
}

func write(t testing.TB, dir, name string, data []byte) string {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
