package llm

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/bookkeeper/constants"
)

// LoadDocument reads a supported file into memory. Wrong extension, unreadable,
// empty, oversized, or content that does not match its extension is unsupported_format.
func LoadDocument(path string) (Document, *ExtractionError) {
	ext := constants.NormalizeExt(filepath.Ext(path))
	if !constants.IsAllowedExt(ext) {
		return Document{}, Errorf(KindUnsupportedFormat, "extension %q is not supported", ext)
	}

	st, err := os.Stat(path)
	if err != nil {
		return Document{}, NewError(KindUnsupportedFormat, "file is not readable", err)
	}
	if st.IsDir() {
		return Document{}, Errorf(KindUnsupportedFormat, "%s is a directory", path)
	}
	if st.Size() > int64(constants.MaxDocumentMB)*1024*1024 {
		return Document{}, Errorf(KindUnsupportedFormat, "file exceeds %d MB", constants.MaxDocumentMB)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Document{}, NewError(KindUnsupportedFormat, "file is not readable", err)
	}
	if len(b) == 0 {
		return Document{}, Errorf(KindUnsupportedFormat, "file is empty")
	}

	doc := Document{
		Path:     path,
		Name:     filepath.Base(path),
		Ext:      ext,
		Format:   constants.MapExtToFormat(ext),
		MIMEType: constants.MimeTypeForExt(ext),
		Data:     b,
	}
	if !contentMatches(doc) {
		return Document{}, Errorf(KindUnsupportedFormat, "content of %s does not look like %s", doc.Name, doc.MIMEType)
	}
	return doc, nil
}

// contentMatches sniffs magic bytes so a renamed .docx never reaches a vendor.
func contentMatches(doc Document) bool {
	if doc.Format == constants.PDF {
		return bytes.HasPrefix(bytes.TrimLeft(doc.Data[:min(len(doc.Data), 1024)], "\x00\t\r\n "), []byte("%PDF-"))
	}
	sniffed := http.DetectContentType(doc.Data)
	return sniffed == doc.MIMEType
}

// DataURL renders the document as a base64 data URL.
func (d Document) DataURL() string {
	return "data:" + d.MIMEType + ";base64," + d.Base64()
}

// Base64 is the standard-encoded document body.
func (d Document) Base64() string {
	return base64.StdEncoding.EncodeToString(d.Data)
}

// Fingerprint is the sha256 of the document bytes, hex-encoded.
func (d Document) Fingerprint() string {
	sum := sha256.Sum256(d.Data)
	return hex.EncodeToString(sum[:])
}

// IsImage reports whether the document can be sent as an image part.
func (d Document) IsImage() bool {
	return d.Format == constants.IMAGE
}

// WithImage returns a copy carrying rendered image bytes in place of the original content.
func (d Document) WithImage(png []byte, page int) Document {
	out := d
	out.Data = png
	out.Ext = "png"
	out.Format = constants.IMAGE
	out.MIMEType = "image/png"
	if page > 0 {
		out.Name = strings.TrimSuffix(d.Name, filepath.Ext(d.Name)) + "-p" + strconv.Itoa(page) + ".png"
	}
	return out
}
