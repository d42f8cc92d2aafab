package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentText     AttachmentType = "text"
	AttachmentPDF      AttachmentType = "pdf"
	AttachmentAudio    AttachmentType = "audio"
	AttachmentVideo    AttachmentType = "video"
	AttachmentDocument AttachmentType = "document"
	AttachmentUnknown  AttachmentType = "unknown"
)

const defaultMimeType = "application/octet-stream"

// maxURLAttachmentBytes bounds downloads made by AttachmentFromURL.
const maxURLAttachmentBytes = 20 << 20

var mimePrefixes = []struct {
	prefix string
	kind   AttachmentType
}{
	{"image/", AttachmentImage},
	{"text/", AttachmentText},
	{"audio/", AttachmentAudio},
	{"video/", AttachmentVideo},
}

var mimeExact = map[string]AttachmentType{
	"application/pdf":          AttachmentPDF,
	"application/json":         AttachmentText,
	"application/xml":          AttachmentText,
	"application/x-yaml":       AttachmentText,
	"application/msword":       AttachmentDocument,
	"application/rtf":          AttachmentDocument,
	"application/epub+zip":     AttachmentDocument,
	"application/vnd.ms-excel": AttachmentDocument,
}

var mimeSuffixes = []struct {
	suffix string
	kind   AttachmentType
}{
	{"+json", AttachmentText},
	{"+xml", AttachmentText},
}

var documentPrefixes = []string{
	"application/vnd.openxmlformats-officedocument.",
	"application/vnd.oasis.opendocument.",
}

// DetectAttachmentType classifies a MIME type.
func DetectAttachmentType(mimeType string) AttachmentType {
	mt := normalizeMime(mimeType)
	if kind, ok := mimeExact[mt]; ok {
		return kind
	}
	for _, p := range mimePrefixes {
		if strings.HasPrefix(mt, p.prefix) {
			return p.kind
		}
	}
	for _, p := range documentPrefixes {
		if strings.HasPrefix(mt, p) {
			return AttachmentDocument
		}
	}
	for _, s := range mimeSuffixes {
		if strings.HasSuffix(mt, s.suffix) {
			return s.kind
		}
	}
	return AttachmentUnknown
}

func normalizeMime(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mt = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	return strings.ToLower(mt)
}

// Attachment is an immutable multimedia payload. The byte slice returned by
// Content must not be modified.
type Attachment struct {
	content  []byte
	mimeType string
	filename string
	kind     AttachmentType
	metadata map[string]any
}

// NewAttachment builds an attachment from raw bytes.
func NewAttachment(content []byte, mimeType, filename string, metadata map[string]any) Attachment {
	mt := normalizeMime(mimeType)
	if mt == "" {
		mt = defaultMimeType
	}
	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return Attachment{
		content:  append([]byte(nil), content...),
		mimeType: mt,
		filename: filename,
		kind:     DetectAttachmentType(mt),
		metadata: md,
	}
}

// AttachmentFromFile reads path and classifies it by extension, falling back
// to content sniffing.
func AttachmentFromFile(p string) (Attachment, error) {
	content, err := os.ReadFile(p)
	if err != nil {
		return Attachment{}, fmt.Errorf("read attachment %q: %w", p, err)
	}
	mt := mime.TypeByExtension(filepath.Ext(p))
	if mt == "" {
		mt = http.DetectContentType(content)
	}
	return NewAttachment(content, mt, filepath.Base(p), map[string]any{
		"file_size": len(content),
		"source":    "file",
	}), nil
}

// AttachmentFromBase64 decodes standard base64. A data URI prefix
// ("data:image/png;base64,") is accepted and supplies the MIME type when
// mimeType is empty.
func AttachmentFromBase64(data, mimeType, filename string) (Attachment, error) {
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, payload, found := strings.Cut(rest, ",")
		if !found {
			return Attachment{}, &ValidationError{Field: "attachments", Reason: "malformed data uri"}
		}
		if mimeType == "" {
			mimeType = strings.TrimSuffix(header, ";base64")
		}
		data = payload
	}
	content, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return Attachment{}, &ValidationError{Field: "attachments", Reason: "invalid base64: " + err.Error()}
	}
	return NewAttachment(content, mimeType, filename, map[string]any{"source": "base64"}), nil
}

// AttachmentFromURL downloads rawURL using doer.
func AttachmentFromURL(ctx context.Context, doer HTTPDoer, rawURL string) (Attachment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Attachment{}, &ValidationError{Field: "attachments", Reason: "invalid url: " + err.Error()}
	}
	resp, err := doer.Do(req)
	if err != nil {
		return Attachment{}, fmt.Errorf("fetch attachment %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Attachment{}, fmt.Errorf("fetch attachment %s: status %d", rawURL, resp.StatusCode)
	}
	content, err := io.ReadAll(io.LimitReader(resp.Body, maxURLAttachmentBytes))
	if err != nil {
		return Attachment{}, fmt.Errorf("read attachment %s: %w", rawURL, err)
	}
	mt := resp.Header.Get("Content-Type")
	if mt == "" {
		mt = http.DetectContentType(content)
	}
	return NewAttachment(content, mt, path.Base(req.URL.Path), map[string]any{
		"source": "url",
		"url":    rawURL,
	}), nil
}

func (a Attachment) Content() []byte      { return a.content }
func (a Attachment) MimeType() string     { return a.mimeType }
func (a Attachment) Filename() string     { return a.filename }
func (a Attachment) Type() AttachmentType { return a.kind }

func (a Attachment) Metadata() map[string]any {
	md := make(map[string]any, len(a.metadata))
	for k, v := range a.metadata {
		md[k] = v
	}
	return md
}

func (a Attachment) ToBase64() string {
	return base64.StdEncoding.EncodeToString(a.content)
}

// DataURI renders the attachment as an inline data URI.
func (a Attachment) DataURI() string {
	return "data:" + a.mimeType + ";base64," + a.ToBase64()
}

// ToText returns the text of TEXT attachments. Every other type needs an
// extractor, see ExtractText.
func (a Attachment) ToText() (string, error) {
	if a.kind != AttachmentText {
		return "", &UnsupportedExtractionError{Type: a.kind}
	}
	return string(a.content), nil
}

// TextExtractor turns binary documents such as PDFs into text.
type TextExtractor interface {
	ExtractText(mimeType string, content []byte) (string, error)
}

// ExtractText is ToText extended with an extractor for PDF and document
// attachments.
func (a Attachment) ExtractText(ex TextExtractor) (string, error) {
	switch a.kind {
	case AttachmentText:
		return a.ToText()
	case AttachmentPDF, AttachmentDocument:
		if ex == nil {
			return "", &UnsupportedExtractionError{Type: a.kind}
		}
		return ex.ExtractText(a.mimeType, a.content)
	default:
		return "", &UnsupportedExtractionError{Type: a.kind}
	}
}
