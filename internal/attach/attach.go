// Package attach turns user-selected files into encoded attachments.
package attach

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/qwennnzim-del/gen2-ai/internal/types"
)

// MaxSize is the largest payload accepted for inline upload.
const MaxSize = 20 << 20

var ErrTooLarge = errors.New("attachment too large")

// Classify derives the attachment kind from the media type, falling back to
// the filename extension when the media type is empty or generic.
func Classify(mimeType, name string) types.AttachmentKind {
	if k, ok := kindOf(mimeType); ok {
		return k
	}
	if k, ok := kindOf(mime.TypeByExtension(strings.ToLower(filepath.Ext(name)))); ok {
		return k
	}
	return types.KindDocument
}

func kindOf(mimeType string) (types.AttachmentKind, bool) {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return types.KindImage, true
	case strings.HasPrefix(mimeType, "video/"):
		return types.KindVideo, true
	}
	return "", false
}

// Category is a finer display grouping used when listing attachments.
type Category string

const (
	CategoryImage       Category = "image"
	CategoryVideo       Category = "video"
	CategoryPDF         Category = "pdf"
	CategorySpreadsheet Category = "spreadsheet"
	CategoryCode        Category = "code"
	CategoryText        Category = "text"
)

// CategoryOf groups a file for display by media type and extension.
func CategoryOf(name, mimeType string) Category {
	switch Classify(mimeType, name) {
	case types.KindImage:
		return CategoryImage
	case types.KindVideo:
		return CategoryVideo
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return CategoryPDF
	case ".xlsx", ".xls", ".csv":
		return CategorySpreadsheet
	case ".js", ".ts", ".py", ".html", ".css", ".json":
		return CategoryCode
	}
	return CategoryText
}

// Encode builds an attachment from raw file content.
func Encode(name, mimeType string, data []byte) (types.Attachment, error) {
	if len(data) > MaxSize {
		return types.Attachment{}, fmt.Errorf("%s: %w (%d bytes)", name, ErrTooLarge, len(data))
	}
	if mimeType == "" {
		mimeType = DetectMimeType(name, data)
	}

	encoded := DataURI(mimeType, data)
	kind := Classify(mimeType, name)

	att := types.Attachment{
		Source: types.SourceFile{
			Name:     name,
			MimeType: mimeType,
			Size:     int64(len(data)),
		},
		Encoded: encoded,
		Kind:    kind,
	}
	if kind == types.KindImage {
		att.Preview = encoded
	}
	return att, nil
}

// ReadFile reads and encodes the file at path.
func ReadFile(path string) (types.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.Attachment{}, fmt.Errorf("stat attachment: %w", err)
	}
	if info.Size() > MaxSize {
		return types.Attachment{}, fmt.Errorf("%s: %w (%d bytes)", path, ErrTooLarge, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Attachment{}, fmt.Errorf("read attachment: %w", err)
	}
	name := filepath.Base(path)
	return Encode(name, DetectMimeType(name, data), data)
}

// DetectMimeType guesses the media type from the extension, then content.
func DetectMimeType(name string, data []byte) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); t != "" {
		return baseType(t)
	}
	return baseType(http.DetectContentType(data))
}

// baseType strips parameters such as "; charset=utf-8".
func baseType(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		return strings.TrimSpace(t[:i])
	}
	return t
}

// DataURI encodes data as a base64 data URI.
func DataURI(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI splits a base64 data URI into its media type and payload.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data URI missing payload")
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return mimeType, []byte(payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URI: %w", err)
	}
	return mimeType, data, nil
}
