// internal/types/models.go
package types

import (
	"time"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// AttachmentKind is the coarse media class of an attachment.
type AttachmentKind string

const (
	KindImage    AttachmentKind = "image"
	KindVideo    AttachmentKind = "video"
	KindDocument AttachmentKind = "document"
)

// SourceFile describes the file an attachment was created from.
type SourceFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

// Attachment is a user-supplied file bound to a single user message.
// Encoded holds the full payload as a data URI; Preview is only set for images.
type Attachment struct {
	Source  SourceFile     `json:"source"`
	Preview string         `json:"preview,omitempty"`
	Encoded string         `json:"encoded"`
	Kind    AttachmentKind `json:"kind"`
}

type Message struct {
	ID          MessageID    `json:"id"`
	Role        Role         `json:"role"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ChatSession is a persisted conversation thread.
type ChatSession struct {
	ID        SessionID `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a copy whose message slice can be appended to without
// affecting the original.
func (s ChatSession) Clone() ChatSession {
	s.Messages = CloneMessages(s.Messages)
	return s
}

// CloneMessages copies a message slice. Messages are immutable once
// created, so a shallow element copy is enough.
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// GenerateRequest is the input to a single model call. History holds only
// the messages that existed before the current turn.
type GenerateRequest struct {
	History     []Message
	Text        string
	Model       ModelType
	Language    Language
	Attachments []Attachment
}
