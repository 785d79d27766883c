package models

import "strings"

// FileReference is a handle to a file accepted by the AI provider. It is only
// valid for the turn it was staged for.
type FileReference struct {
	Name        string `json:"name"`
	URI         string `json:"uri"`
	MIMEType    string `json:"mime_type"`
	DisplayName string `json:"display_name"`
}

// IsImage reports whether the referenced file should be sent as an image part.
func (r *FileReference) IsImage() bool {
	return r != nil && strings.HasPrefix(r.MIMEType, "image/")
}

// InlineData splits a base64 data URL reference into its media type and
// payload. ok is false for references hosted by the provider.
func (r *FileReference) InlineData() (mimeType, data string, ok bool) {
	if r == nil {
		return "", "", false
	}
	rest, found := strings.CutPrefix(r.URI, "data:")
	if !found {
		return "", "", false
	}
	meta, data, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mimeType, found = strings.CutSuffix(meta, ";base64")
	if !found {
		return "", "", false
	}
	if mimeType == "" {
		mimeType = r.MIMEType
	}
	return mimeType, data, true
}

type PartKind string

const (
	PartText PartKind = "text"
	PartFile PartKind = "file"
)

// Part is either a text segment or a file reference.
type Part struct {
	Kind PartKind
	Text string
	File *FileReference
}

// ChatTurn is the ordered list of parts submitted to the AI session in one send.
type ChatTurn struct {
	Parts []Part
}

func (t *ChatTurn) AddText(text string) {
	t.Parts = append(t.Parts, Part{Kind: PartText, Text: text})
}

func (t *ChatTurn) AddFile(ref *FileReference) {
	if ref == nil {
		return
	}
	t.Parts = append(t.Parts, Part{Kind: PartFile, File: ref})
}

func (t *ChatTurn) Empty() bool {
	return t == nil || len(t.Parts) == 0
}

// Text joins the text parts, used for transcripts and logs.
func (t *ChatTurn) Text() string {
	if t == nil {
		return ""
	}
	var texts []string
	for _, p := range t.Parts {
		if p.Kind == PartText {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// FileNames lists the display names of the file parts in order.
func (t *ChatTurn) FileNames() []string {
	if t == nil {
		return nil
	}
	var names []string
	for _, p := range t.Parts {
		if p.Kind == PartFile && p.File != nil {
			names = append(names, p.File.DisplayName)
		}
	}
	return names
}
