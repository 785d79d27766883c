package ai

import (
	"fmt"

	"github.com/cloudwego/eino/schema"

	"gymchat/internal/models"
)

// turnToMessage converts a turn into one user message, keeping part order.
// Inline files travel as UserInputMultiContent parts with raw base64 data.
// Provider hosted files (Gemini Files API) fall back to MultiContent, the
// only field the gemini model reads file URIs from.
func turnToMessage(turn *models.ChatTurn) (*schema.Message, error) {
	if turn.Empty() {
		return nil, ErrEmptyTurn
	}
	if len(turn.Parts) == 1 && turn.Parts[0].Kind == models.PartText {
		return schema.UserMessage(turn.Parts[0].Text), nil
	}

	hosted := false
	for i, p := range turn.Parts {
		switch p.Kind {
		case models.PartText:
		case models.PartFile:
			if p.File == nil || p.File.URI == "" {
				return nil, fmt.Errorf("part %d: file reference without uri", i)
			}
			if _, _, ok := p.File.InlineData(); !ok {
				hosted = true
			}
		default:
			return nil, fmt.Errorf("part %d: unknown kind %q", i, p.Kind)
		}
	}
	if hosted {
		return hostedMessage(turn), nil
	}
	return inlineMessage(turn), nil
}

func inlineMessage(turn *models.ChatTurn) *schema.Message {
	parts := make([]schema.MessageInputPart, 0, len(turn.Parts))
	for _, p := range turn.Parts {
		if p.Kind == models.PartText {
			parts = append(parts, schema.MessageInputPart{
				Type: schema.ChatMessagePartTypeText,
				Text: p.Text,
			})
			continue
		}
		parts = append(parts, inputPart(p.File))
	}
	return &schema.Message{Role: schema.User, UserInputMultiContent: parts}
}

func inputPart(ref *models.FileReference) schema.MessageInputPart {
	mimeType, data, _ := ref.InlineData()
	common := schema.MessagePartCommon{
		Base64Data: &data,
		MIMEType:   mimeType,
	}
	if ref.IsImage() {
		return schema.MessageInputPart{
			Type:  schema.ChatMessagePartTypeImageURL,
			Image: &schema.MessageInputImage{MessagePartCommon: common},
		}
	}
	return schema.MessageInputPart{
		Type: schema.ChatMessagePartTypeFileURL,
		File: &schema.MessageInputFile{MessagePartCommon: common},
	}
}

func hostedMessage(turn *models.ChatTurn) *schema.Message {
	parts := make([]schema.ChatMessagePart, 0, len(turn.Parts))
	for _, p := range turn.Parts {
		if p.Kind == models.PartText {
			parts = append(parts, schema.ChatMessagePart{
				Type: schema.ChatMessagePartTypeText,
				Text: p.Text,
			})
			continue
		}
		parts = append(parts, hostedPart(p.File))
	}
	return &schema.Message{Role: schema.User, MultiContent: parts}
}

func hostedPart(ref *models.FileReference) schema.ChatMessagePart {
	if ref.IsImage() {
		return schema.ChatMessagePart{
			Type: schema.ChatMessagePartTypeImageURL,
			ImageURL: &schema.ChatMessageImageURL{
				URI:      ref.URI,
				MIMEType: ref.MIMEType,
			},
		}
	}
	return schema.ChatMessagePart{
		Type: schema.ChatMessagePartTypeFileURL,
		FileURL: &schema.ChatMessageFileURL{
			URI:      ref.URI,
			MIMEType: ref.MIMEType,
			Name:     ref.DisplayName,
		},
	}
}
