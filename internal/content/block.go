// Package content defines and validates the typed content blocks a leaf
// section may own. Blocks are a closed set: paragraph, list, code, image
// and video. The package is pure; persistence stores each block as a
// (kind, payload) pair with the kind stripped out of the payload.
package content

import (
	"encoding/json"
	"fmt"
	"net/url"
)

const (
	KindParagraph = "paragraph"
	KindList      = "list"
	KindCode      = "code"
	KindImage     = "image"
	KindVideo     = "video"
)

var allowedFontSizes = map[string]struct{}{
	"sm":   {},
	"base": {},
	"lg":   {},
	"xl":   {},
}

var allowedFontWeights = map[string]struct{}{
	"normal":   {},
	"medium":   {},
	"semibold": {},
	"bold":     {},
}

// FieldError reports a validation failure addressed to a single field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

func fieldError(field, message string) *FieldError {
	return &FieldError{Field: field, Message: message}
}

// Block is one of the five content block variants.
type Block interface {
	Kind() string
	isBlock()
}

// Style carries optional text presentation hints shared by paragraph text
// and list items.
type Style struct {
	FontSize   string `json:"fontSize,omitempty"`
	FontWeight string `json:"fontWeight,omitempty"`
	Accent     bool   `json:"accent,omitempty"`
	Highlight  bool   `json:"highlight,omitempty"`
}

func (s *Style) validate(field string) *FieldError {
	if s == nil {
		return nil
	}
	if s.FontSize != "" {
		if _, ok := allowedFontSizes[s.FontSize]; !ok {
			return fieldError(field+".fontSize", "must be one of sm, base, lg, xl")
		}
	}
	if s.FontWeight != "" {
		if _, ok := allowedFontWeights[s.FontWeight]; !ok {
			return fieldError(field+".fontWeight", "must be one of normal, medium, semibold, bold")
		}
	}
	return nil
}

type Paragraph struct {
	Text  string `json:"text"`
	Style *Style `json:"style,omitempty"`
}

func (*Paragraph) Kind() string { return KindParagraph }
func (*Paragraph) isBlock()     {}

// ListItem is a single entry of a list block. Incoming JSON may give an
// item as a bare string, shorthand for an unstyled {text}; both forms are
// normalized to the object form so downstream code sees one shape.
type ListItem struct {
	Text  string `json:"text"`
	Style *Style `json:"style,omitempty"`
}

func (it *ListItem) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		it.Text = text
		it.Style = nil
		return nil
	}
	type plain ListItem
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*it = ListItem(decoded)
	return nil
}

type List struct {
	Title string     `json:"title,omitempty"`
	Items []ListItem `json:"items"`
}

func (*List) Kind() string { return KindList }
func (*List) isBlock()     {}

type Code struct {
	Title    string `json:"title,omitempty"`
	Language string `json:"language,omitempty"`
	Value    string `json:"value"`
}

func (*Code) Kind() string { return KindCode }
func (*Code) isBlock()     {}

type Image struct {
	Alt     string `json:"alt"`
	Src     string `json:"src"`
	Caption string `json:"caption,omitempty"`
}

func (*Image) Kind() string { return KindImage }
func (*Image) isBlock()     {}

type Video struct {
	Title     string `json:"title,omitempty"`
	YoutubeID string `json:"youtubeId"`
}

func (*Video) Kind() string { return KindVideo }
func (*Video) isBlock()     {}

// DecodeBlock validates and normalizes one untyped block description.
// Failures are *FieldError values naming the offending field.
func DecodeBlock(raw json.RawMessage) (Block, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fieldError("type", "block must be a JSON object with a type field")
	}

	switch probe.Type {
	case KindParagraph:
		var block Paragraph
		if err := json.Unmarshal(raw, &block); err != nil {
			return nil, fieldError(KindParagraph, "malformed paragraph block")
		}
		if block.Text == "" {
			return nil, fieldError("text", "must be a non-empty string")
		}
		if err := block.Style.validate("style"); err != nil {
			return nil, err
		}
		return &block, nil

	case KindList:
		var block List
		if err := json.Unmarshal(raw, &block); err != nil {
			return nil, fieldError(KindList, "malformed list block")
		}
		if len(block.Items) == 0 {
			return nil, fieldError("items", "must contain at least one entry")
		}
		for i, item := range block.Items {
			if item.Text == "" {
				return nil, fieldError(fmt.Sprintf("items[%d].text", i), "must be a non-empty string")
			}
			if err := item.Style.validate(fmt.Sprintf("items[%d].style", i)); err != nil {
				return nil, err
			}
		}
		return &block, nil

	case KindCode:
		var block Code
		if err := json.Unmarshal(raw, &block); err != nil {
			return nil, fieldError(KindCode, "malformed code block")
		}
		if block.Value == "" {
			return nil, fieldError("value", "must be a non-empty string")
		}
		return &block, nil

	case KindImage:
		var block Image
		if err := json.Unmarshal(raw, &block); err != nil {
			return nil, fieldError(KindImage, "malformed image block")
		}
		if block.Alt == "" {
			return nil, fieldError("alt", "must be a non-empty string")
		}
		if !isAbsoluteURL(block.Src) {
			return nil, fieldError("src", "must be an absolute URL")
		}
		return &block, nil

	case KindVideo:
		var block Video
		if err := json.Unmarshal(raw, &block); err != nil {
			return nil, fieldError(KindVideo, "malformed video block")
		}
		if block.YoutubeID == "" {
			return nil, fieldError("youtubeId", "must be a non-empty string")
		}
		return &block, nil

	case "":
		return nil, fieldError("type", "is required")
	default:
		return nil, fieldError("type", "must be one of paragraph, list, code, image, video")
	}
}

// DecodeBlocks validates an ordered sequence of block descriptions. Field
// errors are prefixed with the block's position, e.g. content[2].src.
func DecodeBlocks(raws []json.RawMessage) ([]Block, error) {
	blocks := make([]Block, 0, len(raws))
	for i, raw := range raws {
		block, err := DecodeBlock(raw)
		if err != nil {
			if fe, ok := err.(*FieldError); ok {
				return nil, fieldError(fmt.Sprintf("content[%d].%s", i, fe.Field), fe.Message)
			}
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func isAbsoluteURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return parsed.IsAbs() && parsed.Host != ""
}
