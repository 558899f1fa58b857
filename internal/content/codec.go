package content

import (
	"encoding/json"
	"fmt"
)

// The API representation of a block carries a "type" discriminator; the
// persisted payload does not, because the kind lives in its own column.
// The shadow-type aliases below marshal the bare payloads.

func (p *Paragraph) MarshalJSON() ([]byte, error) {
	type payload Paragraph
	return json.Marshal(struct {
		Type string `json:"type"`
		*payload
	}{KindParagraph, (*payload)(p)})
}

func (l *List) MarshalJSON() ([]byte, error) {
	type payload List
	return json.Marshal(struct {
		Type string `json:"type"`
		*payload
	}{KindList, (*payload)(l)})
}

func (c *Code) MarshalJSON() ([]byte, error) {
	type payload Code
	return json.Marshal(struct {
		Type string `json:"type"`
		*payload
	}{KindCode, (*payload)(c)})
}

func (i *Image) MarshalJSON() ([]byte, error) {
	type payload Image
	return json.Marshal(struct {
		Type string `json:"type"`
		*payload
	}{KindImage, (*payload)(i)})
}

func (v *Video) MarshalJSON() ([]byte, error) {
	type payload Video
	return json.Marshal(struct {
		Type string `json:"type"`
		*payload
	}{KindVideo, (*payload)(v)})
}

// EncodePayload serializes a block without its type tag for storage.
func EncodePayload(block Block) ([]byte, error) {
	switch b := block.(type) {
	case *Paragraph:
		type payload Paragraph
		return json.Marshal((*payload)(b))
	case *List:
		type payload List
		return json.Marshal((*payload)(b))
	case *Code:
		type payload Code
		return json.Marshal((*payload)(b))
	case *Image:
		type payload Image
		return json.Marshal((*payload)(b))
	case *Video:
		type payload Video
		return json.Marshal((*payload)(b))
	default:
		return nil, fmt.Errorf("encode payload: unknown block kind %q", block.Kind())
	}
}

// DecodeStored rebuilds a block from its persisted kind and payload.
func DecodeStored(kind string, payload []byte) (Block, error) {
	switch kind {
	case KindParagraph:
		var block Paragraph
		if err := json.Unmarshal(payload, &block); err != nil {
			return nil, fmt.Errorf("decode stored paragraph: %w", err)
		}
		return &block, nil
	case KindList:
		var block List
		if err := json.Unmarshal(payload, &block); err != nil {
			return nil, fmt.Errorf("decode stored list: %w", err)
		}
		return &block, nil
	case KindCode:
		var block Code
		if err := json.Unmarshal(payload, &block); err != nil {
			return nil, fmt.Errorf("decode stored code: %w", err)
		}
		return &block, nil
	case KindImage:
		var block Image
		if err := json.Unmarshal(payload, &block); err != nil {
			return nil, fmt.Errorf("decode stored image: %w", err)
		}
		return &block, nil
	case KindVideo:
		var block Video
		if err := json.Unmarshal(payload, &block); err != nil {
			return nil, fmt.Errorf("decode stored video: %w", err)
		}
		return &block, nil
	default:
		return nil, fmt.Errorf("decode stored block: unknown kind %q", kind)
	}
}
