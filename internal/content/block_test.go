package content

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeBlockParagraph(t *testing.T) {
	raw := json.RawMessage(`{"type":"paragraph","text":"Hello","style":{"fontSize":"lg","accent":true}}`)
	block, err := DecodeBlock(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	paragraph, ok := block.(*Paragraph)
	if !ok {
		t.Fatalf("expected *Paragraph, got %T", block)
	}
	if paragraph.Text != "Hello" {
		t.Fatalf("expected text Hello, got %q", paragraph.Text)
	}
	if paragraph.Style == nil || paragraph.Style.FontSize != "lg" || !paragraph.Style.Accent {
		t.Fatalf("style not decoded: %+v", paragraph.Style)
	}
	if paragraph.Kind() != KindParagraph {
		t.Fatalf("wrong kind %q", paragraph.Kind())
	}
}

func TestDecodeBlockParagraphRejectsBadStyle(t *testing.T) {
	raw := json.RawMessage(`{"type":"paragraph","text":"Hi","style":{"fontSize":"huge"}}`)
	_, err := DecodeBlock(raw)
	if err == nil {
		t.Fatal("expected error")
	}
	fe, ok := err.(*FieldError)
	if !ok {
		t.Fatalf("expected *FieldError, got %T", err)
	}
	if fe.Field != "style.fontSize" {
		t.Fatalf("expected field style.fontSize, got %q", fe.Field)
	}
}

func TestDecodeBlockListStringShorthand(t *testing.T) {
	raw := json.RawMessage(`{"type":"list","title":"Steps","items":["first",{"text":"second","style":{"fontWeight":"bold"}}]}`)
	block, err := DecodeBlock(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	list := block.(*List)
	if len(list.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(list.Items))
	}
	if list.Items[0].Text != "first" || list.Items[0].Style != nil {
		t.Fatalf("shorthand item not normalized: %+v", list.Items[0])
	}
	if list.Items[1].Style == nil || list.Items[1].Style.FontWeight != "bold" {
		t.Fatalf("object item style lost: %+v", list.Items[1])
	}
}

func TestDecodeBlockListRequiresItems(t *testing.T) {
	_, err := DecodeBlock(json.RawMessage(`{"type":"list","items":[]}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if fe := err.(*FieldError); fe.Field != "items" {
		t.Fatalf("expected field items, got %q", fe.Field)
	}
}

func TestDecodeBlockImageRequiresAbsoluteURL(t *testing.T) {
	_, err := DecodeBlock(json.RawMessage(`{"type":"image","alt":"diagram","src":"/local/path.png"}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if fe := err.(*FieldError); fe.Field != "src" {
		t.Fatalf("expected field src, got %q", fe.Field)
	}

	block, err := DecodeBlock(json.RawMessage(`{"type":"image","alt":"diagram","src":"https://example.com/a.png","caption":"fig 1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if block.(*Image).Caption != "fig 1" {
		t.Fatal("caption lost")
	}
}

func TestDecodeBlockVideoRequiresYoutubeID(t *testing.T) {
	_, err := DecodeBlock(json.RawMessage(`{"type":"video","title":"Intro"}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if fe := err.(*FieldError); fe.Field != "youtubeId" {
		t.Fatalf("expected field youtubeId, got %q", fe.Field)
	}
}

func TestDecodeBlockCodeRequiresValue(t *testing.T) {
	_, err := DecodeBlock(json.RawMessage(`{"type":"code","language":"go"}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if fe := err.(*FieldError); fe.Field != "value" {
		t.Fatalf("expected field value, got %q", fe.Field)
	}
}

func TestDecodeBlockUnknownType(t *testing.T) {
	for raw, wantField := range map[string]string{
		`{"type":"table"}`: "type",
		`{"text":"hi"}`:    "type",
		`[1,2]`:            "type",
	} {
		_, err := DecodeBlock(json.RawMessage(raw))
		if err == nil {
			t.Fatalf("expected error for %s", raw)
		}
		if fe := err.(*FieldError); fe.Field != wantField {
			t.Fatalf("raw %s: expected field %q, got %q", raw, wantField, fe.Field)
		}
	}
}

func TestDecodeBlocksPrefixesIndex(t *testing.T) {
	raws := []json.RawMessage{
		json.RawMessage(`{"type":"paragraph","text":"ok"}`),
		json.RawMessage(`{"type":"image","alt":"x","src":"not-a-url"}`),
	}
	_, err := DecodeBlocks(raws)
	if err == nil {
		t.Fatal("expected error")
	}
	fe := err.(*FieldError)
	if fe.Field != "content[1].src" {
		t.Fatalf("expected field content[1].src, got %q", fe.Field)
	}
}

func TestMarshalRoundTripKeepsType(t *testing.T) {
	raw := json.RawMessage(`{"type":"video","title":"Demo","youtubeId":"abc123"}`)
	block, err := DecodeBlock(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	encoded, err := json.Marshal(block)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(encoded), `"type":"video"`) {
		t.Fatalf("type discriminator missing: %s", encoded)
	}
	if !strings.Contains(string(encoded), `"youtubeId":"abc123"`) {
		t.Fatalf("payload missing: %s", encoded)
	}
}

func TestStoredPayloadOmitsType(t *testing.T) {
	block, err := DecodeBlock(json.RawMessage(`{"type":"code","language":"go","value":"package main"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, err := EncodePayload(block)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	if strings.Contains(string(payload), `"type"`) {
		t.Fatalf("payload should not carry the type: %s", payload)
	}

	restored, err := DecodeStored(KindCode, payload)
	if err != nil {
		t.Fatalf("decode stored: %v", err)
	}
	code := restored.(*Code)
	if code.Language != "go" || code.Value != "package main" {
		t.Fatalf("round trip lost fields: %+v", code)
	}
}

func TestDecodeStoredUnknownKind(t *testing.T) {
	if _, err := DecodeStored("table", []byte(`{}`)); err == nil {
		t.Fatal("expected error for unknown stored kind")
	}
}
