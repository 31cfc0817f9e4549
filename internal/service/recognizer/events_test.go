package recognizer

import "testing"

func TestDecodeEventFinal(t *testing.T) {
	raw := []byte(`{"data":{"type":"speech_recognized","data":{"transcript":"hello world","is_final":true}}}`)
	event := DecodeEvent(raw)
	if event.Kind != EventRecognizedFinal {
		t.Fatalf("expected final event, got %v", event.Kind)
	}
	if event.Transcript != "hello world" {
		t.Errorf("unexpected transcript %q", event.Transcript)
	}
}

func TestDecodeEventInterim(t *testing.T) {
	raw := []byte(`{"data":{"type":"speech_recognized","data":{"transcript":"hel","is_final":false}}}`)
	event := DecodeEvent(raw)
	if event.Kind != EventRecognizedInterim {
		t.Fatalf("expected interim event, got %v", event.Kind)
	}
	if event.Transcript != "hel" {
		t.Errorf("unexpected transcript %q", event.Transcript)
	}
}

func TestDecodeEventError(t *testing.T) {
	raw := []byte(`{"type":"error","message":"bad audio"}`)
	event := DecodeEvent(raw)
	if event.Kind != EventError {
		t.Fatalf("expected error event, got %v", event.Kind)
	}
	if event.Message != "bad audio" {
		t.Errorf("unexpected message %q", event.Message)
	}
}

func TestDecodeEventNestedError(t *testing.T) {
	raw := []byte(`{"data":{"type":"error","message":"upstream overloaded"}}`)
	event := DecodeEvent(raw)
	if event.Kind != EventError {
		t.Fatalf("expected error event, got %v", event.Kind)
	}
	if event.Message != "upstream overloaded" {
		t.Errorf("unexpected message %q", event.Message)
	}
}

func TestDecodeEventConfigAck(t *testing.T) {
	raw := []byte(`{"type":"config_ack"}`)
	if event := DecodeEvent(raw); event.Kind != EventConfigAck {
		t.Fatalf("expected config ack, got %v", event.Kind)
	}
}

func TestDecodeEventUnknown(t *testing.T) {
	cases := map[string]string{
		"malformed json":    `{"data":`,
		"empty object":      `{}`,
		"unrecognized type": `{"data":{"type":"heartbeat"}}`,
		"plain text":        `hello`,
	}
	for name, raw := range cases {
		if event := DecodeEvent([]byte(raw)); event.Kind != EventUnknown {
			t.Errorf("%s: expected unknown event, got %v", name, event.Kind)
		}
	}
}
