package model

import (
	"testing"
	"time"
)

func TestDecodeMessageFromWireJSON(t *testing.T) {
	raw := []byte(`{"id":42,"conversationId":"11111111-1111-1111-1111-111111111111","sender":"alice","content":"hi","sentAt":"2025-08-23T06:30:58.961657Z"}`)
	m, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if m.ID == nil || *m.ID != 42 {
		t.Fatalf("id = %+v, want 42", m.ID)
	}
	if m.Sender != "alice" || m.Content != "hi" {
		t.Fatalf("fields broken: %+v", m)
	}
	want := time.Date(2025, 8, 23, 6, 30, 58, 961657000, time.UTC).UnixMilli()
	if m.SentAtMS != want {
		t.Fatalf("sentAt = %d, want %d (亚秒精度截到毫秒)", m.SentAtMS, want)
	}
}

// 本地乐观发送：服务端还没确认，id 缺失。
func TestDecodeMessageWithoutID(t *testing.T) {
	m, err := DecodeMessage([]byte(`{"conversationId":"x","sender":"bob","content":"yo","sentAt":"2025-08-23T06:31:00Z"}`))
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if m.ID != nil {
		t.Fatalf("id = %v, want nil", *m.ID)
	}
}

func TestMineIsCaseInsensitive(t *testing.T) {
	m := &ChatMessage{Sender: "Alice"}
	if !m.Mine("alice") {
		t.Fatalf("Mine must ignore case")
	}
	if m.Mine("") {
		t.Fatalf("empty current user is never mine")
	}
	if (&ChatMessage{}).Mine("alice") {
		t.Fatalf("empty sender is never mine")
	}
}

func TestSentAtRoundTrip(t *testing.T) {
	m := &ChatMessage{SentAtMS: 1755930658961}
	if got := m.SentAt().UnixMilli(); got != 1755930658961 {
		t.Fatalf("SentAt round trip = %d", got)
	}
}
