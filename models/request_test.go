package models

import (
	"testing"
)

func TestNewChatIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewChatID()
		if seen[id] {
			t.Fatalf("duplicate id %q after %d allocations", id, i)
		}
		seen[id] = true
	}
}

func TestDecodeRequestRejectsMissingType(t *testing.T) {
	if _, err := DecodeRequest([]byte(`{"topicId":"t1"}`)); err == nil {
		t.Error("frame without type must not decode")
	}
	if _, err := DecodeRequest([]byte(`not json`)); err == nil {
		t.Error("garbage must not decode")
	}
}

func TestEncodeDecodeChatFrame(t *testing.T) {
	req := NewChatRequest("t1", NewTextContent("hello"))
	req.Attendee = "alice"
	req.CreatedAt = 12345

	data, err := req.Encode()
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeRequest(data)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Type != RequestTypeChat || decoded.TopicID != "t1" {
		t.Errorf("frame identity lost: %+v", decoded)
	}
	if decoded.ID != req.ID || decoded.ChatID != req.ChatID {
		t.Error("correlation ids lost in round trip")
	}
	if decoded.Content == nil || decoded.Content.Text != "hello" {
		t.Errorf("content lost: %+v", decoded.Content)
	}
}

func TestMakeResponseCorrelates(t *testing.T) {
	req := NewChatRequest("t1", NewTextContent("x"))
	req.Seq = 9

	resp := req.MakeResponse(200)
	if resp.Type != RequestTypeResponse {
		t.Errorf("type = %s, want resp", resp.Type)
	}
	if resp.ID != req.ID {
		t.Error("resp must carry the request's correlation id")
	}
	if resp.Code != 200 || resp.Seq != 9 || resp.ChatID != req.ChatID {
		t.Errorf("resp fields: %+v", resp)
	}
}

func TestRecallRequestTargetsMessage(t *testing.T) {
	req := NewRecallRequest("t1", "m42")
	if req.Content.Type != ContentTypeRecall {
		t.Errorf("content type = %s, want recall", req.Content.Type)
	}
	if req.Content.Text != "m42" {
		t.Errorf("content text = %q, want target id", req.Content.Text)
	}
}

func TestChatLogFromRequest(t *testing.T) {
	req := &ChatRequest{
		Type: RequestTypeChat, TopicID: "t1", ChatID: "m1",
		Seq: 3, Attendee: "bob", CreatedAt: 777,
		Content: &Content{Type: ContentTypeRecall, Text: "m0"},
	}
	log := ChatLogFromRequest(req)
	if log.TopicID != "t1" || log.ID != "m1" || log.Seq != 3 || log.SenderID != "bob" {
		t.Errorf("log identity: %+v", log)
	}
	if !log.Recall {
		t.Error("recall content must set the recall flag")
	}
	if log.Status != ChatLogStatusReceived {
		t.Errorf("status = %d, want received", log.Status)
	}
}

func TestTopicEventContentTypes(t *testing.T) {
	if !ContentTypeTopicJoin.IsTopicEvent() {
		t.Error("topic.join should be a topic event")
	}
	if ContentTypeText.IsTopicEvent() {
		t.Error("text is not a topic event")
	}
}
