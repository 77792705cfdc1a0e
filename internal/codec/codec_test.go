package codec

import "testing"

func TestClassify_KnownTopics(t *testing.T) {
	cases := []struct {
		topic string
		kind  EventKind
		id    string
	}{
		{"member/u1/send/login", KindLogin, "u1"},
		{"room/r-abc-123/send/create", KindCreate, "r-abc-123"},
		{"game/g1/send/game_over", KindGameOver, "g1"},
		{"server/0/res/heartbeat", KindHeartbeat, "0"},
		{"manager/m1/send/new_equ", KindNewEqu, "m1"},
		{"reset", KindReset, ""},
	}
	for _, c := range cases {
		kind, id, ok := Classify(c.topic)
		if !ok {
			t.Fatalf("topic %q: expected match", c.topic)
		}
		if kind != c.kind {
			t.Fatalf("topic %q: expected kind %v, got %v", c.topic, c.kind, kind)
		}
		if id != c.id {
			t.Fatalf("topic %q: expected id %q, got %q", c.topic, c.id, id)
		}
	}
}

func TestClassify_UnknownTopic(t *testing.T) {
	_, _, ok := Classify("member/u1/send/not_a_real_verb")
	if ok {
		t.Fatalf("expected unknown topic to not match")
	}
}

func TestDecode_MalformedJSON(t *testing.T) {
	_, err := Decode(KindLogin, "u1", "member/u1/send/login", []byte("{not json"))
	if err == nil {
		t.Fatalf("expected decode error on malformed json")
	}
}

func TestDecode_RequestID(t *testing.T) {
	ev, err := Decode(KindCreate, "u1", "room/u1/send/create", []byte(`{"request_id":"abc123"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.RequestID != "abc123" {
		t.Fatalf("expected request id abc123, got %q", ev.RequestID)
	}
}

func TestResponseTopic(t *testing.T) {
	got := ResponseTopic("room/r1/send/create")
	want := "room/r1/res/create"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
