package relay

import (
	"encoding/json"
	"testing"
)

func testConn() *Conn {
	return &Conn{send: make(chan []byte, 8), done: make(chan struct{})}
}

func recvEnvelope(t *testing.T, c *Conn) Envelope {
	t.Helper()
	select {
	case data := <-c.send:
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return env
	default:
		t.Fatal("no message queued")
	}
	return Envelope{}
}

func TestRegistryBroadcastReachesSubscribers(t *testing.T) {
	r := NewRegistry(nil)
	a, b := testConn(), testConn()
	r.Subscribe("org:o1", a)
	r.Subscribe("org:o1", b)

	delivered, dropped := r.Broadcast("org:o1", Envelope{Type: "db_change"})
	if delivered != 2 || dropped != 0 {
		t.Fatalf("delivered=%d dropped=%d", delivered, dropped)
	}
	if env := recvEnvelope(t, a); env.Type != "db_change" {
		t.Fatalf("a got %s", env.Type)
	}
	if env := recvEnvelope(t, b); env.Type != "db_change" {
		t.Fatalf("b got %s", env.Type)
	}
}

func TestRegistryChannelIsolation(t *testing.T) {
	r := NewRegistry(nil)
	a, b := testConn(), testConn()
	r.Subscribe("org:o1", a)
	r.Subscribe("org:o2", b)

	r.Broadcast("org:o1", Envelope{Type: "broadcast"})
	if len(a.send) != 1 {
		t.Fatalf("o1 subscriber should receive, got %d", len(a.send))
	}
	if len(b.send) != 0 {
		t.Fatalf("o2 subscriber must not receive, got %d", len(b.send))
	}
}

func TestRegistryUnsubscribeStopsDelivery(t *testing.T) {
	r := NewRegistry(nil)
	c := testConn()
	r.Subscribe("org:o1", c)
	r.Unsubscribe("org:o1", c)

	delivered, _ := r.Broadcast("org:o1", Envelope{Type: "broadcast"})
	if delivered != 0 {
		t.Fatalf("delivered=%d after unsubscribe", delivered)
	}
	if r.Count("org:o1") != 0 {
		t.Fatalf("count=%d", r.Count("org:o1"))
	}
}

func TestRegistrySlowSubscriberDoesNotBlock(t *testing.T) {
	r := NewRegistry(nil)
	slow := &Conn{send: make(chan []byte), done: make(chan struct{})} // unbuffered, never drained
	ok := testConn()
	r.Subscribe("org:o1", slow)
	r.Subscribe("org:o1", ok)

	delivered, dropped := r.Broadcast("org:o1", Envelope{Type: "broadcast"})
	if delivered != 1 || dropped != 1 {
		t.Fatalf("delivered=%d dropped=%d", delivered, dropped)
	}
	if len(ok.send) != 1 {
		t.Fatal("healthy subscriber missed the message")
	}
}

func TestDispatchStampsSenderAndTimestamp(t *testing.T) {
	r := NewRegistry(nil)
	c := testConn()
	r.Subscribe("org:o1", c)

	r.Dispatch("org:o1", "usr_1", map[string]any{"event": "note"})
	env := recvEnvelope(t, c)
	if env.Type != "broadcast" {
		t.Fatalf("type=%s", env.Type)
	}
	if env.Payload["senderId"] != "usr_1" {
		t.Fatalf("senderId=%v", env.Payload["senderId"])
	}
	if env.Payload["ts"] == nil || env.Payload["ts"] == "" {
		t.Fatal("missing ts stamp")
	}
	if env.Payload["event"] != "note" {
		t.Fatalf("payload lost: %v", env.Payload)
	}
}
