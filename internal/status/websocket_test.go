package status

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestFanoutDeliversToRegisteredConnection(t *testing.T) {
	hub := NewHub(New(nil, nil, nil), nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.registry.add("docs/abc", conn)
	}))
	defer srv.Close()

	wsURL := "ws" + srv.URL[len("http"):]
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	time.Sleep(50 * time.Millisecond) // let the server-side Upgrade+add complete

	hub.Fanout("docs/abc", []byte(`{"state":"embedding"}`))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(payload) != `{"state":"embedding"}` {
		t.Fatalf("unexpected payload: %s", payload)
	}
}

func TestConnRegistryRemovePrunesEmptyStatusID(t *testing.T) {
	r := newConnRegistry()
	c := &websocket.Conn{}
	r.add("docs/abc", c)
	if len(r.snapshot("docs/abc")) != 1 {
		t.Fatal("expected one connection after add")
	}
	r.remove("docs/abc", c)
	if _, ok := r.conns["docs/abc"]; ok {
		t.Fatal("expected statusId entry to be pruned once empty")
	}
}
