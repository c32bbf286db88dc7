package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/CrestNiraj12/nwitter/app"
	"github.com/CrestNiraj12/nwitter/domain"
)

func TestToWebsocketURL(t *testing.T) {
	cases := map[string]string{
		"https://gateway.nwitter.dev": "wss://gateway.nwitter.dev",
		"http://127.0.0.1:8080":       "ws://127.0.0.1:8080",
		"ws://already":                "ws://already",
	}
	for in, want := range cases {
		if got := toWebsocketURL(in); got != want {
			t.Errorf("toWebsocketURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRejectionParsesStructuredErrors(t *testing.T) {
	err := rejection("signin", http.StatusBadRequest, []byte(`{"error":{"code":"invalid-credential","message":"Wrong e-mail or password."}}`))
	var ge *domain.GatewayError
	if !errors.As(err, &ge) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if ge.Code != "invalid-credential" || ge.Status != http.StatusBadRequest || ge.Op != "signin" {
		t.Fatalf("unexpected error %+v", ge)
	}
	if domain.Describe(err) != "Wrong e-mail or password." {
		t.Fatalf("unexpected description %q", domain.Describe(err))
	}

	err = rejection("signin", http.StatusBadGateway, []byte("upstream down"))
	if domain.IsGatewayError(err) {
		t.Fatal("unstructured bodies are transport failures")
	}
	if domain.Describe(err) != "Network error. Please try again." {
		t.Fatalf("unexpected description %q", domain.Describe(err))
	}
}

func TestClientSendsTokenAndVerification(t *testing.T) {
	var gotAuth, gotVerification string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotVerification = r.Header.Get(VerificationHeader)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"p1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetToken("tok")
	ctx := app.WithVerification(context.Background(), "human")
	id, err := NewRecordStore(c).AddRecord(ctx, domain.PostsCollection, map[string]any{"text": "hi"})
	if err != nil || id != "p1" {
		t.Fatalf("add: %q %v", id, err)
	}
	if gotAuth != "Bearer tok" || gotVerification != "human" {
		t.Fatalf("unexpected headers %q %q", gotAuth, gotVerification)
	}
}

func TestSubscribeReconnectsAfterDrop(t *testing.T) {
	var conns int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		var spec QuerySpec
		if err := ws.ReadJSON(&spec); err != nil {
			return
		}
		n := atomic.AddInt32(&conns, 1)
		if n == 1 {
			ws.WriteJSON(ListenMessage{Error: &ErrorDetail{Code: "unavailable", Message: "try later"}})
			return
		}
		ws.WriteJSON(ListenMessage{Records: []domain.Record{{ID: "p1", Fields: map[string]any{}}}})
		ws.ReadMessage()
	}))
	defer srv.Close()

	store := NewRecordStore(NewClient(srv.URL)).WithLiveSettings(LiveSettings{
		HandshakeTimeout: time.Second,
		WriteTimeout:     time.Second,
		ReadTimeout:      5 * time.Second,
		ReconnectDelay:   10 * time.Millisecond,
	})
	type push struct {
		records []domain.Record
		err     error
	}
	pushes := make(chan push, 4)
	cancel, err := store.Subscribe(context.Background(), domain.FeedQuery(domain.Global), func(r []domain.Record, err error) {
		pushes <- push{r, err}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	first := <-pushes
	if !domain.IsGatewayError(first.err) {
		t.Fatalf("expected pushed error, got %+v", first)
	}
	select {
	case second := <-pushes:
		if second.err != nil || len(second.records) != 1 || second.records[0].ID != "p1" {
			t.Fatalf("unexpected push %+v", second)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no push after reconnect")
	}
}
