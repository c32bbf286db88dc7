package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/CrestNiraj12/nwitter/domain"
)

type LiveSettings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadTimeout must exceed the gateway's ping interval.
	ReadTimeout    time.Duration
	ReconnectDelay time.Duration
}

func DefaultLiveSettings() LiveSettings {
	return LiveSettings{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      60 * time.Second,
		ReconnectDelay:   3 * time.Second,
	}
}

// Subscribe opens a live query socket. The first connection is made before
// returning so that an unreachable gateway is reported to the caller. After
// that the socket is re-dialed with a fixed delay until cancel is called.
// fn is only ever called from one goroutine, in the order pushes arrive.
func (s *RecordStore) Subscribe(ctx context.Context, q domain.Query, fn func([]domain.Record, error)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	ws, err := s.dial(ctx, q)
	if err != nil {
		cancel()
		return nil, err
	}
	go s.run(ctx, ws, q, fn)
	return cancel, nil
}

func (s *RecordStore) dial(ctx context.Context, q domain.Query) (*websocket.Conn, error) {
	wsURL := toWebsocketURL(s.client.BaseURL()) + collectionPath(q.Collection) + "/listen"
	header := http.Header{}
	if token := s.client.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	dialer := websocket.Dialer{HandshakeTimeout: s.live.HandshakeTimeout, Proxy: http.ProxyFromEnvironment}
	ws, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("listen: handshake returned %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("listen: %w", err)
	}

	success := false
	defer func() {
		if !success {
			ws.Close()
		}
	}()
	ws.SetWriteDeadline(time.Now().Add(s.live.WriteTimeout))
	if err := ws.WriteJSON(QuerySpecFrom(q)); err != nil {
		return nil, fmt.Errorf("listen: sending query: %w", err)
	}
	success = true
	return ws, nil
}

func (s *RecordStore) run(ctx context.Context, ws *websocket.Conn, q domain.Query, fn func([]domain.Record, error)) {
	for {
		s.read(ctx, ws, q, fn)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.live.ReconnectDelay):
		}

		var err error
		ws, err = s.dial(ctx, q)
		for err != nil {
			glog.Infof("live: reconnect %s failed: %v", q.Collection, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.live.ReconnectDelay):
			}
			ws, err = s.dial(ctx, q)
		}
		glog.V(1).Infof("live: reconnected %s", q.Collection)
	}
}

// read consumes pushes until the socket fails or ctx is cancelled.
func (s *RecordStore) read(ctx context.Context, ws *websocket.Conn, q domain.Query, fn func([]domain.Record, error)) {
	defer ws.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.live.WriteTimeout))
			ws.Close()
		case <-done:
		}
	}()

	ws.SetPingHandler(func(data string) error {
		ws.SetReadDeadline(time.Now().Add(s.live.ReadTimeout))
		return ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(s.live.WriteTimeout))
	})

	for {
		ws.SetReadDeadline(time.Now().Add(s.live.ReadTimeout))
		messageType, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				glog.Infof("live: %s socket closed: %v", q.Collection, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var msg ListenMessage
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&msg); err != nil {
			glog.Warningf("live: undecodable push on %s: %v", q.Collection, err)
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if msg.Error != nil {
			fn(nil, &domain.GatewayError{Op: "listen", Code: msg.Error.Code, Message: msg.Error.Message})
			continue
		}
		glog.V(2).Infof("live: push on %s with %d records", q.Collection, len(msg.Records))
		fn(msg.Records, nil)
	}
}

func toWebsocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base
}
