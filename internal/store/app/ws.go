package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"

	"github.com/myunifiles/unifiles/internal/platform/id"
	"github.com/myunifiles/unifiles/internal/store"
	"golang.org/x/net/websocket"
)

const (
	maxFramePayloadBytes   = 64 * 1024
	maxDecodeErrorsPerConn = 3
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type subscribedPayload struct {
	SubscriptionID string `json:"subscription_id"`
}

type unsubscribePayload struct {
	SubscriptionID string `json:"subscription_id"`
}

type snapshotPayload struct {
	SubscriptionID string       `json:"subscription_id"`
	Partition      string       `json:"partition"`
	Version        int64        `json:"version"`
	Records        []wireRecord `json:"records"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

// wsPeer serializes frame writes. Snapshot pushes and request acks race on
// the same connection.
type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// wsSubscriptions tracks the live queries opened over one connection.
type wsSubscriptions struct {
	mu      sync.Mutex
	cancels map[string]store.CancelFunc
}

func newWSSubscriptions() *wsSubscriptions {
	return &wsSubscriptions{cancels: make(map[string]store.CancelFunc)}
}

func (s *wsSubscriptions) add(subscriptionID string, cancel store.CancelFunc) {
	s.mu.Lock()
	s.cancels[subscriptionID] = cancel
	s.mu.Unlock()
}

func (s *wsSubscriptions) remove(subscriptionID string) store.CancelFunc {
	s.mu.Lock()
	cancel := s.cancels[subscriptionID]
	delete(s.cancels, subscriptionID)
	s.mu.Unlock()
	return cancel
}

func (s *wsSubscriptions) drain() []store.CancelFunc {
	s.mu.Lock()
	cancels := make([]store.CancelFunc, 0, len(s.cancels))
	for _, cancel := range s.cancels {
		cancels = append(cancels, cancel)
	}
	s.cancels = make(map[string]store.CancelFunc)
	s.mu.Unlock()
	return cancels
}

func handleWSConn(conn *websocket.Conn, backend store.Store) {
	defer func() {
		_ = conn.Close()
	}()

	decoder := json.NewDecoder(conn)
	peer := newWSPeer(json.NewEncoder(conn))
	subs := newWSSubscriptions()
	defer func() {
		for _, cancel := range subs.drain() {
			cancel()
		}
	}()

	decodeErrors := 0
	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(peer, "", "", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(peer, frame.RequestID, "", "INVALID_ARGUMENT", "payload too large")
			continue
		}

		switch frame.Type {
		case "store.subscribe":
			handleSubscribeFrame(conn, peer, subs, backend, frame)
		case "store.unsubscribe":
			handleUnsubscribeFrame(peer, subs, frame)
		default:
			_ = writeWSError(peer, frame.RequestID, "", "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

func handleSubscribeFrame(conn *websocket.Conn, peer *wsPeer, subs *wsSubscriptions, backend store.Store, frame wsFrame) {
	var q store.Query
	if err := json.Unmarshal(frame.Payload, &q); err != nil {
		_ = writeWSError(peer, frame.RequestID, "", "INVALID_ARGUMENT", "invalid subscribe payload")
		return
	}

	subscriptionID, err := id.NewID()
	if err != nil {
		_ = writeWSError(peer, frame.RequestID, "", "INTERNAL", "subscription id generation failed")
		return
	}

	fn := func(snapshot store.Snapshot) {
		wired := make([]wireRecord, len(snapshot.Records))
		for i, rec := range snapshot.Records {
			wired[i] = toWire(rec)
		}
		if err := peer.writeFrame(wsFrame{
			Type: "store.snapshot",
			Payload: mustJSON(snapshotPayload{
				SubscriptionID: subscriptionID,
				Partition:      snapshot.Partition,
				Version:        snapshot.Version,
				Records:        wired,
			}),
		}); err != nil {
			log.Printf("store: push snapshot subscription=%s: %v", subscriptionID, err)
		}
	}
	errFn := func(err error) {
		_ = writeWSError(peer, "", subscriptionID, "SUBSCRIPTION_ERROR", err.Error())
	}

	// The subscribed ack must precede the initial snapshot the backend
	// delivers during Subscribe, so the client can correlate pushes.
	_ = peer.writeFrame(wsFrame{
		Type:      "store.subscribed",
		RequestID: frame.RequestID,
		Payload:   mustJSON(subscribedPayload{SubscriptionID: subscriptionID}),
	})

	cancel, err := backend.Subscribe(conn.Request().Context(), q, fn, errFn)
	if err != nil {
		_ = writeWSError(peer, frame.RequestID, subscriptionID, "SUBSCRIPTION_ERROR", err.Error())
		return
	}
	subs.add(subscriptionID, cancel)
}

func handleUnsubscribeFrame(peer *wsPeer, subs *wsSubscriptions, frame wsFrame) {
	var payload unsubscribePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(peer, frame.RequestID, "", "INVALID_ARGUMENT", "invalid unsubscribe payload")
		return
	}
	if cancel := subs.remove(payload.SubscriptionID); cancel != nil {
		cancel()
	}
	_ = peer.writeFrame(wsFrame{
		Type:      "store.unsubscribed",
		RequestID: frame.RequestID,
		Payload:   mustJSON(subscribedPayload{SubscriptionID: payload.SubscriptionID}),
	})
}

func writeWSError(peer *wsPeer, requestID, subscriptionID string, code string, message string) error {
	return peer.writeFrame(wsFrame{
		Type:      "store.error",
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:           code,
				Message:        message,
				SubscriptionID: subscriptionID,
			},
		}),
	})
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("store: marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
