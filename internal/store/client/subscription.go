package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/myunifiles/unifiles/internal/platform/errors"
	"github.com/myunifiles/unifiles/internal/store"
	"golang.org/x/net/websocket"
)

const handshakeTimeout = 10 * time.Second

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type snapshotPayload struct {
	SubscriptionID string       `json:"subscription_id"`
	Partition      string       `json:"partition"`
	Version        int64        `json:"version"`
	Records        []wireRecord `json:"records"`
}

type wsErrorEnvelope struct {
	Error wsErrorBody `json:"error"`
}

type wsErrorBody struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	SubscriptionID string `json:"subscription_id,omitempty"`
}

// Subscribe opens a live query over a dedicated WebSocket connection. The
// server's initial snapshot is delivered before Subscribe returns. The
// returned cancel closes the connection and waits out the reader, so no
// callback runs after it returns.
func (c *Client) Subscribe(ctx context.Context, q store.Query, fn store.SnapshotFunc, errFn store.ErrFunc) (store.CancelFunc, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	conn, err := c.dialWS()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSubscriptionError, "dial record store", err)
	}

	sub := &subscription{
		conn:    conn,
		decoder: json.NewDecoder(conn),
		fn:      fn,
		errFn:   errFn,
		done:    make(chan struct{}),
	}

	payload, err := json.Marshal(q)
	if err != nil {
		_ = conn.Close()
		return nil, apperrors.Wrap(apperrors.CodeSubscriptionError, "encode live query", err)
	}
	if err := json.NewEncoder(conn).Encode(wsFrame{Type: "store.subscribe", Payload: payload}); err != nil {
		_ = conn.Close()
		return nil, apperrors.Wrap(apperrors.CodeSubscriptionError, "open live query", err)
	}

	if err := sub.handshake(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	go sub.consume()
	return sub.cancel, nil
}

func (c *Client) dialWS() (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + "/ws"
	return websocket.Dial(wsURL, "", c.baseURL)
}

type subscription struct {
	conn    *websocket.Conn
	decoder *json.Decoder
	fn      store.SnapshotFunc
	errFn   store.ErrFunc

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// handshake consumes frames until the initial snapshot arrives and delivers
// it, or fails on a server rejection.
func (s *subscription) handshake() error {
	_ = s.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer func() {
		_ = s.conn.SetReadDeadline(time.Time{})
	}()

	for {
		var frame wsFrame
		if err := s.decoder.Decode(&frame); err != nil {
			return apperrors.Wrap(apperrors.CodeSubscriptionError, "await initial snapshot", err)
		}
		switch frame.Type {
		case "store.subscribed":
			continue
		case "store.snapshot":
			snapshot, err := decodeSnapshot(frame.Payload)
			if err != nil {
				return err
			}
			s.fn(snapshot)
			return nil
		case "store.error":
			return decodeWSError(frame.Payload)
		default:
			continue
		}
	}
}

func (s *subscription) consume() {
	defer close(s.done)
	for {
		var frame wsFrame
		if err := s.decoder.Decode(&frame); err != nil {
			if s.isClosed() {
				return
			}
			s.fail(apperrors.Wrap(apperrors.CodeSubscriptionError, "read snapshot stream", err))
			return
		}
		switch frame.Type {
		case "store.snapshot":
			snapshot, err := decodeSnapshot(frame.Payload)
			if err != nil {
				s.fail(err)
				return
			}
			s.deliver(snapshot)
		case "store.error":
			s.fail(decodeWSError(frame.Payload))
			return
		default:
			// acks and unknown frame types carry nothing for us
		}
	}
}

func (s *subscription) deliver(snapshot store.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.fn(snapshot)
}

func (s *subscription) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	_ = s.conn.Close()
	if s.errFn != nil {
		s.errFn(err)
	}
}

func (s *subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *subscription) cancel() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.conn.Close()
	<-s.done
}

func decodeSnapshot(payload json.RawMessage) (store.Snapshot, error) {
	var decoded snapshotPayload
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return store.Snapshot{}, apperrors.Wrap(apperrors.CodeSubscriptionError, "decode snapshot frame", err)
	}
	records := make([]store.Record, len(decoded.Records))
	for i, rec := range decoded.Records {
		records[i] = rec.toRecord()
	}
	return store.Snapshot{
		Partition: decoded.Partition,
		Version:   decoded.Version,
		Records:   records,
	}, nil
}

func decodeWSError(payload json.RawMessage) error {
	var envelope wsErrorEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return apperrors.New(apperrors.CodeSubscriptionError, "record store rejected the subscription")
	}
	return apperrors.New(apperrors.CodeSubscriptionError, fmt.Sprintf("%s: %s", envelope.Error.Code, envelope.Error.Message))
}
