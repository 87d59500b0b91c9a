package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Event is a realtime frame pushed by the server. Fields not relevant to
// the frame type stay zero.
type Event struct {
	Type            string `json:"type"`
	AttemptID       string `json:"attemptId"`
	ConvincingScore int    `json:"convincing_score"`
	Status          string `json:"status"`
	AIResponseID    string `json:"aiResponseId"`
	AIResponse      string `json:"aiResponse"`
}

const (
	EventTypeSubscribed        = "subscribed"
	EventTypeAttemptUpdated    = "attempt_updated"
	EventTypeAIResponseCreated = "ai_response_created"
)

// EventStream is a live websocket subscription to one attempt's events.
type EventStream struct {
	ws     *websocket.Conn
	events chan Event
}

// DialEvents connects to the realtime endpoint, subscribes to the bound
// attempt and returns a stream of its events. The stream ends when the
// server closes the connection or ctx is cancelled.
func (c *Client) DialEvents(ctx context.Context) (*EventStream, error) {
	wsURL, err := c.eventsURL()
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	wsConn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial events (http %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial events: %w", err)
	}

	sub, _ := json.Marshal(map[string]string{
		"type":      "subscribe_attempt",
		"attemptId": c.attemptID,
	})
	wsConn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := wsConn.WriteMessage(websocket.TextMessage, sub); err != nil {
		wsConn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	stream := &EventStream{
		ws:     wsConn,
		events: make(chan Event, 16),
	}
	go stream.readLoop(ctx)
	return stream, nil
}

// Events yields frames until the stream closes.
func (s *EventStream) Events() <-chan Event {
	return s.events
}

func (s *EventStream) Close() error {
	return s.ws.Close()
}

func (s *EventStream) readLoop(ctx context.Context) {
	defer close(s.events)
	defer s.ws.Close()

	go func() {
		<-ctx.Done()
		s.ws.Close()
	}()

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("event stream closed")
			}
			return
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			log.Warn().Msg("malformed event frame, ignoring")
			continue
		}

		select {
		case s.events <- event:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) eventsURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/ws"
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
