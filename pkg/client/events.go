// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// EventClient reads event history and subscribes to the live stream.
type EventClient struct {
	c *Client
}

// History returns past events from the server's in-memory history. A nil
// filter returns everything still retained.
func (ec *EventClient) History(ctx context.Context, filter *EventFilter) ([]*Event, error) {
	query := url.Values{}
	if filter != nil {
		if filter.SessionID != "" {
			query.Set("sessionId", filter.SessionID)
		}
		for _, kind := range filter.Kinds {
			query.Add("kind", kind)
		}
		if !filter.Since.IsZero() {
			query.Set("since", filter.Since.Format(time.RFC3339))
		}
		if !filter.Until.IsZero() {
			query.Set("until", filter.Until.Format(time.RFC3339))
		}
		if filter.Limit > 0 {
			query.Set("limit", strconv.Itoa(filter.Limit))
		}
	}
	path := "/api/v1/events"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	data, err := ec.c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	var out struct {
		Events []*Event `json:"events"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse events: %w", err)
	}
	return out.Events, nil
}

// Subscription is a live event stream over WebSocket. Receive from Events
// until it closes, then check Err.
type Subscription struct {
	// Events delivers matching events as they happen. It closes when the
	// connection drops, the context is canceled, or Close is called.
	Events <-chan Event

	conn   *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Close tears down the subscription. Safe to call more than once.
func (s *Subscription) Close() error {
	s.cancel()
	err := s.conn.Close()
	<-s.done
	return err
}

// Err reports why the stream ended, nil for a clean close.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Subscribe opens a WebSocket and streams events whose kind matches the
// glob pattern ("*" for everything, "orchestration.*" for a family). When
// replay > 0 the newest matching history entries are delivered first; an
// event can appear twice around the replay boundary, so dedupe on Event.ID
// if that matters.
func (ec *EventClient) Subscribe(ctx context.Context, pattern string, replay int) (*Subscription, error) {
	wsURL := strings.Replace(ec.c.baseURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	query := url.Values{}
	if pattern != "" {
		query.Set("pattern", pattern)
	}
	if replay > 0 {
		query.Set("replay", strconv.Itoa(replay))
	}
	wsURL += "/api/v1/events/ws"
	if len(query) > 0 {
		wsURL += "?" + query.Encode()
	}

	header := http.Header{}
	if ec.c.token != "" {
		header.Set("Authorization", "Bearer "+ec.c.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, &APIError{Code: "unauthorized", Message: "websocket dial rejected"}
		}
		return nil, fmt.Errorf("dial events stream: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	ch := make(chan Event, 64)
	sub := &Subscription{
		Events: ch,
		conn:   conn,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		<-streamCtx.Done()
		conn.Close()
	}()

	go func() {
		defer close(sub.done)
		defer close(ch)
		defer cancel()
		for {
			var ev Event
			if err := conn.ReadJSON(&ev); err != nil {
				if streamCtx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					sub.err = err
				}
				return
			}
			select {
			case ch <- ev:
			case <-streamCtx.Done():
				return
			}
		}
	}()

	return sub, nil
}
