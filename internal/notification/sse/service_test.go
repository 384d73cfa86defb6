package sse

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"salesflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestPublishRespectsDealFilter(t *testing.T) {
	s := New(logger.NewWithWriter("test", io.Discard))
	all := &client{id: uuid.New(), events: make(chan Event, 4)}
	one := &client{id: uuid.New(), dealID: "d1", events: make(chan Event, 4)}
	s.addClient(all)
	s.addClient(one)

	s.Publish(Event{Type: EventDealUpserted, DealID: "d1"})
	s.Publish(Event{Type: EventDealUpserted, DealID: "d2"})

	if len(all.events) != 2 {
		t.Fatalf("expected unfiltered client to get 2 events, got %d", len(all.events))
	}
	if len(one.events) != 1 {
		t.Fatalf("expected filtered client to get 1 event, got %d", len(one.events))
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	s := New(logger.NewWithWriter("test", io.Discard))
	cl := &client{id: uuid.New(), events: make(chan Event, 1)}
	s.addClient(cl)

	s.Publish(Event{Type: EventDealDeleted, DealID: "a"})
	s.Publish(Event{Type: EventDealDeleted, DealID: "b"})

	if len(cl.events) != 1 {
		t.Fatalf("expected one buffered event, got %d", len(cl.events))
	}
}

func TestHandlerStreamsEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := New(logger.NewWithWriter("test", io.Discard))
	r := gin.New()
	r.GET("/stream", s.Handler())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stream", nil)
	done := make(chan struct{})
	go func() {
		r.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never connected")
		}
		time.Sleep(5 * time.Millisecond)
	}

	s.Publish(Event{Type: EventDealUpserted, DealID: "d1"})
	s.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler did not return after close")
	}

	body := w.Body.String()
	if !strings.Contains(body, "connected") || !strings.Contains(body, "deal_upserted") {
		t.Fatalf("unexpected stream body: %q", body)
	}
	if got := w.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}
}

func TestCloseRejectsNewClients(t *testing.T) {
	s := New(logger.NewWithWriter("test", io.Discard))
	s.Close()
	if s.addClient(&client{id: uuid.New(), events: make(chan Event, 1)}) {
		t.Fatalf("expected closed service to reject clients")
	}
}
