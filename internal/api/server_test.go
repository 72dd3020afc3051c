package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bryanchriswhite/SharePicker/internal/catalog"
	"github.com/bryanchriswhite/SharePicker/internal/event"
)

type fixedDrops int

func (d fixedDrops) Dropped() int { return int(d) }

func newTestServer(t *testing.T) (*Feed, *httptest.Server) {
	t.Helper()
	cat := catalog.New()
	feed := NewFeed(cat, 8, 8)
	srv := httptest.NewServer(NewServer(cat, feed, fixedDrops(3), 8, 8).Handler())
	t.Cleanup(srv.Close)
	return feed, srv
}

func thumbnail(id uint32, w, h int) event.ThumbnailReady {
	rgba := make([]byte, w*h*4)
	for i := range rgba {
		rgba[i] = 0xff
	}
	return event.ThumbnailReady{ID: id, Title: "t", AppID: "a", Width: w, Height: h, RGBA: rgba}
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t)

	var body map[string]string
	getJSON(t, srv.URL+"/api/health", &body)
	if body["status"] != "healthy" {
		t.Errorf("unexpected health %v", body)
	}
}

func TestWindowsAndStats(t *testing.T) {
	feed, srv := newTestServer(t)
	feed.Publish(event.WindowUpserted{ID: 1, Title: "one", AppID: "app"})
	feed.Publish(event.WindowUpserted{ID: 2})
	feed.Publish(thumbnail(1, 4, 4))

	var windows []struct {
		ID           uint32 `json:"id"`
		Title        string `json:"title"`
		AppID        string `json:"app_id"`
		HasThumbnail bool   `json:"has_thumbnail"`
	}
	getJSON(t, srv.URL+"/api/windows", &windows)
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if windows[0].ID != 1 || !windows[0].HasThumbnail || windows[1].HasThumbnail {
		t.Errorf("unexpected windows %+v", windows)
	}

	var stats Stats
	getJSON(t, srv.URL+"/api/stats", &stats)
	if stats.Windows != 2 || stats.Thumbnails != 1 || stats.Dropped != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestThumbnailEndpoint(t *testing.T) {
	feed, srv := newTestServer(t)
	feed.Publish(event.WindowUpserted{ID: 5})
	feed.Publish(thumbnail(5, 32, 16))

	resp, err := http.Get(srv.URL + "/api/windows/5/thumbnail.png")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}
	img, err := png.Decode(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 4 {
		t.Errorf("expected fitted 8x4, got %dx%d", b.Dx(), b.Dy())
	}

	for _, path := range []string{"/api/windows/6/thumbnail.png", "/api/windows/99999999999/thumbnail.png"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			t.Errorf("GET %s: expected failure status", path)
		}
	}
}

func TestSheetEndpoint(t *testing.T) {
	feed, srv := newTestServer(t)
	feed.Publish(event.WindowUpserted{ID: 1})

	resp, err := http.Get(srv.URL + "/api/sheet.png?columns=2")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if _, err := png.Decode(resp.Body); err != nil {
		t.Errorf("expected png sheet: %v", err)
	}

	bad, err := http.Get(srv.URL + "/api/sheet.png?columns=zero")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", bad.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, srv := newTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/windows", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("unexpected preflight response %d %v", resp.StatusCode, resp.Header)
	}
}

func TestEventStream(t *testing.T) {
	feed, srv := newTestServer(t)
	feed.Publish(event.WindowUpserted{ID: 1, Title: "existing"})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "upsert" || msg.ID != 1 || msg.Title != "existing" {
		t.Fatalf("expected replayed upsert, got %+v", msg)
	}

	events := make(chan event.Event, 4)
	done := make(chan struct{})
	go func() {
		feed.Consume(context.Background(), events)
		close(done)
	}()
	events <- thumbnail(1, 2, 2)
	events <- event.WindowRemoved{ID: 1}
	close(events)

	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "thumbnail" || msg.Width != 2 {
		t.Fatalf("expected thumbnail message, got %+v", msg)
	}
	if _, err := png.Decode(bytes.NewReader(msg.PNG)); err != nil {
		t.Errorf("expected png payload: %v", err)
	}

	msg = Message{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "remove" || msg.ID != 1 {
		t.Fatalf("expected remove message, got %+v", msg)
	}

	<-done
	if err := conn.ReadJSON(&msg); err == nil {
		t.Error("expected stream to close when the feed ends")
	}
}

func TestSubscribeAfterCloseIsClosed(t *testing.T) {
	feed := NewFeed(catalog.New(), 8, 8)
	events := make(chan event.Event)
	close(events)
	feed.Consume(context.Background(), events)

	ch := feed.Subscribe()
	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
	feed.Unsubscribe(ch)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	feed := NewFeed(catalog.New(), 8, 8)
	ch := feed.Subscribe()
	defer feed.Unsubscribe(ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			feed.Publish(event.WindowUpserted{ID: uint32(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a subscriber that does not read")
	}
}

func TestJoinDeliversEachEventOnce(t *testing.T) {
	feed := NewFeed(catalog.New(), 8, 8)
	const n = 50

	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 1; i <= n; i++ {
			feed.Publish(event.WindowUpserted{ID: uint32(i)})
		}
	}()

	ch, replay := feed.Join()
	defer feed.Unsubscribe(ch)
	<-published

	seen := make(map[uint32]int)
	for _, msg := range replay {
		seen[msg.ID]++
	}
	for drained := false; !drained; {
		select {
		case msg := <-ch:
			seen[msg.ID]++
		default:
			drained = true
		}
	}

	for i := uint32(1); i <= n; i++ {
		if seen[i] != 1 {
			t.Errorf("window %d delivered %d times", i, seen[i])
		}
	}
}
