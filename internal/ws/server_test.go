package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/mvetrova/trailcam/internal/job"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) snapshotMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	var msg snapshotMessage
	if err := wsjson.Read(ctx, conn, &msg); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	return msg
}

func TestHandle_ReplaysLatestSnapshotOnConnect(t *testing.T) {
	s := NewServer()
	srv := httptest.NewServer(http.HandlerFunc(s.Handle))
	defer srv.Close()

	j := *job.New(job.TypeImport, &job.ImportPayload{Paths: []string{"/tmp"}})
	j.Status = job.StatusCompleted
	s.Broadcast([]job.Job{j})

	conn := dial(t, "ws"+srv.URL[len("http"):])
	defer conn.Close(websocket.StatusNormalClosure, "done")

	msg := readSnapshot(t, conn)
	if msg.Type != "jobs" {
		t.Fatalf("expected jobs frame, got %q", msg.Type)
	}
	if len(msg.Jobs) != 1 || msg.Jobs[0].ID != j.ID {
		t.Fatalf("expected replayed snapshot, got %+v", msg.Jobs)
	}
}

func TestBroadcast_PushesToConnectedClients(t *testing.T) {
	s := NewServer()
	srv := httptest.NewServer(http.HandlerFunc(s.Handle))
	defer srv.Close()

	conn := dial(t, "ws"+srv.URL[len("http"):])
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// No snapshot yet, so nothing is replayed; wait for the live push.
	time.Sleep(50 * time.Millisecond)

	j := *job.New(job.TypeDetect, &job.DetectPayload{SelectedPaths: []string{"/a.jpg"}})
	j.Status = job.StatusRunning
	j.Progress = 40
	s.Broadcast([]job.Job{j})

	msg := readSnapshot(t, conn)
	if len(msg.Jobs) != 1 || msg.Jobs[0].Progress != 40 {
		t.Fatalf("expected live snapshot, got %+v", msg.Jobs)
	}
}

func TestBroadcast_NoClientsIsFine(t *testing.T) {
	s := NewServer()
	s.Broadcast([]job.Job{*job.New(job.TypeImport, &job.ImportPayload{})})
}
