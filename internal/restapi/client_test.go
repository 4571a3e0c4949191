package restapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/internlink/realtime/internal/wire"
)

// fakeCollaborator serves the slice of the messaging server's REST surface
// the client talks to.
func fakeCollaborator(t *testing.T) (*httptest.Server, *collabState) {
	t.Helper()

	gin.SetMode(gin.TestMode)
	state := &collabState{readAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	r := gin.New()
	r.POST("/chat/send", func(c *gin.Context) {
		state.lastAuth = c.GetHeader("Authorization")

		var in wire.SendMessageData
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if in.Message == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
			return
		}
		state.lastSend = in
		c.JSON(http.StatusOK, wire.Message{
			ID:         uuid.NewString(),
			SenderID:   "a",
			ReceiverID: in.ReceiverID,
			Body:       in.Message,
			Type:       in.Type,
			CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		})
	})
	r.PUT("/chat/messages/:id/read", func(c *gin.Context) {
		state.lastAuth = c.GetHeader("Authorization")
		state.lastReadID = c.Param("id")
		c.JSON(http.StatusOK, gin.H{"readAt": state.readAt})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, state
}

type collabState struct {
	lastAuth   string
	lastSend   wire.SendMessageData
	lastReadID string
	readAt     time.Time
}

func TestSendMessageReturnsServerCopy(t *testing.T) {
	srv, state := fakeCollaborator(t)
	client := New(srv.URL, "tok-123", nil)

	msg, err := client.SendMessage(context.Background(), "b", "hello", "text")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ID == "" {
		t.Fatal("server copy must carry an id")
	}
	if msg.Body != "hello" || msg.ReceiverID != "b" {
		t.Fatalf("unexpected server copy: %+v", msg)
	}
	if state.lastSend.Type != "text" {
		t.Fatalf("type not forwarded: %+v", state.lastSend)
	}
	if state.lastAuth != "Bearer tok-123" {
		t.Fatalf("auth header = %q", state.lastAuth)
	}
}

func TestSendMessageSurfacesServerRejection(t *testing.T) {
	srv, _ := fakeCollaborator(t)
	client := New(srv.URL, "tok-123", nil)

	if _, err := client.SendMessage(context.Background(), "b", "", "text"); err == nil {
		t.Fatal("expected error for rejected send")
	}
}

func TestMarkMessageRead(t *testing.T) {
	srv, state := fakeCollaborator(t)
	client := New(srv.URL, "tok-123", nil)

	readAt, err := client.MarkMessageRead(context.Background(), "m-42")
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if state.lastReadID != "m-42" {
		t.Fatalf("read id = %q, want m-42", state.lastReadID)
	}
	if !readAt.Equal(state.readAt) {
		t.Fatalf("readAt = %v, want %v", readAt, state.readAt)
	}
}

func TestUnreachableServerWrapsTransportError(t *testing.T) {
	client := New("http://127.0.0.1:1", "tok", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := client.SendMessage(ctx, "b", "hello", "text"); err == nil {
		t.Fatal("expected transport error")
	}
}
