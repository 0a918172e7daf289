package messages

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	dsn := fmt.Sprintf("file:messages_test_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Message{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	base := time.Unix(1780000000, 0).UTC()
	counter := 0
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			counter++
			return base.Add(time.Duration(counter) * time.Second)
		},
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return service
}

func TestCreateDefaultsToTextType(t *testing.T) {
	service := newTestService(t)

	message, err := service.Create(context.Background(), CreateRequest{
		ChatID:      "chat-1",
		SenderEmail: "a@x.com",
		SenderName:  "Ada",
		Content:     "hello room",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if message.Type != TypeText {
		t.Fatalf("expected text default, got %q", message.Type)
	}
	if message.MessageID == "" {
		t.Fatalf("expected a generated id")
	}
}

func TestCreateValidation(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		request CreateRequest
	}{
		{name: "missing chat", request: CreateRequest{SenderEmail: "a@x.com", Content: "hi"}},
		{name: "missing sender", request: CreateRequest{ChatID: "chat-1", Content: "hi"}},
		{name: "blank content", request: CreateRequest{ChatID: "chat-1", SenderEmail: "a@x.com", Content: "  "}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := service.Create(ctx, tc.request); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestListByChatPagesOldestFirst(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := service.Create(ctx, CreateRequest{
			ChatID:      "chat-1",
			SenderEmail: "a@x.com",
			Content:     fmt.Sprintf("message %d", i),
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := service.Create(ctx, CreateRequest{
		ChatID:      "chat-other",
		SenderEmail: "a@x.com",
		Content:     "elsewhere",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	page, err := service.ListByChat(ctx, "chat-1", 1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("expected two messages, got %d", len(page.Messages))
	}
	if page.Messages[0].Content != "message 0" {
		t.Fatalf("expected oldest first, got %q", page.Messages[0].Content)
	}
	if page.TotalPages != 3 {
		t.Fatalf("expected three pages of two, got %d", page.TotalPages)
	}

	last, err := service.ListByChat(ctx, "chat-1", 3, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(last.Messages) != 1 || last.Messages[0].Content != "message 4" {
		t.Fatalf("unexpected last page %#v", last.Messages)
	}
}

func TestListByChatUnknownChatIsEmpty(t *testing.T) {
	service := newTestService(t)

	page, err := service.ListByChat(context.Background(), "never-seen", 1, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Messages) != 0 || page.TotalPages != 0 {
		t.Fatalf("expected an empty page, got %#v", page)
	}
}
