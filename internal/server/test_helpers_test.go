package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/promptweave-ai/promptweave/backend/internal/auth"
	"github.com/promptweave-ai/promptweave/backend/internal/chats"
	"github.com/promptweave-ai/promptweave/backend/internal/collab"
	"github.com/promptweave-ai/promptweave/backend/internal/llm"
	"github.com/promptweave-ai/promptweave/backend/internal/mail"
	"github.com/promptweave-ai/promptweave/backend/internal/messages"
	"github.com/promptweave-ai/promptweave/backend/internal/promptgen"
	"github.com/promptweave-ai/promptweave/backend/internal/realtime"
	"github.com/promptweave-ai/promptweave/backend/internal/templates"
	"github.com/promptweave-ai/promptweave/backend/internal/users"
	"gorm.io/gorm"
)

type echoCompleter struct{}

func (echoCompleter) Complete(_ context.Context, _ string, _ []llm.ChatMessage) (string, error) {
	return "stubbed reply", nil
}

type recordingMailer struct {
	mu          sync.Mutex
	invitations []mail.Invitation
	failing     bool
}

func (m *recordingMailer) SendInvitation(_ context.Context, invitation mail.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return fmt.Errorf("mail: smtp unavailable")
	}
	m.invitations = append(m.invitations, invitation)
	return nil
}

type testServer struct {
	handler http.Handler
	mailer  *recordingMailer
	gateway *realtime.Gateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:server_test_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.Account{}, &chats.Chat{}, &messages.Message{}, &templates.Template{},
		&collab.Collaboration{}, &promptgen.Generation{}, &promptgen.Session{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	sessions, err := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "promptweave-auth",
		Audience:      "promptweave-api",
		SessionTTL:    time.Hour,
	})
	if err != nil {
		t.Fatalf("unexpected session manager error: %v", err)
	}

	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("unexpected users error: %v", err)
	}
	chatsService, err := chats.NewService(chats.ServiceConfig{Database: db, Completer: echoCompleter{}})
	if err != nil {
		t.Fatalf("unexpected chats error: %v", err)
	}
	messagesService, err := messages.NewService(messages.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("unexpected messages error: %v", err)
	}
	templatesService, err := templates.NewService(templates.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("unexpected templates error: %v", err)
	}
	collabService, err := collab.NewService(collab.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("unexpected collab error: %v", err)
	}
	promptGenService, err := promptgen.NewService(promptgen.ServiceConfig{
		Database:  db,
		Completer: echoCompleter{},
		Templates: templatesService,
	})
	if err != nil {
		t.Fatalf("unexpected promptgen error: %v", err)
	}

	registry := realtime.NewRegistry()
	gateway, err := realtime.NewGateway(realtime.GatewayConfig{
		Registry:   registry,
		Dispatcher: realtime.NewDispatcher(registry, nil),
		Presence:   collabService,
	})
	if err != nil {
		t.Fatalf("unexpected gateway error: %v", err)
	}

	mailer := &recordingMailer{}
	handler, err := NewHTTPHandler(Dependencies{
		Sessions:   sessions,
		Users:      usersService,
		Chats:      chatsService,
		Messages:   messagesService,
		Templates:  templatesService,
		Collab:     collabService,
		PromptGen:  promptGenService,
		Gateway:    gateway,
		Mailer:     mailer,
		CookieName: "pw_session",
		CookieTTL:  time.Hour,
		AppBaseURL: "http://app.test",
		CORSOrigin: "http://app.test",
	})
	if err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}

	return &testServer{handler: handler, mailer: mailer, gateway: gateway}
}

func (s *testServer) do(t *testing.T, method, path, cookie string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if cookie != "" {
		request.AddCookie(&http.Cookie{Name: "pw_session", Value: cookie})
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

// registerUser creates an account and returns the session cookie value.
func (s *testServer) registerUser(t *testing.T, email, name string) string {
	t.Helper()

	recorder := s.do(t, http.MethodPost, "/auth/register", "", map[string]string{
		"email":    email,
		"name":     name,
		"password": "long-enough-password",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("register failed with %d: %s", recorder.Code, recorder.Body.String())
	}
	for _, cookie := range recorder.Result().Cookies() {
		if cookie.Name == "pw_session" && cookie.Value != "" {
			return cookie.Value
		}
	}
	t.Fatalf("expected a session cookie on register")
	return ""
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return body
}
