package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parleylabs/parley/internal/applications"
	"github.com/parleylabs/parley/internal/conversations"
	"github.com/parleylabs/parley/internal/database"
	"github.com/parleylabs/parley/internal/flood"
	"github.com/parleylabs/parley/internal/moderation"
	"github.com/parleylabs/parley/internal/record"
	"github.com/parleylabs/parley/internal/server"
	"github.com/parleylabs/parley/internal/session"
	"github.com/parleylabs/parley/internal/spam"
)

type stack struct {
	handler http.Handler
	tokens  *session.TokenManager
	store   *record.Store
}

// newStack wires the whole application the same way the server command does,
// against an in-memory database.
func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:parley_integration_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := database.OpenSQLite(dsn, nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	store, err := record.NewStore(record.StoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	writer, err := moderation.NewWriter(moderation.WriterConfig{Store: store, DeleteCommentThreshold: 10})
	if err != nil {
		t.Fatalf("failed to construct moderation writer: %v", err)
	}
	limiter, err := flood.NewLimiter(flood.LimiterConfig{Enabled: true, MaxCount: 100, Window: time.Minute})
	if err != nil {
		t.Fatalf("failed to construct flood limiter: %v", err)
	}
	dispatcher, err := spam.NewDispatcher(spam.DispatcherConfig{
		Enabled:    true,
		Users:      store,
		Moderation: writer,
		Checkers: []spam.Checker{
			spam.NewKeywordChecker([]string{"cheap pills"}),
			&spam.FloodChecker{Limiter: limiter},
		},
	})
	if err != nil {
		t.Fatalf("failed to construct dispatcher: %v", err)
	}
	applicationsService, err := applications.NewService(applications.ServiceConfig{Store: store, Spam: dispatcher, Flood: limiter})
	if err != nil {
		t.Fatalf("failed to construct applications service: %v", err)
	}
	conversationsService, err := conversations.NewService(conversations.ServiceConfig{Store: store, Spam: dispatcher})
	if err != nil {
		t.Fatalf("failed to construct conversations service: %v", err)
	}
	tokens, err := session.NewTokenManager(session.TokenManagerConfig{
		SigningSecret: []byte("integration-test-secret"),
		Issuer:        "parley",
	})
	if err != nil {
		t.Fatalf("failed to construct token manager: %v", err)
	}
	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:  tokens,
		Applications:  applicationsService,
		Conversations: conversationsService,
	})
	if err != nil {
		t.Fatalf("failed to construct handler: %v", err)
	}
	return &stack{handler: handler, tokens: tokens, store: store}
}

func (s *stack) request(t *testing.T, method, path string, body any, configure func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	payload := []byte(nil)
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		payload = encoded
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if configure != nil {
		configure(req)
	}
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, req)
	return recorder
}

func (s *stack) guestCookie(t *testing.T) *http.Cookie {
	t.Helper()
	resp := s.request(t, http.MethodGet, "/api/v2/session", nil, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 from session endpoint, got %d", resp.Code)
	}
	for _, cookie := range resp.Result().Cookies() {
		if cookie.Name == "parley_tk" {
			return cookie
		}
	}
	t.Fatalf("expected a transient key cookie")
	return nil
}

func (s *stack) approverToken(t *testing.T) string {
	t.Helper()
	token, err := s.tokens.Issue(session.Claims{
		UserID:      1000,
		UserName:    "moderator",
		Permissions: []string{session.PermApproveUsers, session.PermModerate},
	})
	if err != nil {
		t.Fatalf("failed to issue approver token: %v", err)
	}
	return token
}

func TestApplicationApprovalFlow(t *testing.T) {
	s := newStack(t)
	cookie := s.guestCookie(t)

	// A guest submits a membership application.
	resp := s.request(t, http.MethodPost, "/api/v2/applications", map[string]any{
		"email":         "newcomer@example.com",
		"name":          "newcomer",
		"password":      "s3cret!pass",
		"discoveryText": "a friend invited me",
	}, func(req *http.Request) {
		req.AddCookie(cookie)
		req.Header.Set("X-Transient-Key", cookie.Value)
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 submitting, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		ApplicationID int64  `json:"applicationID"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode application: %v", err)
	}
	if created.Status != "pending" {
		t.Fatalf("expected pending application, got %q", created.Status)
	}

	// The moderator sees it in the pending list.
	token := s.approverToken(t)
	authorize := func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }
	resp = s.request(t, http.MethodGet, "/api/v2/applications", nil, authorize)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 listing, got %d", resp.Code)
	}
	var listed []struct {
		ApplicationID int64 `json:"applicationID"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &listed); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].ApplicationID != created.ApplicationID {
		t.Fatalf("expected the submitted application listed, got %v", listed)
	}

	// Approval flips the status; a repeat transition conflicts.
	path := fmt.Sprintf("/api/v2/applications/%d", created.ApplicationID)
	resp = s.request(t, http.MethodPatch, path, map[string]string{"status": "approved"}, authorize)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 approving, got %d: %s", resp.Code, resp.Body.String())
	}
	resp = s.request(t, http.MethodPatch, path, map[string]string{"status": "declined"}, authorize)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 on second transition, got %d", resp.Code)
	}

	// The approved account is out of the pending list.
	resp = s.request(t, http.MethodGet, "/api/v2/applications", nil, authorize)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 listing, got %d", resp.Code)
	}
	listed = nil
	if err := json.Unmarshal(resp.Body.Bytes(), &listed); err != nil {
		t.Fatalf("failed to decode list: %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected an empty pending list after approval, got %v", listed)
	}
}

func TestSpamRegistrationLandsInModerationQueue(t *testing.T) {
	s := newStack(t)
	cookie := s.guestCookie(t)

	resp := s.request(t, http.MethodPost, "/api/v2/applications", map[string]any{
		"email":         "spammer@example.com",
		"name":          "spammer",
		"password":      "s3cret!pass",
		"discoveryText": "buy cheap pills here",
	}, func(req *http.Request) {
		req.AddCookie(cookie)
		req.Header.Set("X-Transient-Key", cookie.Value)
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected flagged registration rejected with 403, got %d: %s", resp.Code, resp.Body.String())
	}

	var logs []moderation.SpamLog
	if err := s.store.DB().Find(&logs).Error; err != nil {
		t.Fatalf("failed to load moderation queue: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected one moderation entry, got %d", len(logs))
	}
	entry := logs[0]
	if entry.Operation != moderation.OperationSpam || entry.RecordType != "Registration" {
		t.Fatalf("unexpected moderation entry: %+v", entry)
	}
	if entry.GroupBy != moderation.GroupByRecordIPAddress {
		t.Fatalf("expected registrations grouped by ip, got %q", entry.GroupBy)
	}
}
