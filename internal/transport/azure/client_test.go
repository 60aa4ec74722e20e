package azure

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"azure-communication/internal/domain"
	acs_errors "azure-communication/pkg/errors"
)

type staticToken string

func (s staticToken) Token(ctx context.Context) (string, error) { return string(s), nil }

// fakeACS serves a tiny slice of the chat REST API.
type fakeACS struct {
	mu       sync.Mutex
	requests []*http.Request
	sent     []sendChatMessageRequest
}

func (f *fakeACS) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /chat/threads", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.URL.Query().Get("page") == "2" {
			writeJSON(w, http.StatusOK, chatThreadsCollection{Value: []chatThreadItem{{ID: "t2", Topic: "second"}}})
			return
		}
		writeJSON(w, http.StatusOK, chatThreadsCollection{
			Value:    []chatThreadItem{{ID: "t1", Topic: "first"}},
			NextLink: "/chat/threads?page=2&api-version=" + DefaultAPIVersion,
		})
	})

	mux.HandleFunc("GET /chat/threads/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if r.PathValue("id") != "t1" {
			body := communicationErrorResponse{}
			body.Error.Code = "NotFound"
			body.Error.Message = "thread not found"
			writeJSON(w, http.StatusNotFound, body)
			return
		}
		writeJSON(w, http.StatusOK, chatThreadProperties{ID: "t1", Topic: "first"})
	})

	mux.HandleFunc("GET /chat/threads/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		created := time.Unix(10, 0).UTC()
		if r.URL.Query().Get("page") == "2" {
			writeJSON(w, http.StatusOK, chatMessagesCollection{Value: []chatMessage{{
				ID:         "m1",
				Type:       "text",
				SequenceID: "1",
				Content:    &chatMessageContent{Message: "hi"},
				SenderCommunicationIdentifier: &communicationIdentifier{
					CommunicationUser: &communicationUser{ID: "8:acs:user"},
				},
			}}})
			return
		}
		writeJSON(w, http.StatusOK, chatMessagesCollection{
			Value: []chatMessage{{
				ID:                "m2",
				Type:              "text",
				SequenceID:        "2",
				Version:           "1700000000000",
				Content:           &chatMessageContent{Message: "hello"},
				SenderDisplayName: "Ada",
				CreatedOn:         &created,
				SenderCommunicationIdentifier: &communicationIdentifier{RawID: "8:acs:ada"},
			}},
			NextLink: "http://ignored.invalid/chat/threads/t1/messages?page=2",
		})
	})

	mux.HandleFunc("POST /chat/threads/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		var body sendChatMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode send body: %v", err)
		}
		f.mu.Lock()
		f.sent = append(f.sent, body)
		f.mu.Unlock()
		writeJSON(w, http.StatusCreated, sendChatMessageResult{ID: "new-id"})
	})

	return mux
}

func (f *fakeACS) record(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T) (*Client, *fakeACS) {
	t.Helper()
	fake := &fakeACS{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, staticToken("tok"), Options{PageSize: 1})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c, fake
}

func drain[T any](t *testing.T, p domain.Pager[T]) []T {
	t.Helper()
	var out []T
	for p.More() {
		page, err := p.NextPage(context.Background())
		if err != nil {
			t.Fatalf("NextPage: %v", err)
		}
		out = append(out, page...)
	}
	return out
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient("", staticToken("x"), Options{}); !errors.Is(err, acs_errors.ErrInvalidInput) {
		t.Errorf("empty endpoint: got %v", err)
	}
	if _, err := NewClient("not-a-url", staticToken("x"), Options{}); !errors.Is(err, acs_errors.ErrInvalidInput) {
		t.Errorf("relative endpoint: got %v", err)
	}
	if _, err := NewClient("https://x.communication.azure.com", nil, Options{}); !errors.Is(err, acs_errors.ErrInvalidInput) {
		t.Errorf("nil credential: got %v", err)
	}
}

func TestClient_ListThreadsFollowsNextLink(t *testing.T) {
	c, fake := newTestClient(t)

	threads := drain(t, c.ListThreads(context.Background()))
	if len(threads) != 2 || threads[0].ID != "t1" || threads[1].ID != "t2" {
		t.Fatalf("threads: got %+v", threads)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	first := fake.requests[0]
	if got := first.Header.Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization: got %q", got)
	}
	if got := first.URL.Query().Get("api-version"); got != DefaultAPIVersion {
		t.Errorf("api-version: got %q", got)
	}
	if got := first.URL.Query().Get("maxPageSize"); got != "1" {
		t.Errorf("maxPageSize: got %q", got)
	}
}

func TestClient_ListMessagesMapsWireShape(t *testing.T) {
	c, fake := newTestClient(t)

	tc, err := c.ThreadClient(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ThreadClient: %v", err)
	}
	msgs := drain(t, tc.ListMessages(context.Background()))
	if len(msgs) != 2 {
		t.Fatalf("messages: got %d, want 2", len(msgs))
	}

	m2 := msgs[0]
	if m2.ID != "m2" || m2.ThreadID != "t1" || m2.SequenceID != 2 || m2.SenderID != "8:acs:ada" {
		t.Errorf("m2 mapped wrong: %+v", m2)
	}
	if m2.CreatedOn == nil || !m2.CreatedOn.Equal(time.Unix(10, 0)) {
		t.Errorf("m2 created on: got %v", m2.CreatedOn)
	}
	m1 := msgs[1]
	if m1.CreatedOn != nil || m1.SenderID != "8:acs:user" || m1.Content.Message != "hi" {
		t.Errorf("m1 mapped wrong: %+v", m1)
	}

	// the second page must go to our endpoint even though nextLink named another host
	fake.mu.Lock()
	defer fake.mu.Unlock()
	last := fake.requests[len(fake.requests)-1]
	if last.URL.Query().Get("page") != "2" || last.URL.Query().Get("api-version") == "" {
		t.Errorf("second page request: %s", last.URL.String())
	}
}

func TestClient_ThreadClientUnknownThread(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.ThreadClient(context.Background(), "missing")
	if !errors.Is(err, acs_errors.ErrInvalidThread) {
		t.Fatalf("got %v, want ErrInvalidThread", err)
	}
	var respErr *ResponseError
	if !errors.As(err, &respErr) || respErr.Code != "NotFound" {
		t.Errorf("response error not preserved: %v", err)
	}

	if _, err := c.ThreadClient(context.Background(), "  "); !errors.Is(err, acs_errors.ErrInvalidThread) {
		t.Errorf("blank id: got %v", err)
	}
}

func TestClient_SendMessage(t *testing.T) {
	c, fake := newTestClient(t)
	tc, err := c.ThreadClient(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ThreadClient: %v", err)
	}

	id, err := tc.SendMessage(context.Background(), domain.SendMessageRequest{
		Content:           "ping",
		SenderDisplayName: "bot",
		Type:              domain.MessageTypeText,
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id != "new-id" {
		t.Errorf("id: got %q, want new-id", id)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.sent) != 1 || fake.sent[0].Content != "ping" || fake.sent[0].Type != "text" {
		t.Errorf("sent: %+v", fake.sent)
	}

	if _, err := tc.SendMessage(context.Background(), domain.SendMessageRequest{}); !errors.Is(err, acs_errors.ErrInvalidInput) {
		t.Errorf("empty content: got %v", err)
	}
}

func TestClient_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := communicationErrorResponse{}
		body.Error.Code = "Unauthorized"
		body.Error.Message = "token expired"
		writeJSON(w, http.StatusUnauthorized, body)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, staticToken("old"), Options{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = c.ListThreads(context.Background()).NextPage(context.Background())
	if !errors.Is(err, acs_errors.ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
	if !strings.Contains(err.Error(), "token expired") {
		t.Errorf("error message lost: %v", err)
	}
}
