package directline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_StartConversation(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		response   *Conversation
		wantErr    bool
		wantStatus int
	}{
		{
			name:       "created",
			statusCode: http.StatusCreated,
			response:   &Conversation{ConversationID: "conv-1", Token: "tok-1", ExpiresIn: 3600},
			wantErr:    false,
		},
		{
			name:       "ok also accepted",
			statusCode: http.StatusOK,
			response:   &Conversation{ConversationID: "conv-1", Token: "tok-1"},
			wantErr:    false,
		},
		{
			name:       "forbidden",
			statusCode: http.StatusForbidden,
			wantErr:    true,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "bad gateway",
			statusCode: http.StatusBadGateway,
			wantErr:    true,
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("Method = %v, want POST", r.Method)
				}
				if r.URL.Path != "/conversations" {
					t.Errorf("Path = %v, want /conversations", r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer secret" {
					t.Errorf("Authorization = %q, want %q", got, "Bearer secret")
				}

				var body struct {
					User ChannelAccount `json:"user"`
				}
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("decode request body: %v", err)
				}
				if body.User.ID != "user-1" {
					t.Errorf("user.id = %q, want %q", body.User.ID, "user-1")
				}

				w.WriteHeader(tt.statusCode)
				if tt.response != nil {
					json.NewEncoder(w).Encode(tt.response)
				}
			}))
			defer server.Close()

			client := NewClient(server.URL, "secret")
			conv, err := client.StartConversation(context.Background(), "user-1", "Web User")

			if (err != nil) != tt.wantErr {
				t.Fatalf("StartConversation() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var upstream *UpstreamError
				if !errors.As(err, &upstream) {
					t.Fatalf("error = %T, want *UpstreamError", err)
				}
				if upstream.Status != tt.wantStatus {
					t.Errorf("Status = %d, want %d", upstream.Status, tt.wantStatus)
				}
				return
			}

			if conv.ConversationID != tt.response.ConversationID {
				t.Errorf("ConversationID = %q, want %q", conv.ConversationID, tt.response.ConversationID)
			}
			if conv.Token != tt.response.Token {
				t.Errorf("Token = %q, want %q", conv.Token, tt.response.Token)
			}
		})
	}
}

func TestClient_StartConversationMissingSecret(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call should be made without a secret")
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.StartConversation(context.Background(), "user-1", "Web User")
	if !errors.Is(err, ErrMissingSecret) {
		t.Errorf("StartConversation() error = %v, want ErrMissingSecret", err)
	}
}

func TestClient_PostActivity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/conv-1/activities" {
			t.Errorf("Path = %v, want /conversations/conv-1/activities", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q, want per-conversation token", got)
		}

		var activity Activity
		if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		if activity.Type != ActivityTypeMessage {
			t.Errorf("type = %q, want %q", activity.Type, ActivityTypeMessage)
		}
		if activity.From.ID != "user-1" {
			t.Errorf("from.id = %q, want %q", activity.From.ID, "user-1")
		}
		if activity.Text != "hello" {
			t.Errorf("text = %q, want %q", activity.Text, "hello")
		}

		json.NewEncoder(w).Encode(map[string]string{"id": "act-1"})
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	conv := Conversation{ConversationID: "conv-1", Token: "tok-1"}

	id, err := client.PostActivity(context.Background(), conv, ChannelAccount{ID: "user-1", Name: "Web User"}, "hello")
	if err != nil {
		t.Fatalf("PostActivity() error = %v", err)
	}
	if id != "act-1" {
		t.Errorf("activity ID = %q, want %q", id, "act-1")
	}
}

func TestClient_PostActivityRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	conv := Conversation{ConversationID: "conv-1", Token: "tok-1"}

	_, err := client.PostActivity(context.Background(), conv, ChannelAccount{ID: "user-1"}, "hello")
	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("error = %T, want *UpstreamError", err)
	}
	if upstream.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want %d", upstream.Status, http.StatusBadGateway)
	}
}

func TestClient_Activities(t *testing.T) {
	tests := []struct {
		name          string
		watermark     string
		wantRawQuery  string
		statusCode    int
		response      *ActivitySet
		wantErr       bool
		wantActivites int
	}{
		{
			name:         "from the beginning",
			watermark:    "",
			wantRawQuery: "",
			statusCode:   http.StatusOK,
			response: &ActivitySet{
				Activities: []Activity{
					{ID: "1", Type: "message", From: ChannelAccount{ID: "bot"}, Text: "hi"},
				},
				Watermark: "1",
			},
			wantActivites: 1,
		},
		{
			name:         "since watermark",
			watermark:    "3",
			wantRawQuery: "watermark=3",
			statusCode:   http.StatusOK,
			response:     &ActivitySet{Watermark: "3"},
		},
		{
			name:       "server error",
			statusCode: http.StatusServiceUnavailable,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("Method = %v, want GET", r.Method)
				}
				if r.URL.RawQuery != tt.wantRawQuery {
					t.Errorf("RawQuery = %q, want %q", r.URL.RawQuery, tt.wantRawQuery)
				}

				w.WriteHeader(tt.statusCode)
				if tt.response != nil {
					json.NewEncoder(w).Encode(tt.response)
				}
			}))
			defer server.Close()

			client := NewClient(server.URL, "secret")
			conv := Conversation{ConversationID: "conv-1", Token: "tok-1"}

			set, err := client.Activities(context.Background(), conv, tt.watermark)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Activities() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			if len(set.Activities) != tt.wantActivites {
				t.Errorf("len(Activities) = %d, want %d", len(set.Activities), tt.wantActivites)
			}
			if set.Watermark != tt.response.Watermark {
				t.Errorf("Watermark = %q, want %q", set.Watermark, tt.response.Watermark)
			}
		})
	}
}

func TestClient_ActivitiesContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Slow response to test context cancellation
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	_, err := client.Activities(ctx, Conversation{ConversationID: "conv-1", Token: "tok-1"}, "")
	if err == nil {
		t.Error("Activities() with cancelled context should return error")
	}
}

func TestActivity_HasContent(t *testing.T) {
	tests := []struct {
		name     string
		activity Activity
		want     bool
	}{
		{name: "text", activity: Activity{Text: "hi"}, want: true},
		{name: "attachment only", activity: Activity{Attachments: []json.RawMessage{json.RawMessage(`{}`)}}, want: true},
		{name: "empty", activity: Activity{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.activity.HasContent(); got != tt.want {
				t.Errorf("HasContent() = %v, want %v", got, tt.want)
			}
		})
	}
}
