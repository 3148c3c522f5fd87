package security

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"commentdm/internal/graph"
	"commentdm/internal/replier"
	"commentdm/internal/security"
	"commentdm/internal/store"
	"commentdm/pkg/templates"
)

// TestPayloadIDsStayInRequestBody validates that identifiers from webhook
// payloads cannot alter the outbound request path or query
func TestPayloadIDsStayInRequestBody(t *testing.T) {
	ids := []string{
		"17895695668004550",
		"../../me/accounts",
		"123?fields=access_token",
		"123#x",
		"c1\n2",
	}

	for _, id := range ids {
		t.Run(id, func(t *testing.T) {
			type captured struct{ path, query, commentID string }
			seen := make(chan captured, 1)
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body struct {
					Recipient struct {
						CommentID string `json:"comment_id"`
					} `json:"recipient"`
				}
				_ = json.NewDecoder(r.Body).Decode(&body)
				seen <- captured{r.URL.Path, r.URL.RawQuery, body.Recipient.CommentID}
			}))
			defer upstream.Close()

			client := graph.NewClient(upstream.URL, "token", 5*time.Second)
			if err := client.PrivateReply(context.Background(), id, "hi"); err != nil {
				t.Fatalf("PrivateReply() error = %v", err)
			}

			got := <-seen
			if got.path != "/me/messages" || got.query != "" {
				t.Errorf("Expected POST /me/messages without query, got %q ?%q", got.path, got.query)
			}
			if got.commentID != id {
				t.Errorf("Expected comment_id %q in body, got %q", id, got.commentID)
			}
		})
	}
}

// TestOversizedPayloadIDsRejected validates the length bound on identifiers
func TestOversizedPayloadIDsRejected(t *testing.T) {
	change := replier.Change{
		Field: "comments",
		Value: replier.ChangeValue{
			ID:    strings.Repeat("1", security.MaxPayloadIDLength+1),
			From:  &replier.Author{ID: "3"},
			Media: &replier.Media{ID: "2"},
		},
	}

	if _, ok := change.CommentEvent(); ok {
		t.Error("Expected oversized comment id to be rejected")
	}
}

// TestDashboardEscaping validates that stored content cannot inject markup
func TestDashboardEscaping(t *testing.T) {
	payloads := []string{
		`<script>alert(document.cookie)</script>`,
		`"><img src=x onerror=alert(1)>`,
		`</textarea><script>alert(1)</script>`,
	}

	for _, payload := range payloads {
		rendered, err := templates.RenderDashboard(templates.DashboardData{
			ReplyText: payload,
			Logs: []templates.LogRow{
				{Type: "error", Msg: payload, Extra: map[string]any{"detail": payload}},
			},
		})
		if err != nil {
			t.Fatalf("RenderDashboard() error = %v", err)
		}

		for _, dangerous := range []string{"<script>", "<img", "</textarea><script"} {
			if strings.Contains(rendered, dangerous) {
				t.Errorf("Rendered dashboard contains unescaped %q for payload %q", dangerous, payload)
			}
		}
	}
}

// TestSecretComparison validates the admin and verify token checks
func TestSecretComparison(t *testing.T) {
	tests := []struct {
		name       string
		supplied   string
		configured string
		want       bool
	}{
		{"match", "s3cret-value", "s3cret-value", true},
		{"mismatch", "s3cret-valuf", "s3cret-value", false},
		{"prefix", "s3cret", "s3cret-value", false},
		{"unset configured, empty supplied", "", "", false},
		{"unset configured, any supplied", "anything", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := security.SecretEqual(tt.supplied, tt.configured); got != tt.want {
				t.Errorf("SecretEqual() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestStateFilePermissions validates that the state file is not readable by
// other users
func TestStateFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "data.json")

	st, err := store.Open(path, nil, nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if err := st.MarkSent("1:2", "3"); err != nil {
		t.Fatalf("MarkSent() error = %v", err)
	}

	if err := security.ValidateSecurePermissions(path); err != nil {
		t.Errorf("State file permissions: %v", err)
	}

	info, err := os.Stat(filepath.Dir(path))
	if err != nil {
		t.Fatalf("Failed to stat state dir: %v", err)
	}
	if security.IsWorldWritable(info.Mode().Perm()) {
		t.Errorf("State directory is world-writable: %04o", info.Mode().Perm())
	}
}
