package graphmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(server *httptest.Server) *Client {
	return New(server.URL, "test-token", 5*time.Second)
}

func TestGetMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/messages/msg-1", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		resp := messageResource{
			ID:             "msg-1",
			Subject:        "Invoice attached",
			IsRead:         false,
			HasAttachments: true,
			Attachments: []attachmentResource{
				{ID: "att-1", Name: "invoice.pdf", ContentType: "application/pdf"},
			},
		}
		resp.From.EmailAddress.Address = "billing@acme.com"
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server)
	item, err := client.GetMessage(context.Background(), "msg-1")
	require.NoError(t, err)
	assert.Equal(t, "msg-1", item.ID)
	assert.Equal(t, "billing@acme.com", item.Sender)
	assert.True(t, item.HasAttachment)
	assert.Equal(t, "att-1", item.AttachmentID)
	assert.Equal(t, "invoice.pdf", item.AttachmentName)
}

func TestListUnreadMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/mailFolders/inbox/messages", r.URL.Path)
		assert.Equal(t, "isRead eq false", r.URL.Query().Get("$filter"))
		assert.Equal(t, "25", r.URL.Query().Get("$top"))

		list := messageListResource{Value: []messageResource{
			{ID: "msg-1", Subject: "Invoice 1", HasAttachments: true},
			{ID: "msg-2", Subject: "Invoice 2", HasAttachments: false},
		}}
		json.NewEncoder(w).Encode(list)
	}))
	defer server.Close()

	client := newTestClient(server)
	items, err := client.ListUnreadMessages(context.Background(), 25)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "msg-1", items[0].ID)
	assert.True(t, items[0].HasAttachment)
}

func TestDownloadAttachment(t *testing.T) {
	data := []byte("%PDF-1.4 fake invoice")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/messages/msg-1/attachments/att-1", r.URL.Path)
		resp := attachmentResource{
			ID:           "att-1",
			ContentType:  "application/pdf",
			ContentBytes: base64.StdEncoding.EncodeToString(data),
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server)
	got, contentType, err := client.DownloadAttachment(context.Background(), "msg-1", "att-1")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "application/pdf", contentType)
}

func TestMarkAsRead(t *testing.T) {
	var body map[string]bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := newTestClient(server)
	require.NoError(t, client.MarkAsRead(context.Background(), "msg-1"))
	assert.True(t, body["isRead"])
}

func TestCreateSubscription(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/subscriptions", r.URL.Path)

		var req subscriptionRequest
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "shared-secret", req.ClientState)

		resp := subscriptionResource{
			ID:                 "sub-1",
			Resource:           req.Resource,
			ClientState:        req.ClientState,
			ExpirationDateTime: time.Now().Add(70 * time.Hour).UTC().Format(time.RFC3339),
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server)
	sub, err := client.CreateSubscription(context.Background(), "https://example.com/webhook", "shared-secret", "me/mailFolders/inbox/messages", 70*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", sub.ID)
	assert.Equal(t, "shared-secret", sub.ClientState)
}

func TestRenewSubscriptionRetriesOn503(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		resp := subscriptionResource{
			ID:                 "sub-1",
			ExpirationDateTime: time.Now().Add(70 * time.Hour).UTC().Format(time.RFC3339),
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(server)
	_, err := client.RenewSubscription(context.Background(), "sub-1", 70*time.Hour)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, attempts, 2)
}
