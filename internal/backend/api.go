package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/matheus3301/wpparchive/internal/model"
	"github.com/tidwall/gjson"
)

// CheckSession asks whether a usable link already exists.
func (c *Client) CheckSession(ctx context.Context) (model.SessionProbe, error) {
	body, err := c.do(ctx, http.MethodGet, "/whatsapp/check-session", nil, nil)
	if err != nil {
		return model.SessionProbe{}, err
	}
	r := gjson.ParseBytes(body)
	return model.SessionProbe{
		HasSession: r.Get("hasSession").Bool(),
		IsActive:   r.Get("isActive").Bool(),
		Connected:  r.Get("connected").Bool(),
		AccountID:  firstString(r, "phoneNumber", "accountId"),
	}, nil
}

// InitializeLink asks the server to start pairing the external account.
func (c *Client) InitializeLink(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/whatsapp/initialize", nil, nil)
	return err
}

// QR returns the most recent pairing code, or empty when none is pending.
func (c *Client) QR(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/whatsapp/qr", nil, nil)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "qr").String(), nil
}

// Status returns the server's view of the link.
func (c *Client) Status(ctx context.Context) (model.LinkStatus, error) {
	body, err := c.do(ctx, http.MethodGet, "/whatsapp/status", nil, nil)
	if err != nil {
		return model.LinkStatus{}, err
	}
	r := gjson.ParseBytes(body)
	if s := r.Get("status"); s.IsObject() {
		r = s
	}
	return model.LinkStatus{
		Connected: r.Get("connected").Bool(),
		AccountID: firstString(r, "phoneNumber", "accountId"),
		LastUsed:  parseTime(r.Get("lastUsed")),
	}, nil
}

// Disconnect logs the external account out on the server.
func (c *Client) Disconnect(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "/whatsapp/disconnect", nil, nil)
	return err
}

// DeleteSession removes the stored link session on the server.
func (c *Client) DeleteSession(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/whatsapp/session", nil, nil)
	return err
}

// FetchMessages starts a bulk fetch.
func (c *Client) FetchMessages(ctx context.Context) (model.FetchResult, error) {
	body, err := c.do(ctx, http.MethodPost, "/whatsapp/fetch-messages", nil, struct{}{})
	if err != nil {
		return model.FetchResult{}, err
	}
	r := gjson.ParseBytes(body)
	return model.FetchResult{
		Status:  r.Get("status").String(),
		Message: r.Get("message").String(),
	}, nil
}

// ListChats returns every archived chat.
func (c *Client) ListChats(ctx context.Context) ([]model.ChatSummary, error) {
	body, err := c.do(ctx, http.MethodGet, "/messages/chats", nil, nil)
	if err != nil {
		return nil, err
	}
	arr := gjson.GetBytes(body, "chats").Array()
	chats := make([]model.ChatSummary, 0, len(arr))
	for _, r := range arr {
		chats = append(chats, model.ChatSummary{
			ID:               r.Get("id").String(),
			ExternalChatID:   r.Get("chat_id").String(),
			Name:             r.Get("chat_name").String(),
			IsGroup:          r.Get("is_group").Bool(),
			ParticipantCount: int(r.Get("participant_count").Int()),
			MessageCount:     r.Get("message_count").Int(),
			LastMessageTime:  parseTime(r.Get("last_message_time")),
		})
	}
	return chats, nil
}

// ListMessages returns one page of a chat's messages, newest first.
func (c *Client) ListMessages(ctx context.Context, chatID string, limit, offset int) ([]model.MessageRecord, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	body, err := c.do(ctx, http.MethodGet, "/messages/chats/"+url.PathEscape(chatID)+"/messages", q, nil)
	if err != nil {
		return nil, err
	}
	arr := gjson.GetBytes(body, "messages").Array()
	msgs := make([]model.MessageRecord, 0, len(arr))
	for _, r := range arr {
		msgs = append(msgs, decodeMessage(r))
	}
	return msgs, nil
}

// Search runs a server-side full-text search.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	q := url.Values{"q": {query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.do(ctx, http.MethodGet, "/messages/search", q, nil)
	if err != nil {
		return nil, err
	}
	arr := gjson.GetBytes(body, "results").Array()
	results := make([]model.SearchResult, 0, len(arr))
	for _, r := range arr {
		results = append(results, model.SearchResult{
			Message:  decodeMessage(r),
			ChatName: r.Get("chat_name").String(),
			Snippet:  r.Get("snippet").String(),
		})
	}
	return results, nil
}

// Stats returns the archive counters. Counts may arrive as strings.
func (c *Client) Stats(ctx context.Context) (model.Stats, error) {
	body, err := c.do(ctx, http.MethodGet, "/messages/stats", nil, nil)
	if err != nil {
		return model.Stats{}, err
	}
	r := gjson.GetBytes(body, "stats")
	return model.Stats{
		TotalChats:    r.Get("total_chats").Int(),
		TotalMessages: r.Get("total_messages").Int(),
	}, nil
}

// Export downloads the whole archive in the given format.
func (c *Client) Export(ctx context.Context, format string) ([]byte, error) {
	if format == "" {
		format = "json"
	}
	return c.do(ctx, http.MethodGet, "/messages/export", url.Values{"format": {format}}, nil)
}

// DeleteAll removes every archived chat and message.
func (c *Client) DeleteAll(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/messages/all", nil, nil)
	return err
}

func decodeMessage(r gjson.Result) model.MessageRecord {
	return model.MessageRecord{
		ChatExternalID: r.Get("chat_id").String(),
		Body:           r.Get("body").String(),
		Timestamp:      r.Get("timestamp").Int(),
		FromMe:         r.Get("from_me").Bool(),
		SenderName:     r.Get("sender_name").String(),
		Type:           r.Get("message_type").String(),
	}
}

func firstString(r gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() && v.Type != gjson.Null {
			return v.String()
		}
	}
	return ""
}
