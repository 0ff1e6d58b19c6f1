package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/matheus3301/wpparchive/internal/model"
	"github.com/matheus3301/wpparchive/internal/view"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client is a typed client for the control service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon's Unix domain socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.CallContentSubtype(CodecName),
			grpc.MaxCallRecvMsgSize(MaxMessageSize),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	return c.conn.Invoke(ctx, fullMethod(method), req, resp)
}

func (c *Client) GetView(ctx context.Context) (view.State, error) {
	resp, err := c.GetViewInfo(ctx)
	return resp.State, err
}

// GetViewInfo returns the view together with the local mirror checkpoints.
func (c *Client) GetViewInfo(ctx context.Context) (ViewResponse, error) {
	var resp ViewResponse
	err := c.invoke(ctx, "GetView", &Empty{}, &resp)
	return resp, err
}

func (c *Client) SetCredential(ctx context.Context, token string) error {
	return c.invoke(ctx, "SetCredential", &SetCredentialRequest{Token: token}, &Empty{})
}

func (c *Client) InitializeLink(ctx context.Context) error {
	return c.invoke(ctx, "InitializeLink", &Empty{}, &Empty{})
}

func (c *Client) FetchAll(ctx context.Context) error {
	return c.invoke(ctx, "FetchAll", &Empty{}, &Empty{})
}

func (c *Client) SelectChat(ctx context.Context, chatID string) (view.State, error) {
	var resp ViewResponse
	err := c.invoke(ctx, "SelectChat", &SelectChatRequest{ChatID: chatID}, &resp)
	return resp.State, err
}

func (c *Client) LoadMore(ctx context.Context) error {
	return c.invoke(ctx, "LoadMore", &Empty{}, &Empty{})
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	var resp SearchResponse
	err := c.invoke(ctx, "Search", &SearchRequest{Query: query, Limit: limit}, &resp)
	return resp.Results, err
}

func (c *Client) LocalSearch(ctx context.Context, query, chatID string, limit int) ([]model.SearchResult, error) {
	var resp SearchResponse
	err := c.invoke(ctx, "LocalSearch", &SearchRequest{Query: query, ChatID: chatID, Limit: limit}, &resp)
	return resp.Results, err
}

func (c *Client) LocalChats(ctx context.Context, limit, offset int) (*LocalChatsResponse, error) {
	var resp LocalChatsResponse
	if err := c.invoke(ctx, "LocalChats", &LocalChatsRequest{Limit: limit, Offset: offset}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) LocalMessages(ctx context.Context, chatID string, beforeTs int64, limit int) ([]model.MessageRecord, error) {
	var resp LocalMessagesResponse
	err := c.invoke(ctx, "LocalMessages", &LocalMessagesRequest{ChatID: chatID, BeforeTs: beforeTs, Limit: limit}, &resp)
	return resp.Messages, err
}

func (c *Client) Export(ctx context.Context, format string) ([]byte, error) {
	var resp ExportResponse
	err := c.invoke(ctx, "Export", &ExportRequest{Format: format}, &resp)
	return resp.Data, err
}

func (c *Client) DeleteAll(ctx context.Context) error {
	return c.invoke(ctx, "DeleteAll", &Empty{}, &Empty{})
}

func (c *Client) DisconnectLink(ctx context.Context) error {
	return c.invoke(ctx, "DisconnectLink", &Empty{}, &Empty{})
}

func (c *Client) DeleteSession(ctx context.Context) error {
	return c.invoke(ctx, "DeleteSession", &Empty{}, &Empty{})
}

func (c *Client) Focus(ctx context.Context) error {
	return c.invoke(ctx, "Focus", &Empty{}, &Empty{})
}

func (c *Client) Visible(ctx context.Context, visible bool) error {
	return c.invoke(ctx, "Visible", &VisibleRequest{Visible: visible}, &Empty{})
}

func (c *Client) DismissArtifact(ctx context.Context) error {
	return c.invoke(ctx, "DismissArtifact", &Empty{}, &Empty{})
}

func (c *Client) Notifications(ctx context.Context, action view.NotificationAction) error {
	return c.invoke(ctx, "Notifications", &NotificationsRequest{Action: action}, &Empty{})
}

func (c *Client) QR(ctx context.Context, format string, size int) (*QRResponse, error) {
	var resp QRResponse
	if err := c.invoke(ctx, "QR", &QRRequest{Format: format, Size: size}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) LinkStatus(ctx context.Context) (model.LinkStatus, error) {
	var resp LinkStatusResponse
	err := c.invoke(ctx, "LinkStatus", &Empty{}, &resp)
	return resp.Status, err
}

// Watch calls fn for every streamed event until ctx ends, the stream closes
// or fn returns an error.
func (c *Client) Watch(ctx context.Context, fn func(WatchEvent) error) error {
	stream, err := c.conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("Watch"))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		var evt WatchEvent
		if err := stream.RecvMsg(&evt); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}
