package api

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/wpparchive/internal/backend"
	"github.com/matheus3301/wpparchive/internal/bus"
	"github.com/matheus3301/wpparchive/internal/jobs"
	"github.com/matheus3301/wpparchive/internal/model"
	"github.com/matheus3301/wpparchive/internal/notify"
	"github.com/matheus3301/wpparchive/internal/view"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

const defaultSearchLimit = 50

// Credentials persists the bearer credential.
type Credentials interface {
	SetToken(token string) error
}

// LocalArchive reads the local archive mirror.
type LocalArchive interface {
	Search(query, chatID string, limit int) ([]model.SearchResult, error)
	Chats(limit, offset int) ([]model.ChatSummary, error)
	Messages(chatID string, beforeTs int64, limit int) ([]model.MessageRecord, error)
	Stats() (model.Stats, error)
}

// LinkBackend answers pairing questions straight from the server.
type LinkBackend interface {
	QR(ctx context.Context) (string, error)
	Status(ctx context.Context) (model.LinkStatus, error)
}

// ControlService implements ControlServer on top of the view controller.
type ControlService struct {
	view   *view.Controller
	creds  Credentials
	local  LocalArchive
	link   LinkBackend
	bus    *bus.Bus
	logger *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// NewControlService creates the control service. local and link may be nil.
func NewControlService(v *view.Controller, creds Credentials, local LocalArchive, link LinkBackend, b *bus.Bus, logger *zap.Logger) *ControlService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ControlService{
		view:   v,
		creds:  creds,
		local:  local,
		link:   link,
		bus:    b,
		logger: logger.Named("api"),
		closed: make(chan struct{}),
	}
}

// Shutdown ends every open Watch stream.
func (s *ControlService) Shutdown() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// mirrorClock is implemented by local archives that track checkpoints.
type mirrorClock interface {
	LastFullReload() (time.Time, error)
	LastEvent() (time.Time, error)
}

func (s *ControlService) GetView(_ context.Context, _ *Empty) (*ViewResponse, error) {
	resp := &ViewResponse{State: s.view.Snapshot()}
	if clock, ok := s.local.(mirrorClock); ok {
		var info MirrorInfo
		var err error
		if info.LastFullReload, err = clock.LastFullReload(); err != nil {
			s.logger.Warn("reading mirror checkpoint failed", zap.Error(err))
		}
		if info.LastEvent, err = clock.LastEvent(); err != nil {
			s.logger.Warn("reading mirror checkpoint failed", zap.Error(err))
		}
		resp.Mirror = &info
	}
	return resp, nil
}

// Watch streams the current view, then every view change and system alert
// until the client goes away.
func (s *ControlService) Watch(_ *Empty, stream grpc.ServerStream) error {
	ctx := stream.Context()
	viewCh, unsubView := s.bus.Subscribe(view.KindChanged, 64)
	defer unsubView()
	// The prefix also matches alert.system_closed.
	alertCh, unsubAlert := s.bus.Subscribe(notify.KindSystemAlert, 64)
	defer unsubAlert()

	snap := s.view.Snapshot()
	if err := stream.SendMsg(&WatchEvent{Kind: WatchView, View: &snap}); err != nil {
		return err
	}
	for {
		var out *WatchEvent
		select {
		case <-ctx.Done():
			return nil
		case <-s.closed:
			return nil
		case evt := <-viewCh:
			st, ok := evt.Payload.(view.State)
			if !ok {
				continue
			}
			out = &WatchEvent{Kind: WatchView, View: &st}
		case evt := <-alertCh:
			switch p := evt.Payload.(type) {
			case notify.SystemAlert:
				out = &WatchEvent{Kind: WatchSystemAlert, Alert: &p}
			case string:
				out = &WatchEvent{Kind: WatchSystemClose, Tag: p}
			default:
				continue
			}
		}
		if err := stream.SendMsg(out); err != nil {
			return err
		}
	}
}

func (s *ControlService) SetCredential(_ context.Context, req *SetCredentialRequest) (*Empty, error) {
	if err := s.creds.SetToken(strings.TrimSpace(req.Token)); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ControlService) InitializeLink(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.view.InitializeLink(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ControlService) FetchAll(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.view.FetchAll(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ControlService) SelectChat(ctx context.Context, req *SelectChatRequest) (*ViewResponse, error) {
	if req.ChatID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat_id is required")
	}
	if err := s.view.SelectChat(ctx, req.ChatID); err != nil {
		return nil, toStatus(err)
	}
	return &ViewResponse{State: s.view.Snapshot()}, nil
}

func (s *ControlService) LoadMore(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.view.LoadMore(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ControlService) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	results, err := s.view.Search(ctx, req.Query, limitOrDefault(req.Limit))
	if err != nil {
		return nil, toStatus(err)
	}
	return &SearchResponse{Results: results}, nil
}

func (s *ControlService) LocalSearch(_ context.Context, req *SearchRequest) (*SearchResponse, error) {
	if s.local == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "local archive not available")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "query is required")
	}
	results, err := s.local.Search(req.Query, req.ChatID, limitOrDefault(req.Limit))
	if err != nil {
		return nil, toStatus(err)
	}
	return &SearchResponse{Results: results}, nil
}

func (s *ControlService) LocalChats(_ context.Context, req *LocalChatsRequest) (*LocalChatsResponse, error) {
	if s.local == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "local archive not available")
	}
	chats, err := s.local.Chats(req.Limit, req.Offset)
	if err != nil {
		return nil, toStatus(err)
	}
	stats, err := s.local.Stats()
	if err != nil {
		return nil, toStatus(err)
	}
	return &LocalChatsResponse{Chats: chats, Stats: stats}, nil
}

func (s *ControlService) LocalMessages(_ context.Context, req *LocalMessagesRequest) (*LocalMessagesResponse, error) {
	if s.local == nil {
		return nil, grpcstatus.Error(codes.Unavailable, "local archive not available")
	}
	if req.ChatID == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "chat_id is required")
	}
	msgs, err := s.local.Messages(req.ChatID, req.BeforeTs, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return &LocalMessagesResponse{Messages: msgs}, nil
}

func (s *ControlService) Export(ctx context.Context, req *ExportRequest) (*ExportResponse, error) {
	data, err := s.view.Export(ctx, req.Format)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ExportResponse{Data: data}, nil
}

func (s *ControlService) DeleteAll(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.view.DeleteAll(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ControlService) DisconnectLink(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.view.DisconnectLink(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ControlService) DeleteSession(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.view.DeleteSession(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ControlService) Focus(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.view.Focus(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ControlService) Visible(ctx context.Context, req *VisibleRequest) (*Empty, error) {
	if err := s.view.Visible(ctx, req.Visible); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ControlService) DismissArtifact(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.view.DismissArtifact(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *ControlService) Notifications(ctx context.Context, req *NotificationsRequest) (*Empty, error) {
	switch req.Action {
	case view.NotificationsEnable, view.NotificationsDecline, view.NotificationsLater:
	default:
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "unknown action %q", req.Action)
	}
	if err := s.view.Notifications(ctx, req.Action); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

// QR renders the live pairing artifact. Without one it asks the server for
// the latest code.
func (s *ControlService) QR(ctx context.Context, req *QRRequest) (*QRResponse, error) {
	switch req.Format {
	case "", QRTerminal, QRPNG:
	default:
		return nil, grpcstatus.Errorf(codes.InvalidArgument, "unknown format %q", req.Format)
	}
	var art model.PairingArtifact
	if a := s.view.Snapshot().Artifact; a != nil {
		art = *a
	} else if s.link != nil {
		code, err := s.link.QR(ctx)
		if err != nil {
			return nil, toStatus(err)
		}
		art.Code = code
	}
	if art.Code == "" {
		return nil, grpcstatus.Error(codes.NotFound, "no pairing code pending")
	}

	resp, err := RenderQR(art, req.Format, req.Size)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "render qr: %v", err)
	}
	return resp, nil
}

func (s *ControlService) LinkStatus(ctx context.Context, _ *Empty) (*LinkStatusResponse, error) {
	if s.link == nil {
		return &LinkStatusResponse{Status: s.view.Snapshot().Link}, nil
	}
	st, err := s.link.Status(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &LinkStatusResponse{Status: st}, nil
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultSearchLimit
	}
	return n
}

// toStatus maps domain errors to gRPC codes.
func toStatus(err error) error {
	var httpErr *backend.HTTPError
	switch {
	case errors.Is(err, context.Canceled):
		return grpcstatus.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return grpcstatus.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, backend.ErrUnauthorized):
		return grpcstatus.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, jobs.ErrActive):
		return grpcstatus.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, view.ErrUnknownChat):
		return grpcstatus.Error(codes.NotFound, err.Error())
	case errors.Is(err, view.ErrStopped):
		return grpcstatus.Error(codes.Unavailable, err.Error())
	case errors.As(err, &httpErr):
		if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
			return grpcstatus.Error(codes.InvalidArgument, err.Error())
		}
		return grpcstatus.Error(codes.Unavailable, err.Error())
	default:
		return grpcstatus.Error(codes.Internal, err.Error())
	}
}
