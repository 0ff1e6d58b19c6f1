package api

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified control service name.
const ServiceName = "wpparchive.v1.Control"

// ControlServer is the server side of the control service.
type ControlServer interface {
	GetView(context.Context, *Empty) (*ViewResponse, error)
	Watch(*Empty, grpc.ServerStream) error
	SetCredential(context.Context, *SetCredentialRequest) (*Empty, error)
	InitializeLink(context.Context, *Empty) (*Empty, error)
	FetchAll(context.Context, *Empty) (*Empty, error)
	SelectChat(context.Context, *SelectChatRequest) (*ViewResponse, error)
	LoadMore(context.Context, *Empty) (*Empty, error)
	Search(context.Context, *SearchRequest) (*SearchResponse, error)
	LocalSearch(context.Context, *SearchRequest) (*SearchResponse, error)
	LocalChats(context.Context, *LocalChatsRequest) (*LocalChatsResponse, error)
	LocalMessages(context.Context, *LocalMessagesRequest) (*LocalMessagesResponse, error)
	Export(context.Context, *ExportRequest) (*ExportResponse, error)
	DeleteAll(context.Context, *Empty) (*Empty, error)
	DisconnectLink(context.Context, *Empty) (*Empty, error)
	DeleteSession(context.Context, *Empty) (*Empty, error)
	Focus(context.Context, *Empty) (*Empty, error)
	Visible(context.Context, *VisibleRequest) (*Empty, error)
	DismissArtifact(context.Context, *Empty) (*Empty, error)
	Notifications(context.Context, *NotificationsRequest) (*Empty, error)
	QR(context.Context, *QRRequest) (*QRResponse, error)
	LinkStatus(context.Context, *Empty) (*LinkStatusResponse, error)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, call func(ControlServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			s := srv.(ControlServer)
			if interceptor == nil {
				return call(s, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
				return call(s, ctx, r.(*Req))
			})
		},
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	req := new(Empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(ControlServer).Watch(req, stream)
}

// ServiceDesc describes the control service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetView", ControlServer.GetView),
		unary("SetCredential", ControlServer.SetCredential),
		unary("InitializeLink", ControlServer.InitializeLink),
		unary("FetchAll", ControlServer.FetchAll),
		unary("SelectChat", ControlServer.SelectChat),
		unary("LoadMore", ControlServer.LoadMore),
		unary("Search", ControlServer.Search),
		unary("LocalSearch", ControlServer.LocalSearch),
		unary("LocalChats", ControlServer.LocalChats),
		unary("LocalMessages", ControlServer.LocalMessages),
		unary("Export", ControlServer.Export),
		unary("DeleteAll", ControlServer.DeleteAll),
		unary("DisconnectLink", ControlServer.DisconnectLink),
		unary("DeleteSession", ControlServer.DeleteSession),
		unary("Focus", ControlServer.Focus),
		unary("Visible", ControlServer.Visible),
		unary("DismissArtifact", ControlServer.DismissArtifact),
		unary("Notifications", ControlServer.Notifications),
		unary("QR", ControlServer.QR),
		unary("LinkStatus", ControlServer.LinkStatus),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "wpparchive/v1/control",
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ServiceDesc, srv)
}
