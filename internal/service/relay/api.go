package relay

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/anon-relay/internal/matchmaker"
	"github.com/oggyb/anon-relay/internal/realtime"
	"github.com/oggyb/anon-relay/internal/server"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "anonrelay.v1.RelayService"

type CommandRequest struct {
	UserID  int64    `json:"user_id" validate:"required"`
	Command string   `json:"command" validate:"required,max=64"`
	Args    []string `json:"args,omitempty" validate:"max=16"`
}

type TextRequest struct {
	UserID      int64  `json:"user_id" validate:"required"`
	DisplayName string `json:"display_name,omitempty" validate:"max=128"`
	Text        string `json:"text" validate:"required,max=4096"`
}

type MediaRequest struct {
	UserID  int64              `json:"user_id" validate:"required"`
	Content matchmaker.Content `json:"content"`
}

// UndeliverableRequest reports a delivery the adapter could not complete.
// UserID is the recipient; PartnerID, when set, is the user whose content it
// was and guards against reports that arrive after the chat changed.
type UndeliverableRequest struct {
	UserID    int64 `json:"user_id" validate:"required"`
	PartnerID int64 `json:"partner_id,omitempty"`
}

type StatsRequest struct{}

type SubscribeRequest struct {
	// Buffer bounds undelivered frames held for this subscriber.
	Buffer int `json:"buffer,omitempty" validate:"min=0,max=65536"`
}

type Ack struct {
	OK bool `json:"ok"`
}

// RelayServer is the server API of anonrelay.v1.RelayService.
type RelayServer interface {
	OnCommand(context.Context, *CommandRequest) (*Ack, error)
	OnText(context.Context, *TextRequest) (*Ack, error)
	OnMedia(context.Context, *MediaRequest) (*Ack, error)
	// ReportUndeliverable ends the recipient's chat and tells the partner.
	ReportUndeliverable(context.Context, *UndeliverableRequest) (*Ack, error)
	Stats(context.Context, *StatsRequest) (*structpb.Struct, error)
	// Subscribe streams deliveries for users that have no websocket attached.
	Subscribe(*SubscribeRequest, grpc.ServerStreamingServer[realtime.Delivery]) error
}

// ServiceDesc describes anonrelay.v1.RelayService for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RelayServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("OnCommand", RelayServer.OnCommand),
		unary("OnText", RelayServer.OnText),
		unary("OnMedia", RelayServer.OnMedia),
		unary("ReportUndeliverable", RelayServer.ReportUndeliverable),
		unary("Stats", RelayServer.Stats),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "anonrelay/v1/relay.proto",
}

func RegisterRelayServer(s grpc.ServiceRegistrar, srv RelayServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func unary[Req, Resp any](name string, call func(RelayServer, context.Context, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RelayServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(RelayServer), ctx, req.(*Req))
			})
		},
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RelayServer).Subscribe(in, &grpc.GenericServerStream[SubscribeRequest, realtime.Delivery]{ServerStream: stream})
}

// Client calls anonrelay.v1.RelayService using the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) OnCommand(ctx context.Context, in *CommandRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, fullMethod("OnCommand"), in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) OnText(ctx context.Context, in *TextRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, fullMethod("OnText"), in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) OnMedia(ctx context.Context, in *MediaRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, fullMethod("OnMedia"), in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ReportUndeliverable(ctx context.Context, in *UndeliverableRequest, opts ...grpc.CallOption) (*Ack, error) {
	out := new(Ack)
	if err := c.cc.Invoke(ctx, fullMethod("ReportUndeliverable"), in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Stats(ctx context.Context, in *StatsRequest, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("Stats"), in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (grpc.ServerStreamingClient[realtime.Delivery], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod("Subscribe"), callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[SubscribeRequest, realtime.Delivery]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(server.CodecName)}, opts...)
}
