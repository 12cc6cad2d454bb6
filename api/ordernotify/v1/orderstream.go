package ordernotifyv1

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rzbill/ordernotify/internal/services/orderstream"
)

const (
	ServiceName             = "ordernotify.v1.OrderStream"
	SubscribeFullMethodName = "/" + ServiceName + "/Subscribe"
)

// SubscribeRequest opens a session for one tenant.
type SubscribeRequest struct {
	TenantID string `json:"tenantId"`
	Filter   string `json:"filter,omitempty"`
}

// Frame is the message streamed back; identical to the SSE payload.
type Frame = orderstream.Frame

// OrderStreamServer is implemented by the server.
type OrderStreamServer interface {
	Subscribe(*SubscribeRequest, OrderStream_SubscribeServer) error
}

// OrderStream_SubscribeServer is the server side of a Subscribe call.
type OrderStream_SubscribeServer interface {
	Send(*Frame) error
	grpc.ServerStream
}

type subscribeServer struct {
	grpc.ServerStream
}

func (x *subscribeServer) Send(f *Frame) error { return x.ServerStream.SendMsg(f) }

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	req := new(SubscribeRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(OrderStreamServer).Subscribe(req, &subscribeServer{stream})
}

// OrderStreamServiceDesc describes the service for grpc.Server.
var OrderStreamServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OrderStreamServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
	Metadata: "ordernotify/v1/orderstream",
}

// RegisterOrderStreamServer registers srv on s.
func RegisterOrderStreamServer(s grpc.ServiceRegistrar, srv OrderStreamServer) {
	s.RegisterService(&OrderStreamServiceDesc, srv)
}

// OrderStreamClient is the client API.
type OrderStreamClient interface {
	Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (OrderStream_SubscribeClient, error)
}

// OrderStream_SubscribeClient receives frames until the stream ends.
type OrderStream_SubscribeClient interface {
	Recv() (*Frame, error)
	grpc.ClientStream
}

type orderStreamClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderStreamClient returns a client on cc. Calls use the JSON codec.
func NewOrderStreamClient(cc grpc.ClientConnInterface) OrderStreamClient {
	return &orderStreamClient{cc: cc}
}

func (c *orderStreamClient) Subscribe(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (OrderStream_SubscribeClient, error) {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	stream, err := c.cc.NewStream(ctx, &OrderStreamServiceDesc.Streams[0], SubscribeFullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &subscribeClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type subscribeClient struct {
	grpc.ClientStream
}

func (x *subscribeClient) Recv() (*Frame, error) {
	m := new(Frame)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
