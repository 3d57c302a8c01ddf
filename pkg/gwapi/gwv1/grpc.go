package gwv1

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "cangw.v1.CanGatewayService"

// CanGatewayServiceServer is the server-side contract protoc-gen-go-grpc
// would normally emit; it is identical to CanGatewayService, kept as a
// separate name so server implementations read the way generated code
// expects (an UnimplementedXServer embed point could be added here if
// the service grows optional methods).
type CanGatewayServiceServer = CanGatewayService

// RegisterCanGatewayServiceServer registers srv's methods against s.
func RegisterCanGatewayServiceServer(s *grpc.Server, srv CanGatewayServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CanGatewayServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Create", Handler: createHandler},
		{MethodName: "Delete", Handler: deleteHandler},
		{MethodName: "Dump", Handler: dumpHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cangw/v1/cangw.proto",
}

func createHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CanGatewayServiceServer).Create(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Create"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CanGatewayServiceServer).Create(ctx, req.(*CreateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func deleteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DeleteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CanGatewayServiceServer).Delete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Delete"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CanGatewayServiceServer).Delete(ctx, req.(*DeleteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func dumpHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DumpRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CanGatewayServiceServer).Dump(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Dump"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CanGatewayServiceServer).Dump(ctx, req.(*DumpRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Client is the generated-style client stub, backed by a grpc.ClientConn
// pinned to this package's jsonCodec content-subtype.
type Client struct {
	cc *grpc.ClientConn
}

// NewClient wraps an established connection.
func NewClient(cc *grpc.ClientConn) *Client {
	return &Client{cc: cc}
}

func (c *Client) Create(ctx context.Context, req *CreateRequest, opts ...grpc.CallOption) (*CreateResponse, error) {
	out := new(CreateResponse)
	opts = append(opts, grpc.CallContentSubtype(jsonCodecName))
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Create", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, req *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error) {
	out := new(DeleteResponse)
	opts = append(opts, grpc.CallContentSubtype(jsonCodecName))
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Delete", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Dump(ctx context.Context, req *DumpRequest, opts ...grpc.CallOption) (*DumpResponse, error) {
	out := new(DumpResponse)
	opts = append(opts, grpc.CallContentSubtype(jsonCodecName))
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Dump", req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
