package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName — полное имя gRPC-сервиса checkout.
const ServiceName = "checkout.v1.CheckoutService"

const (
	methodInitiate = "/" + ServiceName + "/Initiate"
	methodVerify   = "/" + ServiceName + "/Verify"
)

// CheckoutServer — серверная часть checkout.v1.CheckoutService.
// Сообщения передаются как google.protobuf.Struct, отдельного .proto нет.
type CheckoutServer interface {
	Initiate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Verify(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// CheckoutServiceDesc описывает сервис для grpc.Server.RegisterService.
var CheckoutServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CheckoutServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Initiate", Handler: initiateHandler},
		{MethodName: "Verify", Handler: verifyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "checkout/v1/checkout_service",
}

// Register регистрирует реализацию на сервере.
func Register(s grpc.ServiceRegistrar, srv CheckoutServer) {
	s.RegisterService(&CheckoutServiceDesc, srv)
}

func initiateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, methodInitiate, CheckoutServer.Initiate)
}

func verifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return unary(srv, ctx, dec, interceptor, methodVerify, CheckoutServer.Verify)
}

func unary(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
	fullMethod string,
	call func(CheckoutServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return call(srv.(CheckoutServer), ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return call(srv.(CheckoutServer), ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// CheckoutClient — клиент checkout.v1.CheckoutService.
type CheckoutClient struct {
	cc grpc.ClientConnInterface
}

// NewCheckoutClient создаёт клиента поверх соединения.
func NewCheckoutClient(cc grpc.ClientConnInterface) *CheckoutClient {
	return &CheckoutClient{cc: cc}
}

// Initiate вызывает фазу 1.
func (c *CheckoutClient) Initiate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodInitiate, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Verify вызывает фазу 2.
func (c *CheckoutClient) Verify(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, methodVerify, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
