package authv1

import (
	"context"

	"google.golang.org/grpc"
)

const HealthService_HealthCheck_FullMethodName = "/devauth.v1.HealthService/HealthCheck"

// HealthServiceServer is the server API for HealthService.
type HealthServiceServer interface {
	HealthCheck(context.Context, *HealthCheckRequest) (*HealthCheckResponse, error)
}

// HealthService_ServiceDesc is the grpc.ServiceDesc for HealthService.
var HealthService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "devauth.v1.HealthService",
	HandlerType: (*HealthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "HealthCheck", Handler: unary(HealthService_HealthCheck_FullMethodName, HealthServiceServer.HealthCheck)},
	},
	Metadata: "devauth/v1/health",
}

// RegisterHealthServiceServer registers srv with s.
func RegisterHealthServiceServer(s grpc.ServiceRegistrar, srv HealthServiceServer) {
	s.RegisterService(&HealthService_ServiceDesc, srv)
}

// HealthServiceClient is the client API for HealthService.
type HealthServiceClient interface {
	HealthCheck(ctx context.Context, in *HealthCheckRequest, opts ...grpc.CallOption) (*HealthCheckResponse, error)
}

type healthServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewHealthServiceClient returns a client that calls HealthService over cc.
func NewHealthServiceClient(cc grpc.ClientConnInterface) HealthServiceClient {
	return &healthServiceClient{cc}
}

func (c *healthServiceClient) HealthCheck(ctx context.Context, in *HealthCheckRequest, opts ...grpc.CallOption) (*HealthCheckResponse, error) {
	return invoke[HealthCheckResponse](ctx, c.cc, HealthService_HealthCheck_FullMethodName, in, opts)
}
