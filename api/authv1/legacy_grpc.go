package authv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	LegacyService_ForceLogout_FullMethodName   = "/devauth.v1.LegacyService/ForceLogout"
	LegacyService_ChangeDevice_FullMethodName  = "/devauth.v1.LegacyService/ChangeDevice"
	LegacyService_GetDeviceInfo_FullMethodName = "/devauth.v1.LegacyService/GetDeviceInfo"
)

// LegacyServiceServer is the server API for LegacyService, the single-token
// scheme kept for clients that have not migrated.
type LegacyServiceServer interface {
	ForceLogout(context.Context, *ForceLogoutRequest) (*ForceLogoutResponse, error)
	ChangeDevice(context.Context, *ChangeDeviceRequest) (*ChangeDeviceResponse, error)
	GetDeviceInfo(context.Context, *GetDeviceInfoRequest) (*GetDeviceInfoResponse, error)
}

// UnimplementedLegacyServiceServer returns Unimplemented for every method.
type UnimplementedLegacyServiceServer struct{}

func (UnimplementedLegacyServiceServer) ForceLogout(context.Context, *ForceLogoutRequest) (*ForceLogoutResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ForceLogout not implemented")
}
func (UnimplementedLegacyServiceServer) ChangeDevice(context.Context, *ChangeDeviceRequest) (*ChangeDeviceResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ChangeDevice not implemented")
}
func (UnimplementedLegacyServiceServer) GetDeviceInfo(context.Context, *GetDeviceInfoRequest) (*GetDeviceInfoResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetDeviceInfo not implemented")
}

// LegacyService_ServiceDesc is the grpc.ServiceDesc for LegacyService.
var LegacyService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "devauth.v1.LegacyService",
	HandlerType: (*LegacyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ForceLogout", Handler: unary(LegacyService_ForceLogout_FullMethodName, LegacyServiceServer.ForceLogout)},
		{MethodName: "ChangeDevice", Handler: unary(LegacyService_ChangeDevice_FullMethodName, LegacyServiceServer.ChangeDevice)},
		{MethodName: "GetDeviceInfo", Handler: unary(LegacyService_GetDeviceInfo_FullMethodName, LegacyServiceServer.GetDeviceInfo)},
	},
	Metadata: "devauth/v1/legacy",
}

// RegisterLegacyServiceServer registers srv with s.
func RegisterLegacyServiceServer(s grpc.ServiceRegistrar, srv LegacyServiceServer) {
	s.RegisterService(&LegacyService_ServiceDesc, srv)
}

// LegacyServiceClient is the client API for LegacyService.
type LegacyServiceClient interface {
	ForceLogout(ctx context.Context, in *ForceLogoutRequest, opts ...grpc.CallOption) (*ForceLogoutResponse, error)
	ChangeDevice(ctx context.Context, in *ChangeDeviceRequest, opts ...grpc.CallOption) (*ChangeDeviceResponse, error)
	GetDeviceInfo(ctx context.Context, in *GetDeviceInfoRequest, opts ...grpc.CallOption) (*GetDeviceInfoResponse, error)
}

type legacyServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewLegacyServiceClient returns a client that calls LegacyService over cc.
func NewLegacyServiceClient(cc grpc.ClientConnInterface) LegacyServiceClient {
	return &legacyServiceClient{cc}
}

func (c *legacyServiceClient) ForceLogout(ctx context.Context, in *ForceLogoutRequest, opts ...grpc.CallOption) (*ForceLogoutResponse, error) {
	return invoke[ForceLogoutResponse](ctx, c.cc, LegacyService_ForceLogout_FullMethodName, in, opts)
}

func (c *legacyServiceClient) ChangeDevice(ctx context.Context, in *ChangeDeviceRequest, opts ...grpc.CallOption) (*ChangeDeviceResponse, error) {
	return invoke[ChangeDeviceResponse](ctx, c.cc, LegacyService_ChangeDevice_FullMethodName, in, opts)
}

func (c *legacyServiceClient) GetDeviceInfo(ctx context.Context, in *GetDeviceInfoRequest, opts ...grpc.CallOption) (*GetDeviceInfoResponse, error) {
	return invoke[GetDeviceInfoResponse](ctx, c.cc, LegacyService_GetDeviceInfo_FullMethodName, in, opts)
}
