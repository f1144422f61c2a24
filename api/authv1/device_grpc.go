package authv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	DeviceService_ListDevices_FullMethodName  = "/devauth.v1.DeviceService/ListDevices"
	DeviceService_RevokeDevice_FullMethodName = "/devauth.v1.DeviceService/RevokeDevice"
)

// DeviceServiceServer is the server API for DeviceService.
type DeviceServiceServer interface {
	ListDevices(context.Context, *ListDevicesRequest) (*ListDevicesResponse, error)
	RevokeDevice(context.Context, *RevokeDeviceRequest) (*RevokeDeviceResponse, error)
}

// UnimplementedDeviceServiceServer returns Unimplemented for every method.
type UnimplementedDeviceServiceServer struct{}

func (UnimplementedDeviceServiceServer) ListDevices(context.Context, *ListDevicesRequest) (*ListDevicesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListDevices not implemented")
}
func (UnimplementedDeviceServiceServer) RevokeDevice(context.Context, *RevokeDeviceRequest) (*RevokeDeviceResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RevokeDevice not implemented")
}

// DeviceService_ServiceDesc is the grpc.ServiceDesc for DeviceService.
var DeviceService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "devauth.v1.DeviceService",
	HandlerType: (*DeviceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListDevices", Handler: unary(DeviceService_ListDevices_FullMethodName, DeviceServiceServer.ListDevices)},
		{MethodName: "RevokeDevice", Handler: unary(DeviceService_RevokeDevice_FullMethodName, DeviceServiceServer.RevokeDevice)},
	},
	Metadata: "devauth/v1/device",
}

// RegisterDeviceServiceServer registers srv with s.
func RegisterDeviceServiceServer(s grpc.ServiceRegistrar, srv DeviceServiceServer) {
	s.RegisterService(&DeviceService_ServiceDesc, srv)
}

// DeviceServiceClient is the client API for DeviceService.
type DeviceServiceClient interface {
	ListDevices(ctx context.Context, in *ListDevicesRequest, opts ...grpc.CallOption) (*ListDevicesResponse, error)
	RevokeDevice(ctx context.Context, in *RevokeDeviceRequest, opts ...grpc.CallOption) (*RevokeDeviceResponse, error)
}

type deviceServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewDeviceServiceClient returns a client that calls DeviceService over cc.
func NewDeviceServiceClient(cc grpc.ClientConnInterface) DeviceServiceClient {
	return &deviceServiceClient{cc}
}

func (c *deviceServiceClient) ListDevices(ctx context.Context, in *ListDevicesRequest, opts ...grpc.CallOption) (*ListDevicesResponse, error) {
	return invoke[ListDevicesResponse](ctx, c.cc, DeviceService_ListDevices_FullMethodName, in, opts)
}

func (c *deviceServiceClient) RevokeDevice(ctx context.Context, in *RevokeDeviceRequest, opts ...grpc.CallOption) (*RevokeDeviceResponse, error) {
	return invoke[RevokeDeviceResponse](ctx, c.cc, DeviceService_RevokeDevice_FullMethodName, in, opts)
}
