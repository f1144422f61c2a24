package handler

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"devicebound-auth/backend/api/authv1"
	"devicebound-auth/backend/internal/device/domain"
	identityservice "devicebound-auth/backend/internal/identity/service"
	"devicebound-auth/backend/internal/platform/authz"
)

// Server implements DeviceService: listing and revoking the caller's devices.
type Server struct {
	authv1.UnimplementedDeviceServiceServer
	auth *identityservice.AuthService
}

// NewServer returns a new Device gRPC server. Pass nil auth for stub (Unimplemented).
func NewServer(auth *identityservice.AuthService) *Server {
	return &Server{auth: auth}
}

// ListDevices returns the caller's devices, most recently seen first. The device
// the call was made from is flagged as current.
func (s *Server) ListDevices(ctx context.Context, req *authv1.ListDevicesRequest) (*authv1.ListDevicesResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method ListDevices not implemented")
	}
	id, err := authz.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.auth.ListDevices(ctx, id.User.ID)
	if err != nil {
		return nil, authz.StatusError(err)
	}
	devices := make([]*authv1.Device, 0, len(list))
	for _, d := range list {
		out := DeviceToAPI(d)
		out.Current = d.ID == id.CurrentDeviceID()
		devices = append(devices, out)
	}
	return &authv1.ListDevicesResponse{Devices: devices}, nil
}

// RevokeDevice deactivates one of the caller's other devices and ends its sessions.
func (s *Server) RevokeDevice(ctx context.Context, req *authv1.RevokeDeviceRequest) (*authv1.RevokeDeviceResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method RevokeDevice not implemented")
	}
	id, err := authz.RequireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		return nil, status.Error(codes.InvalidArgument, "device_id required")
	}
	if err := s.auth.RevokeDevice(ctx, id, deviceID); err != nil {
		return nil, authz.StatusError(err)
	}
	return &authv1.RevokeDeviceResponse{Success: true}, nil
}

// DeviceToAPI converts a device to its wire form. The secret hash is never included.
func DeviceToAPI(d *domain.Device) *authv1.Device {
	if d == nil {
		return nil
	}
	return &authv1.Device{
		ID:         d.ID,
		DeviceName: d.Label,
		Platform:   d.Platform,
		UserAgent:  d.Fingerprint,
		IPAddress:  d.SourceAddress,
		IsActive:   d.Active,
		LastSeen:   d.LastSeenAt,
		CreatedAt:  d.CreatedAt,
	}
}
