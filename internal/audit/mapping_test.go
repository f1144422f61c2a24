package audit

import "testing"

func TestParseFullMethod(t *testing.T) {
	testCases := []struct {
		fullMethod string
		action     string
		resource   string
	}{
		{"/devauth.v1.UserService/GetProfile", "get", "user"},
		{"/devauth.v1.DeviceService/ListDevices", "list", "device"},
		{"/devauth.v1.DeviceService/RevokeDevice", "revoke", "device"},
		{"/devauth.v1.LegacyService/ChangeDevice", "change", "legacy"},
		{"/devauth.v1.AuthService/RefreshDevice", "refresh", "auth"},
		{"/devauth.v1.AuthService/LogoutAll", "logout_all", "auth"},
		{"/devauth.v1.LegacyAuthService/ForceLogout", "force_logout", "legacy_auth"},
		{"/devauth.v1.AuthService/Get", "get", "auth"},
		{"/grpc.health.v1.Health/Check", "check", "health"},
		{"/devauth.v1.Service/Login", "login", "unknown"},
		{"NoSlash", "unknown", "unknown"},
		{"/NoDot/Method", "method", "unknown"},
	}
	for _, tc := range testCases {
		t.Run(tc.fullMethod, func(t *testing.T) {
			ar := ParseFullMethod(tc.fullMethod)
			if ar.Action != tc.action {
				t.Errorf("action = %q, want %q", ar.Action, tc.action)
			}
			if ar.Resource != tc.resource {
				t.Errorf("resource = %q, want %q", ar.Resource, tc.resource)
			}
		})
	}
}
