package httpapi

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/netip"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"devicebound-auth/backend/api/authv1"
	"devicebound-auth/backend/internal/server/interceptors"
)

const maxBodyBytes = 1 << 20

var codec authv1.Codec

type errorBody struct {
	Error string `json:"error"`
}

// serve adapts one unary RPC to an http.HandlerFunc. The JSON body (if any)
// decodes into Req; bind then copies path parameters onto it.
func serve[Req, Resp any](a *api, fullMethod string, call func(context.Context, *Req) (*Resp, error), okStatus int, bind func(*http.Request, *Req)) http.HandlerFunc {
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod}
	return func(w http.ResponseWriter, r *http.Request) {
		req := new(Req)
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "request body too large"})
			return
		}
		if len(body) > 0 {
			if err := codec.Unmarshal(body, req); err != nil {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
				return
			}
		}
		if bind != nil {
			bind(r, req)
		}

		resp, err := a.chain(incomingContext(r), req, info, func(ctx context.Context, in any) (any, error) {
			return call(ctx, in.(*Req))
		})
		if err != nil {
			a.writeError(w, fullMethod, err)
			return
		}
		writeJSON(w, okStatus, resp)
	}
}

// incomingContext carries the HTTP credentials and forwarding headers as the
// gRPC metadata the interceptors read. The TCP remote address becomes the
// peer, so forwarding headers only count when it is a trusted proxy.
func incomingContext(r *http.Request) context.Context {
	md := metadata.MD{}
	if v := r.Header.Get("Authorization"); v != "" {
		md.Set("authorization", v)
	}
	if v := r.Header.Get("X-Device-Token"); v != "" {
		md.Set(interceptors.DeviceTokenHeader, v)
	}
	if v := r.UserAgent(); v != "" {
		md.Set("user-agent", v)
	}
	if v := r.Header.Values("X-Forwarded-For"); len(v) > 0 {
		md.Set("x-forwarded-for", v...)
	}
	if v := r.Header.Get("X-Real-IP"); v != "" {
		md.Set("x-real-ip", v)
	}
	ctx := r.Context()
	if ap, err := netip.ParseAddrPort(r.RemoteAddr); err == nil {
		ctx = peer.NewContext(ctx, &peer.Peer{Addr: net.TCPAddrFromAddrPort(ap)})
	}
	return metadata.NewIncomingContext(ctx, md)
}

func (a *api) writeError(w http.ResponseWriter, fullMethod string, err error) {
	st, ok := status.FromError(err)
	if !ok {
		st = status.New(codes.Internal, "internal error")
	}
	code := HTTPStatus(st.Code())
	if code >= http.StatusInternalServerError {
		a.log.Error("rpc failed",
			zap.String("method", fullMethod),
			zap.String("code", st.Code().String()),
			zap.String("error", st.Message()),
		)
	}
	writeJSON(w, code, errorBody{Error: st.Message()})
}

// HTTPStatus maps a gRPC status code to the HTTP status returned by the REST API.
func HTTPStatus(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded, codes.Canceled:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := codec.Marshal(v)
	if err != nil {
		code = http.StatusInternalServerError
		b = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}

// chainUnary composes interceptors so the first wraps all others.
func chainUnary(ics []grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		next := handler
		for i := len(ics) - 1; i >= 0; i-- {
			ic, inner := ics[i], next
			next = func(ctx context.Context, req any) (any, error) {
				return ic(ctx, req, info, inner)
			}
		}
		return next(ctx, req)
	}
}
