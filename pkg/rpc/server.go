package rpc

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "mcpgate.v1.Gateway"

// DefaultCallDeadline applies when a caller sends no deadline of its own.
const DefaultCallDeadline = 120 * time.Second

// GatewayServer is the facade's method surface.
type GatewayServer interface {
	CallTool(ctx context.Context, req *CallToolRequest) (*CallToolResponse, error)
	ListTools(ctx context.Context, req *ServerFilter) (*ListToolsResponse, error)
	ListResources(ctx context.Context, req *ServerFilter) (*ListResourcesResponse, error)
	ListPrompts(ctx context.Context, req *ServerFilter) (*ListPromptsResponse, error)
	GetHealth(ctx context.Context, req *ServerFilter) (*GetHealthResponse, error)
	Reconnect(ctx context.Context, req *ServerRequest) (*Ack, error)
	Shutdown(ctx context.Context, req *ServerRequest) (*Ack, error)
}

// RegisterGatewayServer registers srv under the hand-written descriptor.
func RegisterGatewayServer(s grpc.ServiceRegistrar, srv GatewayServer) {
	s.RegisterService(&gatewayServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](
	method string,
	invoke func(GatewayServer, context.Context, *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return invoke(srv.(GatewayServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return invoke(srv.(GatewayServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var gatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CallTool", Handler: unaryHandler("CallTool", GatewayServer.CallTool)},
		{MethodName: "ListTools", Handler: unaryHandler("ListTools", GatewayServer.ListTools)},
		{MethodName: "ListResources", Handler: unaryHandler("ListResources", GatewayServer.ListResources)},
		{MethodName: "ListPrompts", Handler: unaryHandler("ListPrompts", GatewayServer.ListPrompts)},
		{MethodName: "GetHealth", Handler: unaryHandler("GetHealth", GatewayServer.GetHealth)},
		{MethodName: "Reconnect", Handler: unaryHandler("Reconnect", GatewayServer.Reconnect)},
		{MethodName: "Shutdown", Handler: unaryHandler("Shutdown", GatewayServer.Shutdown)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mcpgate/v1/gateway",
}

// ServerOptions configures NewServer.
type ServerOptions struct {
	Logger *slog.Logger

	// CallDeadline replaces DefaultCallDeadline when positive.
	CallDeadline time.Duration
}

// NewServer builds a gRPC server with the JSON codec, deadline enforcement,
// tracing, and request logging, and registers the gateway service on it.
func NewServer(svc GatewayServer, opts ServerOptions) *grpc.Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	deadline := opts.CallDeadline
	if deadline <= 0 {
		deadline = DefaultCallDeadline
	}

	s := grpc.NewServer(
		grpc.ForceServerCodec(jsonCodec{}),
		grpc.ChainUnaryInterceptor(
			deadlineInterceptor(deadline),
			tracingInterceptor(),
			loggingInterceptor(logger),
		),
	)
	RegisterGatewayServer(s, svc)
	return s
}

// deadlineInterceptor applies the default per-call deadline to requests
// whose context carries none.
func deadlineInterceptor(d time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return handler(ctx, req)
	}
}

func tracingInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer("mcpgate/rpc")
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, span := tracer.Start(ctx, info.FullMethod)
		defer span.End()

		resp, err := handler(ctx, req)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		return resp, err
	}
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		attrs := []any{"method", info.FullMethod, "durationMs", time.Since(start).Milliseconds()}
		if err != nil {
			logger.Warn("rpc failed", append(attrs, "error", err)...)
		} else {
			logger.Debug("rpc handled", attrs...)
		}
		return resp, err
	}
}
