package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mcpgate/mcpgate/pkg/mcp"
	"github.com/mcpgate/mcpgate/pkg/registry"
)

// Service implements GatewayServer on top of the registry.
type Service struct {
	registry *registry.Registry
	logger   *slog.Logger
}

// NewService builds the facade service.
func NewService(reg *registry.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{registry: reg, logger: logger.With("component", "rpc")}
}

// CallTool executes one tool on one server. The caller's deadline is
// propagated all the way to the JSON-RPC layer.
func (s *Service) CallTool(ctx context.Context, req *CallToolRequest) (*CallToolResponse, error) {
	if req.ServerID == "" || req.ToolName == "" {
		return nil, status.Error(codes.InvalidArgument, "serverId and toolName are required")
	}

	start := time.Now()
	d, err := s.registry.GetClient(ctx, req.ServerID)
	if err != nil {
		return nil, mapRegistryError(err)
	}

	var result mcp.ToolCallResult
	params := mcp.ToolCallParams{Name: req.ToolName, Arguments: req.Arguments}
	if err := d.Call(ctx, "tools/call", params, &result); err != nil {
		s.registry.NoteCallFailure(req.ServerID, err)
		return nil, mapCallError(req.ToolName, err)
	}

	resp := &CallToolResponse{ExecutionTimeMs: time.Since(start).Milliseconds()}
	if result.IsError {
		resp.Error = result.Text()
		return resp, nil
	}
	resp.Success = true
	// Text content flattens to one string; anything else passes through raw.
	if text := result.Text(); text != "" || len(result.Content) == 0 {
		resp.Result, _ = json.Marshal(text)
	} else {
		resp.Result, _ = json.Marshal(result.Content)
	}
	return resp, nil
}

// ListTools aggregates tool descriptors. With a filter it targets one
// server; otherwise it walks every ready driver, and a failing server
// produces a warning instead of aborting the sweep.
func (s *Service) ListTools(ctx context.Context, req *ServerFilter) (*ListToolsResponse, error) {
	resp := &ListToolsResponse{Tools: []mcp.Tool{}}
	err := s.sweep(ctx, req, "tools/list", func(id string, d mcp.Driver) error {
		var result mcp.ToolsListResult
		if err := d.Call(ctx, "tools/list", nil, &result); err != nil {
			return err
		}
		for _, t := range result.Tools {
			resp.Tools = append(resp.Tools, mcp.Tool{
				ServerName:  id,
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.InputSchema,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ListResources aggregates resource descriptors, same rules as ListTools.
func (s *Service) ListResources(ctx context.Context, req *ServerFilter) (*ListResourcesResponse, error) {
	resp := &ListResourcesResponse{Resources: []mcp.Resource{}}
	err := s.sweep(ctx, req, "resources/list", func(id string, d mcp.Driver) error {
		var result mcp.ResourcesListResult
		if err := d.Call(ctx, "resources/list", nil, &result); err != nil {
			return err
		}
		for _, r := range result.Resources {
			resp.Resources = append(resp.Resources, mcp.Resource{
				ServerName:  id,
				URI:         r.URI,
				Name:        r.Name,
				Description: r.Description,
				MimeType:    r.MimeType,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ListPrompts aggregates prompt descriptors, same rules as ListTools.
func (s *Service) ListPrompts(ctx context.Context, req *ServerFilter) (*ListPromptsResponse, error) {
	resp := &ListPromptsResponse{Prompts: []mcp.Prompt{}}
	err := s.sweep(ctx, req, "prompts/list", func(id string, d mcp.Driver) error {
		var result mcp.PromptsListResult
		if err := d.Call(ctx, "prompts/list", nil, &result); err != nil {
			return err
		}
		for _, p := range result.Prompts {
			resp.Prompts = append(resp.Prompts, mcp.Prompt{
				ServerName:  id,
				Name:        p.Name,
				Description: p.Description,
				Arguments:   p.Arguments,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// sweep runs visit against one targeted server (errors propagate) or every
// ready driver (errors demoted to warnings).
func (s *Service) sweep(ctx context.Context, req *ServerFilter, op string, visit func(string, mcp.Driver) error) error {
	if req != nil && req.ServerID != "" {
		d, err := s.registry.GetClient(ctx, req.ServerID)
		if err != nil {
			return mapRegistryError(err)
		}
		if err := visit(req.ServerID, d); err != nil {
			s.registry.NoteCallFailure(req.ServerID, err)
			return mapCallError(op, err)
		}
		return nil
	}

	for id, d := range s.registry.ReadyDrivers() {
		if err := visit(id, d); err != nil {
			s.registry.NoteCallFailure(id, err)
			s.logger.Warn("server skipped during aggregate list", "op", op, "server", id, "error", err)
		}
	}
	return nil
}

// GetHealth returns health views for one server or all of them.
func (s *Service) GetHealth(ctx context.Context, req *ServerFilter) (*GetHealthResponse, error) {
	if req != nil && req.ServerID != "" {
		h, err := s.registry.Health(ctx, req.ServerID)
		if err != nil {
			return nil, mapRegistryError(err)
		}
		return &GetHealthResponse{Servers: []*registry.Health{h}}, nil
	}
	views, err := s.registry.ListHealth(ctx)
	if err != nil {
		return nil, mapRegistryError(err)
	}
	return &GetHealthResponse{Servers: views}, nil
}

// Reconnect forces a fresh connection for one server.
func (s *Service) Reconnect(ctx context.Context, req *ServerRequest) (*Ack, error) {
	if req.ServerID == "" {
		return nil, status.Error(codes.InvalidArgument, "serverId is required")
	}
	if err := s.registry.Reconnect(ctx, req.ServerID); err != nil {
		return nil, mapRegistryError(err)
	}
	return &Ack{}, nil
}

// Shutdown disables one server and closes its driver.
func (s *Service) Shutdown(ctx context.Context, req *ServerRequest) (*Ack, error) {
	if req.ServerID == "" {
		return nil, status.Error(codes.InvalidArgument, "serverId is required")
	}
	if err := s.registry.DisableServer(ctx, req.ServerID); err != nil {
		return nil, mapRegistryError(err)
	}
	return &Ack{}, nil
}

// mapRegistryError translates registry failures to gRPC status codes:
// missing spec is NOT_FOUND, exhausted retries FAILED_PRECONDITION, a
// pending backoff UNAVAILABLE.
func mapRegistryError(err error) error {
	var nf *registry.ServerNotFoundError
	if errors.As(err, &nf) {
		return status.Error(codes.NotFound, nf.Error())
	}
	var unavail *registry.ServerUnavailableError
	if errors.As(err, &unavail) {
		if unavail.Exhausted {
			return status.Error(codes.FailedPrecondition, unavail.Error())
		}
		return status.Error(codes.Unavailable, unavail.Error())
	}
	if errors.Is(err, registry.ErrShuttingDown) {
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// mapCallError translates call-level failures: expired deadlines become
// DEADLINE_EXCEEDED, server-reported tool errors INTERNAL, transport and
// protocol trouble UNAVAILABLE.
func mapCallError(op string, err error) error {
	if errors.Is(err, mcp.ErrCallTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return status.Errorf(codes.DeadlineExceeded, "%s: deadline exceeded", op)
	}
	var te *mcp.ToolError
	if errors.As(err, &te) {
		return status.Errorf(codes.Internal, "%s: %s (code %d)", op, te.Message, te.Code)
	}
	var tre *mcp.TransportError
	var pe *mcp.ProtocolError
	if errors.As(err, &tre) || errors.As(err, &pe) {
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}
