package codec

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-form/internal/pipeline"
)

// #region service
const (
	serviceName   = "adapt.context.v1.ContextProvider"
	resolveMethod = "/" + serviceName + "/Resolve"
)

// contextServiceClient is the raw RPC surface. Requests and responses are
// structpb.Struct so no generated stubs are needed.
type contextServiceClient interface {
	Resolve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type grpcContextService struct {
	cc grpc.ClientConnInterface
}

func (s grpcContextService) Resolve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := s.cc.Invoke(ctx, resolveMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// #endregion service

// #region client-struct
// ContextClient resolves session context from a remote capability provider.
// It implements pipeline.ContextProvider.
type ContextClient struct {
	conn    *grpc.ClientConn
	client  contextServiceClient
	timeout time.Duration
}

var _ pipeline.ContextProvider = (*ContextClient)(nil)

// #endregion client-struct

// #region constructor
// NewContextClient connects to the context provider at addr. A positive
// timeout bounds every Resolve call.
func NewContextClient(addr string, timeout time.Duration, opts ...grpc.DialOption) (*ContextClient, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &ContextClient{
		conn:    conn,
		client:  grpcContextService{cc: conn},
		timeout: timeout,
	}, nil
}

// NewContextClientWithService creates a ContextClient over an injected
// service implementation. Used for testing without a real connection.
func NewContextClientWithService(svc contextServiceClient, timeout time.Duration) *ContextClient {
	return &ContextClient{client: svc, timeout: timeout}
}

// #endregion constructor

// #region close
// Close shuts down the gRPC connection.
func (c *ContextClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion close

// #region resolve
// Resolve asks the provider for the session's device, profile and
// enhancement permission.
func (c *ContextClient) Resolve(ctx context.Context, sessionID, formID string) (pipeline.SessionContext, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := structpb.NewStruct(map[string]any{
		"session_id": sessionID,
		"form_id":    formID,
	})
	if err != nil {
		return pipeline.SessionContext{}, fmt.Errorf("encode resolve request: %w", err)
	}

	resp, err := c.client.Resolve(ctx, req)
	if err != nil {
		return pipeline.SessionContext{}, fmt.Errorf("resolve rpc: %w", err)
	}
	return decodeContext(resp), nil
}

// #endregion resolve
