package codec

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/adaptive-form/internal/adaptation"
	"github.com/danielpatrickdp/adaptive-form/internal/behavior"
	"github.com/danielpatrickdp/adaptive-form/internal/pipeline"
)

// #region service-desc

var contextProviderServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*pipeline.ContextProvider)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Resolve", Handler: resolveHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "adapt/context/v1/context_provider.proto",
}

// RegisterContextProviderServer hosts p on s under the ContextProvider
// service name.
func RegisterContextProviderServer(s grpc.ServiceRegistrar, p pipeline.ContextProvider) {
	s.RegisterService(&contextProviderServiceDesc, p)
}

func resolveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	call := func(ctx context.Context, req any) (any, error) {
		return serveResolve(ctx, srv.(pipeline.ContextProvider), req.(*structpb.Struct))
	}
	if interceptor == nil {
		return call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: resolveMethod}
	return interceptor(ctx, in, info, call)
}

func serveResolve(ctx context.Context, p pipeline.ContextProvider, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()
	sessionID := fields["session_id"].GetStringValue()
	if sessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id is required")
	}
	sc, err := p.Resolve(ctx, sessionID, fields["form_id"].GetStringValue())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "resolve %s: %v", sessionID, err)
	}
	out, err := encodeContext(sc)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// #endregion service-desc

// #region wire

func encodeContext(sc pipeline.SessionContext) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(map[string]any{
		"device":                string(sc.Device),
		"profile":               string(sc.Profile),
		"enhancement_permitted": sc.EnhancementPermitted,
	})
	if err != nil {
		return nil, fmt.Errorf("encode session context: %w", err)
	}
	return s, nil
}

// decodeContext is lenient: unknown devices become unknown and unknown
// profiles become medium.
func decodeContext(s *structpb.Struct) pipeline.SessionContext {
	fields := s.GetFields()
	return pipeline.SessionContext{
		Device:               behavior.DeviceHint(fields["device"].GetStringValue()).Normalize(),
		Profile:              adaptation.ParseProfile(fields["profile"].GetStringValue()),
		EnhancementPermitted: fields["enhancement_permitted"].GetBoolValue(),
	}
}

// #endregion wire
