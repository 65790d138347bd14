package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/elskow/scribe/internal/api"
	"github.com/elskow/scribe/internal/auth"
	"github.com/elskow/scribe/internal/token"
)

// IntrospectionServer lets sibling services validate access tokens without
// sharing the signing key.
type IntrospectionServer interface {
	Introspect(ctx context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error)
	WhoAmI(ctx context.Context, in *emptypb.Empty) (*structpb.Struct, error)
}

type Introspection struct {
	tokens *token.Manager
}

func NewIntrospection(tokens *token.Manager) *Introspection {
	return &Introspection{tokens: tokens}
}

// Introspect reports whether an access token is currently valid. Invalid
// tokens are not an RPC error; they come back with active=false.
func (s *Introspection) Introspect(_ context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	claims, err := s.tokens.ParseAccess(in.GetValue())
	if err != nil {
		return structpb.NewStruct(map[string]interface{}{"active": false})
	}

	fields := map[string]interface{}{
		"active": true,
		"uid":    claims.UserID,
		"role":   claims.Role,
	}
	if claims.ExpiresAt != nil {
		fields["exp"] = float64(claims.ExpiresAt.Unix())
	}
	return structpb.NewStruct(fields)
}

func (s *Introspection) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	return structpb.NewStruct(map[string]interface{}{
		"uid":   p.UserID,
		"role":  p.Role,
		"local": p.Local,
	})
}

func RegisterIntrospectionServer(s grpc.ServiceRegistrar, srv IntrospectionServer) {
	s.RegisterService(&introspectionServiceDesc, srv)
}

func introspectHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IntrospectionServer).Introspect(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: api.IntrospectionIntrospect}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IntrospectionServer).Introspect(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func whoAmIHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IntrospectionServer).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: api.IntrospectionWhoAmI}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IntrospectionServer).WhoAmI(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var introspectionServiceDesc = grpc.ServiceDesc{
	ServiceName: api.IntrospectionService,
	HandlerType: (*IntrospectionServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Introspect", Handler: introspectHandler},
		{MethodName: "WhoAmI", Handler: whoAmIHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "scribe/auth/v1/introspection.proto",
}
