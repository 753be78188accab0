// Package fairserver exposes the fairness engine, the case catalogue and
// seed sessions over gRPC as fairplay.v1.FairnessService.
//
// Requests and responses are google.protobuf.Struct messages, so the service
// needs no generated code and any gRPC client that speaks the well-known
// types can call it.
package fairserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "fairplay.v1.FairnessService"

// Method names of FairnessService.
const (
	MethodGenerateClientSeed = "GenerateClientSeed"
	MethodCalculateRoll      = "CalculateRoll"
	MethodListCases          = "ListCases"
	MethodOpenSession        = "OpenSession"
	MethodRoll               = "Roll"
	MethodRotateSeed         = "RotateSeed"
	MethodGetSeedPair        = "GetSeedPair"
	MethodHistory            = "History"
	MethodAudit              = "Audit"
	MethodVerify             = "Verify"
)

// FullMethod returns the "/service/method" path for method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// FairnessServiceServer is the server API for FairnessService.
type FairnessServiceServer interface {
	GenerateClientSeed(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CalculateRoll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListCases(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OpenSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Roll(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RotateSeed(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetSeedPair(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Audit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Verify(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(FairnessServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(FairnessServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(FairnessServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc is the grpc.ServiceDesc for FairnessService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*FairnessServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler(MethodGenerateClientSeed, FairnessServiceServer.GenerateClientSeed),
		unaryHandler(MethodCalculateRoll, FairnessServiceServer.CalculateRoll),
		unaryHandler(MethodListCases, FairnessServiceServer.ListCases),
		unaryHandler(MethodOpenSession, FairnessServiceServer.OpenSession),
		unaryHandler(MethodRoll, FairnessServiceServer.Roll),
		unaryHandler(MethodRotateSeed, FairnessServiceServer.RotateSeed),
		unaryHandler(MethodGetSeedPair, FairnessServiceServer.GetSeedPair),
		unaryHandler(MethodHistory, FairnessServiceServer.History),
		unaryHandler(MethodAudit, FairnessServiceServer.Audit),
		unaryHandler(MethodVerify, FairnessServiceServer.Verify),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fairplay/v1/fairness.proto",
}

// RegisterFairnessServiceServer registers srv on s.
func RegisterFairnessServiceServer(s grpc.ServiceRegistrar, srv FairnessServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
