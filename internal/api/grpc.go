// Package api exposes the dashboard's chart evaluation over gRPC. Messages
// are google.protobuf.Struct values carrying the same JSON documents as the
// REST API, so no generated code is needed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"stockdash/internal/binding"
	"stockdash/internal/dashboard"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "stockdash.ChartService"

const (
	methodEvaluate = "/" + ServiceName + "/Evaluate"
	methodCatalog  = "/" + ServiceName + "/Catalog"
)

// ChartServer is the server side of stockdash.ChartService.
type ChartServer interface {
	Evaluate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Catalog(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ChartServiceDesc describes stockdash.ChartService for grpc.Server.
var ChartServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChartServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Evaluate", Handler: unaryHandler(methodEvaluate, ChartServer.Evaluate)},
		{MethodName: "Catalog", Handler: unaryHandler(methodCatalog, ChartServer.Catalog)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stockdash/chart.proto",
}

type unaryMethod func(ChartServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ChartServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ChartServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Compile-time interface check.
var _ ChartServer = (*ChartService)(nil)

// ChartService implements ChartServer on top of the dashboard service.
type ChartService struct {
	svc *dashboard.Service
	log *slog.Logger
}

// NewChartService creates a ChartService.
func NewChartService(svc *dashboard.Service, log *slog.Logger) *ChartService {
	if log == nil {
		log = slog.Default()
	}
	return &ChartService{svc: svc, log: log}
}

// Evaluate decodes a dashboard request and returns the evaluated result.
func (s *ChartService) Evaluate(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req dashboard.Request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decoding request: %v", err)
	}
	res, err := s.svc.Evaluate(ctx, req)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(res)
}

// Catalog returns the symbol catalog. The request is ignored.
func (s *ChartService) Catalog(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(s.svc.CatalogInfo())
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, dashboard.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, binding.Describe(err))
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case binding.IsStoreError(err):
		return status.Error(codes.Unavailable, binding.Describe(err))
	}
	return status.Error(codes.Internal, err.Error())
}

// toStruct converts v to a Struct through its JSON encoding.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes s into v through its JSON encoding.
func fromStruct(s *structpb.Struct, v any) error {
	b, err := json.Marshal(s.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
