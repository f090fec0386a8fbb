package rpc

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"

	"go.klb.dev/clipkeep/internal/coordinator"
	"go.klb.dev/clipkeep/internal/message"
)

const (
	serviceName = "clipkeep.v1.Coordinator"

	dispatchMethod = "/" + serviceName + "/Dispatch"
	snapshotMethod = "/" + serviceName + "/Snapshot"
	statusMethod   = "/" + serviceName + "/Status"
	watchMethod    = "/" + serviceName + "/Watch"
)

// DispatchRequest carries one tagged request object.
type DispatchRequest struct {
	Request json.RawMessage `json:"request"`
}

// SnapshotRequest selects nothing; the whole state is returned.
type SnapshotRequest struct{}

// StatusRequest selects nothing.
type StatusRequest struct{}

// WatchRequest opens a notification stream.
type WatchRequest struct {
	// Source names the watcher in peer lists.
	Source string `json:"source,omitempty"`
}

// CoordinatorServer is the server API of clipkeep.v1.Coordinator.
type CoordinatorServer interface {
	Dispatch(context.Context, *DispatchRequest) (*message.Response, error)
	Snapshot(context.Context, *SnapshotRequest) (*coordinator.Snapshot, error)
	Status(context.Context, *StatusRequest) (*coordinator.Status, error)
	Watch(*WatchRequest, grpc.ServerStream) error
}

// ServiceDesc describes clipkeep.v1.Coordinator for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CoordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Dispatch", Handler: unary(dispatchMethod, CoordinatorServer.Dispatch)},
		{MethodName: "Snapshot", Handler: unary(snapshotMethod, CoordinatorServer.Snapshot)},
		{MethodName: "Status", Handler: unary(statusMethod, CoordinatorServer.Status)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "clipkeep/v1/coordinator.json",
}

// unary adapts a typed method into a grpc method handler.
func unary[Req, Resp any](
	fullMethod string,
	call func(CoordinatorServer, context.Context, *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CoordinatorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CoordinatorServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CoordinatorServer).Watch(in, stream)
}
