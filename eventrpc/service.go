package eventrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Both services below are hand-written in the exact shape
// protoc-gen-go-grpc produces (client iface, server iface +
// Unimplemented*, ServiceDesc, _Handler funcs); see
// controlplane/ynpb/gateway_grpc.pb.go for the generated original this is
// modeled on. The wire messages are *wrapperspb.BytesValue (a stock,
// already-compiled protobuf message) carrying a gob-encoded payload,
// since this environment has no protoc toolchain to regenerate typed
// request/response messages from a .proto file (SPEC_FULL.md §4.4).

const (
	eventServiceDeliverMethod       = "/eventrpc.EventService/Deliver"
	probeFilterServiceInstallMethod = "/eventrpc.ProbeFilterService/InstallFilter"
)

// --- EventService: producer (client) -> consumer (server) ---

type EventServiceClient interface {
	Deliver(ctx context.Context, in *EventEnvelope, opts ...grpc.CallOption) (*EventAck, error)
}

type eventServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewEventServiceClient(cc grpc.ClientConnInterface) EventServiceClient {
	return &eventServiceClient{cc}
}

func (c *eventServiceClient) Deliver(ctx context.Context, in *EventEnvelope, opts ...grpc.CallOption) (*EventAck, error) {
	req, err := gobToBytesValue(in)
	if err != nil {
		return nil, err
	}
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, eventServiceDeliverMethod, req, out, opts...); err != nil {
		return nil, err
	}
	ack := new(EventAck)
	if err := bytesValueToGob(out, ack); err != nil {
		return nil, err
	}
	return ack, nil
}

type EventServiceServer interface {
	Deliver(context.Context, *EventEnvelope) (*EventAck, error)
	mustEmbedUnimplementedEventServiceServer()
}

type UnimplementedEventServiceServer struct{}

func (UnimplementedEventServiceServer) Deliver(context.Context, *EventEnvelope) (*EventAck, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Deliver not implemented")
}
func (UnimplementedEventServiceServer) mustEmbedUnimplementedEventServiceServer() {}

func RegisterEventServiceServer(s grpc.ServiceRegistrar, srv EventServiceServer) {
	s.RegisterService(&EventService_ServiceDesc, srv)
}

func _EventService_Deliver_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	envelope := new(EventEnvelope)
	if err := bytesValueToGob(in, envelope); err != nil {
		return nil, fmt.Errorf("eventrpc: decode EventEnvelope: %w", err)
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		ack, err := srv.(EventServiceServer).Deliver(ctx, req.(*EventEnvelope))
		if err != nil {
			return nil, err
		}
		return gobToBytesValue(ack)
	}
	if interceptor == nil {
		return handler(ctx, envelope)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: eventServiceDeliverMethod}
	return interceptor(ctx, envelope, info, handler)
}

var EventService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "eventrpc.EventService",
	HandlerType: (*EventServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Deliver", Handler: _EventService_Deliver_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "eventrpc.proto",
}

// --- ProbeFilterService: consumer (client) -> producer (server) ---

type ProbeFilterServiceClient interface {
	InstallFilter(ctx context.Context, in *FilterRequest, opts ...grpc.CallOption) (*FilterResponse, error)
}

type probeFilterServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewProbeFilterServiceClient(cc grpc.ClientConnInterface) ProbeFilterServiceClient {
	return &probeFilterServiceClient{cc}
}

func (c *probeFilterServiceClient) InstallFilter(ctx context.Context, in *FilterRequest, opts ...grpc.CallOption) (*FilterResponse, error) {
	req, err := gobToBytesValue(in)
	if err != nil {
		return nil, err
	}
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, probeFilterServiceInstallMethod, req, out, opts...); err != nil {
		return nil, err
	}
	resp := new(FilterResponse)
	if err := bytesValueToGob(out, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

type ProbeFilterServiceServer interface {
	InstallFilter(context.Context, *FilterRequest) (*FilterResponse, error)
	mustEmbedUnimplementedProbeFilterServiceServer()
}

type UnimplementedProbeFilterServiceServer struct{}

func (UnimplementedProbeFilterServiceServer) InstallFilter(context.Context, *FilterRequest) (*FilterResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method InstallFilter not implemented")
}
func (UnimplementedProbeFilterServiceServer) mustEmbedUnimplementedProbeFilterServiceServer() {}

func RegisterProbeFilterServiceServer(s grpc.ServiceRegistrar, srv ProbeFilterServiceServer) {
	s.RegisterService(&ProbeFilterService_ServiceDesc, srv)
}

func _ProbeFilterService_InstallFilter_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	req := new(FilterRequest)
	if err := bytesValueToGob(in, req); err != nil {
		return nil, fmt.Errorf("eventrpc: decode FilterRequest: %w", err)
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		resp, err := srv.(ProbeFilterServiceServer).InstallFilter(ctx, req.(*FilterRequest))
		if err != nil {
			return nil, err
		}
		return gobToBytesValue(resp)
	}
	if interceptor == nil {
		return handler(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: probeFilterServiceInstallMethod}
	return interceptor(ctx, req, info, handler)
}

var ProbeFilterService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "eventrpc.ProbeFilterService",
	HandlerType: (*ProbeFilterServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "InstallFilter", Handler: _ProbeFilterService_InstallFilter_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "eventrpc.proto",
}
