// Package lookupsvc exposes a lookup [Resolver] as the ipcache.Lookup gRPC
// service. The service is registered through a hand-written
// [grpc.ServiceDesc] so that no protobuf code generation is required.
//
// Request and response types are plain Go structs. The package registers a
// codec under the "proto" name that JSON-encodes them and delegates real
// protobuf messages to the standard proto codec. Importing the package
// activates the codec.
package lookupsvc

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Keksclan/ipcache/model"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcEncoding "google.golang.org/grpc/encoding"
	_ "google.golang.org/grpc/encoding/proto" // ensure default proto codec is registered first
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "ipcache.Lookup"

// LookupIPRequest asks for the details of a single IP address.
type LookupIPRequest struct {
	IP string `json:"ip"`
}

// LookupASNRequest asks for the details of an autonomous system.
type LookupASNRequest struct {
	ASN string `json:"asn"`
}

// LookupFieldRequest asks for one attribute of an IP address.
type LookupFieldRequest struct {
	IP    string `json:"ip"`
	Field string `json:"field"`
}

// LookupFieldResponse carries a single attribute value.
type LookupFieldResponse struct {
	Value string `json:"value"`
}

// ClearCacheRequest drops every cached lookup result.
type ClearCacheRequest struct{}

// ClearCacheResponse reports whether the cache was cleared.
type ClearCacheResponse struct {
	Cleared bool `json:"cleared"`
}

// Resolver is the lookup backend. *client.Client implements it.
type Resolver interface {
	LookupIP(ctx context.Context, ip string) (*model.IPResult, error)
	LookupASN(ctx context.Context, asn string) (*model.ASNResult, error)
	LookupField(ctx context.Context, ip, field string) (string, error)
	ClearCache() bool
}

// Handler is the interface that an ipcache.Lookup implementation must satisfy.
type Handler interface {
	LookupIP(ctx context.Context, req *LookupIPRequest) (*model.IPResult, error)
	LookupASN(ctx context.Context, req *LookupASNRequest) (*model.ASNResult, error)
	LookupField(ctx context.Context, req *LookupFieldRequest) (*LookupFieldResponse, error)
	ClearCache(ctx context.Context, req *ClearCacheRequest) (*ClearCacheResponse, error)
}

// NewHandler adapts r to the service interface.
func NewHandler(r Resolver) Handler { return handler{r: r} }

type handler struct {
	r Resolver
}

func (h handler) LookupIP(ctx context.Context, req *LookupIPRequest) (*model.IPResult, error) {
	if strings.TrimSpace(req.IP) == "" {
		return nil, status.Error(codes.InvalidArgument, "ip is required")
	}
	return h.r.LookupIP(ctx, req.IP)
}

func (h handler) LookupASN(ctx context.Context, req *LookupASNRequest) (*model.ASNResult, error) {
	if strings.TrimSpace(req.ASN) == "" {
		return nil, status.Error(codes.InvalidArgument, "asn is required")
	}
	return h.r.LookupASN(ctx, req.ASN)
}

func (h handler) LookupField(ctx context.Context, req *LookupFieldRequest) (*LookupFieldResponse, error) {
	if strings.TrimSpace(req.IP) == "" || strings.TrimSpace(req.Field) == "" {
		return nil, status.Error(codes.InvalidArgument, "ip and field are required")
	}
	v, err := h.r.LookupField(ctx, req.IP, req.Field)
	if err != nil {
		return nil, err
	}
	return &LookupFieldResponse{Value: v}, nil
}

func (h handler) ClearCache(context.Context, *ClearCacheRequest) (*ClearCacheResponse, error) {
	return &ClearCacheResponse{Cleared: h.r.ClearCache()}, nil
}

// ServiceDesc is the grpc.ServiceDesc for the ipcache.Lookup service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "LookupIP", Handler: unary("LookupIP", Handler.LookupIP)},
		{MethodName: "LookupASN", Handler: unary("LookupASN", Handler.LookupASN)},
		{MethodName: "LookupField", Handler: unary("LookupField", Handler.LookupField)},
		{MethodName: "ClearCache", Handler: unary("ClearCache", Handler.ClearCache)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ipcache/lookup.proto",
}

// unary builds the method handler for a single RPC.
func unary[Req, Resp any](method string, call func(Handler, context.Context, *Req) (Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(Handler), ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, r any) (any, error) {
			return call(srv.(Handler), ctx, r.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

// Register registers a Lookup service implementation on the given gRPC server.
func Register(s grpc.ServiceRegistrar, h Handler) {
	s.RegisterService(&ServiceDesc, h)
}

// ---------- codec wrapper ----------

func init() {
	grpcEncoding.RegisterCodec(codec{})
}

// codec encodes protobuf messages with proto and everything else, i.e. the
// service's own request and response structs, as JSON.
type codec struct{}

func (codec) Name() string { return "proto" }

func (codec) Marshal(v any) ([]byte, error) {
	if m, ok := v.(proto.Message); ok {
		return proto.Marshal(m)
	}
	return json.Marshal(v)
}

func (codec) Unmarshal(data []byte, v any) error {
	if m, ok := v.(proto.Message); ok {
		return proto.Unmarshal(data, m)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
