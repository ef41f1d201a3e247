package handler

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/marketplace/internal/core/domain"
	"github.com/rl1809/marketplace/internal/core/service"
	"github.com/rl1809/marketplace/internal/pkg/logging"
)

// CodecName is the gRPC content subtype of the order service messages.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type PlaceOrderRequest struct {
	ItemID         string `json:"item_id"`
	Quantity       int32  `json:"quantity"`
	Address        string `json:"address"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id"`
}

type CancelOrderResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type AdvanceOrderRequest struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

type OrderServiceServer interface {
	PlaceOrder(context.Context, *PlaceOrderRequest) (*OrderResponse, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*CancelOrderResponse, error)
	AdvanceOrder(context.Context, *AdvanceOrderRequest) (*OrderResponse, error)
}

const orderServiceName = "marketplace.v1.OrderService"

var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: orderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "PlaceOrder", Handler: unaryHandler("PlaceOrder", OrderServiceServer.PlaceOrder)},
		{MethodName: "CancelOrder", Handler: unaryHandler("CancelOrder", OrderServiceServer.CancelOrder)},
		{MethodName: "AdvanceOrder", Handler: unaryHandler("AdvanceOrder", OrderServiceServer.AdvanceOrder)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "marketplace/v1/order.proto",
}

func unaryHandler[Req, Resp any](method string, call func(OrderServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + orderServiceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

type GRPCHandler struct {
	m *service.Marketplace
}

func NewGRPCHandler(m *service.Marketplace) *GRPCHandler {
	return &GRPCHandler{m: m}
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*OrderResponse, error) {
	order, err := h.m.Placement.Place(ctx, identityFromIncoming(ctx), service.PlaceOrderRequest{
		ItemID:         req.ItemID,
		Quantity:       int(req.Quantity),
		Address:        req.Address,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	resp := toOrderResponse(*order)
	return &resp, nil
}

func (h *GRPCHandler) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*CancelOrderResponse, error) {
	if err := h.m.Cancellation.Cancel(ctx, identityFromIncoming(ctx), req.OrderID); err != nil {
		return nil, grpcError(err)
	}
	return &CancelOrderResponse{Success: true, Message: "order cancelled"}, nil
}

func (h *GRPCHandler) AdvanceOrder(ctx context.Context, req *AdvanceOrderRequest) (*OrderResponse, error) {
	id := identityFromIncoming(ctx)
	if !id.Authenticated {
		return nil, grpcError(domain.ErrUnauthorized)
	}
	to, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		return nil, grpcError(err)
	}
	order, err := h.m.Fulfillment.Advance(ctx, id, req.OrderID, to)
	if err != nil {
		return nil, grpcError(err)
	}
	resp := toOrderResponse(*order)
	return &resp, nil
}

// UnaryServerInterceptor extracts trace context from metadata, attaches a
// request logger and logs the outcome of every call.
func UnaryServerInterceptor(base *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			ctx = otel.GetTextMapPropagator().Extract(ctx, metadataCarrier(md))
		}
		logger := base.With(zap.String("method", info.FullMethod))
		ctx = logging.ContextWithLogger(ctx, logger)

		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Info("grpc_request",
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		)
		return resp, err
	}
}

// metadataCarrier adapts incoming gRPC metadata to a TextMapCarrier.
type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) string {
	if v := metadata.MD(c).Get(key); len(v) > 0 {
		return v[0]
	}
	return ""
}

func (c metadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// OrderServiceClient is a thin client for the JSON-coded order service.
type OrderServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewOrderServiceClient(cc grpc.ClientConnInterface) *OrderServiceClient {
	return &OrderServiceClient{cc: cc}
}

func (c *OrderServiceClient) PlaceOrder(ctx context.Context, in *PlaceOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.invoke(ctx, "PlaceOrder", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) CancelOrder(ctx context.Context, in *CancelOrderRequest, opts ...grpc.CallOption) (*CancelOrderResponse, error) {
	out := new(CancelOrderResponse)
	if err := c.invoke(ctx, "CancelOrder", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) AdvanceOrder(ctx context.Context, in *AdvanceOrderRequest, opts ...grpc.CallOption) (*OrderResponse, error) {
	out := new(OrderResponse)
	if err := c.invoke(ctx, "AdvanceOrder", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *OrderServiceClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+orderServiceName+"/"+method, in, out, opts...)
}

// WithAccount attaches the caller's account id to outgoing call metadata.
func WithAccount(ctx context.Context, accountID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, identityMetadataKey, accountID)
}
