package grpcserver

import (
	"context"

	"google.golang.org/grpc"

	"pricehub/internal/ingest"
	"pricehub/pkg/models"
)

const ServiceName = "pricehub.PriceService"

type ListPricesRequest struct {
	Item    string `json:"item,omitempty"`
	Store   string `json:"store,omitempty"`
	Zipcode string `json:"zipcode,omitempty"`
	Since   string `json:"since,omitempty"`
	Limit   int32  `json:"limit,omitempty"`
	Offset  int32  `json:"offset,omitempty"`
}

type ListPricesResponse struct {
	Total  int32             `json:"total"`
	Limit  int32             `json:"limit"`
	Offset int32             `json:"offset"`
	Items  []models.PriceRow `json:"items"`
}

type LatestPricesRequest struct {
	Zipcode string `json:"zipcode,omitempty"`
}

type LatestPricesResponse struct {
	Items []models.PriceRow `json:"items"`
}

type GetRunRequest struct {
	ID string `json:"id"`
}

type GetRunResponse struct {
	Run      *ingest.RunResult      `json:"run"`
	Failures []ingest.SourceFailure `json:"failures"`
}

// PriceService is the server API.
type PriceService interface {
	ListPrices(ctx context.Context, req *ListPricesRequest) (*ListPricesResponse, error)
	LatestPrices(ctx context.Context, req *LatestPricesRequest) (*LatestPricesResponse, error)
	GetRun(ctx context.Context, req *GetRunRequest) (*GetRunResponse, error)
}

func unary[Req, Resp any](method string, call func(PriceService, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + ServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PriceService), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PriceService), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PriceService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListPrices", Handler: unary("ListPrices", PriceService.ListPrices)},
		{MethodName: "LatestPrices", Handler: unary("LatestPrices", PriceService.LatestPrices)},
		{MethodName: "GetRun", Handler: unary("GetRun", PriceService.GetRun)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pricehub/price_service",
}

func Register(s grpc.ServiceRegistrar, svc PriceService) {
	s.RegisterService(&ServiceDesc, svc)
}

// Client calls PriceService with the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListPrices(ctx context.Context, in *ListPricesRequest, opts ...grpc.CallOption) (*ListPricesResponse, error) {
	return invoke[ListPricesResponse](ctx, c.cc, "ListPrices", in, opts)
}

func (c *Client) LatestPrices(ctx context.Context, in *LatestPricesRequest, opts ...grpc.CallOption) (*LatestPricesResponse, error) {
	return invoke[LatestPricesResponse](ctx, c.cc, "LatestPrices", in, opts)
}

func (c *Client) GetRun(ctx context.Context, in *GetRunRequest, opts ...grpc.CallOption) (*GetRunResponse, error) {
	return invoke[GetRunResponse](ctx, c.cc, "GetRun", in, opts)
}
