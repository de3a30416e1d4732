package grpcserver

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pricehub/internal/prices"
	"pricehub/internal/runs"
)

type Server struct {
	PriceRepo *prices.Repo
	RunRepo   *runs.Repo
}

func NewServer(priceRepo *prices.Repo, runRepo *runs.Repo) *Server {
	return &Server{PriceRepo: priceRepo, RunRepo: runRepo}
}

func (s *Server) ListPrices(ctx context.Context, req *ListPricesRequest) (*ListPricesResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request required")
	}
	since := strings.TrimSpace(req.Since)
	if since != "" {
		if _, err := time.Parse("2006-01-02", since); err != nil {
			return nil, status.Error(codes.InvalidArgument, "since must be YYYY-MM-DD")
		}
	}

	query := prices.ListQuery{
		Item:    strings.TrimSpace(req.Item),
		Store:   strings.TrimSpace(req.Store),
		Zipcode: strings.TrimSpace(req.Zipcode),
		Since:   since,
		Limit:   int(req.Limit),
		Offset:  int(req.Offset),
	}

	total, err := s.PriceRepo.Count(ctx, query)
	if err != nil {
		return nil, status.Error(codes.Internal, "count failed")
	}
	items, err := s.PriceRepo.List(ctx, query)
	if err != nil {
		return nil, status.Error(codes.Internal, "list failed")
	}

	return &ListPricesResponse{
		Total:  int32(total),
		Limit:  req.Limit,
		Offset: req.Offset,
		Items:  items,
	}, nil
}

func (s *Server) LatestPrices(ctx context.Context, req *LatestPricesRequest) (*LatestPricesResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request required")
	}
	items, err := s.PriceRepo.Latest(ctx, req.Zipcode)
	if err != nil {
		return nil, status.Error(codes.Internal, "latest failed")
	}
	return &LatestPricesResponse{Items: items}, nil
}

func (s *Server) GetRun(ctx context.Context, req *GetRunRequest) (*GetRunResponse, error) {
	if req == nil || strings.TrimSpace(req.ID) == "" {
		return nil, status.Error(codes.InvalidArgument, "id required")
	}

	res, err := s.RunRepo.Get(ctx, strings.TrimSpace(req.ID))
	if err != nil {
		return nil, status.Error(codes.Internal, "get failed")
	}
	if res == nil {
		return nil, status.Error(codes.NotFound, "not found")
	}
	return &GetRunResponse{Run: res, Failures: res.Failures()}, nil
}
