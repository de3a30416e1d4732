package grpcserver

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"pricehub/internal/ingest"
	"pricehub/internal/prices"
	"pricehub/internal/runs"
	"pricehub/internal/sink"
	"pricehub/pkg/database"
	"pricehub/pkg/models"
)

func startServer(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	cfg := database.Config{Driver: database.DriverSQLite, Path: filepath.Join(t.TempDir(), "grpc.db")}
	db, err := database.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db, cfg.Driver); err != nil {
		t.Fatal(err)
	}

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	recs := []models.PriceRecord{
		{Item: "Milk", Price: decimal.RequireFromString("3.49"), Unit: "gal", Store: "Corner Market", Zipcode: "94102", ObservedAt: at},
		{Item: "Eggs", Price: decimal.RequireFromString("4.99"), Unit: "dozen", Store: "Corner Market", Zipcode: "94102", ObservedAt: at},
	}
	if _, err := sink.NewSQL(db, cfg.Driver, sink.DedupeNone).CommitBatch(ctx, sink.Batch{RunID: "run-1", Records: recs}); err != nil {
		t.Fatal(err)
	}

	runRepo := runs.NewRepo(db, cfg.Driver)
	err = runRepo.Save(ctx, &ingest.RunResult{
		ID: "run-1", StartedAt: at, FinishedAt: at.Add(time.Second), Status: ingest.StatusCommitted,
		SourcesAttempted: 2, SourcesSucceeded: 1, SourcesFailed: 1, RecordsExtracted: 2, RecordsPersisted: 2,
		Sources: []ingest.SourceReport{
			{Source: "Corner Market", URL: "http://a", State: ingest.StateDone, Records: 2},
			{Source: "Bay Foods", URL: "http://b", State: ingest.StateFailed, Kind: ingest.KindMalformedResponse, Reason: "malformed response"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv, NewServer(prices.NewRepo(db, cfg.Driver), runRepo))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func TestPriceService_ListPrices(t *testing.T) {
	c := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.ListPrices(ctx, &ListPricesRequest{Item: "milk"})
	if err != nil {
		t.Fatalf("ListPrices: %v", err)
	}
	if resp.Total != 1 || len(resp.Items) != 1 || !resp.Items[0].Price.Equal(decimal.RequireFromString("3.49")) {
		t.Errorf("resp = %+v", resp)
	}

	_, err = c.ListPrices(ctx, &ListPricesRequest{Since: "last week"})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("bad since code = %v", status.Code(err))
	}
}

func TestPriceService_LatestPrices(t *testing.T) {
	c := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.LatestPrices(ctx, &LatestPricesRequest{Zipcode: "94102"})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Items) != 2 {
		t.Errorf("items = %d, want 2", len(resp.Items))
	}
}

func TestPriceService_GetRun(t *testing.T) {
	c := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.GetRun(ctx, &GetRunRequest{ID: "run-1"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Run == nil || resp.Run.Status != ingest.StatusCommitted || len(resp.Failures) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Failures[0].Kind != ingest.KindMalformedResponse {
		t.Errorf("failure = %+v", resp.Failures[0])
	}

	if _, err := c.GetRun(ctx, &GetRunRequest{ID: "missing"}); status.Code(err) != codes.NotFound {
		t.Errorf("missing code = %v", status.Code(err))
	}
	if _, err := c.GetRun(ctx, &GetRunRequest{}); status.Code(err) != codes.InvalidArgument {
		t.Errorf("empty id code = %v", status.Code(err))
	}
}
