package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"

	"pricehub/internal/grpcserver"
	"pricehub/internal/prices"
	"pricehub/internal/runs"
	"pricehub/pkg/database"
	"pricehub/pkg/utils"
)

func main() {
	cfg := database.DefaultConfig()
	db := database.MustOpen(cfg)
	defer db.Close()

	if err := database.Migrate(db, cfg.Driver); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	srvCfg := utils.LoadServerConfig()
	listener, err := net.Listen("tcp", srvCfg.GrpcAddr)
	if err != nil {
		log.Fatalf("grpc listen failed: %v", err)
	}

	svc := grpcserver.NewServer(prices.NewRepo(db, cfg.Driver), runs.NewRepo(db, cfg.Driver))

	grpcServer := grpc.NewServer()
	grpcserver.Register(grpcServer, svc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		grpcServer.GracefulStop()
	}()

	log.Printf("gRPC server listening on %s", srvCfg.GrpcAddr)
	if err := grpcServer.Serve(listener); err != nil {
		log.Fatalf("grpc server stopped: %v", err)
	}
}
