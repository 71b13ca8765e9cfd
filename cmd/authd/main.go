package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"nullspace/go-auth/internal/composition/authserver"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "Path to authd.yaml (optional)")
	listenAddr := flag.String("listen-addr", "", "HTTP listen address override")
	dataDir := flag.String("data-dir", "", "Directory for daemon local data (optional)")
	flag.Parse()
	if *showVersion {
		fmt.Printf("authd version=%s commit=%s build_date=%s\n", version, commit, buildDate)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *listenAddr != "" {
		_ = os.Setenv("NS_LISTEN_ADDR", *listenAddr)
	}
	if *dataDir != "" {
		_ = os.Setenv("NS_DATA_DIR", *dataDir)
	}

	srv, err := authserver.New(ctx, *configPath)
	if err != nil {
		log.Fatalf("authd failed to initialize: %v", err)
	}

	log.Println("authd starting")
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("authd failed: %v", err)
	}
	log.Println("authd stopped")
}
