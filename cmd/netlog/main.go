package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcFord/netlog/internal/applog"
	"github.com/MarcFord/netlog/internal/config"
	"github.com/MarcFord/netlog/internal/server"
	"github.com/MarcFord/netlog/internal/version"
	"github.com/MarcFord/netlog/pkg/netlog"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "Path to the configuration file")
	testConfigShort := flag.Bool("t", false, "Test configuration and exit (nginx style)")
	testConfigLong := flag.Bool("test", false, "Test configuration and exit (nginx style)")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.VersionInfo())
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("[CRITICAL] Failed to load configuration from '%s': %v\n", *configPath, err)
		os.Exit(1)
	}

	if *testConfigShort || *testConfigLong {
		fmt.Printf("Configuration '%s' is valid.\n", *configPath)
		os.Exit(0)
	}

	appLogger := applog.Default()
	appLogger.Warn("%s", version.VersionInfo())

	forwarder, err := netlog.New(cfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize log forwarder: %v. Exiting.", err)
	}
	defer forwarder.Close()

	srv := server.NewServer(server.Dependencies{
		Config:    cfg,
		AccessLog: forwarder.Middleware(),
	})

	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Fatal("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Received shutdown signal.")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Warn("Server forced to shutdown: %v", err)
	}

	forwarder.Close()
	appLogger.Info("netlog shut down gracefully.")
}
