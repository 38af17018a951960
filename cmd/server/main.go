// Package main runs the chaintracks header server: it keeps a checkpoint
// guarded header chain in sync over P2P and serves it over HTTP.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/beastlymac/ccoin/pkg/chaintracks"
)

var log = logrus.WithField("prefix", "main")

func main() {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	app := cli.App{}
	app.Name = "chaintracks-server"
	app.Usage = "tracks block headers and refuses reorganizations below the last checkpoint"
	app.Flags = appFlags
	app.Before = setupLogging
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

// setupLogging configures the global logrus level and formatter from flags
func setupLogging(ctx *cli.Context) error {
	level, err := logrus.ParseLevel(ctx.String(LogLevelFlag.Name))
	if err != nil {
		return err
	}
	logrus.SetLevel(level)

	switch format := ctx.String(LogFormatFlag.Name); format {
	case "text":
		formatter := new(prefixed.TextFormatter)
		formatter.TimestampFormat = "2006-01-02 15:04:05"
		formatter.FullTimestamp = true
		logrus.SetFormatter(formatter)
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %s", format)
	}

	return nil
}

func run(cliCtx *cli.Context) error {
	config, err := LoadConfig(cliCtx)
	if err != nil {
		return err
	}

	registry, err := config.Registry()
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"network":     config.Network,
		"port":        config.Port,
		"storagePath": config.StoragePath,
		"bootstrap":   config.BootstrapURL,
		"checkpoints": registry.Len(),
		"bypass":      registry.Bypassed(),
	}).Info("Starting chaintracks-server")

	if err := ensureHeadersExist(config.StoragePath, config.Network); err != nil {
		return fmt.Errorf("failed to initialize headers: %w", err)
	}

	// Bootstrap happens synchronously in the constructor before returning
	cm, err := chaintracks.NewChainManager(config.Network, config.StoragePath, config.BootstrapURL, registry)
	if err != nil {
		return fmt.Errorf("failed to create chain manager: %w", err)
	}

	fields := logrus.Fields{"height": cm.GetHeight()}
	if tip := cm.GetTip(); tip != nil {
		fields["tip"] = tip.Hash.String()
	}
	if cp, ok := cm.LastCheckpoint(); ok {
		fields["checkpoint"] = cp.Height
	}
	log.WithFields(fields).Info("Loaded headers")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blockMsgChan, err := cm.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start P2P: %w", err)
	}
	log.WithField("network", config.Network).Info("P2P listener started")

	server := NewServer(cm)

	// Start broadcasting tip changes to SSE clients
	server.StartBroadcasting(ctx, blockMsgChan)

	app := newApp(server)
	addr := fmt.Sprintf(":%d", config.Port)

	errChan := make(chan error, 1)
	go func() {
		log.WithField("addr", "http://localhost"+addr).Info("Server listening")
		errChan <- app.Listen(addr)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		log.WithError(err).Error("Server stopped unexpectedly")
	}

	cancel()
	if err := cm.Stop(); err != nil {
		log.WithError(err).Warn("Error closing P2P")
	}
	if err := app.Shutdown(); err != nil {
		log.WithError(err).Warn("Error closing server")
	}
	log.Info("Server stopped")
	return nil
}

// newApp builds the Fiber app with middleware and routes
func newApp(server *Server) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "*",
		AllowMethods: "GET,POST,OPTIONS",
	}))

	app.Use(logger.New(logger.Config{
		Format: "${method} ${path} - ${status} (${latency})\n",
	}))

	server.SetupRoutes(app, NewDashboardHandler(server))
	return app
}

// ensureHeadersExist seeds storagePath from the bundled data/headers directory when it has no headers yet
func ensureHeadersExist(storagePath, network string) error {
	metadataFile := filepath.Join(storagePath, network+"NetBlockHeaders.json")

	if _, err := os.Stat(metadataFile); err == nil {
		return nil
	}

	seedPath := filepath.Join("data", "headers")
	seedMetadata := filepath.Join(seedPath, network+"NetBlockHeaders.json")

	if _, err := os.Stat(seedMetadata); os.IsNotExist(err) {
		log.WithField("path", seedPath).Warn("No bundled headers found")
		return nil
	}

	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(seedPath, network+"Net*"))
	if err != nil {
		return fmt.Errorf("failed to list bundled header files: %w", err)
	}

	log.WithFields(logrus.Fields{"files": len(files), "path": storagePath}).Info("Copying bundled headers")
	for _, srcFile := range files {
		dstFile := filepath.Join(storagePath, filepath.Base(srcFile))
		if err := copyFile(srcFile, dstFile); err != nil {
			return fmt.Errorf("failed to copy %s: %w", srcFile, err)
		}
	}

	return nil
}

// copyFile copies a file from src to dst
func copyFile(src, dst string) error {
	sourceFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	destFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, sourceFile); err != nil {
		return err
	}

	return destFile.Sync()
}
