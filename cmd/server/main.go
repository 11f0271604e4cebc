package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"party-game/internal/bootstrap"
)

func main() {
	app, err := bootstrap.NewApp()
	if err != nil {
		logrus.Fatalf("Failed to initialize party-game server: %v", err)
	}

	app.Start()
	app.Log.WithFields(logrus.Fields{
		"port":         app.Config.ServerPort,
		"store_driver": app.Config.StoreDriver,
		"redis":        app.RedisClient != nil,
	}).Info("party-game server started")

	// 设置优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	app.Log.WithField("signal", sig.String()).Info("Shutdown signal received...")

	app.Shutdown()
}
