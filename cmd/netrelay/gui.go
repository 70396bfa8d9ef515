package main

import (
	"embed"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"netrelay/internal/config"
	"netrelay/internal/logger"
	"netrelay/internal/surface"
	"netrelay/pkg/api"
)

//go:embed all:frontend/dist
var assets embed.FS

func runGUI(cfg *config.Config, l logger.Logger) error {
	primary := surface.NewWails()
	svc, err := api.NewService(cfg, primary, l)
	if err != nil {
		return err
	}
	app := NewApp(svc, primary, l)
	l.Info("启动主界面", "devtools", cfg.Browser.DevToolsURL)

	return wails.Run(&options.App{
		Title:            "netrelay",
		Width:            1024,
		Height:           768,
		AssetServer:      &assetserver.Options{Assets: assets},
		BackgroundColour: &options.RGBA{R: 255, G: 255, B: 255, A: 1},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind:             []any{app},
	})
}
