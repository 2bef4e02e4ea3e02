package main

import (
	"embed"

	"github.com/rs/zerolog/log"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"gdsim/internal/config"
	"gdsim/internal/logging"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	logOpts := logging.Options{Level: "info"}
	if cfg, err := config.Load(); err == nil {
		logOpts = logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format}
	}
	logging.Configure("gdsim", logOpts)

	app := NewApp()
	err := wails.Run(&options.App{
		Title:     "Group Discussion Simulator",
		Width:     960,
		Height:    720,
		MinWidth:  640,
		MinHeight: 480,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		OnStartup:  app.startup,
		OnShutdown: app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("wails run failed")
	}
}
