package main

import (
	"net/http"
	"os"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/catalog"
	appConfig "github.com/monpham228/mp3-proxy-musicVN-xiaozhi/config"
	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/handlers"
	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/history"
	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/pipeline"
	appSentry "github.com/monpham228/mp3-proxy-musicVN-xiaozhi/sentry"
	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/spotify"
	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/trackcache"
	"github.com/monpham228/mp3-proxy-musicVN-xiaozhi/transcode"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warnf("Error loading .env file: %v", err)
	}
	appConfig.NewConfig()
	setupLogger()

	if os.Getenv("SENTRY_DSN") != "" {
		appSentry.Init()
	}

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func setupLogger() {
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		FieldsOrder:     []string{"module", "function"},
		TimestampFormat: time.RFC3339,
	})

	level, err := log.ParseLevel(appConfig.Config.Server.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func run() error {
	cfg := appConfig.Config

	client := catalog.NewClient(
		cfg.Upstream.BaseURL,
		time.Duration(cfg.Upstream.SearchTimeoutSecs)*time.Second,
		time.Duration(cfg.Upstream.FetchTimeoutSecs)*time.Second,
	)
	transcoder := transcode.New(cfg.Transcode.Bitrate, cfg.Transcode.SampleRate)
	cache := trackcache.New(cfg.Cache.MaxEntries)

	pipe := pipeline.New(client, transcoder, cache, cfg.Cache.MaxChunkBytes, cfg.Server.PublicBaseURL)

	store, err := history.New(cfg.History.DBPath)
	if err != nil {
		log.Warnf("history disabled: %v", err)
		store = nil
	} else {
		defer store.Close()
		pipe.WithHistory(store)
	}

	if cfg.Spotify.IsEnabled() {
		if err := spotify.NewSpotifyClient(); err != nil {
			log.Warnf("spotify link resolution disabled: %v", err)
		} else {
			pipe.WithLinkResolver(spotify.ResolveQuery)
		}
	}

	router := gin.Default()
	if os.Getenv("SENTRY_DSN") != "" {
		router.Use(appSentry.GetSentryGin())
	}

	handlers.NewManager(pipe, store).Register(router)

	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	log.Infof("Starting server on :%s (upstream %s)", port, cfg.Upstream.BaseURL)
	return http.ListenAndServe(":"+port, router)
}
