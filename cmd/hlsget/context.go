package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/datallboy/hlsget/internal/app"
	"github.com/datallboy/hlsget/internal/fetcher"
	"github.com/datallboy/hlsget/internal/infra/config"
	"github.com/datallboy/hlsget/internal/infra/logger"
	"github.com/datallboy/hlsget/internal/manifest"
	"github.com/datallboy/hlsget/internal/mux"
	"github.com/datallboy/hlsget/internal/store"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = fmt.Errorf("load config: %w", err)
			return
		}
		if c.logLevelFlag != nil && *c.logLevelFlag != "" {
			cfg.Log.Level = *c.logLevelFlag
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// buildApp wires the logger, fetcher, manifest loader, muxer and the optional
// history store. The returned close function releases all of them.
func buildApp(cfg *config.Config) (*app.Context, func(), error) {
	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	appCtx := app.NewContext(cfg, log)

	client := fetcher.New(fetcher.OptionsFromConfig(cfg), log)
	appCtx.Fetcher = client
	appCtx.Manifests = manifest.NewLoader(client.HTTPClient(), cfg.HTTP.UserAgent, log)

	muxer, err := mux.New(cfg.Mux, log)
	if err != nil {
		log.Close()
		return nil, nil, err
	}
	appCtx.Muxer = muxer

	st, err := store.Open(cfg.Store)
	if err != nil {
		log.Close()
		return nil, nil, fmt.Errorf("open job store: %w", err)
	}
	if st != nil {
		appCtx.Store = st
	}

	closeFn := func() {
		if appCtx.Store != nil {
			if err := appCtx.Store.Close(); err != nil {
				log.Warn("Closing job store: %v", err)
			}
		}
		log.Close()
	}

	return appCtx, closeFn, nil
}

var errHistoryDisabled = errors.New("job history is disabled; set store.driver to sqlite or postgres")
