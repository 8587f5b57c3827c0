package cmd

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/boardsite/truthstate/apis"
	"github.com/boardsite/truthstate/common"
	"github.com/boardsite/truthstate/gateway"
	"github.com/boardsite/truthstate/history"
	"github.com/boardsite/truthstate/session"
	"github.com/boardsite/truthstate/state"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// backendProbeInterval how often the state backend liveness is verified
const backendProbeInterval = time.Second * 30

// RunServer run the truth-state API server
func RunServer(
	runTimeContext context.Context,
	config *common.SystemConfig,
	instance string,
	store state.Store,
	archive history.Archive,
	wg *sync.WaitGroup,
) error {
	logTags := log.Fields{
		"module":    "cmd",
		"component": "server",
		"instance":  instance,
	}

	coordinator, err := session.DefineCoordinator(
		store, time.Second*time.Duration(config.Session.LockAcquireTimeout),
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define session coordinator")
		return err
	}
	engines := session.DefaultEngines(config.Gateway.Channels)

	localCtxt, lclCancel := context.WithCancel(runTimeContext)
	defer lclCancel()

	eventGateway, err := gateway.DefineGateway(localCtxt, store, config.Gateway.Channels)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define event gateway")
		return err
	}
	if err := eventGateway.Start(wg); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start event gateway")
		return err
	}
	wsAdapter, err := gateway.DefineWebsocketAdapter(eventGateway, config.Gateway)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define websocket adapter")
		return err
	}

	httpHandler, err := apis.GetAPIRestTruthStateHandler(
		coordinator, engines, store, archive, wsAdapter, &config.API.HTTPSetting,
	)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define HTTP handler")
		return err
	}

	// Periodically verify the backend so failures show up in the logs
	// before clients hit /ready
	probeTimer, err := common.GetIntervalTimerInstance("backend-probe", localCtxt, wg)
	if err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to define backend probe")
		return err
	}
	if err := probeTimer.Start(backendProbeInterval, func() error {
		return store.Ready(localCtxt)
	}, false); err != nil {
		log.WithError(err).WithFields(logTags).Error("Unable to start backend probe")
		return err
	}
	defer func() {
		_ = probeTimer.Stop()
	}()

	// -------------------------------------------------------------------
	// Start the HTTP server

	router := mux.NewRouter()
	mainRouter := apis.RegisterPathPrefix(router, config.API.Endpoints.PathPrefix, nil)

	// Per-game-channel APIs
	gameRouter := apis.RegisterPathPrefix(mainRouter, "/v1/game/{channel}", nil)
	sessionRouter := apis.RegisterPathPrefix(
		gameRouter, "/session/{sessionID}", map[string]http.HandlerFunc{
			"get":    httpHandler.GetSessionHandler(),
			"delete": httpHandler.DeleteSessionHandler(),
		},
	)
	_ = apis.RegisterPathPrefix(
		sessionRouter, "/action", map[string]http.HandlerFunc{
			"post": httpHandler.ApplyActionHandler(),
		},
	)
	_ = apis.RegisterPathPrefix(
		sessionRouter, "/results", map[string]http.HandlerFunc{
			"post": httpHandler.RecordResultsHandler(),
		},
	)
	_ = apis.RegisterPathPrefix(
		gameRouter, "/live", map[string]http.HandlerFunc{
			"get": httpHandler.LiveStreamHandler(),
		},
	)
	_ = apis.RegisterPathPrefix(
		gameRouter, "/leaderboard", map[string]http.HandlerFunc{
			"get": httpHandler.LeaderboardHandler(),
		},
	)

	// Health check
	_ = apis.RegisterPathPrefix(mainRouter, "/alive", map[string]http.HandlerFunc{
		"get": httpHandler.AliveHandler(),
	})
	_ = apis.RegisterPathPrefix(mainRouter, "/ready", map[string]http.HandlerFunc{
		"get": httpHandler.ReadyHandler(),
	})

	// Add logging
	router.Use(func(next http.Handler) http.Handler {
		return handlers.CombinedLoggingHandler(httpHandler, next)
	})

	serverListen := fmt.Sprintf(
		"%s:%d", config.API.HTTPSetting.Server.ListenOn, config.API.HTTPSetting.Server.Port,
	)
	httpSrv := &http.Server{
		Addr:         serverListen,
		ReadTimeout:  time.Second * time.Duration(config.API.HTTPSetting.Server.ReadTimeout),
		WriteTimeout: time.Second * time.Duration(config.API.HTTPSetting.Server.WriteTimeout),
		IdleTimeout:  time.Second * time.Duration(config.API.HTTPSetting.Server.IdleTimeout),
		Handler:      h2c.NewHandler(router, &http2.Server{}),
	}

	// Cancel runtime context on shutdown
	httpSrv.RegisterOnShutdown(lclCancel)

	// Start the server
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP Server Failure")
		}
	}()

	log.WithFields(logTags).Infof("Started HTTP server on http://%s", serverListen)

	// ============================================================================

	<-runTimeContext.Done()

	// Stop the HTTP server
	{
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Failure during HTTP shutdown")
		}
	}

	return nil
}
