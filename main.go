package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"golang.ngrok.com/ngrok"
	"golang.ngrok.com/ngrok/config"

	appConfig "linkedsongs/config"
	"linkedsongs/controller"
	"linkedsongs/database"
	"linkedsongs/handlers"
	"linkedsongs/sentry"
	"linkedsongs/spotify"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warnf("Error loading .env file: %v", err)
	}
	appConfig.NewConfig()
	setupLogging(appConfig.Config.Options.LogLevel)

	sentry.Init(appConfig.Config.Sentry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx)
	stop()
	sentry.Flush()
	if err != nil {
		log.Fatal(err)
	}
}

func setupLogging(level string) {
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		FieldsOrder:     []string{"module", "userID", "sessionID"},
		TimestampFormat: time.RFC3339,
	})
	if level == "" {
		return
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		log.Warnf("Unknown LOG_LEVEL %q, keeping %s", level, log.GetLevel())
		return
	}
	log.SetLevel(parsed)
}

func run(ctx context.Context) error {
	db, err := database.New(appConfig.Config.Storage.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	tokens, err := spotify.NewTokenCache(appConfig.Config.Storage.TokenCacheDir)
	if err != nil {
		return err
	}

	auth := spotify.NewAuthenticator(appConfig.Config.Spotify)
	ctrl := controller.NewController(appConfig.Config.Options.PollInterval())
	manager := handlers.NewManager(db, ctrl, auth, tokens, appConfig.Config.Options.SecureCookies)

	router := gin.Default()
	router.Use(sentry.GetSentryGin())
	manager.Routes(router)

	listener, err := listen(ctx)
	if err != nil {
		return err
	}

	return serve(ctx, &http.Server{Handler: router}, listener, ctrl)
}

// serve runs server on listener until ctx is done or the server fails, then
// stops every follower and the server. A listener that dies after ctx is
// done is a normal shutdown.
func serve(ctx context.Context, server *http.Server, listener net.Listener, ctrl *controller.Controller) error {
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	var err error
	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) || ctx.Err() != nil {
			err = nil
		}
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if serr := ctrl.Shutdown(shutdownCtx); serr != nil {
		log.Warnf("Followers did not stop in time: %v", serr)
	}
	if serr := server.Shutdown(shutdownCtx); serr != nil && err == nil {
		err = serr
	}
	return err
}

func listen(ctx context.Context) (net.Listener, error) {
	if appConfig.Config.NGrok.IsEnabled() {
		// the tunnel is closed by server.Shutdown, not by the signal
		listener, err := ngrok.Listen(context.WithoutCancel(ctx),
			config.HTTPEndpoint(
				config.WithDomain(appConfig.Config.NGrok.Domain),
			),
			ngrok.WithAuthtokenFromEnv(), // defaults to NGROK_AUTHTOKEN
		)
		if err != nil {
			return nil, err
		}

		log.Infof("Ngrok URL: %s", listener.URL())
		return listener, nil
	}

	port := appConfig.Config.Options.Port
	log.Infof("Starting server on :%s", port)
	return net.Listen("tcp", ":"+port)
}
