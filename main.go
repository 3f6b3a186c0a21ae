// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VA7DBI/tokenAPI/auth"
	"github.com/VA7DBI/tokenAPI/config"
	"github.com/VA7DBI/tokenAPI/docs"
	"github.com/VA7DBI/tokenAPI/middleware"
	"github.com/VA7DBI/tokenAPI/migrations"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

// @title           Token API Service
// @version         1.0
// @description     Issues, validates, renews and revokes opaque bearer access tokens.
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
func main() {
	if err := newCLI().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "tokenapi",
		Usage: "Issue, validate and revoke bearer access tokens",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to configuration file",
				EnvVars: []string{"TOKENAPI_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the HTTP API and the background token sweeper",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "migrate",
						Usage: "Apply database migrations before serving",
					},
				},
				Action: serveAction,
			},
			{
				Name:      "create-token",
				Usage:     "Create a new access token for a user",
				ArgsUsage: "USERNAME",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "expires",
						Aliases: []string{"t"},
						Usage:   "Token lifetime in seconds (default from config)",
					},
					&cli.StringFlag{
						Name:    "device",
						Aliases: []string{"d"},
						Usage:   "Device information",
					},
				},
				Action: createTokenAction,
			},
			{
				Name:  "cleanup",
				Usage: "Remove expired and revoked access tokens",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Only report how many tokens would be removed",
					},
				},
				Action: cleanupAction,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations to the postgres store",
				Action: migrateAction,
			},
		},
	}
}

// openApplication is replaced in tests.
var openApplication = func(c *cli.Context) (*application, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	return newApplication(c.Context, cfg, newLogger(cfg))
}

func serveAction(c *cli.Context) error {
	app, err := openApplication(c)
	if err != nil {
		return err
	}
	defer app.Close()

	if c.Bool("migrate") {
		if err := app.migrate(c.Context); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runSweeper(ctx, app.tokens, app.cfg.Token.Interval(), app.logger)

	addr := fmt.Sprintf("%s:%d", app.cfg.Server.Host, app.cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: setupRouter(app)}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "addr", addr, "store", app.cfg.Store.Backend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	app.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupRouter(app *application) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	handlers := newTokenHandlers(app)
	authMiddleware := middleware.NewAuthMiddleware(app.cfg, app.tokens, app.logger)

	api := r.Group("/api", authMiddleware.Handler())
	api.GET("/user", handlers.UserInfo)
	api.GET("/tokens", handlers.ListTokens)
	api.POST("/token/revoke/:id", handlers.RevokeToken)

	admin := r.Group("/admin", middleware.AdminKeys(app.cfg))
	admin.POST("/tokens", handlers.GenerateToken)

	// These endpoints remain public
	r.GET("/health", healthCheck)
	docs.SwaggerInfo.Host = app.cfg.API.SwaggerHost
	docs.SwaggerInfo.BasePath = app.cfg.API.BasePath
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if app.cfg.Metrics.Enabled {
		r.GET(app.cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}
	return r
}

func createTokenAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("exactly one USERNAME is required", 2)
	}

	app, err := openApplication(c)
	if err != nil {
		return err
	}
	defer app.Close()

	var ttl *int
	if c.IsSet("expires") {
		seconds := c.Int("expires")
		ttl = &seconds
	}
	return createToken(c.Context, app, c.App.Writer, c.Args().First(), ttl, c.String("device"))
}

func createToken(ctx context.Context, app *application, w io.Writer, username string, ttl *int, device string) error {
	token, err := app.issueToken(ctx, username, ttl, device)
	switch {
	case errors.Is(err, errInvalidInput):
		return cli.Exit(err.Error(), 2)
	case errors.Is(err, auth.ErrUserNotFound):
		return cli.Exit(fmt.Sprintf("user %q does not exist", username), 1)
	case err != nil:
		return fmt.Errorf("creating token: %w", err)
	}

	fmt.Fprintf(w, "Created access token for user %q\n", username)
	fmt.Fprintf(w, "Token:   %s\n", token.Value)
	fmt.Fprintf(w, "Expires: %s\n", token.ExpireTime.Format(time.DateTime))
	fmt.Fprintf(w, "Usage:   Authorization: Bearer %s\n", token.Value)
	return nil
}

func cleanupAction(c *cli.Context) error {
	app, err := openApplication(c)
	if err != nil {
		return err
	}
	defer app.Close()

	return cleanup(c.Context, app, c.App.Writer, c.Bool("dry-run"))
}

func cleanup(ctx context.Context, app *application, w io.Writer, dryRun bool) error {
	if dryRun {
		count, err := app.tokens.CountExpiredTokens(ctx)
		if err != nil {
			return fmt.Errorf("counting expired tokens: %w", err)
		}
		fmt.Fprintf(w, "Dry run: %d expired access tokens would be removed\n", count)
		return nil
	}

	count, err := app.tokens.CleanupExpiredTokens(ctx)
	if err != nil {
		return fmt.Errorf("cleaning up tokens: %w", err)
	}
	fmt.Fprintf(w, "Removed %d expired access tokens\n", count)
	return nil
}

func migrateAction(c *cli.Context) error {
	app, err := openApplication(c)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.migrate(c.Context)
}

func (a *application) migrate(ctx context.Context) error {
	if a.db == nil {
		return errors.New("migrations need the postgres store")
	}
	if err := migrations.Up(ctx, a.db); err != nil {
		return err
	}
	a.logger.Info("migrations applied")
	return nil
}
