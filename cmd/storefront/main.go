// Command storefront runs the client-side session of the Pi storefront.
//
//	storefront whoami
//	storefront login [--wait 5s]
//	storefront logout
//	storefront serve [--addr 127.0.0.1:7070]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pi-storefront/internal/common/config"
	"pi-storefront/internal/common/logger"
	"pi-storefront/internal/common/middleware"
	sessionhttp "pi-storefront/internal/features/session/handler/http"
	"pi-storefront/internal/features/session/models"
	"pi-storefront/internal/features/session/service"
	"pi-storefront/internal/platform/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	lg := logger.Init("pi-storefront", cfg.Debug, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg, lg, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit code. Usage
// errors exit with 2.
func run(ctx context.Context, cfg *config.Config, lg zerolog.Logger, args []string, stdout, stderr io.Writer) int {
	c := &cli{cfg: cfg, lg: lg}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteContextC(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n\n%s", err, cmd.UsageString())
		return 2
	}
	return c.code
}

// cli holds what every command needs and the exit code of the one that ran.
type cli struct {
	cfg  *config.Config
	lg   zerolog.Logger
	code int
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "storefront",
		Short:         "Client-side session of the Pi storefront",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.ErrOrStderr(), cmd.UsageString())
			c.code = 2
			return nil
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(c.whoamiCmd())
	root.AddCommand(c.loginCmd())
	root.AddCommand(c.logoutCmd())
	root.AddCommand(c.serveCmd())
	return root
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the persisted identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withManager(cmd, func(ctx context.Context, m *service.Manager) int {
				m.Activate(ctx)
				return whoami(m, cmd.OutOrStdout())
			})
		},
	}
}

func (c *cli) loginCmd() *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in through the Pi Browser SDK bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withManager(cmd, func(ctx context.Context, m *service.Manager) int {
				return login(ctx, m, wait, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "how long to wait for the Pi SDK to appear")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the persisted identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withManager(cmd, func(ctx context.Context, m *service.Manager) int {
				m.Activate(ctx)
				m.Logout(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return 0
			})
		},
	}
}

func (c *cli) serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the session over a local HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withManager(cmd, func(ctx context.Context, m *service.Manager) int {
				return serve(ctx, c.cfg, m, c.lg, addr)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", c.cfg.Session.ListenAddr, "listen address of the session API")
	return cmd
}

// withManager opens the configured store, runs fn against a manager built on
// it and records the exit code fn returns.
func (c *cli) withManager(cmd *cobra.Command, fn func(ctx context.Context, m *service.Manager) int) error {
	ctx := cmd.Context()
	store, release, err := openStore(ctx, c.cfg)
	if err != nil {
		c.lg.Error().Err(err).Msg("Failed to open session store")
		c.code = 1
		return nil
	}
	defer release()

	m := newManager(c.cfg, store, c.lg, cmd.ErrOrStderr())
	defer m.Close()

	c.code = fn(ctx, m)
	return nil
}

func whoami(m *service.Manager, stdout io.Writer) int {
	identity := m.Identity()
	if identity == nil {
		fmt.Fprintln(stdout, "Not logged in")
		return 1
	}
	return printJSON(stdout, identity)
}

func login(ctx context.Context, m *service.Manager, wait time.Duration, stdout io.Writer) int {
	m.Activate(ctx)
	if wait > 0 {
		waitForSDK(ctx, m, wait)
	}

	// the manager already reported the failure through its notifier
	if err := m.Login(ctx); err != nil {
		return 1
	}
	return printJSON(stdout, m.Identity())
}

// waitForSDK blocks until the SDK is detected, the timeout passes or ctx ends.
func waitForSDK(ctx context.Context, m *service.Manager, timeout time.Duration) bool {
	updates, unsubscribe := m.Subscribe()
	defer unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case s, ok := <-updates:
			if !ok {
				return false
			}
			if s.SDKReady {
				return true
			}
		case <-timer.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

func serve(ctx context.Context, cfg *config.Config, m *service.Manager, lg zerolog.Logger, addr string) int {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	m.Activate(ctx)

	server := &http.Server{
		Addr:        addr,
		Handler:     newSessionRouter(cfg, m, lg),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info().Str("addr", addr).Msg("Starting session API")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			lg.Error().Err(err).Msg("Session API failed")
			return 1
		}
	case <-ctx.Done():
	}

	lg.Info().Msg("Shutting down session API...")
	// close the manager first so open event streams end
	m.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("Session API forced to shutdown")
		return 1
	}
	lg.Info().Msg("Session API exited")
	return 0
}

func newSessionRouter(cfg *config.Config, m *service.Manager, lg zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.ErrorHandler(lg))
	router.Use(middleware.Logger(lg))
	router.Use(metrics.Middleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.Origin}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Accept", middleware.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	sessionhttp.NewHandler(m, lg).RegisterRoutes(router)
	router.GET(metrics.Path, gin.WrapH(metrics.Handler()))
	return router
}

func printJSON(w io.Writer, identity *models.Identity) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(identity); err != nil {
		return 1
	}
	return 0
}
