package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"phonics-master/internal/app"
	"phonics-master/internal/config"
	"phonics-master/internal/infra/postgres"
	"phonics-master/internal/session"
	transport "phonics-master/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the peer relay and level admin server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer log.Sync()
			return runServer(cmd.Context(), cfg, opts.port, log)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config, portFlag string, log *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	res, err := openResources(ctx, cfg)
	if err != nil {
		return err
	}
	defer res.Close()

	store, err := newLevelStore(cfg, res)
	if err != nil {
		return err
	}
	levels := transport.NewLevelsHandler(app.NewLevelService(store, log), log)
	relay := transport.NewRelayHandler(log)

	sources := []transport.RoomSource{
		func(context.Context) ([]transport.Room, error) { return relay.WaitingRooms(), nil },
	}
	if res.pool != nil {
		rt := postgres.NewRealtimeTransport(res.pool, log)
		sources = append(sources, func(ctx context.Context) ([]transport.Room, error) {
			found, err := rt.ListWaitingRooms(ctx, 50)
			if err != nil {
				return nil, err
			}
			rooms := make([]transport.Room, 0, len(found))
			for _, r := range found {
				rooms = append(rooms, transport.Room{Code: r.Code, Backend: session.KindRealtimeDB, CreatedAt: r.CreatedAt})
			}
			return rooms, nil
		})
	}
	lobby := transport.NewLobbyHandler(log, sources...)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/peer", relay.ServeWS)
	mux.HandleFunc("/levels", levels.ServeLevels)
	mux.HandleFunc("/rooms", lobby.ServeRooms)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting phonics server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
