package https

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"tablecrm/internal/ws"
)

func NewHTTPServer(httpHandler *HTTPHandlers, wsManager *ws.Manager, addr string, corsOrigins []string) *http.Server {
	router := chi.NewRouter()
	router.Use(cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler)

	router.Get("/ws", wsManager.Handle)
	router.Route("/segments", func(r chi.Router) {
		r.Use(httpHandler.withCashbox)
		r.Post("/", httpHandler.HandleCreateSegment)
		r.Get("/", httpHandler.HandleListSegments)
		r.Route("/{segmentID}", func(r chi.Router) {
			r.Get("/", httpHandler.HandleGetSegment)
			r.Put("/", httpHandler.HandleModifySegment)
			r.Post("/", httpHandler.HandleRefreshSegment)
			r.Get("/result", httpHandler.HandleSegmentResult)
		})
	})

	return &http.Server{
		Handler: router,
		Addr:    addr,
	}
}

func StartServer(ctx context.Context, srv *http.Server, db *sql.DB, shutdownTimeout time.Duration) error {
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Default().Error("server ListenAndServe failed", "error", err)
		}
	}()
	slog.Default().Info("server ListenAndServe successfully", "addr", srv.Addr)
	<-ctx.Done()
	slog.Default().Info("shutting down server gracefully", "shutdownTimeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Default().Info("server successfully shut down")
	slog.Default().Info("closing database connection")
	if err := db.Close(); err != nil {
		return fmt.Errorf("error closing database: %w", err)
	}
	slog.Default().Info("database closed")
	return nil
}
