package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CheKilo/bot-agent/pkg/protocol"
	"github.com/CheKilo/bot-agent/pkg/session"
)

// buildServeCmd starts a placeholder HTTP surface: /metrics for
// Prometheus scraping and a single /chat POST endpoint for manual
// testing. A real HTTP API (auth, streaming, multi-tenant routing) is
// out of scope (spec.md §1 Out-of-scope); this exists only so the core
// runtime can be exercised over the wire, not just via the CLI.
func buildServeCmd() *cobra.Command {
	var configPath string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a minimal HTTP surface over the chat pipeline (placeholder; no auth, no streaming)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(configPath)
			if err != nil {
				return err
			}

			mux := http.NewServeMux()
			mux.Handle("/metrics", rt.metrics.Handler())
			mux.HandleFunc("/chat", chatHandler(rt))

			srv := &http.Server{Addr: addr, Handler: mux}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			go func() {
				<-ctx.Done()
				slog.Info("botagent: shutting down")
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = srv.Shutdown(shutdownCtx)
			}()

			slog.Info("botagent: serving", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on")
	return cmd
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
	Error string `json:"error,omitempty"`
}

func chatHandler(rt *runtime) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		if req.UserID == "" {
			req.UserID = "default"
		}

		pipeline := rt.sessions.GetOrCreate(session.Key{BotID: rt.cfg.BotID, UserID: req.UserID})
		resp := pipeline.Invoke(r.Context(), protocol.AgentMessage{
			Content:  req.Message,
			Metadata: map[string]any{"user_id": req.UserID},
		})

		rt.manager.PromoteDue(r.Context(), rt.cfg.BotID, req.UserID)

		w.Header().Set("Content-Type", "application/json")
		if !resp.Success {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(chatResponse{Error: resp.Error})
			return
		}
		json.NewEncoder(w).Encode(chatResponse{Reply: resp.Content})
	}
}
