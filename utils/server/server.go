// Package server exposes chain definitions over HTTP. Every chain graph is built
// once at startup and shared by all concurrent requests.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kris-hansen/promptchain/utils/chain"
	"github.com/kris-hansen/promptchain/utils/config"
	"github.com/kris-hansen/promptchain/utils/pipeline"
)

// served is one chain graph and the definition it was built from
type served struct {
	def   *pipeline.Definition
	chain chain.Chain
	exec  *chain.Executor
}

// Server runs named chains for HTTP clients
type Server struct {
	config  *config.ServerConfig
	chains  map[string]*served
	names   []string
	started time.Time

	cancel context.CancelFunc
}

// New builds every definition. The graphs live until Close is called or ctx ends.
func New(ctx context.Context, cfg *config.ServerConfig, defs map[string]*pipeline.Definition, b *pipeline.Builder) (*Server, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Server{
		config:  cfg,
		chains:  make(map[string]*served, len(defs)),
		names:   pipeline.Names(defs),
		started: time.Now(),
		cancel:  cancel,
	}

	for _, name := range s.names {
		def := defs[name]
		c, err := b.Build(ctx, def, chain.WithContext(ctx))
		if err != nil {
			cancel()
			return nil, err
		}
		s.chains[name] = &served{def: def, chain: c, exec: chain.NewExecutor(c)}
		config.VerboseLog("Serving chain %s (inputs %v, output %s)", name, c.InputVariables(), c.DefaultOutputKey())
	}
	return s, nil
}

// Close stops every chain graph
func (s *Server) Close() {
	s.cancel()
}

// Handler returns the routes wrapped in CORS and authentication
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chains", s.handleListChains)
	mux.HandleFunc("/v1/chains/{name}", s.handleRunChain)
	if s.config.OpenAICompat {
		mux.HandleFunc("/v1/models", s.handleListModels)
		mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	}
	return s.corsMiddleware(s.authMiddleware(mux))
}

// ListenAndServe serves on the configured port until ctx ends, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	port := s.config.Port
	if port == 0 {
		port = 8088
	}
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Printf("[INFO] Server listening on %s with %d chains\n", srv.Addr, len(s.chains))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.Close()
		return err
	}
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.BearerToken == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.config.BearerToken)) != 1 {
			config.DebugLog("Rejected request to %s: invalid bearer token", r.URL.Path)
			sendError(w, http.StatusUnauthorized, "authentication_error", "Invalid or missing bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	cors := s.config.CORS
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !cors.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		allowed := allowedOrigin(cors.AllowedOrigins, origin)
		if allowed != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", joinOr(cors.AllowedMethods, "GET, POST, OPTIONS"))
			w.Header().Set("Access-Control-Allow-Headers", joinOr(cors.AllowedHeaders, "Authorization, Content-Type"))
			if cors.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(cors.MaxAge))
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func allowedOrigin(origins []string, origin string) string {
	if len(origins) == 0 {
		return "*"
	}
	for _, o := range origins {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

func joinOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ", ")
}
