package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/cheahjs/sdwebui-panel/internal/generation"
	"github.com/cheahjs/sdwebui-panel/internal/params"
)

const (
	defaultMaxBodyBytes = 50 << 20
	isoTimestamp        = "2006-01-02T15:04:05.000Z07:00"
)

type Generator interface {
	Generate(ctx context.Context, p params.Parameters) (*generation.Result, error)
}

type HealthChecker interface {
	Available(ctx context.Context) bool
}

type ImageOpener interface {
	Open(filename string) (*os.File, error)
}

type Config struct {
	Generator          Generator
	Health             HealthChecker
	Images             ImageOpener
	StaticDir          string
	MaxBodyBytes       int64
	CORSAllowedOrigins []string
}

type Router struct {
	router       *mux.Router
	handler      http.Handler
	generator    Generator
	health       HealthChecker
	images       ImageOpener
	maxBodyBytes int64
	now          func() time.Time
}

func NewRouter(cfg Config) *Router {
	r := mux.NewRouter()
	router := &Router{
		router:       r,
		generator:    cfg.Generator,
		health:       cfg.Health,
		images:       cfg.Images,
		maxBodyBytes: cfg.MaxBodyBytes,
		now:          time.Now,
	}
	if router.maxBodyBytes <= 0 {
		router.maxBodyBytes = defaultMaxBodyBytes
	}

	r.Use(chimiddleware.RequestID, chimiddleware.RealIP, accessLog, chimiddleware.Recoverer)

	r.HandleFunc("/api/generate", router.generateHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/health", router.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/generated/{filename}", router.imageHandler).Methods(http.MethodGet, http.MethodHead)

	if staticDirExists(cfg.StaticDir) {
		r.PathPrefix("/").Handler(spaHandler{staticDir: cfg.StaticDir}).Methods(http.MethodGet, http.MethodHead)
	} else if cfg.StaticDir != "" {
		log.Warn().Str("dir", cfg.StaticDir).Msg("Static directory not found, frontend will not be served")
	}

	router.handler = corsHandler(cfg.CORSAllowedOrigins, r)

	return router
}

func (router *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	router.handler.ServeHTTP(w, r)
}

func (router *Router) generateHandler(w http.ResponseWriter, r *http.Request) {
	var p params.Parameters

	r.Body = http.MaxBytesReader(w, r.Body, router.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
			return
		}
		log.Warn().Err(err).Msg("Invalid generation request body")
		respondWithError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	if strings.TrimSpace(p.Prompt) == "" {
		respondWithError(w, http.StatusBadRequest, params.ErrPromptRequired.Error(), nil)
		return
	}

	log.Info().
		Str("request_id", chimiddleware.GetReqID(r.Context())).
		Interface("parameters", p.WithoutImages()).
		Int("init_images", len(p.InitImages)).
		Bool("mask", p.HasMask()).
		Msg("Generating image")

	result, err := router.generator.Generate(r.Context(), p)
	if err != nil {
		router.respondWithGenerationError(w, r, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (router *Router) respondWithGenerationError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, params.ErrPromptRequired) {
		respondWithError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	log.Error().
		Err(err).
		Str("request_id", chimiddleware.GetReqID(r.Context())).
		Msg("Generation error")

	var genErr *generation.Error
	if errors.As(err, &genErr) {
		respondWithError(w, http.StatusInternalServerError, genErr.Message, genErr.Details)
		return
	}

	message := err.Error()
	if message == "" {
		message = "Failed to generate image"
	}
	respondWithError(w, http.StatusInternalServerError, message, err.Error())
}

func (router *Router) healthHandler(w http.ResponseWriter, r *http.Request) {
	available := router.health.Available(r.Context())
	respondWithJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		SDWebUIAvailable: available,
		Timestamp:        router.now().UTC().Format(isoTimestamp),
	})
}
