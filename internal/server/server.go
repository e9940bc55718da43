// Package server implements the shared training-data service: a flat JSON
// file behind a small REST API that every client appends to.
package server

import (
	"errors"
	"net"
	"time"

	"sketchpad/internal/config"
	"sketchpad/internal/log"
	"sketchpad/internal/sample"
	"sketchpad/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Repository is the persistence behind the API.
type Repository interface {
	All() []sample.TrainingSample
	Append(ts sample.TrainingSample) (int, error)
	Clear() error
}

type Server struct {
	app       *fiber.App
	cfg       config.ServerConfig
	repo      Repository
	validator *sample.Validator
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type listResponse struct {
	Success bool                    `json:"success"`
	Data    []sample.TrainingSample `json:"data"`
}

type appendResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

type clearResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func New(cfg config.ServerConfig, repo Repository, v *sample.Validator) *Server {
	bodyLimit := cfg.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = config.DefaultBodyLimit
	}
	app := fiber.New(fiber.Config{
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
		ErrorHandler:          handleError,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(requestLogger)

	s := &Server{app: app, cfg: cfg, repo: repo, validator: v}
	s.RegisterRoutes(app)
	return s
}

func (s *Server) RegisterRoutes(r fiber.Router) {
	r.Get("/health", s.Health)

	api := r.Group("/api")
	api.Get("/data", s.List)
	api.Post("/data", s.Append)
	api.Delete("/data", s.Clear)
	api.Get("/data/export", s.Export)
}

func (s *Server) GetApp() *fiber.App {
	return s.app
}

// Run listens on the configured address until Shutdown.
func (s *Server) Run() error {
	log.Infof("DataServer: Listening on %s", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	log.Infof("DataServer: Listening on %s", ln.Addr())
	return s.app.Listener(ln)
}

func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(5 * time.Second)
}

func (s *Server) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(healthResponse{Status: "ok", Timestamp: time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) List(ctx *fiber.Ctx) error {
	return ctx.JSON(listResponse{Success: true, Data: s.repo.All()})
}

func (s *Server) Append(ctx *fiber.Ctx) error {
	var ts sample.TrainingSample
	if err := ctx.BodyParser(&ts); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := s.validator.Sample(ts); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	count, err := s.repo.Append(ts)
	if err != nil {
		log.Errorf("DataServer: Saving sample: %v", err)
		return err
	}
	log.Debugf("DataServer: Stored sample, total %d", count)
	return ctx.JSON(appendResponse{Success: true, Count: count})
}

func (s *Server) Clear(ctx *fiber.Ctx) error {
	if err := s.repo.Clear(); err != nil {
		log.Errorf("DataServer: Clearing data: %v", err)
		return err
	}
	log.Infof("DataServer: All data cleared")
	return ctx.JSON(clearResponse{Success: true, Message: "All data cleared"})
}

func (s *Server) Export(ctx *fiber.Ctx) error {
	ctx.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	ctx.Set(fiber.HeaderContentDisposition, `attachment; filename="training-data.csv"`)
	return store.WriteCSV(ctx.Response().BodyWriter(), s.repo.All())
}

// handleError renders every error as {success:false, error}.
func handleError(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return ctx.Status(code).JSON(errorResponse{Success: false, Error: err.Error()})
}

func requestLogger(ctx *fiber.Ctx) error {
	start := time.Now()
	err := ctx.Next()
	log.Debugf("DataServer: %s %s %d (%s)", ctx.Method(), ctx.Path(), ctx.Response().StatusCode(), time.Since(start).Round(time.Microsecond))
	return err
}
