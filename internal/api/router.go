package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/logger"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/upload"
)

// Server bundles the handlers of every subsystem behind one router
type Server struct {
	files    *FilesHandler
	uploads  *UploadsHandler
	versions *VersionsHandler
	variants *VariantsHandler
	webhooks *WebhooksHandler
}

// NewServer creates the HTTP surface of the pipeline. The webhooks handler
// is omitted when repo is nil.
func NewServer(svc contentpipe.Service, assembler *upload.Assembler, repo contentpipe.Repository, log *logger.Logger) *Server {
	s := &Server{
		files:    NewFilesHandler(svc, log),
		uploads:  NewUploadsHandler(assembler, log),
		versions: NewVersionsHandler(svc),
		variants: NewVariantsHandler(svc),
	}
	if repo != nil {
		s.webhooks = NewWebhooksHandler(repo)
	}
	return s
}

// Routes sets up the HTTP routes
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/files", s.files.Routes())
		r.Mount("/uploads", s.uploads.Routes())
		r.Route("/objects/{object_id}", func(r chi.Router) {
			r.Mount("/versions", s.versions.Routes())
			r.Mount("/variants", s.variants.Routes())
		})
		if s.webhooks != nil {
			r.Mount("/webhooks", s.webhooks.Routes())
		}
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}
