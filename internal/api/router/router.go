package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/clinicops/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinicops/internal/http/middleware"
	"github.com/wolfman30/clinicops/pkg/logging"
)

// Config holds router configuration. Handlers left nil are not mounted.
type Config struct {
	Logger             *logging.Logger
	Verifier           httpmiddleware.TokenVerifier
	RateLimiter        *httpmiddleware.RateLimiter
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	Auth         *handlers.AuthHandler
	Stats        *handlers.StatsHandler
	Appointments *handlers.AppointmentsHandler
	Chats        *handlers.ChatsHandler
	Patients     *handlers.DirectoryHandler
	Doctors      *handlers.DirectoryHandler
	Agents       *handlers.DirectoryHandler
	Inbox        *handlers.InboxHandler
	Presence     *handlers.PresenceHandler
	Realtime     http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.Verifier == nil {
		panic("router: token verifier required")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	if cfg.RateLimiter != nil {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", health)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Auth != nil {
			public.Post("/auth/login", cfg.Auth.Login)
		}
	})

	r.Group(func(user chi.Router) {
		user.Use(httpmiddleware.RequireUser(cfg.Verifier, cfg.Logger))

		if cfg.Auth != nil {
			user.Post("/auth/logout", cfg.Auth.Logout)
			user.Get("/auth/me", cfg.Auth.Me)
		}
		if cfg.Stats != nil {
			user.Method(http.MethodGet, "/stats", cfg.Stats)
		}
		if cfg.Appointments != nil {
			user.Route("/appointments", func(r chi.Router) {
				r.Get("/", cfg.Appointments.List)
				r.Post("/", cfg.Appointments.Create)
				r.Get("/report", cfg.Appointments.Report)
				r.Get("/count", cfg.Appointments.CountBySpecialty)
				r.Get("/{id}", cfg.Appointments.Get)
				r.Patch("/{id}", cfg.Appointments.Update)
				r.Delete("/{id}", cfg.Appointments.Delete)
				r.Post("/{id}/doctor", cfg.Appointments.AssignDoctor)
			})
			user.Get("/specialties", cfg.Appointments.Specialties)
		}
		if cfg.Chats != nil {
			user.Route("/chats", func(r chi.Router) {
				r.Get("/predefined", cfg.Chats.Predefined)
				r.Route("/{id}", func(chat chi.Router) {
					chat.Post("/ensure", cfg.Chats.Ensure)
					chat.Get("/messages", cfg.Chats.Messages)
					chat.Post("/messages", cfg.Chats.Send)
					chat.Delete("/messages/{messageID}", cfg.Chats.DeleteMessage)
					chat.Post("/documents", cfg.Chats.SendDocument)
					chat.Get("/files", cfg.Chats.Files)
					chat.Get("/pins", cfg.Chats.Pins)
					chat.Post("/pins", cfg.Chats.TogglePin)
					chat.Put("/reply", cfg.Chats.SetReply)
					chat.Put("/forward", cfg.Chats.SetForward)
					chat.Get("/compose", cfg.Chats.Compose)
					chat.Post("/close", cfg.Chats.Close)
				})
			})
		}
		if cfg.Patients != nil {
			user.Route("/patients", func(r chi.Router) {
				cfg.Patients.Routes(r)
				if cfg.Appointments != nil {
					r.Get("/{id}/appointments", cfg.Appointments.PatientHistory)
				}
			})
		}
		if cfg.Doctors != nil {
			user.Route("/doctors", cfg.Doctors.Routes)
		}
		if cfg.Agents != nil || cfg.Inbox != nil {
			user.Route("/agents", func(r chi.Router) {
				if cfg.Agents != nil {
					cfg.Agents.Routes(r)
				}
				if cfg.Inbox != nil {
					r.Get("/{id}/inbox", cfg.Inbox.List)
				}
			})
		}
		if cfg.Presence != nil {
			user.Route("/presence", func(r chi.Router) {
				r.Get("/", cfg.Presence.Get)
				r.Post("/start", cfg.Presence.Start)
				r.Post("/status", cfg.Presence.UpdateStatus)
				r.Post("/end", cfg.Presence.End)
			})
		}
		if cfg.Realtime != nil {
			user.Handle("/ws", cfg.Realtime)
		}
	})

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
