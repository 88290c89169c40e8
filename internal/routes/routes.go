package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/stanstork/alumni-sync/internal/authz"
	"github.com/stanstork/alumni-sync/internal/capability"
	"github.com/stanstork/alumni-sync/internal/handlers"
	"github.com/stanstork/alumni-sync/internal/middleware"
	"golang.org/x/time/rate"
)

type Handlers struct {
	Auth     *handlers.AuthHandler
	Invites  *handlers.InviteHandler
	Contacts *handlers.ContactHandler
	Events   *handlers.EventHandler
	Caps     *capability.Registry

	// ClaimLimiter throttles the public claim endpoint; nil disables it.
	ClaimLimiter *rate.Limiter
}

// NewRouter sets up the API routes.
func NewRouter(h Handlers) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", handlers.HealthCheck(h.Caps)).Methods(http.MethodGet)

	// Public: the token itself is the credential.
	router.Handle("/functions/claim-invite", middleware.Throttle(h.ClaimLimiter)(http.HandlerFunc(h.Invites.ClaimInvite))).Methods(http.MethodPost)

	functions := router.PathPrefix("/functions").Subrouter()
	functions.Use(h.Auth.JWTMiddleware)
	functions.Handle("/send-invite", authz.RequireRoleHandler(authz.RoleStaff, http.HandlerFunc(h.Invites.SendInvite))).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(h.Auth.JWTMiddleware)

	staff := func(fn http.HandlerFunc) http.Handler { return authz.RequireRoleHandler(authz.RoleStaff, fn) }
	admin := func(fn http.HandlerFunc) http.Handler { return authz.RequireRoleHandler(authz.RoleAdmin, fn) }

	api.HandleFunc("/team", h.Contacts.Team).Methods(http.MethodGet)

	api.HandleFunc("/contacts", h.Contacts.List).Methods(http.MethodGet)
	api.Handle("/contacts", staff(h.Contacts.Save)).Methods(http.MethodPost)
	api.Handle("/contacts/batch", staff(h.Contacts.SaveBatch)).Methods(http.MethodPost)
	api.Handle("/contacts/{id:[0-9]+}", staff(h.Contacts.Save)).Methods(http.MethodPut)
	api.Handle("/contacts/{id:[0-9]+}/archive", staff(h.Contacts.Archive)).Methods(http.MethodPost)
	api.Handle("/contacts/{id:[0-9]+}/restore", staff(h.Contacts.Restore)).Methods(http.MethodPost)
	api.Handle("/contacts/{id:[0-9]+}", admin(h.Contacts.Purge)).Methods(http.MethodDelete)

	api.HandleFunc("/events", h.Events.List).Methods(http.MethodGet)
	api.Handle("/events", staff(h.Events.Save)).Methods(http.MethodPost)
	api.Handle("/events/{id:[0-9]+}", staff(h.Events.Save)).Methods(http.MethodPut)
	api.Handle("/events/{id:[0-9]+}/attendees", staff(h.Events.AddAttendees)).Methods(http.MethodPost)
	api.Handle("/events/{id:[0-9]+}/archive", staff(h.Events.Archive)).Methods(http.MethodPost)
	api.Handle("/events/{id:[0-9]+}/restore", staff(h.Events.Restore)).Methods(http.MethodPost)
	api.Handle("/events/{id:[0-9]+}", admin(h.Events.Purge)).Methods(http.MethodDelete)

	return router
}
