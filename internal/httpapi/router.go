package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"socialhub/internal/friends"
	"socialhub/internal/realtime"
)

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(serverErrorLoggerMiddleware)
	r.Use(corsMiddleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(newIPRateLimiter(d.RateLimitPerMinute, time.Minute).middleware)
	r.Use(middleware.Heartbeat("/healthz"))

	registry := realtime.NewRegistry(d.EventBufferSize)
	dispatcher := realtime.NewDispatcher(registry, realtime.NewResolver(userIdentityAuthority{db: d.DB}))

	s := server{
		db:         d.DB,
		pepper:     d.Pepper,
		adminToken: d.AdminToken,

		registry: registry,
		rt:       dispatcher,
		friends:  friends.NewService(friends.NewPGStore(d.DB), dispatcher),
	}

	r.Route("/v1", func(r chi.Router) {
		// Live connection. Auth is handled inside: browsers cannot set
		// headers on EventSource, so a token query parameter is accepted.
		r.Get("/events", s.handleEventStream)

		r.Group(func(r chi.Router) {
			r.Use(s.userAuthMiddleware)

			r.Post("/friends/send_request", s.handleSendFriendRequest)
			r.Post("/friends/answer", s.handleAnswerFriendRequest)
			r.Post("/friends/remove", s.handleRemoveFriendRequest)
			r.Post("/friends/list", s.handleListFriendRequests)
			r.Post("/friends/with_last_message", s.handleFriendsWithLastMessage)

			r.Post("/social/search_users", s.handleSearchUsers)

			r.Post("/messaging/send_message", s.handleSendMessage)
			r.Post("/messaging/message_get", s.handleGetMessages)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminAuthMiddleware)

			r.Post("/users/create", s.handleAdminCreateUser)
			r.Post("/users/delete", s.handleAdminDeleteUser)
			r.Post("/users/bulk_create", s.handleAdminBulkCreateUsers)
			r.Post("/users/bulk_delete", s.handleAdminBulkDeleteUsers)
			r.Post("/users/issue_key", s.handleAdminIssueUserKey)

			r.Post("/get_all_users", s.handleAdminGetAllUsers)
			r.Post("/get_friends", s.handleAdminGetFriends)
			r.Post("/search_context_users", s.handleAdminSearchContextUsers)
			r.Post("/set_friend_request", s.handleAdminSetFriendRequest)
			r.Post("/get_messages", s.handleAdminGetMessages)
		})
	})

	return r
}
