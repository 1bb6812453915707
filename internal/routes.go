package internal

import (
	"attendees/internal/controllers"
	"attendees/internal/providers"
	"net/http"
)

func InitShardRoutes(sc *controllers.ShardController) providers.RouterProviderInterface {
	routers := providers.NewRouterProvider()

	routers.Post("/events/join", http.HandlerFunc(sc.JoinEvent))
	routers.Post("/events/invite", http.HandlerFunc(sc.InviteToEvent))
	routers.Post("/events/accept-user-request", http.HandlerFunc(sc.AcceptUserRequest))
	routers.Post("/events/accept-owner-request", http.HandlerFunc(sc.AcceptOwnerRequest))
	routers.Post("/events/leave", http.HandlerFunc(sc.LeaveEvent))
	routers.Post("/events/remove-invite", http.HandlerFunc(sc.RemoveInvite))
	routers.Post("/events/remove-attendee", http.HandlerFunc(sc.RemoveAttendee))
	routers.Post("/events/remove-attendee-invite", http.HandlerFunc(sc.RemoveAttendeeInvite))
	routers.Post("/events/add-owner", http.HandlerFunc(sc.AddOwnerAsAttendee))
	routers.Get("/events/attendees", http.HandlerFunc(sc.GetEventAttendees))
	routers.Post("/events/invites", http.HandlerFunc(sc.GetEventInvites))
	routers.Post("/events/attendees/count", http.HandlerFunc(sc.GetEventAttendeesCount))
	routers.Post("/events/invites/count", http.HandlerFunc(sc.GetEventInvitesCount))
	routers.Get("/self", http.HandlerFunc(sc.GetSelf))
	routers.Get("/attending", http.HandlerFunc(sc.GetAttending))

	routers.Post("/chunks/joined", http.HandlerFunc(sc.JoinedChunk))
	routers.Post("/chunks/invites", http.HandlerFunc(sc.InvitesChunk))
	routers.Post("/entries/by-parent", http.HandlerFunc(sc.AddEntryByParent))
	routers.Get("/internal/status", http.HandlerFunc(sc.Status))
	routers.Post("/internal/install", http.HandlerFunc(sc.Install))
	routers.Post("/internal/upgrade", http.HandlerFunc(sc.Upgrade))
	return routers
}

func InitCoordinatorRoutes(cc *controllers.CoordinatorController) providers.RouterProviderInterface {
	routers := providers.NewRouterProvider()

	routers.Get("/members", http.HandlerFunc(cc.GetMembers))
	routers.Get("/invites", http.HandlerFunc(cc.GetInvites))
	routers.Get("/shards", http.HandlerFunc(cc.GetShards))
	routers.Get("/shards/available", http.HandlerFunc(cc.GetAvailableShard))
	routers.Post("/shards/spawn", http.HandlerFunc(cc.SpawnAndSeal))
	routers.Post("/shards/upgrade", http.HandlerFunc(cc.Upgrade))
	routers.Get("/wasm/version", http.HandlerFunc(cc.GetWasmVersion))
	routers.Post("/wasm", http.HandlerFunc(cc.SetChildImage))
	return routers
}
