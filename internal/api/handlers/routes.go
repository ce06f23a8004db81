package handlers

import "github.com/gofiber/fiber/v2"

type Handlers struct {
	Posts     *PostHandler
	Accounts  *AccountHandler
	Platforms *PlatformHandler
	Analytics *AnalyticsHandler
	Content   *ContentHandler
	Settings  *SettingsHandler
	Keys      *ApiKeyHandler
}

// RegisterRoutes mounts the authenticated API on router.
func RegisterRoutes(api fiber.Router, h Handlers) {
	api.Post("/posts/publish", h.Posts.Publish)
	api.Post("/posts/schedule", h.Posts.Schedule)
	api.Post("/posts/bulk", h.Posts.BulkSchedule)
	api.Post("/posts/:id/cancel", h.Posts.Cancel)
	api.Post("/posts/:id/reschedule", h.Posts.Reschedule)
	api.Get("/posts/:id/history", h.Posts.History)

	api.Get("/queue/stats", h.Posts.QueueStats)
	api.Post("/queue/process", h.Posts.ProcessQueue)

	api.Get("/analytics/report", h.Analytics.Report)
	api.Get("/analytics/summary", h.Analytics.Summary)
	api.Get("/analytics/top", h.Analytics.TopPosts)
	api.Get("/analytics/trends", h.Analytics.Trends)
	api.Get("/analytics/best-times", h.Analytics.BestTimes)
	api.Get("/analytics/comparison", h.Analytics.Comparison)
	api.Post("/analytics/sync", h.Analytics.SyncAll)
	api.Post("/analytics/sync/:id", h.Analytics.SyncPost)

	api.Post("/accounts", h.Accounts.Create)
	api.Get("/accounts", h.Accounts.List)
	api.Post("/accounts/test", h.Accounts.TestCredentials)
	api.Get("/accounts/active", h.Accounts.Active)
	api.Get("/accounts/:id", h.Accounts.Get)
	api.Put("/accounts/:id", h.Accounts.Update)
	api.Delete("/accounts/:id", h.Accounts.Delete)

	api.Get("/platforms", h.Platforms.ListPlatforms)
	api.Get("/ratelimits/:platform", h.Platforms.GetRateLimits)
	api.Put("/ratelimits/:platform", h.Platforms.SetRateLimits)

	api.Post("/hooks/content-published", h.Content.ContentPublished)
	api.Post("/content/generate", h.Content.Generate)

	api.Get("/settings/autoshare", h.Settings.GetAutoShare)
	api.Put("/settings/autoshare", h.Settings.UpdateAutoShare)

	api.Post("/keys", h.Keys.CreateApiKey)
	api.Get("/keys", h.Keys.ListKeys)
	api.Delete("/keys/:id", h.Keys.RemoveAPIKey)
}
