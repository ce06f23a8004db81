package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/generator"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/telemetry"
)

// maxParallelPublishes bounds the platforms published concurrently in one batch.
const maxParallelPublishes = 10

type PostOptions struct {
	Media      []string
	Uploads    [][]byte // raw media re-hosted before publishing
	Tone       string
	Category   string
	Priority   int
	MaxRetries int
}

type PublishResult struct {
	PostID       string
	SocialPostID int64
	Err          error
}

type ScheduleResult struct {
	SocialPostID int64
	Err          error
}

// ScheduleItem is one entry of a bulk schedule request.
type ScheduleItem struct {
	Content       string
	ScheduledTime string
	Platforms     []models.Platform
	Options       PostOptions
}

// ContentEvent announces a newly published blog article.
type ContentEvent struct {
	Title     string
	Excerpt   string
	URL       string
	LeadImage string
}

type GenerateOptions struct {
	Tone        string
	MaxHashtags int
}

type ManagerService interface {
	PublishNow(ctx context.Context, content string, platforms []models.Platform, opts PostOptions) map[models.Platform]PublishResult
	SchedulePost(ctx context.Context, content, scheduledTime string, platforms []models.Platform, opts PostOptions) (map[models.Platform]ScheduleResult, error)
	BulkSchedule(ctx context.Context, items []ScheduleItem) []map[models.Platform]ScheduleResult
	ProcessScheduledPosts(ctx context.Context) (*DrainSummary, error)
	HandleContentPublished(ctx context.Context, event ContentEvent) (map[models.Platform]PublishResult, error)
	GenerateContent(ctx context.Context, topic string, p models.Platform, opts GenerateOptions) (*generator.Generated, error)
	GenerateAndPublish(ctx context.Context, topic string, platforms []models.Platform, opts GenerateOptions, post PostOptions) map[models.Platform]PublishResult
	TestCredentials(ctx context.Context, p models.Platform, values map[string]string) error
	// ActivePlatforms lists the platforms whose current account authenticates.
	ActivePlatforms(ctx context.Context) ([]models.Platform, error)
}

type managerService struct {
	accounts  repository.AccountRepository
	posts     repository.SocialPostRepository
	history   repository.PostingHistoryRepository
	publisher Publisher
	scheduler SchedulerService
	clients   ClientResolver
	media     MediaStore
	generator generator.Generator
	settings  SettingsService
	logger    *slog.Logger
	now       func() time.Time
}

func NewManagerService(
	accounts repository.AccountRepository,
	posts repository.SocialPostRepository,
	history repository.PostingHistoryRepository,
	publisher Publisher,
	scheduler SchedulerService,
	clients ClientResolver,
	media MediaStore,
	gen generator.Generator,
	settings SettingsService,
	logger *slog.Logger) ManagerService {
	return &managerService{
		accounts:  accounts,
		posts:     posts,
		history:   history,
		publisher: publisher,
		scheduler: scheduler,
		clients:   clients,
		media:     media,
		generator: gen,
		settings:  settings,
		logger:    telemetry.Logger(logger),
		now:       time.Now,
	}
}

// PublishNow publishes content to every platform independently. One platform's
// failure never affects the others.
func (s *managerService) PublishNow(ctx context.Context, content string, platforms []models.Platform, opts PostOptions) map[models.Platform]PublishResult {
	platforms = dedupePlatforms(platforms)
	batchID := uuid.NewString()
	uploads := &uploadOnce{store: s.media, data: opts.Uploads}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[models.Platform]PublishResult, len(platforms))
		sem     = make(chan struct{}, maxParallelPublishes)
	)
	for _, p := range platforms {
		wg.Add(1)
		go func(p models.Platform) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := s.publishOne(ctx, batchID, p, content, opts, uploads)
			mu.Lock()
			results[p] = res
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	published := 0
	for _, r := range results {
		if r.Err == nil {
			published++
		}
	}
	s.logger.Info("publish batch finished", "batch_id", batchID, "platforms", len(platforms), "published", published)
	return results
}

func (s *managerService) publishOne(ctx context.Context, batchID string, p models.Platform, content string, opts PostOptions, uploads *uploadOnce) PublishResult {
	if _, ok := platformKnown(p); !ok {
		return PublishResult{Err: apperr.Newf(apperr.Unsupported, "unsupported platform %q", p)}
	}

	account, err := s.accounts.GetActiveByPlatform(ctx, p)
	if err != nil {
		return PublishResult{Err: apperr.Wrap(apperr.Internal, err, "load account")}
	}
	if account == nil {
		return PublishResult{Err: apperr.Newf(apperr.AccountNotConfigured, "no active %s account configured", p).
			WithPlatform(string(p))}
	}

	// Static checks run before any upload so invalid content never costs a network call.
	started := s.now()
	var postID string
	media, pubErr := s.resolveMedia(ctx, p, content, opts, uploads)
	if pubErr == nil {
		postID, pubErr = s.publisher.Publish(ctx, account, content, media)
	}
	now := s.now()
	if media == nil {
		media = opts.Media
	}

	post := s.newPost(account, p, content, media, opts)
	if pubErr == nil {
		post.Status = models.PostStatusPublished
		post.PlatformPostID = postID
		post.PublishedAt = &now
	} else {
		post.Status = models.PostStatusFailed
		post.ErrorMessage = pubErr.Error()
	}

	res := PublishResult{PostID: postID, Err: pubErr}
	id, err := s.posts.Create(ctx, nil, post)
	if err != nil {
		s.logger.Error("failed to record social post", "batch_id", batchID, "platform", p, "error", err)
		return res
	}
	res.SocialPostID = id
	s.record(ctx, id, p, batchID, pubErr, now.Sub(started))
	return res
}

func (s *managerService) resolveMedia(ctx context.Context, p models.Platform, content string, opts PostOptions, uploads *uploadOnce) ([]string, error) {
	if len(opts.Media) == 0 && len(opts.Uploads) == 0 {
		if err := platform.CheckMedia(p, nil); err != nil {
			return nil, err
		}
	}
	if err := platform.Validate(p, content); err != nil {
		return nil, err
	}
	media := append([]string(nil), opts.Media...)
	if len(opts.Uploads) > 0 {
		urls, err := uploads.urls(ctx)
		if err != nil {
			return nil, err
		}
		media = append(media, urls...)
	}
	return media, nil
}

func (s *managerService) newPost(account *models.Account, p models.Platform, content string, media []string, opts PostOptions) *models.SocialPost {
	return &models.SocialPost{
		AccountID:  account.ID,
		Platform:   p,
		Content:    content,
		Media:      media,
		Hashtags:   platform.ExtractHashtags(content),
		Mentions:   platform.ExtractMentions(content),
		Tone:       opts.Tone,
		Category:   opts.Category,
		MaxRetries: opts.MaxRetries,
	}
}

func (s *managerService) record(ctx context.Context, postID int64, p models.Platform, batchID string, err error, took time.Duration) {
	if s.history == nil {
		return
	}
	h := &models.PostingHistory{
		SocialPostID: postID,
		Platform:     p,
		BatchID:      batchID,
		Attempt:      1,
		Success:      err == nil,
		DurationMs:   took.Milliseconds(),
	}
	if err != nil {
		h.ErrorKind = string(apperr.KindOf(err))
		h.ErrorMessage = err.Error()
	}
	if _, err := s.history.Create(ctx, h); err != nil {
		s.logger.Warn("failed to save posting history", "social_post_id", postID, "error", err)
	}
}

// SchedulePost stores one scheduled post per platform. The rate limiter is
// consulted only when the queue drains.
func (s *managerService) SchedulePost(ctx context.Context, content, scheduledTime string, platforms []models.Platform, opts PostOptions) (map[models.Platform]ScheduleResult, error) {
	at, err := ParseScheduleTime(scheduledTime)
	if err != nil {
		return nil, err
	}
	if len(opts.Uploads) > 0 {
		if s.media == nil {
			return nil, apperr.New(apperr.Unsupported, "media storage is not configured")
		}
		for _, data := range opts.Uploads {
			url, err := s.media.Upload(ctx, data)
			if err != nil {
				return nil, err
			}
			opts.Media = append(opts.Media, url)
		}
		opts.Uploads = nil
	}

	platforms = dedupePlatforms(platforms)
	results := make(map[models.Platform]ScheduleResult, len(platforms))
	for _, p := range platforms {
		id, err := s.scheduleOne(ctx, p, content, at, opts)
		results[p] = ScheduleResult{SocialPostID: id, Err: err}
	}
	return results, nil
}

func (s *managerService) scheduleOne(ctx context.Context, p models.Platform, content string, at time.Time, opts PostOptions) (int64, error) {
	if _, ok := platformKnown(p); !ok {
		return 0, apperr.Newf(apperr.Unsupported, "unsupported platform %q", p)
	}
	account, err := s.accounts.GetActiveByPlatform(ctx, p)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, err, "load account")
	}
	if account == nil {
		return 0, apperr.Newf(apperr.AccountNotConfigured, "no active %s account configured", p).
			WithPlatform(string(p))
	}
	// Content that can never pass would only burn retries at drain time.
	if err := platform.Check(p, content, opts.Media); err != nil {
		return 0, err
	}

	post := s.newPost(account, p, content, opts.Media, opts)
	post.ScheduledAt = &at
	return s.scheduler.Schedule(ctx, post, opts.Priority)
}

func (s *managerService) BulkSchedule(ctx context.Context, items []ScheduleItem) []map[models.Platform]ScheduleResult {
	out := make([]map[models.Platform]ScheduleResult, len(items))
	for i, item := range items {
		res, err := s.SchedulePost(ctx, item.Content, item.ScheduledTime, item.Platforms, item.Options)
		if err != nil {
			res = make(map[models.Platform]ScheduleResult, len(item.Platforms))
			for _, p := range item.Platforms {
				res[p] = ScheduleResult{Err: err}
			}
		}
		out[i] = res
	}
	return out
}

func (s *managerService) ProcessScheduledPosts(ctx context.Context) (*DrainSummary, error) {
	return s.scheduler.Drain(ctx)
}

// HandleContentPublished shares a blog article to the auto-share platforms.
// It returns nil results when auto-share is disabled.
func (s *managerService) HandleContentPublished(ctx context.Context, event ContentEvent) (map[models.Platform]PublishResult, error) {
	if strings.TrimSpace(event.Title) == "" || strings.TrimSpace(event.URL) == "" {
		return nil, apperr.New(apperr.InvalidInput, "title and url are required")
	}
	settings, err := s.settings.GetAutoShare(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.Enabled {
		s.logger.Info("auto-share disabled, skipping", "url", event.URL)
		return nil, nil
	}
	targets := settings.Platforms
	if len(targets) == 0 {
		if targets, err = s.ActivePlatforms(ctx); err != nil {
			return nil, err
		}
		if len(targets) == 0 {
			s.logger.Warn("auto-share enabled but no platform is connected", "url", event.URL)
			return nil, nil
		}
	}

	var media []string
	if settings.IncludeImage && event.LeadImage != "" {
		media = []string{event.LeadImage}
	}

	results := make(map[models.Platform]PublishResult, len(targets))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range dedupePlatforms(targets) {
		wg.Add(1)
		go func(p models.Platform) {
			defer wg.Done()
			text := shareText(p, event, settings.ExcerptLength)
			res := s.PublishNow(ctx, text, []models.Platform{p}, PostOptions{Media: media, Category: "blog"})
			mu.Lock()
			results[p] = res[p]
			mu.Unlock()
		}(p)
	}
	wg.Wait()
	return results, nil
}

// shareText builds "title, excerpt, link" and shortens the excerpt to fit the platform.
func shareText(p models.Platform, event ContentEvent, excerptLength int) string {
	excerpt := strings.TrimSpace(event.Excerpt)
	if excerptLength > 0 {
		excerpt = platform.Truncate(excerpt, excerptLength)
	}

	build := func(excerpt string) string {
		parts := []string{strings.TrimSpace(event.Title)}
		if excerpt != "" {
			parts = append(parts, excerpt)
		}
		parts = append(parts, event.URL)
		return strings.Join(parts, "\n\n")
	}

	text := build(excerpt)
	caps, ok := platform.CapabilitiesOf(p)
	if !ok || len([]rune(text)) <= caps.MaxTextLength {
		return text
	}

	// The link must survive, so the excerpt absorbs the overflow first.
	overflow := len([]rune(text)) - caps.MaxTextLength
	if keep := len([]rune(excerpt)) - overflow; keep > 3 {
		return build(platform.Truncate(excerpt, keep))
	}
	text = build("")
	if len([]rune(text)) <= caps.MaxTextLength {
		return text
	}
	return platform.Truncate(text, caps.MaxTextLength)
}

func (s *managerService) GenerateContent(ctx context.Context, topic string, p models.Platform, opts GenerateOptions) (*generator.Generated, error) {
	if s.generator == nil {
		return nil, apperr.New(apperr.Unsupported, "content generation is not configured")
	}
	caps, ok := platform.CapabilitiesOf(p)
	if !ok {
		return nil, apperr.Newf(apperr.Unsupported, "unsupported platform %q", p)
	}
	maxHashtags := opts.MaxHashtags
	if caps.MaxHashtags > 0 && (maxHashtags <= 0 || maxHashtags > caps.MaxHashtags) {
		maxHashtags = caps.MaxHashtags
	}

	out, err := s.generator.Generate(ctx, generator.Request{
		Topic:       topic,
		Platform:    p,
		Tone:        opts.Tone,
		MaxLength:   caps.MaxTextLength,
		MaxHashtags: maxHashtags,
	})
	if err != nil {
		return nil, err
	}
	if maxHashtags > 0 && len(out.Hashtags) > maxHashtags {
		out.Hashtags = out.Hashtags[:maxHashtags]
	}
	return out, nil
}

// Compose joins generated text and its hashtags into one post body.
func Compose(g *generator.Generated) string {
	if len(g.Hashtags) == 0 {
		return g.Text
	}
	tags := make([]string, len(g.Hashtags))
	for i, t := range g.Hashtags {
		tags[i] = "#" + t
	}
	return g.Text + "\n\n" + strings.Join(tags, " ")
}

// GenerateAndPublish generates text per platform and publishes it. Output that
// does not fit is shortened rather than rejected.
func (s *managerService) GenerateAndPublish(ctx context.Context, topic string, platforms []models.Platform, opts GenerateOptions, post PostOptions) map[models.Platform]PublishResult {
	results := make(map[models.Platform]PublishResult)
	for _, p := range dedupePlatforms(platforms) {
		g, err := s.GenerateContent(ctx, topic, p, opts)
		if err != nil {
			results[p] = PublishResult{Err: err}
			continue
		}
		text := Compose(g)
		if err := platform.Validate(p, text); err != nil {
			text = fit(p, g)
		}
		post.Tone = opts.Tone
		for k, v := range s.PublishNow(ctx, text, []models.Platform{p}, post) {
			results[k] = v
		}
	}
	return results
}

// fit drops hashtags and then truncates until the text passes validation.
func fit(p models.Platform, g *generator.Generated) string {
	caps, _ := platform.CapabilitiesOf(p)
	trimmed := *g
	for len(trimmed.Hashtags) > 0 {
		trimmed.Hashtags = trimmed.Hashtags[:len(trimmed.Hashtags)-1]
		if platform.Validate(p, Compose(&trimmed)) == nil {
			return Compose(&trimmed)
		}
	}
	return platform.Truncate(g.Text, caps.MaxTextLength)
}

func (s *managerService) TestCredentials(ctx context.Context, p models.Platform, values map[string]string) error {
	if _, ok := platformKnown(p); !ok {
		return apperr.Newf(apperr.Unsupported, "unsupported platform %q", p)
	}
	return s.clients.TestCredentials(ctx, p, values)
}

func (s *managerService) ActivePlatforms(ctx context.Context) ([]models.Platform, error) {
	registry, err := s.clients.Registry(ctx)
	if err != nil {
		return nil, err
	}
	active := registry.GetAllActive(ctx)
	out := make([]models.Platform, 0, len(active))
	for _, c := range active {
		out = append(out, c.Name())
	}
	return out, nil
}

// uploadOnce re-hosts raw media the first time any platform of a batch needs it.
type uploadOnce struct {
	store MediaStore
	data  [][]byte

	once   sync.Once
	result []string
	err    error
}

func (u *uploadOnce) urls(ctx context.Context) ([]string, error) {
	u.once.Do(func() {
		if u.store == nil {
			u.err = apperr.New(apperr.Unsupported, "media storage is not configured")
			return
		}
		for i, data := range u.data {
			url, err := u.store.Upload(ctx, data)
			if err != nil {
				u.err = fmt.Errorf("media item %d: %w", i+1, err)
				return
			}
			u.result = append(u.result, url)
		}
	})
	return u.result, u.err
}
