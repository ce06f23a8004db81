package service

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/maheshrc27/postflow/internal/apperr"
	"github.com/maheshrc27/postflow/internal/generator"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/platform"
)

type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newClock() *fakeClock {
	return &fakeClock{cur: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

type noTx struct{}

func (noTx) WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(nil)
}

// memAccounts is an in-memory AccountRepository.
type memAccounts struct {
	mu       sync.Mutex
	next     int64
	rows     map[int64]*models.Account
	statuses map[int64]string
}

func newMemAccounts() *memAccounts {
	return &memAccounts{rows: map[int64]*models.Account{}, statuses: map[int64]string{}}
}

func (m *memAccounts) add(p models.Platform, creds map[string]string) *models.Account {
	a := &models.Account{Platform: p, Credentials: creds, Status: models.AccountStatusActive}
	id, _ := m.Create(context.Background(), a)
	a.ID = id
	return a
}

func (m *memAccounts) Create(ctx context.Context, a *models.Account) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	c := *a
	c.ID = m.next
	c.Credentials = maps.Clone(a.Credentials)
	c.UpdatedAt = time.Unix(m.next, 0)
	m.rows[c.ID] = &c
	return c.ID, nil
}

func (m *memAccounts) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.rows[id]; ok {
		c := *a
		return &c, nil
	}
	return nil, nil
}

func (m *memAccounts) GetActiveByPlatform(ctx context.Context, p models.Platform) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.Account
	for _, a := range m.rows {
		if a.Platform == p && a.Status == models.AccountStatusActive && (best == nil || a.ID > best.ID) {
			best = a
		}
	}
	if best == nil {
		return nil, nil
	}
	c := *best
	return &c, nil
}

func (m *memAccounts) List(ctx context.Context) ([]*models.Account, error) {
	return m.filter(func(*models.Account) bool { return true }), nil
}

func (m *memAccounts) ListActive(ctx context.Context) ([]*models.Account, error) {
	return m.filter(func(a *models.Account) bool { return a.Status == models.AccountStatusActive }), nil
}

func (m *memAccounts) ListExpiring(ctx context.Context, before time.Time) ([]*models.Account, error) {
	return m.filter(func(a *models.Account) bool {
		return a.Status == models.AccountStatusActive && a.TokenExpiresAt != nil && !a.TokenExpiresAt.After(before)
	}), nil
}

func (m *memAccounts) filter(keep func(*models.Account) bool) []*models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Account
	for _, a := range m.rows {
		if keep(a) {
			c := *a
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *models.Account) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (m *memAccounts) Update(ctx context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *a
	m.rows[a.ID] = &c
	return nil
}

func (m *memAccounts) UpdateCredentials(ctx context.Context, id int64, values map[string]string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.rows[id]; ok {
		a.Credentials = maps.Clone(values)
		if expiresAt != nil {
			a.TokenExpiresAt = expiresAt
		}
	}
	return nil
}

func (m *memAccounts) SetStatus(ctx context.Context, id int64, status, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.rows[id]; ok {
		a.Status = status
		a.LastError = lastError
	}
	m.statuses[id] = status
	return nil
}

func (m *memAccounts) Remove(ctx context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[id]
	delete(m.rows, id)
	return ok, nil
}

// memPosts is an in-memory SocialPostRepository.
type memPosts struct {
	mu   sync.Mutex
	next int64
	rows map[int64]*models.SocialPost
}

func newMemPosts() *memPosts {
	return &memPosts{rows: map[int64]*models.SocialPost{}}
}

func (m *memPosts) Create(ctx context.Context, tx *sql.Tx, p *models.SocialPost) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	c := *p
	c.ID = m.next
	m.rows[c.ID] = &c
	return c.ID, nil
}

func (m *memPosts) get(id int64) *models.SocialPost {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rows[id]; ok {
		c := *p
		return &c
	}
	return nil
}

func (m *memPosts) all() []*models.SocialPost {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SocialPost
	for _, p := range m.rows {
		c := *p
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *models.SocialPost) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (m *memPosts) GetByID(ctx context.Context, id int64) (*models.SocialPost, error) {
	return m.get(id), nil
}

func (m *memPosts) ListByStatus(ctx context.Context, status string, limit int) ([]*models.SocialPost, error) {
	var out []*models.SocialPost
	for _, p := range m.all() {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPosts) ListPublishedSince(ctx context.Context, since time.Time) ([]*models.SocialPost, error) {
	var out []*models.SocialPost
	for _, p := range m.all() {
		if p.Status == models.PostStatusPublished && p.PublishedAt != nil && !p.PublishedAt.Before(since) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPosts) update(id int64, fn func(p *models.SocialPost)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rows[id]; ok {
		fn(p)
	}
}

func (m *memPosts) MarkPublished(ctx context.Context, tx *sql.Tx, id int64, platformPostID string, at time.Time) error {
	m.update(id, func(p *models.SocialPost) {
		if p.Status == models.PostStatusDraft || p.Status == models.PostStatusScheduled {
			p.Status = models.PostStatusPublished
			p.PlatformPostID = platformPostID
			p.PublishedAt = &at
			p.ErrorMessage = ""
		}
	})
	return nil
}

func (m *memPosts) MarkFailed(ctx context.Context, tx *sql.Tx, id int64, message string, retryCount int) error {
	m.update(id, func(p *models.SocialPost) {
		if p.Status == models.PostStatusDraft || p.Status == models.PostStatusScheduled {
			p.Status = models.PostStatusFailed
			p.ErrorMessage = message
			p.RetryCount = retryCount
		}
	})
	return nil
}

func (m *memPosts) RecordRetry(ctx context.Context, tx *sql.Tx, id int64, message string, retryCount int) error {
	m.update(id, func(p *models.SocialPost) {
		p.ErrorMessage = message
		p.RetryCount = retryCount
	})
	return nil
}

func (m *memPosts) Reschedule(ctx context.Context, tx *sql.Tx, id int64, at time.Time) error {
	m.update(id, func(p *models.SocialPost) {
		p.Status = models.PostStatusScheduled
		p.ScheduledAt = &at
		p.RetryCount = 0
		p.ErrorMessage = ""
	})
	return nil
}

func (m *memPosts) RevertToDraft(ctx context.Context, tx *sql.Tx, id int64) error {
	m.update(id, func(p *models.SocialPost) {
		if p.Status == models.PostStatusScheduled {
			p.Status = models.PostStatusDraft
		}
	})
	return nil
}

func (m *memPosts) SaveAnalytics(ctx context.Context, id int64, snapshot json.RawMessage) error {
	m.update(id, func(p *models.SocialPost) { p.Analytics = snapshot })
	return nil
}

// memQueue is an in-memory QueueRepository with the same claim rules as the SQL one.
type memQueue struct {
	mu    sync.Mutex
	next  int64
	rows  map[int64]*models.QueueEntry
	posts *memPosts
}

func newMemQueue(posts *memPosts) *memQueue {
	return &memQueue{rows: map[int64]*models.QueueEntry{}, posts: posts}
}

func (m *memQueue) Create(ctx context.Context, tx *sql.Tx, e *models.QueueEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	c := *e
	c.ID = m.next
	m.rows[c.ID] = &c
	return c.ID, nil
}

func (m *memQueue) entries() []*models.QueueEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.QueueEntry
	for _, e := range m.rows {
		c := *e
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *models.QueueEntry) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (m *memQueue) GetOpenByPostID(ctx context.Context, postID int64) (*models.QueueEntry, error) {
	for _, e := range m.entries() {
		if e.SocialPostID == postID && e.ProcessedAt == nil {
			return e, nil
		}
	}
	return nil, nil
}

func (m *memQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*models.QueueEntry
	for _, e := range m.rows {
		if e.Processing || e.ProcessedAt != nil || e.ScheduledFor.After(now) {
			continue
		}
		if e.NextRetryAt != nil && e.NextRetryAt.After(now) {
			continue
		}
		due = append(due, e)
	}
	slices.SortFunc(due, func(a, b *models.QueueEntry) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return a.ScheduledFor.Compare(b.ScheduledFor)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]*models.QueueEntry, 0, len(due))
	for _, e := range due {
		e.Processing = true
		at := now
		e.LastAttemptAt = &at
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

func (m *memQueue) Touch(ctx context.Context, id int64, claimedAt, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok || !e.Processing || e.ProcessedAt != nil || e.LastAttemptAt == nil || !e.LastAttemptAt.Equal(claimedAt) {
		return false, nil
	}
	e.LastAttemptAt = &at
	return true, nil
}

func (m *memQueue) update(id int64, fn func(e *models.QueueEntry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.rows[id]; ok {
		fn(e)
	}
}

func (m *memQueue) Complete(ctx context.Context, tx *sql.Tx, id int64, attempts int, at time.Time) error {
	m.update(id, func(e *models.QueueEntry) {
		e.Processing = false
		e.Attempts = attempts
		e.ProcessedAt = &at
		e.NextRetryAt = nil
	})
	return nil
}

func (m *memQueue) ScheduleRetry(ctx context.Context, tx *sql.Tx, id int64, attempts int, next time.Time) error {
	m.update(id, func(e *models.QueueEntry) {
		e.Processing = false
		e.Attempts = attempts
		e.NextRetryAt = &next
	})
	return nil
}

func (m *memQueue) Release(ctx context.Context, id int64) error {
	m.update(id, func(e *models.QueueEntry) { e.Processing = false })
	return nil
}

func (m *memQueue) RemoveOpen(ctx context.Context, tx *sql.Tx, postID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := false
	for id, e := range m.rows {
		if e.SocialPostID == postID && e.ProcessedAt == nil && !e.Processing {
			delete(m.rows, id)
			removed = true
		}
	}
	return removed, nil
}

func (m *memQueue) Reschedule(ctx context.Context, tx *sql.Tx, postID int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	moved := false
	for _, e := range m.rows {
		if e.SocialPostID == postID && e.ProcessedAt == nil && !e.Processing {
			e.ScheduledFor = at
			e.Attempts = 0
			e.NextRetryAt = nil
			moved = true
		}
	}
	return moved, nil
}

func (m *memQueue) Stats(ctx context.Context, now time.Time) (*models.QueueStats, error) {
	var s models.QueueStats
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for _, e := range m.entries() {
		post := m.posts.get(e.SocialPostID)
		switch {
		case e.Processing:
			s.Processing++
		case e.ProcessedAt == nil:
			s.Pending++
			if e.ScheduledFor.Before(now) {
				s.Overdue++
			}
		}
		if e.ProcessedAt != nil && post != nil {
			if post.Status == models.PostStatusFailed {
				s.Failed++
			}
			if post.Status == models.PostStatusPublished && !e.ProcessedAt.Before(startOfDay) {
				s.CompletedToday++
			}
		}
	}
	return &s, nil
}

func (m *memQueue) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.rows {
		if e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

func (m *memQueue) ReleaseStale(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.rows {
		if e.Processing && e.ProcessedAt == nil && e.LastAttemptAt != nil && e.LastAttemptAt.Before(before) {
			e.Processing = false
			n++
		}
	}
	return n, nil
}

type memHistory struct {
	mu   sync.Mutex
	rows []*models.PostingHistory
}

func (m *memHistory) Create(ctx context.Context, ph *models.PostingHistory) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *ph
	c.ID = int64(len(m.rows) + 1)
	m.rows = append(m.rows, &c)
	return c.ID, nil
}

func (m *memHistory) ListByPostID(ctx context.Context, postID int64) ([]*models.PostingHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PostingHistory
	for _, h := range m.rows {
		if h.SocialPostID == postID {
			out = append(out, h)
		}
	}
	return out, nil
}

type memAnalytics struct {
	mu   sync.Mutex
	rows map[string]*models.AnalyticsRecord
	// canned report rows
	totals []models.PlatformTotals
	slots  []models.PostingSlot
}

func newMemAnalytics() *memAnalytics {
	return &memAnalytics{rows: map[string]*models.AnalyticsRecord{}}
}

func (m *memAnalytics) Upsert(ctx context.Context, rec *models.AnalyticsRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *rec
	m.rows[fmt.Sprintf("%d/%s", rec.SocialPostID, rec.MetricDate.Format("2006-01-02"))] = &c
	return nil
}

func (m *memAnalytics) ListForPost(ctx context.Context, postID int64) ([]models.AnalyticsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AnalyticsRecord
	for _, r := range m.rows {
		if r.SocialPostID == postID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memAnalytics) PlatformTotals(ctx context.Context, since time.Time) ([]models.PlatformTotals, error) {
	return m.totals, nil
}

func (m *memAnalytics) TopPosts(ctx context.Context, since time.Time, limit int) ([]models.PostPerformance, error) {
	return nil, nil
}

func (m *memAnalytics) DailyTrends(ctx context.Context, since time.Time) ([]models.DailyTrend, error) {
	return nil, nil
}

func (m *memAnalytics) PostingSlots(ctx context.Context, since time.Time) ([]models.PostingSlot, error) {
	return slices.Clone(m.slots), nil
}

func (m *memAnalytics) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

// fakeClient is a scripted platform.Client.
type fakeClient struct {
	name models.Platform

	mu        sync.Mutex
	publishes int
	failWith  []error // consumed one per Publish call, nil entries succeed
	metrics   *platform.Metrics
	authErr   error
	refreshes int
	// during runs once per Publish call, before the result is returned.
	during func(n int)
}

func (c *fakeClient) Name() models.Platform { return c.name }

func (c *fakeClient) Authenticate(ctx context.Context) error { return c.authErr }

func (c *fakeClient) IsAuthenticated(ctx context.Context) bool { return c.authErr == nil }

func (c *fakeClient) ValidateContent(text string) error { return platform.Validate(c.name, text) }

func (c *fakeClient) Publish(ctx context.Context, text string, media []string) (string, error) {
	c.mu.Lock()
	c.publishes++
	n, during := c.publishes, c.during
	c.mu.Unlock()
	if during != nil {
		during(n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.failWith) > 0 {
		err := c.failWith[0]
		c.failWith = c.failWith[1:]
		if err != nil {
			return "", err
		}
	}
	return string(c.name) + "-post", nil
}

func (c *fakeClient) GetAnalytics(ctx context.Context, postID string) (*platform.Metrics, error) {
	if c.metrics == nil {
		return nil, apperr.New(apperr.TransportError, "metrics unavailable")
	}
	m := *c.metrics
	return &m, nil
}

func (c *fakeClient) GetRateLimits() models.RateLimits { return platform.DefaultRateLimits(c.name) }

func (c *fakeClient) GetCapabilities() platform.Capabilities {
	caps, _ := platform.CapabilitiesOf(c.name)
	return caps
}

func (c *fakeClient) DeletePost(ctx context.Context, postID string) (bool, error) { return true, nil }

func (c *fakeClient) RefreshToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	return c.authErr
}

func (c *fakeClient) publishCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.publishes
}

// fakeResolver hands out one fakeClient per platform.
type fakeResolver struct {
	clients   map[models.Platform]*fakeClient
	testErr   error
	forgotten []int64
}

func newFakeResolver(platforms ...models.Platform) *fakeResolver {
	r := &fakeResolver{clients: map[models.Platform]*fakeClient{}}
	for _, p := range platforms {
		r.clients[p] = &fakeClient{name: p}
	}
	return r
}

func (r *fakeResolver) ForAccount(ctx context.Context, account *models.Account) (platform.Client, error) {
	if account == nil {
		return nil, apperr.New(apperr.AccountNotConfigured, "no account configured")
	}
	c, ok := r.clients[account.Platform]
	if !ok {
		return nil, apperr.Newf(apperr.Unsupported, "no client for %s", account.Platform)
	}
	return c, nil
}

func (r *fakeResolver) Registry(ctx context.Context) (*platform.Registry, error) {
	reg := platform.NewRegistry()
	for _, c := range r.clients {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func (r *fakeResolver) TestCredentials(ctx context.Context, p models.Platform, values map[string]string) error {
	return r.testErr
}

func (r *fakeResolver) Forget(accountID int64) {
	r.forgotten = append(r.forgotten, accountID)
}

type fakeMedia struct {
	mu      sync.Mutex
	uploads int
	err     error
}

func (f *fakeMedia) Upload(ctx context.Context, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.uploads++
	return fmt.Sprintf("https://cdn.example.com/media/%d.jpg", f.uploads), nil
}

type fakeGenerator struct {
	out *generator.Generated
	err error
	got generator.Request
}

func (g *fakeGenerator) Generate(ctx context.Context, req generator.Request) (*generator.Generated, error) {
	g.got = req
	if g.err != nil {
		return nil, g.err
	}
	c := *g.out
	c.Hashtags = slices.Clone(g.out.Hashtags)
	return &c, nil
}

type fakeSettings struct {
	settings *models.AutoShareSettings
}

func (f *fakeSettings) GetAutoShare(ctx context.Context) (*models.AutoShareSettings, error) {
	return f.settings, nil
}

func (f *fakeSettings) UpdateAutoShare(ctx context.Context, s *models.AutoShareSettings) error {
	f.settings = s
	return nil
}

type recordingWaker struct {
	mu    sync.Mutex
	wakes map[int64]time.Time
}

func (w *recordingWaker) WakeAt(ctx context.Context, postID int64, at time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.wakes == nil {
		w.wakes = map[int64]time.Time{}
	}
	w.wakes[postID] = at
	return nil
}
