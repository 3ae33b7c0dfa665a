package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/TobiSchelling/AutoPoster/internal/database"
	"github.com/TobiSchelling/AutoPoster/internal/generate"
	"github.com/TobiSchelling/AutoPoster/internal/publish"
	"github.com/TobiSchelling/AutoPoster/internal/report"
	"github.com/TobiSchelling/AutoPoster/internal/slots"
	"github.com/TobiSchelling/AutoPoster/internal/trends"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func at(ts string) time.Time {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return t
}

func clockAt(ts string) slots.FixedClock {
	return slots.FixedClock(at(ts))
}

// mockGenerator returns canned content, or err when set.
type mockGenerator struct {
	err   error
	calls []generate.Request
}

func (m *mockGenerator) Generate(ctx context.Context, req generate.Request) (*generate.Content, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return &generate.Content{
		Text:     fmt.Sprintf("A post about %s", req.Niche),
		Hashtags: []string{"#" + strings.ReplaceAll(req.Niche, " ", "")},
	}, nil
}

// mockPublisher records requests and fails for the listed account ids.
type mockPublisher struct {
	failFor map[int64]error
	calls   []publish.Request
}

func (m *mockPublisher) Publish(ctx context.Context, req publish.Request) (*publish.Result, error) {
	m.calls = append(m.calls, req)
	if err, ok := m.failFor[req.AccountID]; ok {
		return nil, err
	}
	n := len(m.calls)
	return &publish.Result{
		ExternalPostID: fmt.Sprintf("ext-%d", n),
		PostURL:        fmt.Sprintf("https://example.com/p/%d", n),
	}, nil
}

type mockTrends struct {
	item *trends.Item
	err  error
}

func (m mockTrends) Topic(ctx context.Context, niche string) (*trends.Item, error) {
	return m.item, m.err
}

type accountOpts struct {
	platform database.Platform
	times    []string
	timezone string
	niche    string
	inactive bool
	handling database.ErrorHandling
	batch    int
	disabled bool
}

func addAccount(t *testing.T, db *database.DB, opts accountOpts) int64 {
	t.Helper()
	ctx := context.Background()
	if opts.platform == "" {
		opts.platform = database.PlatformLinkedIn
	}
	a := database.Account{
		UserID:   "user-1",
		Platform: opts.platform,
		Name:     "Account",
		IsActive: !opts.inactive,
		Schedule: database.Schedule{Times: opts.times, Timezone: opts.timezone},
	}
	if opts.niche != "" {
		niche := opts.niche
		a.Niche = &niche
	}
	id, err := db.InsertAccount(ctx, a)
	if err != nil {
		t.Fatalf("inserting account: %v", err)
	}
	err = db.UpsertProfile(ctx, database.AutomationProfile{
		AccountID:     id,
		BatchSize:     opts.batch,
		ErrorHandling: opts.handling,
		Enabled:       !opts.disabled,
	})
	if err != nil {
		t.Fatalf("upserting profile: %v", err)
	}
	return id
}

func schedulePost(t *testing.T, db *database.DB, accountID int64, when string) int64 {
	t.Helper()
	scheduledAt := at(when)
	id, err := db.InsertPost(context.Background(), database.NewPost{
		AccountID:   accountID,
		Platform:    database.PlatformLinkedIn,
		Content:     "Manual post",
		Hashtags:    []string{"#manual"},
		ScheduledAt: &scheduledAt,
	})
	if err != nil {
		t.Fatalf("inserting post: %v", err)
	}
	return id
}

func newDispatcher(db *database.DB, gen Generator, pub publish.Publisher, clock slots.Clock) *Dispatcher {
	return New(db, gen, nil, pub, clock, Options{ToleranceWindow: 6 * time.Minute, DuePostLimit: 25})
}

func statuses(outcomes []report.Outcome) []report.Status {
	out := make([]report.Status, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Status
	}
	return out
}

func TestRecurringSlotPublishedOnce(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	accountID := addAccount(t, db, accountOpts{times: []string{"08:00"}, timezone: "UTC", niche: "coffee"})
	gen := &mockGenerator{}
	pub := &mockPublisher{}

	result, err := newDispatcher(db, gen, pub, clockAt("2026-03-01T08:03:00Z")).RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	s := result.Summary()
	if s.Successful != 1 || s.Failed != 0 || s.Skipped != 0 || s.TotalProfiles != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}

	posts, _ := db.ListPostsForAccount(ctx, accountID, 0)
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	p := posts[0]
	if p.Status != database.StatusPosted || p.Origin != database.OriginAutomation {
		t.Errorf("expected posted automation post, got %s/%s", p.Status, p.Origin)
	}
	if p.ScheduledAt == nil || !p.ScheduledAt.Equal(at("2026-03-01T08:00:00Z")) {
		t.Errorf("expected scheduled_at 08:00Z, got %v", p.ScheduledAt)
	}
	if p.Content != "A post about coffee" || p.PredictedScore == nil {
		t.Errorf("expected content and score to be stored, got %q %v", p.Content, p.PredictedScore)
	}
	if p.ExternalPostID == nil || *p.ExternalPostID != "ext-1" {
		t.Errorf("expected external id ext-1, got %v", p.ExternalPostID)
	}

	// Overlapping trigger a minute later.
	result, err = newDispatcher(db, gen, pub, clockAt("2026-03-01T08:04:00Z")).RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if len(result.Outcomes) != 1 || result.Outcomes[0].Status != report.StatusSkipped {
		t.Fatalf("expected a single skipped outcome, got %+v", result.Outcomes)
	}
	if len(pub.calls) != 1 {
		t.Errorf("expected publish to run once, got %d", len(pub.calls))
	}
	posts, _ = db.ListPostsForAccount(ctx, accountID, 0)
	if len(posts) != 1 {
		t.Errorf("expected no duplicate post, got %d", len(posts))
	}
}

func TestSlotClaimedByOverlappingRunIsSkipped(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	accountID := addAccount(t, db, accountOpts{times: []string{"08:00"}, timezone: "UTC", niche: "coffee"})

	// Another run has inserted its claim but not finished publishing.
	slot := at("2026-03-01T08:00:00Z")
	other := "run-other"
	if _, err := db.InsertPost(ctx, database.NewPost{
		AccountID:   accountID,
		Platform:    database.PlatformLinkedIn,
		Origin:      database.OriginAutomation,
		ScheduledAt: &slot,
		ClaimedBy:   &other,
	}); err != nil {
		t.Fatalf("inserting claim: %v", err)
	}

	pub := &mockPublisher{}
	result, err := newDispatcher(db, &mockGenerator{}, pub, clockAt("2026-03-01T08:02:00Z")).RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(result.Outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(result.Outcomes))
	}
	o := result.Outcomes[0]
	if o.Status != report.StatusSkipped || o.Message != "slot claimed by another run" {
		t.Errorf("expected claim conflict skip, got %s %q", o.Status, o.Message)
	}
	if len(pub.calls) != 0 {
		t.Errorf("expected no publish, got %d", len(pub.calls))
	}
}

func TestContinuePolicyKeepsGoing(t *testing.T) {
	db := openTestDB(t)
	a := addAccount(t, db, accountOpts{times: []string{"08:00"}, timezone: "UTC", niche: "tea"})
	b := addAccount(t, db, accountOpts{times: []string{"08:00"}, timezone: "UTC", niche: "coffee"})
	pub := &mockPublisher{failFor: map[int64]error{a: errors.New("platform down")}}

	result, err := newDispatcher(db, &mockGenerator{}, pub, clockAt("2026-03-01T08:01:00Z")).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := statuses(result.Outcomes)
	if len(got) != 2 || got[0] != report.StatusFailed || got[1] != report.StatusSuccess {
		t.Fatalf("expected [failed success], got %v", got)
	}
	if result.Outcomes[1].AccountID != b {
		t.Errorf("expected second outcome for account %d, got %d", b, result.Outcomes[1].AccountID)
	}

	post, _ := db.ListPostsForAccount(context.Background(), a, 0)
	if len(post) != 1 || post[0].Status != database.StatusFailed {
		t.Fatalf("expected failed post for account %d, got %+v", a, post)
	}
	if post[0].ErrorMessage == nil || !strings.Contains(*post[0].ErrorMessage, "platform down") {
		t.Errorf("expected error message to be kept, got %v", post[0].ErrorMessage)
	}
	if post[0].Content == "" {
		t.Error("expected generated content to be kept on a failed publish")
	}
}

func TestStopPolicyAbortsRun(t *testing.T) {
	db := openTestDB(t)
	a := addAccount(t, db, accountOpts{times: []string{"08:00", "08:02"}, timezone: "UTC", niche: "tea", handling: database.ErrorHandlingStop, batch: 2})
	b := addAccount(t, db, accountOpts{times: []string{"08:00"}, timezone: "UTC", niche: "coffee"})
	pub := &mockPublisher{failFor: map[int64]error{a: errors.New("platform down")}}

	result, err := newDispatcher(db, &mockGenerator{}, pub, clockAt("2026-03-01T08:03:00Z")).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(result.Outcomes) != 1 || result.Outcomes[0].Status != report.StatusFailed {
		t.Fatalf("expected a single failed outcome, got %+v", result.Outcomes)
	}
	if len(pub.calls) != 1 {
		t.Errorf("expected remaining slots to be abandoned, got %d publishes", len(pub.calls))
	}
	posts, _ := db.ListPostsForAccount(context.Background(), b, 0)
	if len(posts) != 0 {
		t.Errorf("expected account %d to be untouched, got %d posts", b, len(posts))
	}
	if result.TotalProfiles != 2 {
		t.Errorf("expected 2 profiles considered, got %d", result.TotalProfiles)
	}
}

func TestStopPolicyIgnoresSkips(t *testing.T) {
	db := openTestDB(t)
	addAccount(t, db, accountOpts{times: []string{"20:00"}, timezone: "UTC", niche: "tea", handling: database.ErrorHandlingStop})
	addAccount(t, db, accountOpts{times: []string{"08:00"}, timezone: "UTC", niche: "coffee"})

	result, err := newDispatcher(db, &mockGenerator{}, &mockPublisher{}, clockAt("2026-03-01T08:01:00Z")).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := statuses(result.Outcomes)
	if len(got) != 2 || got[0] != report.StatusSkipped || got[1] != report.StatusSuccess {
		t.Errorf("expected [skipped success], got %v", got)
	}
	if result.Outcomes[0].Message != "no due slots" {
		t.Errorf("expected no due slots message, got %q", result.Outcomes[0].Message)
	}
}

func TestOutcomeForEveryUnit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	manual := addAccount(t, db, accountOpts{times: []string{"20:00"}, timezone: "UTC", niche: "tea"})
	schedulePost(t, db, manual, "2026-03-01T07:00:00Z")
	schedulePost(t, db, manual, "2026-03-01T07:30:00Z")
	schedulePost(t, db, manual, "2026-03-01T09:00:00Z") // not due yet

	addAccount(t, db, accountOpts{times: []string{"08:00", "08:01", "08:02"}, timezone: "UTC", niche: "coffee", batch: 2})
	addAccount(t, db, accountOpts{times: []string{"08:00"}, timezone: "UTC", inactive: true})
	addAccount(t, db, accountOpts{times: []string{"08:00"}, timezone: "UTC", niche: "hidden", disabled: true})

	result, err := newDispatcher(db, &mockGenerator{}, &mockPublisher{}, clockAt("2026-03-01T08:03:00Z")).RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	// 2 one-off posts, 1 skip for the manual account's profile, 2 batched
	// slots, 1 inactive account.
	if len(result.Outcomes) != 6 {
		t.Fatalf("expected 6 outcomes, got %d: %+v", len(result.Outcomes), result.Outcomes)
	}
	var oneOff, recurring int
	for _, o := range result.Outcomes {
		switch o.Kind {
		case report.KindOneOff:
			oneOff++
		case report.KindRecurring:
			recurring++
		}
	}
	if oneOff != 2 || recurring != 4 {
		t.Errorf("expected 2 one-off and 4 recurring outcomes, got %d and %d", oneOff, recurring)
	}
	s := result.Summary()
	if s.Successful != 4 || s.Failed != 1 || s.Skipped != 1 || s.TotalProfiles != 3 {
		t.Errorf("unexpected summary %+v", s)
	}
	if !result.Outcomes[0].ScheduledAt.Before(*result.Outcomes[1].ScheduledAt) {
		t.Error("expected one-off posts earliest first")
	}
}

func TestOneOffPass(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	ok := addAccount(t, db, accountOpts{times: []string{"20:00"}, niche: "tea", disabled: true})
	broken := addAccount(t, db, accountOpts{times: []string{"20:00"}, niche: "tea", disabled: true})
	inactive := addAccount(t, db, accountOpts{times: []string{"20:00"}, niche: "tea", disabled: true, inactive: true})

	okPost := schedulePost(t, db, ok, "2026-03-01T07:00:00Z")
	brokenPost := schedulePost(t, db, broken, "2026-03-01T07:01:00Z")
	inactivePost := schedulePost(t, db, inactive, "2026-03-01T07:02:00Z")

	pub := &mockPublisher{failFor: map[int64]error{broken: errors.New("token expired")}}
	result, err := newDispatcher(db, &mockGenerator{}, pub, clockAt("2026-03-01T08:00:00Z")).RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := statuses(result.Outcomes)
	want := []report.Status{report.StatusSuccess, report.StatusFailed, report.StatusFailed}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	p, _ := db.GetPost(ctx, okPost)
	if p.Status != database.StatusPosted || p.PostedAt == nil || p.PostURL == nil {
		t.Errorf("expected posted with url and time, got %+v", p)
	}
	if len(pub.calls) == 0 || pub.calls[0].Content != "Manual post" || len(pub.calls[0].Hashtags) != 1 {
		t.Errorf("expected stored content to be published, got %+v", pub.calls)
	}

	p, _ = db.GetPost(ctx, brokenPost)
	if p.Status != database.StatusFailed || p.ErrorMessage == nil || !strings.Contains(*p.ErrorMessage, "token expired") {
		t.Errorf("expected failed with publish error, got %+v", p)
	}

	p, _ = db.GetPost(ctx, inactivePost)
	if p.Status != database.StatusFailed || p.ErrorMessage == nil || *p.ErrorMessage != "account inactive" {
		t.Errorf("expected account inactive failure, got %+v", p)
	}
	if len(pub.calls) != 2 {
		t.Errorf("expected no publish for the inactive account, got %d calls", len(pub.calls))
	}

	// Terminal posts are never picked up again.
	result, _ = newDispatcher(db, &mockGenerator{}, pub, clockAt("2026-03-01T08:05:00Z")).RunOnce(ctx)
	if len(result.Outcomes) != 0 {
		t.Errorf("expected nothing left to do, got %+v", result.Outcomes)
	}
}

func TestOneOffFailureDoesNotStopRecurring(t *testing.T) {
	db := openTestDB(t)
	a := addAccount(t, db, accountOpts{times: []string{"08:00"}, timezone: "UTC", niche: "tea", handling: database.ErrorHandlingStop})
	schedulePost(t, db, a, "2026-03-01T07:00:00Z")

	calls := 0
	pub := publish.PublisherFunc(func(ctx context.Context, req publish.Request) (*publish.Result, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("flaky")
		}
		return &publish.Result{ExternalPostID: "x"}, nil
	})
	result, err := newDispatcher(db, &mockGenerator{}, pub, clockAt("2026-03-01T08:01:00Z")).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := statuses(result.Outcomes)
	if len(got) != 2 || got[0] != report.StatusFailed || got[1] != report.StatusSuccess {
		t.Errorf("expected [failed success], got %v", got)
	}
}

func TestRecurringAcrossDST(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	accountID := addAccount(t, db, accountOpts{times: []string{"08:00"}, timezone: "America/New_York", niche: "coffee"})

	// 08:00 EDT is 12:00Z on the day after the March switch.
	result, err := newDispatcher(db, &mockGenerator{}, &mockPublisher{}, clockAt("2026-03-09T12:03:00Z")).RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if s := result.Summary(); s.Successful != 1 {
		t.Fatalf("expected one success, got %+v", s)
	}
	posts, _ := db.ListPostsForAccount(ctx, accountID, 0)
	if len(posts) != 1 || !posts[0].ScheduledAt.Equal(at("2026-03-09T12:00:00Z")) {
		t.Errorf("expected slot at 12:00Z, got %+v", posts)
	}
}

func TestAccountLevelFailures(t *testing.T) {
	db := openTestDB(t)
	addAccount(t, db, accountOpts{times: []string{"08:00"}, timezone: "Nowhere/Special", niche: "tea", handling: database.ErrorHandlingStop})
	addAccount(t, db, accountOpts{times: []string{"08:00"}, timezone: "UTC", handling: database.ErrorHandlingStop})
	addAccount(t, db, accountOpts{times: []string{"08:00"}, timezone: "UTC", niche: "coffee"})

	gen := &mockGenerator{}
	result, err := newDispatcher(db, gen, &mockPublisher{}, clockAt("2026-03-01T08:01:00Z")).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got := statuses(result.Outcomes)
	if len(got) != 3 || got[0] != report.StatusFailed || got[1] != report.StatusFailed || got[2] != report.StatusSuccess {
		t.Fatalf("expected [failed failed success], got %v", got)
	}
	if !strings.Contains(result.Outcomes[0].Message, "invalid schedule") {
		t.Errorf("expected timezone failure, got %q", result.Outcomes[0].Message)
	}
	if !strings.Contains(result.Outcomes[1].Message, "niche") {
		t.Errorf("expected missing niche failure, got %q", result.Outcomes[1].Message)
	}
	if len(gen.calls) != 1 {
		t.Errorf("expected generation only for the valid account, got %d", len(gen.calls))
	}
}

func TestGenerationFailureIsRecorded(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	accountID := addAccount(t, db, accountOpts{times: []string{"08:00"}, timezone: "UTC", niche: "tea"})
	pub := &mockPublisher{}

	gen := &mockGenerator{err: generate.ErrEmptyContent}
	result, err := newDispatcher(db, gen, pub, clockAt("2026-03-01T08:01:00Z")).RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Outcomes[0].Status != report.StatusFailed {
		t.Fatalf("expected failure, got %+v", result.Outcomes[0])
	}
	if len(pub.calls) != 0 {
		t.Error("expected no publish without content")
	}
	posts, _ := db.ListPostsForAccount(ctx, accountID, 0)
	if len(posts) != 1 || posts[0].Status != database.StatusFailed {
		t.Fatalf("expected a failed slot record, got %+v", posts)
	}

	// The failed slot is terminal; a retry within the window skips it.
	result, _ = newDispatcher(db, &mockGenerator{}, pub, clockAt("2026-03-01T08:03:00Z")).RunOnce(ctx)
	if result.Outcomes[0].Status != report.StatusSkipped {
		t.Errorf("expected failed slot not to be retried, got %+v", result.Outcomes[0])
	}
}

func TestTrendTopicReachesGenerator(t *testing.T) {
	db := openTestDB(t)
	addAccount(t, db, accountOpts{times: []string{"08:00"}, timezone: "UTC", niche: "coffee"})
	gen := &mockGenerator{}
	ts := mockTrends{item: &trends.Item{Title: "Bean prices soar", URL: "https://news.example/beans"}}

	d := New(db, gen, ts, &mockPublisher{}, clockAt("2026-03-01T08:01:00Z"), Options{})
	if _, err := d.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if len(gen.calls) != 1 || gen.calls[0].Topic == nil || gen.calls[0].Topic.Title != "Bean prices soar" {
		t.Errorf("expected topic to be passed to generator, got %+v", gen.calls)
	}

	// A failing trend source does not fail the slot.
	db2 := openTestDB(t)
	addAccount(t, db2, accountOpts{times: []string{"08:00"}, timezone: "UTC", niche: "coffee"})
	d = New(db2, &mockGenerator{}, mockTrends{err: errors.New("feeds down")}, &mockPublisher{}, clockAt("2026-03-01T08:01:00Z"), Options{})
	result, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Summary().Successful != 1 {
		t.Errorf("expected success without a topic, got %+v", result.Outcomes)
	}
}

func TestDefaultTimesApplyWhenScheduleEmpty(t *testing.T) {
	db := openTestDB(t)
	addAccount(t, db, accountOpts{timezone: "UTC", niche: "coffee"})

	d := New(db, &mockGenerator{}, nil, &mockPublisher{}, clockAt("2026-03-01T10:31:00Z"), Options{DefaultTimes: []string{"10:30"}})
	result, err := d.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if result.Summary().Successful != 1 {
		t.Errorf("expected configured default time to be used, got %+v", result.Outcomes)
	}
}

func TestStaleClaimsAreReaped(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	accountID := addAccount(t, db, accountOpts{times: []string{"20:00"}, timezone: "UTC", niche: "tea"})

	slot := at("2026-03-01T06:00:00Z")
	claimedAt := at("2026-03-01T06:00:05Z")
	crashed := "run-crashed"
	postID, err := db.InsertPost(ctx, database.NewPost{
		AccountID:   accountID,
		Platform:    database.PlatformLinkedIn,
		Origin:      database.OriginAutomation,
		ScheduledAt: &slot,
		ClaimedBy:   &crashed,
		ClaimedAt:   &claimedAt,
	})
	if err != nil {
		t.Fatalf("inserting claim: %v", err)
	}

	d := New(db, &mockGenerator{}, nil, &mockPublisher{}, clockAt("2026-03-01T08:00:00Z"), Options{StaleClaimAfter: 30 * time.Minute})
	if _, err := d.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	p, _ := db.GetPost(ctx, postID)
	if p.Status != database.StatusFailed || p.ErrorMessage == nil || *p.ErrorMessage != "claim abandoned" {
		t.Errorf("expected abandoned claim to be failed, got %+v", p)
	}
}

// failingStore breaks profile listing after the one-off pass has run.
type failingStore struct {
	*database.DB
}

func (f failingStore) ListEnabledProfiles(ctx context.Context) ([]database.AutomationProfile, error) {
	return nil, errors.New("database is locked")
}

func TestOrchestrationErrorKeepsPartialResults(t *testing.T) {
	db := openTestDB(t)
	accountID := addAccount(t, db, accountOpts{times: []string{"20:00"}, niche: "tea"})
	schedulePost(t, db, accountID, "2026-03-01T07:00:00Z")

	d := New(failingStore{db}, &mockGenerator{}, nil, &mockPublisher{}, clockAt("2026-03-01T08:00:00Z"), Options{})
	result, err := d.RunOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "database is locked") {
		t.Fatalf("expected orchestration error, got %v", err)
	}
	if result == nil || len(result.Outcomes) != 1 || result.Outcomes[0].Kind != report.KindOneOff {
		t.Fatalf("expected the one-off outcome to survive, got %+v", result)
	}

	env := report.NewEnvelope(result, err)
	if env.Error == "" || len(env.Results) != 1 {
		t.Errorf("expected error envelope with partial results, got %+v", env)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	a := addAccount(t, db, accountOpts{times: []string{"08:00"}, timezone: "UTC", niche: "tea"})
	schedulePost(t, db, a, "2026-03-01T07:00:00Z")
	pub := &mockPublisher{}

	d := newDispatcher(db, &mockGenerator{}, pub, clockAt("2026-03-01T08:01:00Z"))
	plan, err := d.DryRun(ctx)
	if err != nil {
		t.Fatalf("DryRun: %v", err)
	}
	if len(plan.OneOff) != 1 || len(plan.Slots) != 1 || plan.Slots[0].Processed {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if plan.Slots[0].Local != "2026-03-01 08:00 UTC" {
		t.Errorf("expected local slot label, got %q", plan.Slots[0].Local)
	}
	if len(pub.calls) != 0 {
		t.Error("dry run must not publish")
	}
	posts, _ := db.ListPostsForAccount(ctx, a, 0)
	if len(posts) != 1 || posts[0].Status != database.StatusScheduled || posts[0].ClaimedBy != nil {
		t.Errorf("dry run must not claim, got %+v", posts)
	}

	if _, err := d.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	plan, _ = d.DryRun(ctx)
	if len(plan.OneOff) != 0 || len(plan.Slots) != 1 || !plan.Slots[0].Processed {
		t.Errorf("expected processed slot after a run, got %+v", plan)
	}
}
