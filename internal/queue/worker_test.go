package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/anterny/tokrelay/internal/media"
	"github.com/anterny/tokrelay/internal/models"
	"github.com/anterny/tokrelay/internal/service"
	"github.com/anterny/tokrelay/internal/tiktok"
	"github.com/anterny/tokrelay/internal/transfer"
)

type memDeliveries struct {
	rows map[int64]*models.Delivery
}

func (m *memDeliveries) CreateIfAbsent(ctx context.Context, d *models.Delivery) (int64, bool, error) {
	id := int64(len(m.rows) + 1)
	d.ID = id
	d.Status = models.DeliveryStatusPending
	m.rows[id] = d
	return id, true, nil
}

func (m *memDeliveries) GetByID(ctx context.Context, id int64) (*models.Delivery, error) {
	d, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	copied := *d
	return &copied, nil
}

func (m *memDeliveries) ClaimInProgress(ctx context.Context, id int64) (bool, error) {
	d, ok := m.rows[id]
	if !ok || d.Terminal() {
		return false, nil
	}
	d.Status = models.DeliveryStatusInProgress
	d.AttemptCount++
	return true, nil
}

func (m *memDeliveries) MarkSucceeded(ctx context.Context, id int64, modes []string, postID string) error {
	d := m.rows[id]
	if d.Status == models.DeliveryStatusInProgress {
		d.Status = models.DeliveryStatusSucceeded
		d.AttemptedModes = modes
		d.TiktokPostID = postID
	}
	return nil
}

func (m *memDeliveries) MarkFailedPermanent(ctx context.Context, id int64, modes []string, lastErr string) error {
	d := m.rows[id]
	if d.Status == models.DeliveryStatusInProgress {
		d.Status = models.DeliveryStatusFailedPermanent
		d.AttemptedModes = modes
		d.LastError = lastErr
	}
	return nil
}

func (m *memDeliveries) RecordAttemptError(ctx context.Context, id int64, modes []string, lastErr string) error {
	d := m.rows[id]
	d.AttemptedModes = modes
	d.LastError = lastErr
	return nil
}

func (m *memDeliveries) ListStaleInProgress(ctx context.Context, cutoff time.Time) ([]int64, error) {
	return nil, nil
}

type memItems struct {
	items map[int64]*models.ContentItem
}

func (m *memItems) Create(ctx context.Context, item *models.ContentItem) (int64, error) {
	id := int64(len(m.items) + 1)
	item.ID = id
	m.items[id] = item
	return id, nil
}

func (m *memItems) GetByID(ctx context.Context, id int64) (*models.ContentItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (m *memItems) SetLocalFiles(ctx context.Context, id int64, localFiles []string) error {
	m.items[id].LocalFiles = localFiles
	return nil
}

func (m *memItems) MarkProcessed(ctx context.Context, id int64) error {
	now := time.Now()
	m.items[id].ProcessedAt = &now
	return nil
}

type memAccounts struct {
	accounts map[string]*models.TikTokAccount
}

func (m *memAccounts) Upsert(ctx context.Context, a *models.TikTokAccount) (int64, error) {
	m.accounts[a.AccountLabel] = a
	return 1, nil
}

func (m *memAccounts) GetByLabel(ctx context.Context, label string) (*models.TikTokAccount, error) {
	acc, ok := m.accounts[label]
	if !ok {
		return nil, nil
	}
	return acc, nil
}

func (m *memAccounts) ListAll(ctx context.Context) ([]*models.TikTokAccount, error) { return nil, nil }
func (m *memAccounts) ListByLabels(ctx context.Context, labels []string) ([]*models.TikTokAccount, error) {
	return nil, nil
}
func (m *memAccounts) ListExpiring(ctx context.Context, before time.Time) ([]*models.TikTokAccount, error) {
	return nil, nil
}
func (m *memAccounts) SetTokens(ctx context.Context, label, accessToken, refreshToken string, expiresAt time.Time) error {
	return nil
}
func (m *memAccounts) SetNeedsReauth(ctx context.Context, label string, needsReauth bool) error {
	return nil
}

type fakeAccountSvc struct {
	tokenErr error
}

func (f *fakeAccountSvc) BuildAuthorizationURL(label, mode string) (string, error) { return "", nil }
func (f *fakeAccountSvc) HandleCallback(ctx context.Context, code, state string) (*models.TikTokAccount, error) {
	return nil, nil
}
func (f *fakeAccountSvc) List(ctx context.Context) ([]transfer.AccountInfo, error) {
	return nil, nil
}
func (f *fakeAccountSvc) EnsureAccessToken(ctx context.Context, acc *models.TikTokAccount) (string, error) {
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "token-" + acc.AccountLabel, nil
}
func (f *fakeAccountSvc) RefreshAccount(ctx context.Context, acc *models.TikTokAccount) error {
	return nil
}

type fakeFetcher struct {
	files []string
	err   error
}

func (f *fakeFetcher) EnsureLocalFiles(ctx context.Context, item *models.ContentItem) ([]string, error) {
	return f.files, f.err
}

type fakePublisher struct {
	result *tiktok.Result
	err    error
	calls  int
}

func (f *fakePublisher) Publish(ctx context.Context, req *tiktok.Request) (*tiktok.Result, error) {
	f.calls++
	if f.result == nil {
		f.result = &tiktok.Result{}
	}
	return f.result, f.err
}

type noopEnqueuer struct{}

func (noopEnqueuer) EnqueueDelivery(ctx context.Context, deliveryID int64, delay time.Duration) error {
	return nil
}

type workerFixture struct {
	worker     *Worker
	deliveries *memDeliveries
	items      *memItems
	publisher  *fakePublisher
	accountSvc *fakeAccountSvc
}

func newWorkerFixture(t *testing.T) *workerFixture {
	t.Helper()

	deliveries := &memDeliveries{rows: make(map[int64]*models.Delivery)}
	items := &memItems{items: make(map[int64]*models.ContentItem)}
	accounts := &memAccounts{accounts: map[string]*models.TikTokAccount{
		"acc1": {AccountLabel: "acc1", PostingMode: models.PostingModeDirect},
	}}
	accountSvc := &fakeAccountSvc{}
	publisher := &fakePublisher{result: &tiktok.Result{
		Mode:           models.PostingModeDirect,
		PostID:         "post-9",
		AttemptedModes: []string{"video/direct"},
	}}

	worker := NewWorker(deliveries, items, accounts, accountSvc,
		&fakeFetcher{files: []string{"/tmp/v.mp4"}}, publisher, nil, noopEnqueuer{}, nil,
		CaptionConfig{Template: "From TG: {text}", MaxLength: 2200}, models.PostingModeDraft)

	return &workerFixture{
		worker:     worker,
		deliveries: deliveries,
		items:      items,
		publisher:  publisher,
		accountSvc: accountSvc,
	}
}

func (fx *workerFixture) seedDelivery(t *testing.T) *asynq.Task {
	t.Helper()

	itemID, err := fx.items.Create(context.Background(), &models.ContentItem{
		ContentType:     models.ContentTypeVideo,
		SourceChatID:    42,
		SourceMessageID: 7,
		TelegramFileIDs: []string{"vid-7"},
	})
	if err != nil {
		t.Fatal(err)
	}

	d := &models.Delivery{ContentItemID: itemID, SourceKey: "msg:42:7", AccountLabel: "acc1"}
	id, _, err := fx.deliveries.CreateIfAbsent(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}

	payload, _ := json.Marshal(DeliveryPayload{DeliveryID: id})
	return asynq.NewTask(TaskTypeDelivery, payload)
}

func TestHandleDeliverySuccess(t *testing.T) {
	fx := newWorkerFixture(t)
	task := fx.seedDelivery(t)

	if err := fx.worker.HandleDeliveryTask(context.Background(), task); err != nil {
		t.Fatalf("HandleDeliveryTask() error = %v", err)
	}

	d := fx.deliveries.rows[1]
	if d.Status != models.DeliveryStatusSucceeded {
		t.Errorf("status = %q, want succeeded", d.Status)
	}
	if d.TiktokPostID != "post-9" {
		t.Errorf("post id = %q", d.TiktokPostID)
	}
	if d.AttemptCount != 1 {
		t.Errorf("attempt count = %d, want 1", d.AttemptCount)
	}
	if fx.items.items[1].ProcessedAt == nil {
		t.Error("content item not marked processed")
	}
}

func TestHandleDeliveryReplayIsNoop(t *testing.T) {
	fx := newWorkerFixture(t)
	task := fx.seedDelivery(t)
	ctx := context.Background()

	if err := fx.worker.HandleDeliveryTask(ctx, task); err != nil {
		t.Fatal(err)
	}
	if err := fx.worker.HandleDeliveryTask(ctx, task); err != nil {
		t.Fatal(err)
	}

	if fx.publisher.calls != 1 {
		t.Errorf("publisher called %d times on replay, want 1", fx.publisher.calls)
	}
	if fx.deliveries.rows[1].AttemptCount != 1 {
		t.Errorf("attempt count = %d, want 1", fx.deliveries.rows[1].AttemptCount)
	}
}

func TestHandleDeliveryCapabilityErrorIsPermanent(t *testing.T) {
	fx := newWorkerFixture(t)
	task := fx.seedDelivery(t)

	fx.publisher.result = &tiktok.Result{AttemptedModes: []string{"video/direct", "video/draft"}}
	fx.publisher.err = &tiktok.APIError{StatusCode: 403, Code: "scope_not_authorized"}

	if err := fx.worker.HandleDeliveryTask(context.Background(), task); err != nil {
		t.Fatalf("permanent failures must not be retried by the queue, got %v", err)
	}

	d := fx.deliveries.rows[1]
	if d.Status != models.DeliveryStatusFailedPermanent {
		t.Errorf("status = %q, want failed_permanent", d.Status)
	}
	if len(d.AttemptedModes) != 2 {
		t.Errorf("attempted modes = %v", d.AttemptedModes)
	}
	if d.LastError == "" {
		t.Error("last error not recorded")
	}
}

func TestHandleDeliveryTransientErrorRetries(t *testing.T) {
	fx := newWorkerFixture(t)
	task := fx.seedDelivery(t)

	cause := errors.New("connection reset")
	fx.publisher.result = &tiktok.Result{AttemptedModes: []string{"video/direct"}}
	fx.publisher.err = cause

	err := fx.worker.HandleDeliveryTask(context.Background(), task)
	if !errors.Is(err, cause) {
		t.Fatalf("err = %v, want transient cause for asynq retry", err)
	}

	d := fx.deliveries.rows[1]
	if d.Status != models.DeliveryStatusInProgress {
		t.Errorf("status = %q, want in_progress pending retry", d.Status)
	}
	if d.LastError == "" {
		t.Error("last error not recorded")
	}
}

func TestHandleDeliveryUnusableAccountIsPermanent(t *testing.T) {
	fx := newWorkerFixture(t)
	task := fx.seedDelivery(t)

	fx.accountSvc.tokenErr = service.ErrAccountUnusable

	if err := fx.worker.HandleDeliveryTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if got := fx.deliveries.rows[1].Status; got != models.DeliveryStatusFailedPermanent {
		t.Errorf("status = %q, want failed_permanent", got)
	}
	if fx.publisher.calls != 0 {
		t.Errorf("publisher called %d times for unusable account", fx.publisher.calls)
	}
}

func TestHandleDeliveryRenderErrorIsPermanent(t *testing.T) {
	fx := newWorkerFixture(t)
	task := fx.seedDelivery(t)

	fx.publisher.result = &tiktok.Result{AttemptedModes: nil}
	fx.publisher.err = &media.RenderError{Err: errors.New("exit status 1")}

	if err := fx.worker.HandleDeliveryTask(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if got := fx.deliveries.rows[1].Status; got != models.DeliveryStatusFailedPermanent {
		t.Errorf("status = %q, want failed_permanent", got)
	}
}

func TestHandleDeliveryMissingRowDropsTask(t *testing.T) {
	fx := newWorkerFixture(t)

	payload, _ := json.Marshal(DeliveryPayload{DeliveryID: 999})
	task := asynq.NewTask(TaskTypeDelivery, payload)

	if err := fx.worker.HandleDeliveryTask(context.Background(), task); err != nil {
		t.Fatalf("missing delivery should be dropped, got %v", err)
	}
	if fx.publisher.calls != 0 {
		t.Error("publisher called for missing delivery")
	}
}
