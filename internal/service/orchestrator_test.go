package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wespeak/backend/internal/db"
	"github.com/wespeak/backend/internal/models"
	"github.com/wespeak/backend/internal/stats"
)

type fakeStore struct {
	mu         sync.Mutex
	orgs       map[string]*models.Organization
	complaints map[string][]models.Complaint
	replies    map[string]int
	users      int

	rejectSaves int
	failList    map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orgs:       map[string]*models.Organization{},
		complaints: map[string][]models.Complaint{},
		replies:    map[string]int{},
		failList:   map[string]error{},
	}
}

func (f *fakeStore) addOrg(id string, s models.Stats) {
	f.orgs[id] = &models.Organization{ID: id, Name: id, Stats: s}
}

func (f *fakeStore) GetOrganization(ctx context.Context, id string) (models.Organization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[id]
	if !ok {
		return models.Organization{}, db.ErrNotFound
	}
	return *org, nil
}

func (f *fakeStore) SaveStats(ctx context.Context, id string, s models.Stats, isCrisis bool, version int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	org, ok := f.orgs[id]
	if !ok {
		return db.ErrNotFound
	}
	if f.rejectSaves > 0 {
		f.rejectSaves--
		return db.ErrConflict
	}
	if org.StatsVersion != version {
		return db.ErrConflict
	}
	org.Stats = s
	org.IsCrisis = isCrisis
	org.StatsVersion++
	return nil
}

func (f *fakeStore) ListComplaints(ctx context.Context, companyID string) ([]models.Complaint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failList[companyID]; ok {
		return nil, err
	}
	return append([]models.Complaint(nil), f.complaints[companyID]...), nil
}

func (f *fakeStore) CountReplies(ctx context.Context, companyID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replies[companyID], nil
}

func (f *fakeStore) CountUsers(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users, nil
}

func (f *fakeStore) ListOrganizationIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.orgs))
	for id := range f.orgs {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *fakeStore) CreateSweepRun(ctx context.Context, status string) (string, error) {
	return "run-1", nil
}

func (f *fakeStore) FinishSweepRun(ctx context.Context, runID string, status string, summary []byte) error {
	return nil
}

type fakeScorer struct {
	compound float64
	err      error
}

func (f fakeScorer) Score(ctx context.Context, text string) (float64, error) {
	return f.compound, f.err
}

func newTestService(store *fakeStore) *StatsService {
	return &StatsService{
		Orgs:         store,
		Complaints:   store,
		Logger:       zerolog.Nop(),
		FoldOnReopen: true,
	}
}

func TestOnComplaintCreatedAppliesDelta(t *testing.T) {
	store := newFakeStore()
	store.addOrg("org1", models.NewStats())
	store.users = 100
	svc := newTestService(store)

	c := models.Complaint{ID: "c1", CompanyID: "org1", Message: "terrible service"}
	if err := svc.OnComplaintCreated(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	org := store.orgs["org1"]
	if org.Stats.Score != 99 {
		t.Fatalf("expected score 99, got %v", org.Stats.Score)
	}
	if org.Stats.ComplaintsCounter != 1 {
		t.Fatalf("expected counter 1, got %d", org.Stats.ComplaintsCounter)
	}
	bucket := stats.HourBucket(time.Now().UTC())
	if org.Stats.DataGraph.Day[bucket] != 99 {
		t.Fatalf("expected fold to write 99 into hour bucket %d, got %v", bucket, org.Stats.DataGraph.Day[bucket])
	}
}

func TestSentimentVotes(t *testing.T) {
	cases := []struct {
		name          string
		compound      float64
		reimbursement bool
		gained, lost  int
	}{
		{"positive", 0.5, false, 1, 0},
		{"negative", -0.5, false, 0, 1},
		{"negative with reimbursement", -0.5, true, 0, 0},
		{"neutral", 0.1, false, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			store.addOrg("org1", models.NewStats())
			svc := newTestService(store)
			svc.Sentiment = fakeScorer{compound: tc.compound}

			c := models.Complaint{ID: "c1", CompanyID: "org1", Message: "msg", Reimbursement: tc.reimbursement}
			if err := svc.OnComplaintCreated(context.Background(), c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			org := store.orgs["org1"]
			if org.Stats.GainedVotes != tc.gained || org.Stats.LostVotes != tc.lost {
				t.Fatalf("expected gained=%d lost=%d, got gained=%d lost=%d",
					tc.gained, tc.lost, org.Stats.GainedVotes, org.Stats.LostVotes)
			}
		})
	}
}

func TestSentimentFailureIsBestEffort(t *testing.T) {
	store := newFakeStore()
	store.addOrg("org1", models.NewStats())
	svc := newTestService(store)
	svc.Sentiment = fakeScorer{err: errors.New("scorer down")}

	c := models.Complaint{ID: "c1", CompanyID: "org1", Message: "msg"}
	if err := svc.OnComplaintCreated(context.Background(), c); err != nil {
		t.Fatalf("expected update to proceed, got %v", err)
	}

	org := store.orgs["org1"]
	if org.Stats.Score != 99 {
		t.Fatalf("expected score delta applied, got %v", org.Stats.Score)
	}
	if org.Stats.GainedVotes != 0 || org.Stats.LostVotes != 0 {
		t.Fatalf("expected no vote movement, got %+v", org.Stats)
	}
}

func TestConcurrentResolvesBothApply(t *testing.T) {
	store := newFakeStore()
	store.addOrg("org1", models.Stats{Score: 98, ComplaintsCounter: 2})
	svc := newTestService(store)

	now := time.Now().UTC()
	c1 := models.Complaint{ID: "c1", CompanyID: "org1", State: models.StateResolved, Created: now}
	c2 := models.Complaint{ID: "c2", CompanyID: "org1", State: models.StateResolved, Created: now}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, c := range []models.Complaint{c1, c2} {
		wg.Add(1)
		go func(c models.Complaint) {
			defer wg.Done()
			errs <- svc.OnComplaintStateChanged(context.Background(), c)
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	org := store.orgs["org1"]
	if org.Stats.Score != 100 {
		t.Fatalf("expected both resolution deltas applied (98 + 1 + 1), got %v", org.Stats.Score)
	}
	if org.Stats.Resolves != 2 {
		t.Fatalf("expected resolves 2, got %d", org.Stats.Resolves)
	}
}

func TestConflictRetry(t *testing.T) {
	store := newFakeStore()
	store.addOrg("org1", models.NewStats())
	store.rejectSaves = 2
	svc := newTestService(store)

	c := models.Complaint{ID: "c1", CompanyID: "org1", Message: "msg"}
	if err := svc.OnComplaintCreated(context.Background(), c); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}

	org := store.orgs["org1"]
	if org.Stats.ComplaintsCounter != 1 {
		t.Fatalf("expected delta applied exactly once, got counter %d", org.Stats.ComplaintsCounter)
	}
}

func TestConflictRetryExhausted(t *testing.T) {
	store := newFakeStore()
	store.addOrg("org1", models.NewStats())
	store.rejectSaves = 100
	svc := newTestService(store)
	svc.ConflictRetries = 2

	c := models.Complaint{ID: "c1", CompanyID: "org1", Message: "msg"}
	err := svc.OnComplaintCreated(context.Background(), c)
	if !errors.Is(err, db.ErrConflict) {
		t.Fatalf("expected conflict surfaced, got %v", err)
	}
}

func TestReopenReversesResolve(t *testing.T) {
	store := newFakeStore()
	store.addOrg("org1", models.Stats{Score: 99, ComplaintsCounter: 1})
	svc := newTestService(store)

	now := time.Now().UTC()
	c := models.Complaint{ID: "c1", CompanyID: "org1", State: models.StateResolved, Created: now}
	if err := svc.OnComplaintStateChanged(context.Background(), c); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	c.State = models.StateDelivered
	c.Reopen = true
	if err := svc.OnComplaintReopened(context.Background(), c); err != nil {
		t.Fatalf("reopen failed: %v", err)
	}

	org := store.orgs["org1"]
	if org.Stats.Score != 99 {
		t.Fatalf("expected score restored to 99, got %v", org.Stats.Score)
	}
	if org.Stats.Resolves != 0 {
		t.Fatalf("expected resolves back to 0, got %d", org.Stats.Resolves)
	}
}

func TestNonClosingTransitionIsIgnored(t *testing.T) {
	store := newFakeStore()
	store.addOrg("org1", models.Stats{Score: 99, ComplaintsCounter: 1})
	svc := newTestService(store)

	c := models.Complaint{ID: "c1", CompanyID: "org1", State: models.StateProcessed}
	if err := svc.OnComplaintStateChanged(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.orgs["org1"].StatsVersion != 0 {
		t.Fatalf("expected no write for a non-closing transition")
	}
}

func TestCrisisFlagSetOnCreate(t *testing.T) {
	store := newFakeStore()
	store.addOrg("org1", models.NewStats())
	store.users = 100
	for i := 0; i < 7; i++ {
		store.complaints["org1"] = append(store.complaints["org1"], models.Complaint{State: models.StateUnresolved})
	}
	svc := newTestService(store)

	c := models.Complaint{ID: "c8", CompanyID: "org1", Message: "msg"}
	if err := svc.OnComplaintCreated(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !store.orgs["org1"].IsCrisis {
		t.Fatalf("expected crisis flag with 7 unresolved complaints and 100 users")
	}
}

func TestCrisisFollowerPopulation(t *testing.T) {
	store := newFakeStore()
	store.addOrg("org1", models.NewStats())
	store.orgs["org1"].Followers = 2
	store.users = 1_000_000
	store.complaints["org1"] = unresolved(3)
	svc := newTestService(store)
	svc.CrisisPopulation = stats.PopulationFollowers

	c := models.Complaint{ID: "c1", CompanyID: "org1", Message: "msg"}
	if err := svc.OnComplaintCreated(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 2^0.4 ~ 1.32, three unresolved complaints trip it even though the
	// global population would not.
	if !store.orgs["org1"].IsCrisis {
		t.Fatalf("expected follower-relative crisis flag")
	}
}

func unresolved(n int) []models.Complaint {
	out := make([]models.Complaint, n)
	for i := range out {
		out[i] = models.Complaint{State: models.StateUnresolved}
	}
	return out
}
