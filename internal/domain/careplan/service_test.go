package careplan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/careplan/careplan/internal/platform/llm"
	"github.com/careplan/careplan/pkg/apperrors"
)

// mockCarePlanRepo is an in-memory repository that enforces the same
// terminal-state rule as the SQL stores and records every persisted status.
type mockCarePlanRepo struct {
	mu      sync.Mutex
	store   map[uuid.UUID]CarePlan
	clock   time.Time
	updates map[uuid.UUID][]Status
}

func newMockCarePlanRepo() *mockCarePlanRepo {
	return &mockCarePlanRepo{
		store:   make(map[uuid.UUID]CarePlan),
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		updates: make(map[uuid.UUID][]Status),
	}
}

func (m *mockCarePlanRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *mockCarePlanRepo) Create(ctx context.Context, cp *CarePlan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp.ID = uuid.New()
	cp.Status = StatusPending
	cp.CarePlanText = ""
	cp.CreatedAt = m.tick()
	cp.UpdatedAt = cp.CreatedAt
	m.store[cp.ID] = *cp
	return nil
}

func (m *mockCarePlanRepo) GetByID(_ context.Context, id uuid.UUID) (*CarePlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.store[id]
	if !ok {
		return nil, errNotFound()
	}
	return &cp, nil
}

func (m *mockCarePlanRepo) List(_ context.Context, limit, offset int) ([]*CarePlan, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]*CarePlan, 0, len(m.store))
	for _, cp := range m.store {
		cp := cp
		items = append(items, &cp)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	total := len(items)
	if offset > total {
		offset = total
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items, total, nil
}

func (m *mockCarePlanRepo) Update(ctx context.Context, cp *CarePlan) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.store[cp.ID]
	if !ok {
		return errNotFound()
	}
	if stored.Status.IsTerminal() {
		return fmt.Errorf("update care plan %s: %w", cp.ID, ErrTerminalState)
	}
	cp.UpdatedAt = m.tick()
	stored.Status = cp.Status
	stored.CarePlanText = cp.CarePlanText
	stored.UpdatedAt = cp.UpdatedAt
	m.store[cp.ID] = stored
	m.updates[cp.ID] = append(m.updates[cp.ID], cp.Status)
	return nil
}

func (m *mockCarePlanRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return errNotFound()
	}
	delete(m.store, id)
	return nil
}

func (m *mockCarePlanRepo) Ping(context.Context) error { return nil }

func (m *mockCarePlanRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.store)
}

func staticGenerator(text string) llm.Generator {
	return llm.GeneratorFunc(func(context.Context, llm.Request) (llm.Completion, error) {
		return llm.Completion{Text: text, HasContent: true}, nil
	})
}

func failingGenerator(msg string) llm.Generator {
	return llm.GeneratorFunc(func(context.Context, llm.Request) (llm.Completion, error) {
		return llm.Completion{}, errors.New(msg)
	})
}

var testSettings = GenerationSettings{Model: "claude-3-haiku-20240307", MaxTokens: 1024}

func newTestService(gen llm.Generator) (*Service, *mockCarePlanRepo) {
	repo := newMockCarePlanRepo()
	return NewService(repo, gen, testSettings), repo
}

func TestCreateCarePlan_Pending(t *testing.T) {
	svc, _ := newTestService(nil)
	cp, err := svc.CreateCarePlan(context.Background(), "58yo, type 2 diabetes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cp.ID == uuid.Nil {
		t.Error("expected ID to be assigned")
	}
	if cp.Status != StatusPending {
		t.Errorf("expected PENDING, got %s", cp.Status)
	}
	if cp.CarePlanText != "" {
		t.Errorf("expected empty care plan text, got %q", cp.CarePlanText)
	}
	if cp.CreatedAt.IsZero() || !cp.CreatedAt.Equal(cp.UpdatedAt) {
		t.Errorf("expected matching timestamps, got %v / %v", cp.CreatedAt, cp.UpdatedAt)
	}
}

func TestCreateCarePlan_RequiresPatientInfo(t *testing.T) {
	for _, info := range []string{"", "   ", "\n\t"} {
		svc, repo := newTestService(nil)
		_, err := svc.CreateCarePlan(context.Background(), info)
		if !apperrors.IsValidation(err) {
			t.Errorf("%q: expected validation error, got %v", info, err)
		}
		if repo.count() != 0 {
			t.Errorf("%q: expected no record to be created", info)
		}
	}
}

func TestGenerate_Success(t *testing.T) {
	var got llm.Request
	gen := llm.GeneratorFunc(func(_ context.Context, req llm.Request) (llm.Completion, error) {
		got = req
		return llm.Completion{Text: "Plan: monitor glucose.", HasContent: true}, nil
	})
	svc, repo := newTestService(gen)

	cp, err := svc.Generate(context.Background(), "58yo, type 2 diabetes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cp.Status != StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", cp.Status)
	}
	if cp.CarePlanText != "Plan: monitor glucose." {
		t.Errorf("unexpected text %q", cp.CarePlanText)
	}

	if got.Model != "claude-3-haiku-20240307" || got.MaxTokens != 1024 {
		t.Errorf("unexpected request settings: %+v", got)
	}
	if !strings.Contains(got.Prompt, "Patient information: 58yo, type 2 diabetes") {
		t.Errorf("prompt does not embed patient info: %q", got.Prompt)
	}

	stored, _ := repo.GetByID(context.Background(), cp.ID)
	if stored.Status != StatusCompleted || stored.CarePlanText != "Plan: monitor glucose." {
		t.Errorf("stored record mismatch: %+v", stored)
	}
	if !stored.UpdatedAt.After(stored.CreatedAt) {
		t.Error("expected updated_at to advance")
	}
	assertStatusHistory(t, repo.updates[cp.ID], StatusProcessing, StatusCompleted)
}

func TestGenerate_NoContent(t *testing.T) {
	gen := llm.GeneratorFunc(func(context.Context, llm.Request) (llm.Completion, error) {
		return llm.Completion{}, nil
	})
	svc, _ := newTestService(gen)

	cp, err := svc.Generate(context.Background(), "patient")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cp.Status != StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", cp.Status)
	}
	if cp.CarePlanText != "No care plan generated." {
		t.Errorf("expected fallback text, got %q", cp.CarePlanText)
	}
}

func TestGenerate_EmptyContentBlockIsKept(t *testing.T) {
	gen := llm.GeneratorFunc(func(context.Context, llm.Request) (llm.Completion, error) {
		return llm.Completion{Text: "", HasContent: true}, nil
	})
	svc, _ := newTestService(gen)

	cp, err := svc.Generate(context.Background(), "patient")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cp.CarePlanText != "" {
		t.Errorf("expected empty model output to be stored as-is, got %q", cp.CarePlanText)
	}
}

func TestGenerate_Failure(t *testing.T) {
	svc, repo := newTestService(failingGenerator("rate limited"))

	cp, err := svc.Generate(context.Background(), "patient")
	if err == nil {
		t.Fatal("expected error")
	}
	if !apperrors.IsGeneration(err) {
		t.Errorf("expected generation error, got %v", err)
	}
	if err.Error() != "rate limited" {
		t.Errorf("expected upstream message, got %q", err.Error())
	}
	if cp == nil {
		t.Fatal("expected failed record to be returned")
	}
	if cp.Status != StatusFailed {
		t.Errorf("expected FAILED, got %s", cp.Status)
	}
	if cp.CarePlanText != "Failed to generate care plan: rate limited" {
		t.Errorf("unexpected text %q", cp.CarePlanText)
	}

	stored, _ := repo.GetByID(context.Background(), cp.ID)
	if stored.Status != StatusFailed || stored.CarePlanText != cp.CarePlanText {
		t.Errorf("stored record mismatch: %+v", stored)
	}
	assertStatusHistory(t, repo.updates[cp.ID], StatusProcessing, StatusFailed)
}

func TestGenerate_MissingCredential(t *testing.T) {
	svc, _ := newTestService(llm.NewAnthropicClient(llm.Options{}))

	cp, err := svc.Generate(context.Background(), "patient")
	if !apperrors.IsGeneration(err) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if !errors.Is(err, llm.ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey in chain, got %v", err)
	}
	if cp.Status != StatusFailed {
		t.Errorf("expected FAILED, got %s", cp.Status)
	}
	if cp.CarePlanText != "Failed to generate care plan: ANTHROPIC_API_KEY is not configured." {
		t.Errorf("unexpected text %q", cp.CarePlanText)
	}
}

func TestGenerate_CanceledRequestStillRecordsFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := llm.GeneratorFunc(func(ctx context.Context, _ llm.Request) (llm.Completion, error) {
		cancel()
		return llm.Completion{}, ctx.Err()
	})
	svc, repo := newTestService(gen)

	cp, err := svc.Generate(ctx, "patient")
	if !apperrors.IsGeneration(err) {
		t.Fatalf("expected generation error, got %v", err)
	}
	stored, _ := repo.GetByID(context.Background(), cp.ID)
	if stored.Status != StatusFailed {
		t.Errorf("expected stored status FAILED, got %s", stored.Status)
	}
	if stored.CarePlanText != "Failed to generate care plan: context canceled" {
		t.Errorf("unexpected stored text %q", stored.CarePlanText)
	}
}

func TestGenerate_EmptyPatientInfo(t *testing.T) {
	called := false
	gen := llm.GeneratorFunc(func(context.Context, llm.Request) (llm.Completion, error) {
		called = true
		return llm.Completion{}, nil
	})
	svc, repo := newTestService(gen)

	cp, err := svc.Generate(context.Background(), "  ")
	if !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if cp != nil {
		t.Errorf("expected no record, got %+v", cp)
	}
	if called {
		t.Error("generator should not be called")
	}
	if repo.count() != 0 {
		t.Error("expected no record to be created")
	}
}

func TestGenerate_TerminalRecordsAreFinal(t *testing.T) {
	svc, repo := newTestService(staticGenerator("Plan: rest."))

	cp, err := svc.Generate(context.Background(), "patient")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A stale writer cannot move a completed record.
	stale := *cp
	stale.Status = StatusFailed
	stale.CarePlanText = "overwritten"
	if err := repo.Update(context.Background(), &stale); !errors.Is(err, ErrTerminalState) {
		t.Errorf("expected ErrTerminalState, got %v", err)
	}
	stored, _ := repo.GetByID(context.Background(), cp.ID)
	if stored.Status != StatusCompleted || stored.CarePlanText != "Plan: rest." {
		t.Errorf("completed record changed: %+v", stored)
	}
}

func TestGetCarePlan_NotFound(t *testing.T) {
	svc, _ := newTestService(nil)
	_, err := svc.GetCarePlan(context.Background(), uuid.New())
	if !apperrors.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err.Error() != "Care plan not found." {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestListCarePlans_NewestFirst(t *testing.T) {
	svc, _ := newTestService(nil)
	var ids []uuid.UUID
	for _, info := range []string{"first", "second", "third"} {
		cp, err := svc.CreateCarePlan(context.Background(), info)
		if err != nil {
			t.Fatalf("create %s: %v", info, err)
		}
		ids = append(ids, cp.ID)
	}

	items, total, err := svc.ListCarePlans(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("expected 3 care plans, got %d (total %d)", len(items), total)
	}
	if items[0].ID != ids[2] || items[2].ID != ids[0] {
		t.Errorf("expected newest first, got %s, %s, %s", items[0].PatientInfo, items[1].PatientInfo, items[2].PatientInfo)
	}
}

func TestUpdateCarePlan(t *testing.T) {
	svc, _ := newTestService(nil)
	cp, _ := svc.CreateCarePlan(context.Background(), "patient")

	same := "patient"
	got, err := svc.UpdateCarePlan(context.Background(), cp.ID, &same)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != cp.ID || got.Status != StatusPending {
		t.Errorf("unexpected result %+v", got)
	}

	if _, err := svc.UpdateCarePlan(context.Background(), cp.ID, nil); err != nil {
		t.Errorf("update without patient_info should succeed: %v", err)
	}

	changed := "someone else"
	_, err = svc.UpdateCarePlan(context.Background(), cp.ID, &changed)
	if !apperrors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}

	if _, err := svc.UpdateCarePlan(context.Background(), uuid.New(), nil); !apperrors.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDeleteCarePlan(t *testing.T) {
	svc, repo := newTestService(nil)
	cp, _ := svc.CreateCarePlan(context.Background(), "patient")

	if err := svc.DeleteCarePlan(context.Background(), cp.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.count() != 0 {
		t.Error("expected record to be deleted")
	}
	if err := svc.DeleteCarePlan(context.Background(), cp.ID); !apperrors.IsNotFound(err) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func assertStatusHistory(t *testing.T, got []Status, want ...Status) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected status history %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("status history[%d]: expected %s, got %s", i, want[i], got[i])
		}
	}
}
