package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-attempts/internal/model"
	"github.com/stemsi/exstem-attempts/internal/repository"
)

type fakeCatalog struct {
	mu    sync.Mutex
	snaps map[uuid.UUID]*model.ExamSnapshot
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{snaps: make(map[uuid.UUID]*model.ExamSnapshot)}
}

func (f *fakeCatalog) put(snap *model.ExamSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[snap.Exam.ID] = snap
}

func (f *fakeCatalog) GetSnapshot(_ context.Context, examID uuid.UUID) (*model.ExamSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snaps[examID]
	if !ok {
		return nil, ErrExamNotFound
	}
	cp := *snap
	cp.Questions = append([]model.Question(nil), snap.Questions...)
	return &cp, nil
}

type fakeAttemptStore struct {
	mu        sync.Mutex
	attempts  map[uuid.UUID]model.AttemptSession
	responses map[uuid.UUID][]model.AttemptResponse
	// beforeComplete runs inside Complete before the version check.
	beforeComplete func(stored *model.AttemptSession)
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{
		attempts:  make(map[uuid.UUID]model.AttemptSession),
		responses: make(map[uuid.UUID][]model.AttemptResponse),
	}
}

func (f *fakeAttemptStore) Create(_ context.Context, a *model.AttemptSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.attempts {
		if existing.ExamID == a.ExamID && existing.UserID == a.UserID && existing.Status == model.AttemptStatusStarted {
			return fmt.Errorf("%w: uq_attempts_one_started", repository.ErrDuplicate)
		}
	}
	a.ID = uuid.New()
	a.Version = 1
	a.CreatedAt = a.StartedAt
	a.UpdatedAt = a.StartedAt
	f.attempts[a.ID] = *a
	return nil
}

func (f *fakeAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.AttemptSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &a, nil
}

func (f *fakeAttemptStore) ListByExamAndUser(_ context.Context, examID uuid.UUID, userID int) ([]model.AttemptSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AttemptSession
	for _, a := range f.attempts {
		if a.ExamID == examID && a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (f *fakeAttemptStore) UpdateStatus(_ context.Context, a *model.AttemptSession, status model.AttemptStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.attempts[a.ID]
	if !ok || stored.Version != a.Version {
		return repository.ErrVersionConflict
	}
	stored.Status = status
	stored.Version++
	f.attempts[a.ID] = stored
	a.Status = status
	a.Version = stored.Version
	return nil
}

func (f *fakeAttemptStore) Complete(_ context.Context, a *model.AttemptSession, responses []model.AttemptResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.attempts[a.ID]
	if !ok {
		return repository.ErrVersionConflict
	}
	if f.beforeComplete != nil {
		f.beforeComplete(&stored)
		f.attempts[a.ID] = stored
	}
	if stored.Version != a.Version || stored.Status != model.AttemptStatusStarted {
		return repository.ErrVersionConflict
	}

	seen := make(map[uuid.UUID]bool)
	for _, r := range f.responses[a.ID] {
		seen[r.QuestionID] = true
	}
	for _, r := range responses {
		if seen[r.QuestionID] {
			return fmt.Errorf("%w: attempt_responses_attempt_id_question_id_key", repository.ErrDuplicate)
		}
		seen[r.QuestionID] = true
	}

	for i := range responses {
		responses[i].ID = uuid.New()
		responses[i].AttemptID = a.ID
	}
	f.responses[a.ID] = append(f.responses[a.ID], responses...)

	a.Status = model.AttemptStatusCompleted
	a.Version = stored.Version + 1
	f.attempts[a.ID] = *a
	return nil
}

func (f *fakeAttemptStore) ListResponses(_ context.Context, attemptID uuid.UUID) ([]model.AttemptResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.AttemptResponse(nil), f.responses[attemptID]...), nil
}

func (f *fakeAttemptStore) status(id uuid.UUID) model.AttemptStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[id].Status
}

type fakeLedger struct {
	mu       sync.Mutex
	nextID   int64
	events   map[uuid.UUID]model.AntiCheatLedger
	attempts *fakeAttemptStore
	listErr  error
}

func newFakeLedger(attempts *fakeAttemptStore) *fakeLedger {
	return &fakeLedger{events: make(map[uuid.UUID]model.AntiCheatLedger), attempts: attempts}
}

// Record holds the attempt store lock for the whole write, like the row
// lock in the SQL implementation.
func (f *fakeLedger) Record(_ context.Context, e *model.AntiCheatEvent, abandon func(model.AntiCheatLedger) bool) (*model.LedgerWrite, error) {
	f.attempts.mu.Lock()
	defer f.attempts.mu.Unlock()
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.attempts.attempts[e.AttemptID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	w := &model.LedgerWrite{Status: stored.Status, Version: stored.Version}
	if stored.Status != model.AttemptStatusStarted {
		return w, nil
	}

	w.Recorded = true
	for _, existing := range f.events[e.AttemptID] {
		if existing.EventID == e.EventID {
			w.Recorded = false
			break
		}
	}
	if w.Recorded {
		f.nextID++
		e.ID = f.nextID
		e.ReceivedAt = e.OccurredAt
		f.events[e.AttemptID] = append(f.events[e.AttemptID], *e)
	}
	w.Ledger = append(model.AntiCheatLedger(nil), f.events[e.AttemptID]...)

	if abandon != nil && abandon(w.Ledger) {
		stored.Status = model.AttemptStatusAbandoned
		stored.Version++
		f.attempts.attempts[e.AttemptID] = stored
		w.Status, w.Version, w.Abandoned = stored.Status, stored.Version, true
	}
	return w, nil
}

func (f *fakeLedger) ListByAttempt(_ context.Context, attemptID uuid.UUID) (model.AntiCheatLedger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append(model.AntiCheatLedger(nil), f.events[attemptID]...), nil
}

// eventIDs returns the event ids in an attempt's ledger.
func (f *fakeLedger) eventIDs(attemptID uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for _, e := range f.events[attemptID] {
		ids = append(ids, e.EventID)
	}
	return ids
}

type fakeDrafts struct {
	mu     sync.Mutex
	drafts map[uuid.UUID]map[uuid.UUID]model.DraftResponse
}

func newFakeDrafts() *fakeDrafts {
	return &fakeDrafts{drafts: make(map[uuid.UUID]map[uuid.UUID]model.DraftResponse)}
}

func (f *fakeDrafts) Save(_ context.Context, attemptID uuid.UUID, d model.DraftResponse, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.drafts[attemptID] == nil {
		f.drafts[attemptID] = make(map[uuid.UUID]model.DraftResponse)
	}
	f.drafts[attemptID][d.QuestionID] = d
	return nil
}

func (f *fakeDrafts) List(_ context.Context, attemptID uuid.UUID) ([]model.DraftResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DraftResponse
	for _, d := range f.drafts[attemptID] {
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDrafts) CountMany(_ context.Context, attemptIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[uuid.UUID]int64)
	for _, id := range attemptIDs {
		if n := len(f.drafts[id]); n > 0 {
			counts[id] = int64(n)
		}
	}
	return counts, nil
}

func (f *fakeDrafts) Clear(_ context.Context, attemptID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.drafts, attemptID)
	return nil
}

type fakeLateCodes struct {
	mu          sync.Mutex
	codes       map[uuid.UUID]model.LateAccessCode
	failCreates int
}

func newFakeLateCodes() *fakeLateCodes {
	return &fakeLateCodes{codes: make(map[uuid.UUID]model.LateAccessCode)}
}

func cloneCode(c model.LateAccessCode) *model.LateAccessCode {
	c.UsageHistory = append([]model.LateCodeUsage{}, c.UsageHistory...)
	return &c
}

func (f *fakeLateCodes) Create(_ context.Context, c *model.LateAccessCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreates > 0 {
		f.failCreates--
		return fmt.Errorf("%w: late_access_codes_code_key", repository.ErrDuplicate)
	}
	for _, existing := range f.codes {
		if existing.Code == c.Code {
			return fmt.Errorf("%w: late_access_codes_code_key", repository.ErrDuplicate)
		}
	}
	c.ID = uuid.New()
	c.UsageHistory = []model.LateCodeUsage{}
	f.codes[c.ID] = *cloneCode(*c)
	return nil
}

func (f *fakeLateCodes) GetByID(_ context.Context, id uuid.UUID) (*model.LateAccessCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.codes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneCode(c), nil
}

func (f *fakeLateCodes) findLocked(code string) (*model.LateAccessCode, error) {
	for _, c := range f.codes {
		if c.Code == code {
			return cloneCode(c), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeLateCodes) FindByCode(_ context.Context, code string) (*model.LateAccessCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findLocked(code)
}

func (f *fakeLateCodes) ListByExam(_ context.Context, examID uuid.UUID) ([]model.LateAccessCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.LateAccessCode
	for _, c := range f.codes {
		if c.ExamID == examID {
			out = append(out, *cloneCode(c))
		}
	}
	return out, nil
}

func (f *fakeLateCodes) WithLockedCode(_ context.Context, code string, fn func(c *model.LateAccessCode) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, err := f.findLocked(code)
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	f.codes[c.ID] = *cloneCode(*c)
	return nil
}

func (f *fakeLateCodes) UpdateStatus(_ context.Context, id uuid.UUID, status model.LateCodeStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.codes[id]
	if !ok {
		return repository.ErrNotFound
	}
	c.Status = status
	f.codes[id] = c
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []model.AttemptEvent
}

func (f *fakePublisher) Publish(evt model.AttemptEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
}

func (f *fakePublisher) types() []model.AttemptEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.AttemptEventType, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

func (f *fakePublisher) has(t model.AttemptEventType) bool {
	for _, got := range f.types() {
		if got == t {
			return true
		}
	}
	return false
}

// fakeProgress derives monitor rows from the fake attempt store.
type fakeProgress struct {
	attempts *fakeAttemptStore
}

func (f *fakeProgress) ListProgress(_ context.Context, examID uuid.UUID) ([]model.AttemptProgress, error) {
	f.attempts.mu.Lock()
	defer f.attempts.mu.Unlock()

	var rows []model.AttemptProgress
	for _, a := range f.attempts.attempts {
		if a.ExamID != examID {
			continue
		}
		p := model.AttemptProgress{
			AttemptID: a.ID,
			UserID:    a.UserID,
			Status:    a.Status,
			StartedAt: a.StartedAt,
			ExpiresAt: a.ExpiresAt,
			Score:     a.Score,
		}
		for _, r := range f.attempts.responses[a.ID] {
			if r.Answer != "" {
				p.AnsweredCount++
			}
		}
		rows = append(rows, p)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })
	return rows, nil
}
