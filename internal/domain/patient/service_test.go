package patient

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medreg/medreg/internal/billing/wire"
	"github.com/medreg/medreg/internal/events"
)

type mockRepo struct {
	mu       sync.Mutex
	patients map[uuid.UUID]*Patient
	emails   map[string]uuid.UUID
	failWith error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		patients: make(map[uuid.UUID]*Patient),
		emails:   make(map[string]uuid.UUID),
	}
}

func (m *mockRepo) Create(ctx context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	if _, exists := m.emails[p.Email]; exists {
		return ErrDuplicate
	}
	p.ID = uuid.New()
	m.patients[p.ID] = p
	m.emails[p.Email] = p.ID
	return nil
}

func (m *mockRepo) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockRepo) GetByEmail(ctx context.Context, email string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	return m.patients[id], nil
}

func (m *mockRepo) Update(ctx context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[p.ID]; !ok {
		return ErrNotFound
	}
	m.patients[p.ID] = p
	return nil
}

func (m *mockRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.emails, p.Email)
	delete(m.patients, id)
	return nil
}

func (m *mockRepo) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*Patient, 0, len(m.patients))
	for _, p := range m.patients {
		all = append(all, p)
	}
	return all, len(all), nil
}

type mockProvisioner struct {
	mu      sync.Mutex
	calls   []wire.ProvisionRequest
	ctxErrs []error
	err     error
}

func (m *mockProvisioner) Provision(ctx context.Context, req wire.ProvisionRequest) (wire.ProvisionReply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	if m.err != nil {
		return wire.ProvisionReply{}, m.err
	}
	return wire.ProvisionReply{AccountID: "acct-" + req.PatientID, Status: wire.StatusOK}, nil
}

func (m *mockProvisioner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockPublisher struct {
	mu      sync.Mutex
	events  []events.PatientRegistered
	ctxErrs []error
	err     error
}

func (m *mockPublisher) PublishRegistered(ctx context.Context, ev events.PatientRegistered) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return m.err
}

func (m *mockPublisher) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func validPatient() *Patient {
	return &Patient{
		FirstName: "Ada",
		LastName:  "Lovelace",
		Email:     "ada@example.com",
	}
}

func newTestService(repo Repository, prov Provisioner, pub Publisher) *Service {
	return NewService(repo, prov, pub, zerolog.Nop())
}

func TestRegisterHappyPath(t *testing.T) {
	repo := newMockRepo()
	prov := &mockProvisioner{}
	pub := &mockPublisher{}
	svc := newTestService(repo, prov, pub)

	p := validPatient()
	result, err := svc.Register(context.Background(), p)
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if result.Provisioning != ProvisioningSucceeded {
		t.Errorf("want provisioning succeeded, got %q", result.Provisioning)
	}
	if result.AccountID == "" {
		t.Error("want account id in result")
	}
	if prov.callCount() != 1 {
		t.Errorf("want exactly 1 provisioning call, got %d", prov.callCount())
	}
	if pub.eventCount() != 1 {
		t.Errorf("want exactly 1 event, got %d", pub.eventCount())
	}

	ev := pub.events[0]
	if ev.PatientID != p.ID.String() {
		t.Errorf("event patient id %q != %q", ev.PatientID, p.ID.String())
	}
	if ev.Email != p.Email || ev.Name != "Ada Lovelace" {
		t.Errorf("unexpected event payload: %+v", ev)
	}
	if ev.Type != events.TypePatientRegistered {
		t.Errorf("unexpected event type %q", ev.Type)
	}

	// Read-your-write: the record is visible immediately after Register.
	got, err := svc.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get after register: %v", err)
	}
	if got.Email != p.Email {
		t.Errorf("got %q, want %q", got.Email, p.Email)
	}
}

func TestRegisterProvisioningFailureDegrades(t *testing.T) {
	repo := newMockRepo()
	prov := &mockProvisioner{err: errors.New("billing unavailable")}
	pub := &mockPublisher{}
	svc := newTestService(repo, prov, pub)

	p := validPatient()
	result, err := svc.Register(context.Background(), p)
	if err != nil {
		t.Fatalf("register must not fail on provisioning exhaustion: %v", err)
	}

	if result.Provisioning != ProvisioningDegraded {
		t.Errorf("want provisioning degraded, got %q", result.Provisioning)
	}
	if result.AccountID != "" {
		t.Errorf("degraded result must not carry account id, got %q", result.AccountID)
	}

	// The record stays committed and the event is still emitted.
	if _, err := svc.Get(context.Background(), p.ID); err != nil {
		t.Errorf("record missing after degraded registration: %v", err)
	}
	if pub.eventCount() != 1 {
		t.Errorf("want 1 event despite provisioning failure, got %d", pub.eventCount())
	}
}

func TestRegisterPublishFailureAbsorbed(t *testing.T) {
	repo := newMockRepo()
	prov := &mockProvisioner{}
	pub := &mockPublisher{err: errors.New("stream unavailable")}
	svc := newTestService(repo, prov, pub)

	result, err := svc.Register(context.Background(), validPatient())
	if err != nil {
		t.Fatalf("register must not fail on publish exhaustion: %v", err)
	}
	if result.Provisioning != ProvisioningSucceeded {
		t.Errorf("want provisioning succeeded, got %q", result.Provisioning)
	}
}

func TestRegisterDuplicateShortCircuits(t *testing.T) {
	repo := newMockRepo()
	prov := &mockProvisioner{}
	pub := &mockPublisher{}
	svc := newTestService(repo, prov, pub)

	if _, err := svc.Register(context.Background(), validPatient()); err != nil {
		t.Fatalf("first register: %v", err)
	}

	_, err := svc.Register(context.Background(), validPatient())
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}

	// Only the first registration may produce side effects.
	if prov.callCount() != 1 {
		t.Errorf("want 1 provisioning call, got %d", prov.callCount())
	}
	if pub.eventCount() != 1 {
		t.Errorf("want 1 event, got %d", pub.eventCount())
	}
}

func TestRegisterValidationAbortsBeforePersist(t *testing.T) {
	repo := newMockRepo()
	prov := &mockProvisioner{}
	pub := &mockPublisher{}
	svc := newTestService(repo, prov, pub)

	cases := []*Patient{
		{LastName: "Lovelace", Email: "ada@example.com"},
		{FirstName: "Ada", Email: "ada@example.com"},
		{FirstName: "Ada", LastName: "Lovelace"},
		{FirstName: "Ada", LastName: "Lovelace", Email: "not-an-email"},
	}
	for _, p := range cases {
		if _, err := svc.Register(context.Background(), p); !errors.Is(err, ErrValidation) {
			t.Errorf("patient %+v: want ErrValidation, got %v", p, err)
		}
	}

	if len(repo.patients) != 0 {
		t.Errorf("invalid input persisted %d record(s)", len(repo.patients))
	}
	if prov.callCount() != 0 || pub.eventCount() != 0 {
		t.Error("invalid input triggered side effects")
	}
}

func TestRegisterStorageFailureAbortsSideEffects(t *testing.T) {
	repo := newMockRepo()
	repo.failWith = errors.New("connection reset")
	prov := &mockProvisioner{}
	pub := &mockPublisher{}
	svc := newTestService(repo, prov, pub)

	if _, err := svc.Register(context.Background(), validPatient()); err == nil {
		t.Fatal("want error on storage failure")
	}
	if prov.callCount() != 0 || pub.eventCount() != 0 {
		t.Error("storage failure triggered side effects")
	}
}

func TestRegisterSideEffectsSurviveCallerDisconnect(t *testing.T) {
	repo := newMockRepo()
	prov := &mockProvisioner{}
	pub := &mockPublisher{}
	svc := newTestService(repo, prov, pub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // caller already gone

	result, err := svc.Register(ctx, validPatient())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if result.Provisioning != ProvisioningSucceeded {
		t.Errorf("want provisioning succeeded, got %q", result.Provisioning)
	}

	// Both side effects ran on a context detached from the canceled caller.
	if prov.callCount() != 1 || pub.eventCount() != 1 {
		t.Fatalf("side effects did not run: %d provision, %d publish",
			prov.callCount(), pub.eventCount())
	}
	if prov.ctxErrs[0] != nil {
		t.Errorf("provisioning saw canceled context: %v", prov.ctxErrs[0])
	}
	if pub.ctxErrs[0] != nil {
		t.Errorf("publish saw canceled context: %v", pub.ctxErrs[0])
	}
}

func TestUpdateValidates(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &mockProvisioner{}, &mockPublisher{})

	p := validPatient()
	if _, err := svc.Register(context.Background(), p); err != nil {
		t.Fatalf("register: %v", err)
	}

	p.Email = "no-at-sign"
	if err := svc.Update(context.Background(), p); !errors.Is(err, ErrValidation) {
		t.Errorf("want ErrValidation, got %v", err)
	}
}

func TestDeleteUnknownPatient(t *testing.T) {
	svc := newTestService(newMockRepo(), &mockProvisioner{}, &mockPublisher{})
	if err := svc.Delete(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("want ErrNotFound, got %v", err)
	}
}
