package parcels

import (
	"context"
	"errors"
	"testing"
	"time"

	"condotrack/internal/domain/deliverylog"
	"condotrack/internal/ports/notify"
)

// -------------------------
// Test repo (in-memory)
// -------------------------

var errRepoNotFound = errors.New("repo: not found")

type testRepo struct {
	byID map[string]Parcel
}

func newTestRepo() *testRepo {
	return &testRepo{byID: map[string]Parcel{}}
}

func (r *testRepo) Create(ctx context.Context, p Parcel) error {
	if p.ID == "" {
		return errors.New("repo: id required")
	}
	if _, ok := r.byID[p.ID]; ok {
		return errors.New("repo: already exists")
	}
	r.byID[p.ID] = p
	return nil
}

func (r *testRepo) GetByID(ctx context.Context, id string) (Parcel, error) {
	p, ok := r.byID[id]
	if !ok {
		return Parcel{}, errRepoNotFound
	}
	return p, nil
}

func (r *testRepo) List(ctx context.Context, filter ListFilter) ([]Parcel, error) {
	out := make([]Parcel, 0)
	for _, p := range r.byID {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *testRepo) ListByResident(ctx context.Context, residentID string) ([]Parcel, error) {
	out := make([]Parcel, 0)
	for _, p := range r.byID {
		if p.ResidentID == residentID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *testRepo) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	p, ok := r.byID[id]
	if !ok {
		return false, errRepoNotFound
	}
	if p.Status != StatusPending {
		return false, nil
	}
	p.Status = StatusDelivered
	t := at
	p.DeliveredAt = &t
	r.byID[id] = p
	return true, nil
}

func (r *testRepo) UpdateStatus(ctx context.Context, id string, status Status) error {
	p, ok := r.byID[id]
	if !ok {
		return errRepoNotFound
	}
	p.Status = status
	r.byID[id] = p
	return nil
}

type testAudit struct {
	entries []deliverylog.RecordInput
	fail    bool
}

func (a *testAudit) Record(ctx context.Context, in deliverylog.RecordInput) (deliverylog.Entry, error) {
	if a.fail {
		return deliverylog.Entry{}, errors.New("audit: unavailable")
	}
	a.entries = append(a.entries, in)
	return deliverylog.Entry{ID: "log-1"}, nil
}

type testNotifier struct {
	sent []notify.Message
	fail bool
}

func (n *testNotifier) Send(ctx context.Context, m notify.Message) error {
	if n.fail {
		return errors.New("notify: smtp down")
	}
	n.sent = append(n.sent, m)
	return nil
}

// -------------------------
// Tests
// -------------------------

var testNow = time.Date(2025, 11, 3, 9, 30, 0, 0, time.UTC)

func newTestService(repo Repository, audit AuditRecorder, notifier notify.Sender) *Service {
	svc := NewService(repo, audit, notifier, nil)
	svc.now = func() time.Time { return testNow }
	return svc
}

func TestRegister_Defaults(t *testing.T) {
	repo := newTestRepo()
	audit := &testAudit{}
	svc := newTestService(repo, audit, nil)

	p, err := svc.Register(context.Background(), "conserje-1", RegisterInput{
		Code:         " PKG-001 ",
		Carrier:      "Correos",
		ResidentName: "Juan Pérez",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.ID == "" {
		t.Fatalf("expected generated id")
	}
	if p.Code != "PKG-001" {
		t.Fatalf("expected trimmed code, got %q", p.Code)
	}
	if p.Status != StatusPending {
		t.Fatalf("expected pending status, got %q", p.Status)
	}
	if p.Priority != PriorityNormal {
		t.Fatalf("expected default priority normal, got %q", p.Priority)
	}
	if !p.ReceivedAt.Equal(testNow) {
		t.Fatalf("expected receivedAt %v, got %v", testNow, p.ReceivedAt)
	}
	if p.DeliveredAt != nil {
		t.Fatalf("expected nil deliveredAt on registration")
	}

	if len(audit.entries) != 1 || audit.entries[0].Action != deliverylog.ActionReceived {
		t.Fatalf("expected recepcion audit entry, got %+v", audit.entries)
	}
}

func TestRegister_InvalidInput(t *testing.T) {
	svc := newTestService(newTestRepo(), &testAudit{}, nil)

	cases := []RegisterInput{
		{Carrier: "Correos", ResidentName: "Juan"},               // sin code
		{Code: "PKG-1", ResidentName: "Juan"},                    // sin carrier
		{Code: "PKG-1", Carrier: "Correos"},                      // sin residente
		{Code: "PKG-1", Carrier: "C", ResidentName: "J", Priority: "alta"}, // prioridad inválida
	}
	for i, in := range cases {
		if _, err := svc.Register(context.Background(), "conserje-1", in); err != ErrInvalidInput {
			t.Fatalf("case %d: expected ErrInvalidInput, got %v", i, err)
		}
	}
}

func TestRegister_NotifiesResident(t *testing.T) {
	audit := &testAudit{}
	notifier := &testNotifier{}
	svc := newTestService(newTestRepo(), audit, notifier)

	_, err := svc.Register(context.Background(), "conserje-1", RegisterInput{
		Code:          "PKG-2",
		Carrier:       "Starken",
		ResidentID:    "res-9",
		ResidentName:  "Ana Rojas",
		ResidentEmail: "ana@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.sent))
	}
	if notifier.sent[0].Email != "ana@example.com" {
		t.Fatalf("unexpected recipient: %q", notifier.sent[0].Email)
	}

	// recepcion + notificacion_enviada
	if len(audit.entries) != 2 || audit.entries[1].Action != deliverylog.ActionNotificationSent {
		t.Fatalf("expected notification audit entry, got %+v", audit.entries)
	}
}

func TestRegister_NotificationFailureIsTolerated(t *testing.T) {
	notifier := &testNotifier{fail: true}
	svc := newTestService(newTestRepo(), &testAudit{}, notifier)

	if _, err := svc.Register(context.Background(), "conserje-1", RegisterInput{
		Code:          "PKG-3",
		Carrier:       "Starken",
		ResidentName:  "Ana Rojas",
		ResidentEmail: "ana@example.com",
	}); err != nil {
		t.Fatalf("expected registration to succeed despite notify failure, got %v", err)
	}
}

func TestRegister_AuditFailureIsTolerated(t *testing.T) {
	svc := newTestService(newTestRepo(), &testAudit{fail: true}, nil)

	if _, err := svc.Register(context.Background(), "conserje-1", RegisterInput{
		Code:         "PKG-4",
		Carrier:      "Starken",
		ResidentName: "Ana Rojas",
	}); err != nil {
		t.Fatalf("expected registration to succeed despite audit failure, got %v", err)
	}
}

func TestMarkIncident(t *testing.T) {
	repo := newTestRepo()
	audit := &testAudit{}
	svc := newTestService(repo, audit, nil)

	p, _ := svc.Register(context.Background(), "conserje-1", RegisterInput{
		Code:         "PKG-5",
		Carrier:      "Correos",
		ResidentName: "Juan Pérez",
	})

	got, err := svc.MarkIncident(context.Background(), p.ID, "conserje-1", "caja dañada")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusIncident {
		t.Fatalf("expected incidencia status, got %q", got.Status)
	}

	// Segunda vez: ya no está pendiente.
	if _, err := svc.MarkIncident(context.Background(), p.ID, "conserje-1", ""); err != ErrBadState {
		t.Fatalf("expected ErrBadState, got %v", err)
	}
}

func TestMarkIncident_NotFound(t *testing.T) {
	svc := newTestService(newTestRepo(), &testAudit{}, nil)

	if _, err := svc.MarkIncident(context.Background(), "missing", "conserje-1", ""); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkDelivered_OnlyOnce(t *testing.T) {
	repo := newTestRepo()
	svc := newTestService(repo, &testAudit{}, nil)

	p, _ := svc.Register(context.Background(), "conserje-1", RegisterInput{
		Code:         "PKG-6",
		Carrier:      "Correos",
		ResidentName: "Juan Pérez",
	})

	ok, err := svc.MarkDelivered(context.Background(), p.ID, testNow)
	if err != nil || !ok {
		t.Fatalf("expected first delivery to apply, got ok=%v err=%v", ok, err)
	}

	ok, err = svc.MarkDelivered(context.Background(), p.ID, testNow.Add(time.Minute))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected second delivery to be a no-op")
	}

	got, _ := svc.GetByID(context.Background(), p.ID)
	if got.DeliveredAt == nil || !got.DeliveredAt.Equal(testNow) {
		t.Fatalf("expected deliveredAt from first call, got %v", got.DeliveredAt)
	}
}
