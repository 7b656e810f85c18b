package qr

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"condotrack/internal/domain/deliverylog"
	"condotrack/internal/domain/parcels"
)

// -------------------------
// Fakes (in-memory)
// -------------------------

var errStoreNotFound = errors.New("store: not found")

type testTokenStore struct {
	mu       sync.Mutex
	byID     map[string]Token
	bySecret map[string]string
}

func newTestTokenStore() *testTokenStore {
	return &testTokenStore{
		byID:     map[string]Token{},
		bySecret: map[string]string{},
	}
}

func (s *testTokenStore) Create(ctx context.Context, t Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" || t.Secret == "" {
		return errors.New("store: id and secret required")
	}
	s.byID[t.ID] = t
	s.bySecret[t.Secret] = t.ID
	return nil
}

func (s *testTokenStore) GetBySecret(ctx context.Context, secret string) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySecret[secret]
	if !ok {
		return Token{}, errStoreNotFound
	}
	return s.byID[id], nil
}

func (s *testTokenStore) DeleteByParcel(ctx context.Context, parcelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.byID {
		if t.ParcelID == parcelID {
			delete(s.byID, id)
			delete(s.bySecret, t.Secret)
		}
	}
	return nil
}

func (s *testTokenStore) MarkUsed(ctx context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[tokenID]
	if !ok {
		return false, errStoreNotFound
	}
	if t.Used {
		return false, nil
	}
	t.Used = true
	s.byID[tokenID] = t
	return true, nil
}

func (s *testTokenStore) GetActiveByParcel(ctx context.Context, parcelID string, now time.Time) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.byID {
		if t.ParcelID == parcelID && t.Live(now) {
			return t, nil
		}
	}
	return Token{}, errStoreNotFound
}

func (s *testTokenStore) countByParcel(parcelID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.byID {
		if t.ParcelID == parcelID {
			n++
		}
	}
	return n
}

type testParcelStore struct {
	mu   sync.Mutex
	byID map[string]parcels.Parcel
}

func newTestParcelStore() *testParcelStore {
	return &testParcelStore{byID: map[string]parcels.Parcel{}}
}

func (s *testParcelStore) put(p parcels.Parcel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[p.ID] = p
}

func (s *testParcelStore) get(id string) parcels.Parcel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

func (s *testParcelStore) GetByID(ctx context.Context, id string) (parcels.Parcel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return parcels.Parcel{}, errStoreNotFound
	}
	return p, nil
}

func (s *testParcelStore) MarkDelivered(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return false, errStoreNotFound
	}
	if p.Status != parcels.StatusPending {
		return false, nil
	}
	p.Status = parcels.StatusDelivered
	t := at
	p.DeliveredAt = &t
	s.byID[id] = p
	return true, nil
}

type testAudit struct {
	mu      sync.Mutex
	entries []deliverylog.RecordInput
	fail    bool
}

func (a *testAudit) Record(ctx context.Context, in deliverylog.RecordInput) (deliverylog.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fail {
		return deliverylog.Entry{}, errors.New("audit: unavailable")
	}
	a.entries = append(a.entries, in)
	return deliverylog.Entry{ID: "log-1", ParcelID: in.ParcelID, Action: in.Action}, nil
}

func (a *testAudit) actions() []deliverylog.Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]deliverylog.Action, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

// -------------------------
// Helpers
// -------------------------

var baseTime = time.Date(2025, 11, 3, 15, 0, 0, 0, time.UTC)

func newTestService() (*Service, *testTokenStore, *testParcelStore, *testAudit) {
	tokens := newTestTokenStore()
	store := newTestParcelStore()
	audit := &testAudit{}

	svc := NewService(tokens, store, audit, Config{BaseURL: "https://condo.example"})
	svc.now = func() time.Time { return baseTime }
	return svc, tokens, store, audit
}

func pendingParcel(id string) parcels.Parcel {
	return parcels.Parcel{
		ID:           id,
		Code:         "PKG-" + id,
		Carrier:      "Chilexpress",
		ResidentID:   "res-1",
		ResidentName: "María Soto",
		Status:       parcels.StatusPending,
		Priority:     parcels.PriorityNormal,
		ReceivedAt:   baseTime.Add(-2 * time.Hour),
	}
}

// -------------------------
// Issue
// -------------------------

func TestIssue_PendingParcel(t *testing.T) {
	svc, _, store, audit := newTestService()
	store.put(pendingParcel("P1"))

	issued, err := svc.Issue(context.Background(), "P1", "conserje-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(issued.Secret) != 64 {
		t.Fatalf("expected 64-char hex secret, got %d chars", len(issued.Secret))
	}
	if !issued.ExpiresAt.Equal(baseTime.Add(Validity)) {
		t.Fatalf("expected expiry %v, got %v", baseTime.Add(Validity), issued.ExpiresAt)
	}
	if !strings.HasPrefix(issued.DataURL, "data:image/png;base64,") {
		t.Fatalf("expected png data uri, got %q", issued.DataURL[:min(40, len(issued.DataURL))])
	}

	// La encomienda sigue pendiente: emitir no entrega.
	if got := store.get("P1").Status; got != parcels.StatusPending {
		t.Fatalf("expected parcel still pending, got %q", got)
	}

	acts := audit.actions()
	if len(acts) != 1 || acts[0] != deliverylog.ActionQRIssued {
		t.Fatalf("expected one qr_generado entry, got %v", acts)
	}
}

func TestIssue_ParcelNotFound(t *testing.T) {
	svc, _, _, _ := newTestService()

	if _, err := svc.Issue(context.Background(), "missing", "conserje-1"); err != ErrParcelNotFound {
		t.Fatalf("expected ErrParcelNotFound, got %v", err)
	}
}

func TestIssue_ParcelNotPending(t *testing.T) {
	svc, tokens, store, _ := newTestService()

	p := pendingParcel("P1")
	p.Status = parcels.StatusDelivered
	store.put(p)

	if _, err := svc.Issue(context.Background(), "P1", "conserje-1"); err != ErrNotPending {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
	if n := tokens.countByParcel("P1"); n != 0 {
		t.Fatalf("expected no token created, got %d", n)
	}
}

func TestIssue_ReplacesPriorTokens(t *testing.T) {
	svc, tokens, store, _ := newTestService()
	store.put(pendingParcel("P3"))

	secrets := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		issued, err := svc.Issue(context.Background(), "P3", "conserje-1")
		if err != nil {
			t.Fatalf("issue %d: unexpected error: %v", i, err)
		}
		secrets = append(secrets, issued.Secret)
	}

	// Exactamente un token vivo después de N emisiones.
	if n := tokens.countByParcel("P3"); n != 1 {
		t.Fatalf("expected exactly 1 live token, got %d", n)
	}

	// Los N-1 anteriores quedaron inválidos.
	for _, s := range secrets[:4] {
		if _, err := svc.Validate(context.Background(), s, "conserje-1"); err != ErrInvalidToken {
			t.Fatalf("expected ErrInvalidToken for superseded secret, got %v", err)
		}
	}

	// El último sí canjea.
	if _, err := svc.Validate(context.Background(), secrets[4], "conserje-1"); err != nil {
		t.Fatalf("expected latest secret to validate, got %v", err)
	}
}

// -------------------------
// Validate
// -------------------------

func TestValidate_Success(t *testing.T) {
	svc, tokens, store, audit := newTestService()
	store.put(pendingParcel("P1"))

	issued, err := svc.Issue(context.Background(), "P1", "conserje-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	summary, err := svc.Validate(context.Background(), issued.Secret, "conserje-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if summary.ParcelID != "P1" || summary.Code != "PKG-P1" || summary.Carrier != "Chilexpress" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.ResidentName != "María Soto" {
		t.Fatalf("unexpected resident name: %q", summary.ResidentName)
	}
	if summary.Status != parcels.StatusDelivered {
		t.Fatalf("expected delivered status, got %q", summary.Status)
	}

	p := store.get("P1")
	if p.Status != parcels.StatusDelivered {
		t.Fatalf("expected parcel delivered, got %q", p.Status)
	}
	if p.DeliveredAt == nil || !p.DeliveredAt.Equal(baseTime) {
		t.Fatalf("expected deliveredAt %v, got %v", baseTime, p.DeliveredAt)
	}

	tok, err := tokens.GetBySecret(context.Background(), issued.Secret)
	if err != nil || !tok.Used {
		t.Fatalf("expected token marked used, got used=%v err=%v", tok.Used, err)
	}

	acts := audit.actions()
	if len(acts) != 2 || acts[1] != deliverylog.ActionQRValidated {
		t.Fatalf("expected qr_validado entry, got %v", acts)
	}
}

func TestValidate_SecondCallAlreadyUsed(t *testing.T) {
	svc, _, store, _ := newTestService()
	store.put(pendingParcel("P1"))

	issued, _ := svc.Issue(context.Background(), "P1", "conserje-1")
	if _, err := svc.Validate(context.Background(), issued.Secret, "conserje-1"); err != nil {
		t.Fatalf("first validate: %v", err)
	}

	before := store.get("P1")
	if _, err := svc.Validate(context.Background(), issued.Secret, "conserje-1"); err != ErrAlreadyUsed {
		t.Fatalf("expected ErrAlreadyUsed, got %v", err)
	}

	// La segunda llamada no muta nada.
	after := store.get("P1")
	if !after.DeliveredAt.Equal(*before.DeliveredAt) || after.Status != before.Status {
		t.Fatalf("expected parcel unchanged after rejected validate")
	}
}

func TestValidate_UnknownSecret(t *testing.T) {
	svc, _, _, _ := newTestService()

	if _, err := svc.Validate(context.Background(), "deadbeef", "conserje-1"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestValidate_Expired(t *testing.T) {
	svc, _, store, _ := newTestService()
	store.put(pendingParcel("P2"))

	issued, _ := svc.Issue(context.Background(), "P2", "conserje-1")

	// 31 minutos después.
	svc.now = func() time.Time { return baseTime.Add(31 * time.Minute) }

	if _, err := svc.Validate(context.Background(), issued.Secret, "conserje-1"); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if got := store.get("P2").Status; got != parcels.StatusPending {
		t.Fatalf("expected parcel still pending, got %q", got)
	}
}

func TestValidate_UsedWinsOverExpired(t *testing.T) {
	svc, _, store, _ := newTestService()
	store.put(pendingParcel("P1"))

	issued, _ := svc.Issue(context.Background(), "P1", "conserje-1")
	if _, err := svc.Validate(context.Background(), issued.Secret, "conserje-1"); err != nil {
		t.Fatalf("validate: %v", err)
	}

	// Token usado Y expirado: reporta el estado terminal que ocurrió
	// primero (usado), no expirado.
	svc.now = func() time.Time { return baseTime.Add(2 * time.Hour) }
	if _, err := svc.Validate(context.Background(), issued.Secret, "conserje-1"); err != ErrAlreadyUsed {
		t.Fatalf("expected ErrAlreadyUsed to win over expired, got %v", err)
	}
}

func TestValidate_ParcelAlreadyDelivered(t *testing.T) {
	svc, tokens, store, _ := newTestService()

	p := pendingParcel("P1")
	p.Status = parcels.StatusDelivered
	deliveredAt := baseTime.Add(-time.Hour)
	p.DeliveredAt = &deliveredAt
	store.put(p)

	// Token vivo apuntando a una encomienda ya entregada (p.ej. data
	// sucia o carrera entre dos tokens históricos).
	_ = tokens.Create(context.Background(), Token{
		ID:        "tok-stale",
		ParcelID:  "P1",
		Secret:    "stalesecret",
		ExpiresAt: baseTime.Add(Validity),
		CreatedAt: baseTime,
	})

	if _, err := svc.Validate(context.Background(), "stalesecret", "conserje-1"); err != ErrAlreadyDelivered {
		t.Fatalf("expected ErrAlreadyDelivered, got %v", err)
	}

	// No genera una segunda entrega.
	if got := store.get("P1"); !got.DeliveredAt.Equal(deliveredAt) {
		t.Fatalf("expected deliveredAt untouched, got %v", got.DeliveredAt)
	}
}

func TestValidate_AuditFailureDoesNotRollBack(t *testing.T) {
	svc, _, store, audit := newTestService()
	store.put(pendingParcel("P1"))

	issued, _ := svc.Issue(context.Background(), "P1", "conserje-1")
	audit.fail = true

	if _, err := svc.Validate(context.Background(), issued.Secret, "conserje-1"); err != nil {
		t.Fatalf("expected success despite audit failure, got %v", err)
	}
	if got := store.get("P1").Status; got != parcels.StatusDelivered {
		t.Fatalf("expected parcel delivered, got %q", got)
	}
}

func TestValidate_ConcurrentSingleWinner(t *testing.T) {
	svc, _, store, _ := newTestService()
	store.put(pendingParcel("P1"))

	issued, err := svc.Issue(context.Background(), "P1", "conserje-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, alreadyUsed := 0, 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Validate(context.Background(), issued.Secret, "conserje-1")

			mu.Lock()
			defer mu.Unlock()
			switch err {
			case nil:
				successes++
			case ErrAlreadyUsed:
				alreadyUsed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly 1 success, got %d", successes)
	}
	if alreadyUsed != n-1 {
		t.Fatalf("expected %d already-used, got %d", n-1, alreadyUsed)
	}
}

// -------------------------
// ActiveToken / helpers
// -------------------------

func TestActiveToken(t *testing.T) {
	svc, _, store, _ := newTestService()
	store.put(pendingParcel("P1"))

	if _, err := svc.ActiveToken(context.Background(), "P1"); err != ErrNoActiveToken {
		t.Fatalf("expected ErrNoActiveToken before issue, got %v", err)
	}

	issued, _ := svc.Issue(context.Background(), "P1", "conserje-1")

	tok, err := svc.ActiveToken(context.Background(), "P1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Secret != issued.Secret {
		t.Fatalf("expected active token to match issued secret")
	}

	// Canjeado => deja de estar activo.
	if _, err := svc.Validate(context.Background(), issued.Secret, "conserje-1"); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, err := svc.ActiveToken(context.Background(), "P1"); err != ErrNoActiveToken {
		t.Fatalf("expected ErrNoActiveToken after redemption, got %v", err)
	}
}

func TestActiveToken_ExpiredIsNotActive(t *testing.T) {
	svc, _, store, _ := newTestService()
	store.put(pendingParcel("P1"))

	_, _ = svc.Issue(context.Background(), "P1", "conserje-1")
	svc.now = func() time.Time { return baseTime.Add(Validity + time.Minute) }

	if _, err := svc.ActiveToken(context.Background(), "P1"); err != ErrNoActiveToken {
		t.Fatalf("expected ErrNoActiveToken for expired token, got %v", err)
	}
}

func TestRemainingSeconds(t *testing.T) {
	exp := baseTime.Add(90 * time.Second)

	if got := RemainingSeconds(exp, baseTime); got != 90 {
		t.Fatalf("expected 90, got %d", got)
	}
	if got := RemainingSeconds(exp, exp.Add(time.Second)); got != 0 {
		t.Fatalf("expected 0 after expiry, got %d", got)
	}
}

func TestIssue_FreshSecretEachCall(t *testing.T) {
	svc, _, store, _ := newTestService()
	store.put(pendingParcel("P1"))

	a, _ := svc.Issue(context.Background(), "P1", "conserje-1")
	b, _ := svc.Issue(context.Background(), "P1", "conserje-1")

	if a.Secret == b.Secret {
		t.Fatalf("expected a fresh secret per issue")
	}
}
