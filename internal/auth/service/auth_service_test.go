package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"member-portal/internal/member/directory"
	memberdomain "member-portal/internal/member/domain"
	otpdomain "member-portal/internal/otp/domain"
	otpstore "member-portal/internal/otp/store"
	"member-portal/internal/security"
)

// fakeStore is a plain map store. It applies no expiry of its own, so the
// tests exercise the service's check ordering.
type fakeStore struct {
	mu      sync.Mutex
	m       map[string]*otpdomain.Entry
	putErr  error
	getErr  error
	puts    int
	deletes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{m: make(map[string]*otpdomain.Entry)}
}

func (s *fakeStore) Put(ctx context.Context, key string, entry *otpdomain.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	e := *entry
	s.m[key] = &e
	s.puts++
	return nil
}

func (s *fakeStore) Get(ctx context.Context, key string) (*otpdomain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	e, ok := s.m[key]
	if !ok {
		return nil, otpstore.ErrNotFound
	}
	out := *e
	return &out, nil
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	s.deletes++
	return nil
}

func (s *fakeStore) IncrementAttempts(ctx context.Context, key string) (*otpdomain.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[key]
	if !ok {
		return nil, otpstore.ErrNotFound
	}
	e.Attempts++
	out := *e
	return &out, nil
}

func (s *fakeStore) only(t *testing.T) *otpdomain.Entry {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.m) != 1 {
		t.Fatalf("store holds %d entries, want 1", len(s.m))
	}
	for _, e := range s.m {
		out := *e
		return &out
	}
	return nil
}

type fakeDirectory struct {
	members map[string]memberdomain.Member
	err     error
}

func (d *fakeDirectory) Find(ctx context.Context, email string) (memberdomain.Member, error) {
	if d.err != nil {
		return nil, d.err
	}
	m, ok := d.members[memberdomain.NormalizeEmail(email)]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return m, nil
}

func (d *fakeDirectory) Load(ctx context.Context) ([]memberdomain.Member, error) {
	out := make([]memberdomain.Member, 0, len(d.members))
	for _, m := range d.members {
		out = append(out, m)
	}
	return out, nil
}

type sentMail struct {
	to, subject, html string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, to, subject, html string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, html})
	return nil
}

type fakeAudit struct {
	actions []string
}

func (a *fakeAudit) LogEvent(ctx context.Context, actor, action, resource, metadata string) {
	a.actions = append(a.actions, action)
}

type fixture struct {
	svc   *AuthService
	store *fakeStore
	mail  *fakeMailer
	audit *fakeAudit
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newFakeStore()
	dir := &fakeDirectory{members: map[string]memberdomain.Member{
		"anna@example.com": {
			"Vorname": "Anna", "Name": "Muster",
			"E-Mail": "Anna@Example.com", "Status": "Aktivmitglied", "Funktion": "Kassier",
		},
		"beat@example.com": {
			"Vorname": "Beat", "Name": "Beispiel",
			"E-Mail": "beat@example.com", "Status": "Ausgetreten",
		},
	}}
	mail := &fakeMailer{}
	auditLog := &fakeAudit{}
	tokens := security.NewTokenProvider([]byte("token-secret"), time.Hour)

	f := &fixture{
		store: store,
		mail:  mail,
		audit: auditLog,
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewAuthService(store, dir, mail, tokens, auditLog,
		[]byte("key-secret"), 10*time.Minute, 3, 5*time.Second)
	f.svc.nowF = func() time.Time { return f.now }
	f.svc.generate = func() (string, error) { return "654321", nil }
	return f
}

func TestRequestCode_IssuesAndMails(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.RequestCode(context.Background(), "ANNA@example.com"); err != nil {
		t.Fatalf("RequestCode: %v", err)
	}

	entry := f.store.only(t)
	if entry.Code != "654321" {
		t.Errorf("Code = %q", entry.Code)
	}
	if want := f.now.Add(10 * time.Minute); !entry.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", entry.ExpiresAt, want)
	}
	if entry.Role != memberdomain.RoleBoard {
		t.Errorf("Role = %q, want board for Kassier", entry.Role)
	}
	if entry.Snapshot.Email != "anna@example.com" {
		t.Errorf("Snapshot.Email = %q, want normalized", entry.Snapshot.Email)
	}

	if len(f.mail.sent) != 1 {
		t.Fatalf("sent %d mails, want 1", len(f.mail.sent))
	}
	if f.mail.sent[0].to != "anna@example.com" {
		t.Errorf("mail to = %q", f.mail.sent[0].to)
	}
	if !strings.Contains(f.mail.sent[0].html, "654321") {
		t.Error("mail body does not contain the code")
	}
}

func TestRequestCode_UnknownEmailIsSilent(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.RequestCode(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("RequestCode = %v, want silent nil", err)
	}
	if f.store.puts != 0 || len(f.mail.sent) != 0 {
		t.Error("unknown address produced store or mail activity")
	}
}

func TestRequestCode_InactiveMemberIsSilent(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.RequestCode(context.Background(), "beat@example.com"); err != nil {
		t.Fatalf("RequestCode = %v, want silent nil", err)
	}
	if f.store.puts != 0 || len(f.mail.sent) != 0 {
		t.Error("inactive member produced store or mail activity")
	}
}

func TestRequestCode_MailFailureUndoesIssuance(t *testing.T) {
	f := newFixture(t)
	f.mail.err = errors.New("smtp down")
	err := f.svc.RequestCode(context.Background(), "anna@example.com")
	if err == nil {
		t.Fatal("RequestCode succeeded despite mail failure")
	}
	f.store.mu.Lock()
	remaining := len(f.store.m)
	f.store.mu.Unlock()
	if remaining != 0 {
		t.Error("failed delivery left a live entry behind")
	}
}

func TestRequestCode_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.store.putErr = otpstore.ErrUnavailable
	err := f.svc.RequestCode(context.Background(), "anna@example.com")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("RequestCode = %v, want ErrStoreUnavailable", err)
	}
	if len(f.mail.sent) != 0 {
		t.Error("mail sent despite failed issuance")
	}
}

func TestRequestCode_ReissueReplacesPriorCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.RequestCode(ctx, "anna@example.com"); err != nil {
		t.Fatalf("first RequestCode: %v", err)
	}
	f.svc.generate = func() (string, error) { return "111111", nil }
	if err := f.svc.RequestCode(ctx, "anna@example.com"); err != nil {
		t.Fatalf("second RequestCode: %v", err)
	}

	if _, err := f.svc.RedeemCode(ctx, "anna@example.com", "654321"); err == nil {
		t.Fatal("replaced code still redeemable")
	}
	// The failed attempt counts against the new entry, but the new code
	// still works.
	res, err := f.svc.RedeemCode(ctx, "anna@example.com", "111111")
	if err != nil {
		t.Fatalf("RedeemCode with current code: %v", err)
	}
	if res.Token == "" {
		t.Error("empty token")
	}
}

func TestRedeemCode_HappyPathIsOneTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.RequestCode(ctx, "anna@example.com"); err != nil {
		t.Fatalf("RequestCode: %v", err)
	}

	res, err := f.svc.RedeemCode(ctx, "Anna@Example.com", "654321")
	if err != nil {
		t.Fatalf("RedeemCode: %v", err)
	}
	if res.Role != memberdomain.RoleBoard {
		t.Errorf("Role = %q, want board", res.Role)
	}
	if !res.ExpiresAt.After(time.Now()) {
		t.Errorf("ExpiresAt = %v, want a future expiry", res.ExpiresAt)
	}
	claims, err := f.svc.tokens.Validate(res.Token)
	if err != nil {
		t.Fatalf("minted token does not validate: %v", err)
	}
	if claims.Subject != "anna@example.com" {
		t.Errorf("token subject = %q", claims.Subject)
	}

	// The entry is consumed; the same code never redeems twice.
	if _, err := f.svc.RedeemCode(ctx, "anna@example.com", "654321"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("second redeem = %v, want ErrCodeExpired", err)
	}
}

func TestRedeemCode_NoEntry(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.RedeemCode(context.Background(), "anna@example.com", "654321"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("RedeemCode = %v, want ErrCodeExpired", err)
	}
}

func TestRedeemCode_WrongCodeCountsDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.RequestCode(ctx, "anna@example.com"); err != nil {
		t.Fatalf("RequestCode: %v", err)
	}

	for _, wantRemaining := range []int{2, 1, 0} {
		_, err := f.svc.RedeemCode(ctx, "anna@example.com", "000000")
		var invalid *InvalidCodeError
		if !errors.As(err, &invalid) {
			t.Fatalf("RedeemCode = %v, want InvalidCodeError", err)
		}
		if invalid.Remaining != wantRemaining {
			t.Errorf("Remaining = %d, want %d", invalid.Remaining, wantRemaining)
		}
	}

	// Budget exhausted: even the correct code is refused and the entry is gone.
	if _, err := f.svc.RedeemCode(ctx, "anna@example.com", "654321"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("RedeemCode after exhaustion = %v, want ErrTooManyAttempts", err)
	}
	if _, err := f.svc.RedeemCode(ctx, "anna@example.com", "654321"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("RedeemCode after invalidation = %v, want ErrCodeExpired", err)
	}
}

func TestRedeemCode_ExpiryBeatsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.RequestCode(ctx, "anna@example.com"); err != nil {
		t.Fatalf("RequestCode: %v", err)
	}

	f.now = f.now.Add(10*time.Minute + time.Second)
	if _, err := f.svc.RedeemCode(ctx, "anna@example.com", "654321"); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("RedeemCode past TTL = %v, want ErrCodeExpired", err)
	}
	f.store.mu.Lock()
	remaining := len(f.store.m)
	f.store.mu.Unlock()
	if remaining != 0 {
		t.Error("expired entry not deleted on redeem")
	}
}

func TestRedeemCode_AtExpiryStillValid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.svc.RequestCode(ctx, "anna@example.com"); err != nil {
		t.Fatalf("RequestCode: %v", err)
	}

	f.now = f.now.Add(10 * time.Minute)
	if _, err := f.svc.RedeemCode(ctx, "anna@example.com", "654321"); err != nil {
		t.Fatalf("RedeemCode at exact TTL = %v, want success", err)
	}
}

func TestRedeemCode_StoreUnavailable(t *testing.T) {
	f := newFixture(t)
	f.store.getErr = otpstore.ErrUnavailable
	if _, err := f.svc.RedeemCode(context.Background(), "anna@example.com", "654321"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("RedeemCode = %v, want ErrStoreUnavailable", err)
	}
}
