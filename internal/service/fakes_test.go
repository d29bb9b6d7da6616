package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"marketing-api/internal/client"
	"marketing-api/internal/config"
	"marketing-api/internal/events"
	"marketing-api/internal/models"
	"marketing-api/internal/ratelimit"
	"marketing-api/internal/verification"
)

var errBoom = errors.New("boom")

var testSite = config.SiteConfig{
	SiteURL:      "https://listhit.io",
	AppURL:       "https://app.listhit.io",
	SupportEmail: "support@listhit.io",
}

var testMeta = ClientMeta{IP: "203.0.113.7", UserAgent: "go-test"}

func testLimiter(name string, max int) *ratelimit.Limiter {
	return ratelimit.NewLimiter(name, config.Rule{Max: max, Window: 10 * time.Minute}, ratelimit.NewMemoryStore(), nil)
}

type fakeVerifier struct {
	mu       sync.Mutex
	result   verification.Result
	calls    []string
	onVerify func()
}

func passingVerifier() *fakeVerifier {
	return &fakeVerifier{result: verification.Result{Success: true}}
}

func failingVerifier() *fakeVerifier {
	return &fakeVerifier{result: verification.Result{Success: false, Message: verification.FailureMessage}}
}

func (f *fakeVerifier) Verify(_ context.Context, token, _ string) verification.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, token)
	if f.onVerify != nil {
		f.onVerify()
	}
	return f.result
}

func (f *fakeVerifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeMailer struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
	links []string
}

func newFakeMailer(failing ...string) *fakeMailer {
	m := &fakeMailer{fail: map[string]bool{}}
	for _, f := range failing {
		m.fail[f] = true
	}
	return m
}

func (m *fakeMailer) record(ctx context.Context, kind string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, kind)
	if m.fail[kind] {
		return errBoom
	}
	return nil
}

func (m *fakeMailer) called(kind string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c == kind {
			return true
		}
	}
	return false
}

func (m *fakeMailer) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *fakeMailer) SendVerification(ctx context.Context, _, _, link string) error {
	m.mu.Lock()
	m.links = append(m.links, link)
	m.mu.Unlock()
	return m.record(ctx, "verification")
}

func (m *fakeMailer) SendContactReceipt(ctx context.Context, _, _, _ string) error {
	return m.record(ctx, "contact_receipt")
}

func (m *fakeMailer) SendContactNotification(ctx context.Context, _ models.ContactNotification) error {
	return m.record(ctx, "contact_notification")
}

func (m *fakeMailer) SendRequestAccessConfirmation(ctx context.Context, _, _, _ string) error {
	return m.record(ctx, "request_access_confirmation")
}

func (m *fakeMailer) SendRequestAccessNotification(ctx context.Context, _ models.Lead) error {
	return m.record(ctx, "request_access_notification")
}

type insert struct {
	schema string
	table  string
	row    interface{}
}

type fakeDatastore struct {
	mu        sync.Mutex
	inserts   []insert
	insertErr map[string]error
	users     map[string]bool
	lookupErr error
	linkErr   map[client.LinkType]error
	linkCalls []client.GenerateLinkParams
}

func newFakeDatastore() *fakeDatastore {
	return &fakeDatastore{
		insertErr: map[string]error{},
		users:     map[string]bool{},
		linkErr:   map[client.LinkType]error{},
	}
}

func (d *fakeDatastore) Insert(ctx context.Context, schema, table string, row interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inserts = append(d.inserts, insert{schema: schema, table: table, row: row})
	return d.insertErr[table]
}

func (d *fakeDatastore) GenerateLink(ctx context.Context, p client.GenerateLinkParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.linkCalls = append(d.linkCalls, p)
	if err := d.linkErr[p.Type]; err != nil {
		return "", err
	}
	return "https://auth.example/" + string(p.Type) + "?email=" + p.Email, nil
}

func (d *fakeDatastore) UserExists(ctx context.Context, email string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lookupErr != nil {
		return false, d.lookupErr
	}
	return d.users[email], nil
}

func (d *fakeDatastore) insertsInto(table string) []insert {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []insert
	for _, in := range d.inserts {
		if in.table == table {
			out = append(out, in)
		}
	}
	return out
}

type fakeForwarder struct {
	mu       sync.Mutex
	err      error
	payloads []interface{}
}

func (f *fakeForwarder) Forward(_ context.Context, payload interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, payload)
	return f.err
}

type fakePayments struct {
	secret string
	err    error
	got    client.CheckoutRequest
}

func (p *fakePayments) CreateEmbeddedCheckout(_ context.Context, req client.CheckoutRequest) (string, error) {
	p.got = req
	return p.secret, p.err
}

// recordingSink captures published events. Its accessors close the recorder
// first so queued rejections are delivered before anything is read.
type recordingSink struct {
	rec *events.Recorder

	mu     sync.Mutex
	events []events.Event
}

func (r *recordingSink) Name() string { return "memory" }

func (r *recordingSink) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) all() []events.Event {
	r.rec.Close()
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

func (r *recordingSink) outcomes() []events.Outcome {
	all := r.all()
	out := make([]events.Outcome, 0, len(all))
	for _, e := range all {
		out = append(out, e.Outcome)
	}
	return out
}

func (r *recordingSink) last() events.Event {
	all := r.all()
	return all[len(all)-1]
}

func newTestRecorder() (*events.Recorder, *recordingSink) {
	sink := &recordingSink{}
	sink.rec = events.NewRecorder(events.NewFanout(sink), zap.NewNop())
	return sink.rec, sink
}
