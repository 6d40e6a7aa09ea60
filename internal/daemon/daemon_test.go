package daemon

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drivesign/drivesign/internal/account"
	"github.com/drivesign/drivesign/internal/config"
	"github.com/drivesign/drivesign/internal/drive"
	"github.com/drivesign/drivesign/internal/runner"
)

// stubSigner resolves outcomes by token and can panic on demand.
type stubSigner struct {
	outcomes map[string]drive.Outcome
	panics   map[string]bool
}

func (s *stubSigner) SignIn(ctx context.Context, cred account.Credential) drive.Outcome {
	if s.panics[cred.Token()] {
		panic("signer exploded")
	}
	if out, ok := s.outcomes[cred.Token()]; ok {
		return out
	}
	return drive.Outcome{Status: drive.StatusSuccess, SignInCount: 1}
}

// pushServer records ServerChan deliveries.
type pushServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []string
	fail   bool
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	p := &pushServer{}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		p.mu.Lock()
		p.bodies = append(p.bodies, string(body))
		fail := p.fail
		p.mu.Unlock()
		if fail {
			w.WriteHeader(500)
			return
		}
		w.WriteHeader(200)
	}))
	t.Cleanup(p.Server.Close)
	return p
}

func (p *pushServer) received() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.bodies...)
}

func baseConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.RefreshTokens = "tokA-00000000,tokB-00000000"
	return cfg
}

func TestRunOnceAggregatesResultsInOrder(t *testing.T) {
	cfg := baseConfig()
	signer := &stubSigner{outcomes: map[string]drive.Outcome{
		"tokA-00000000": {Status: drive.StatusSuccess, SignInCount: 5},
		"tokB-00000000": {Status: drive.StatusFailed, Reason: "expired"},
	}}

	summary, err := New(cfg, signer).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(summary.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(summary.Results))
	}
	if summary.Results[0].Outcome.Status != drive.StatusSuccess {
		t.Errorf("result 0: %+v", summary.Results[0])
	}
	if summary.Results[1].Outcome.Status != drive.StatusFailed || summary.Results[1].Outcome.Reason != "expired" {
		t.Errorf("result 1: %+v", summary.Results[1])
	}
}

func TestRunOncePanicIsolation(t *testing.T) {
	cfg := baseConfig()
	signer := &stubSigner{
		panics: map[string]bool{"tokA-00000000": true},
		outcomes: map[string]drive.Outcome{
			"tokB-00000000": {Status: drive.StatusAlreadySigned, SignInCount: 3},
		},
	}

	summary, err := New(cfg, signer).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if summary.Results[0].Outcome.Status != drive.StatusFailed ||
		!strings.HasPrefix(summary.Results[0].Outcome.Reason, "unexpected error: ") {
		t.Fatalf("panic not converted: %+v", summary.Results[0])
	}
	if summary.Results[1].Outcome.Status != drive.StatusAlreadySigned {
		t.Fatalf("second account not attempted: %+v", summary.Results[1])
	}
}

func TestRunOnceEmptyCredentials(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RefreshTokens = ",, ,"
	if _, err := New(cfg, &stubSigner{}).RunOnce(context.Background()); err == nil {
		t.Fatal("expected configuration error for empty credential list")
	}
}

func TestRunOnceNoChannelsIsNoop(t *testing.T) {
	cfg := baseConfig()
	summary, err := New(cfg, &stubSigner{}).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(summary.Outcomes) != 0 {
		t.Fatalf("expected no delivery outcomes, got %v", summary.Outcomes)
	}
}

func TestRunOnceDispatchesReport(t *testing.T) {
	push := newPushServer(t)
	cfg := baseConfig()
	cfg.PushChannels = "serverchan"
	cfg.ServerChanSendKey = "SCTKEY"
	cfg.ServerChanEndpoint = push.URL
	signer := &stubSigner{outcomes: map[string]drive.Outcome{
		"tokA-00000000": {Status: drive.StatusSuccess, SignInCount: 5, UserName: "userA"},
		"tokB-00000000": {Status: drive.StatusFailed, Reason: "expired"},
	}}

	summary, err := New(cfg, signer).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	out, ok := summary.Outcomes["ServerChan"]
	if !ok || !out.Delivered {
		t.Fatalf("expected delivered outcome, got %v", summary.Outcomes)
	}
	bodies := push.received()
	if len(bodies) != 1 {
		t.Fatalf("expected one push, got %d", len(bodies))
	}
	for _, want := range []string{"userA", "expired"} {
		if !strings.Contains(bodies[0], want) {
			t.Errorf("report missing %q: %s", want, bodies[0])
		}
	}
}

func TestRunOnceDeliveryFailureIsNotFatal(t *testing.T) {
	push := newPushServer(t)
	push.fail = true
	cfg := baseConfig()
	cfg.PushChannels = "serverchan"
	cfg.ServerChanSendKey = "SCTKEY"
	cfg.ServerChanEndpoint = push.URL

	summary, err := New(cfg, &stubSigner{}).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("delivery failure escaped as error: %v", err)
	}
	out := summary.Outcomes["ServerChan"]
	if out.Delivered || out.Reason == "" {
		t.Fatalf("expected failed outcome with reason, got %+v", out)
	}
}

func TestRunOnceDryRunSkipsDispatch(t *testing.T) {
	push := newPushServer(t)
	cfg := baseConfig()
	cfg.DryRun = true
	cfg.PushChannels = "serverchan"
	cfg.ServerChanSendKey = "SCTKEY"
	cfg.ServerChanEndpoint = push.URL

	summary, err := New(cfg, &stubSigner{}).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if len(summary.Outcomes) != 0 || len(push.received()) != 0 {
		t.Fatal("dry-run still dispatched")
	}
}

func TestRunOnceRotatedTokens(t *testing.T) {
	cfg := baseConfig()
	signer := &stubSigner{outcomes: map[string]drive.Outcome{
		"tokA-00000000": {Status: drive.StatusSuccess, NewRefreshToken: "tokA-next0000"},
	}}

	summary, err := New(cfg, signer).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if summary.RotatedTokens[0] != "tokA-next0000" || summary.RotatedTokens[1] != "tokB-00000000" {
		t.Fatalf("unexpected rotated tokens %v", summary.RotatedTokens)
	}
}

func TestInitServicesSkipsUnconfiguredChannel(t *testing.T) {
	cfg := baseConfig()
	cfg.PushChannels = "telegram,pushplus"
	cfg.TelegramBotToken = "tok" // chat id missing: telegram unusable
	cfg.PushPlusToken = "pptok"

	d := New(cfg, &stubSigner{})
	names := d.Dispatcher().Names()
	if len(names) != 1 || names[0] != "PushPlus" {
		t.Fatalf("expected only PushPlus registered, got %v", names)
	}
}

func TestInitServicesSkipsMailWithoutCredentials(t *testing.T) {
	cfg := baseConfig()
	cfg.PushChannels = "mail"
	cfg.SMTPHost = "smtp.example.com"
	cfg.SMTPPort = 465
	cfg.SMTPSender = "from@example.com"
	cfg.SMTPReceiver = "to@example.com"
	// user and pass left empty: mail unusable

	d := New(cfg, &stubSigner{})
	if d.Dispatcher().Len() != 0 {
		t.Fatalf("mail channel without credentials registered: %v", d.Dispatcher().Names())
	}

	cfg.SMTPUser = "from@example.com"
	cfg.SMTPPass = "secret"
	d = New(cfg, &stubSigner{})
	if names := d.Dispatcher().Names(); len(names) != 1 || names[0] != "Email" {
		t.Fatalf("expected Email registered, got %v", names)
	}
}

func TestInitServicesIgnoresUnselectedChannel(t *testing.T) {
	cfg := baseConfig()
	cfg.PushPlusToken = "pptok" // configured but not selected
	d := New(cfg, &stubSigner{})
	if d.Dispatcher().Len() != 0 {
		t.Fatalf("unselected channel registered: %v", d.Dispatcher().Names())
	}
}

func TestShouldNotifyLevels(t *testing.T) {
	failed := []runner.Result{{Outcome: drive.Outcome{Status: drive.StatusFailed}}}
	clean := []runner.Result{{Outcome: drive.Outcome{Status: drive.StatusSuccess}}}

	tests := []struct {
		level   string
		results []runner.Result
		want    bool
	}{
		{"all", clean, true},
		{"all", failed, true},
		{"failure", clean, false},
		{"failure", failed, true},
		{"none", failed, false},
		{"", clean, true},
	}
	for _, tt := range tests {
		cfg := baseConfig()
		cfg.NotificationLevel = tt.level
		d := New(cfg, &stubSigner{})
		if got := d.shouldNotify(tt.results); got != tt.want {
			t.Errorf("level %q: expected %v, got %v", tt.level, tt.want, got)
		}
	}
}

func TestStartStopInterval(t *testing.T) {
	cfg := baseConfig()
	cfg.Interval = 50 * time.Millisecond
	d := New(cfg, &stubSigner{})

	done := make(chan struct{})
	go func() {
		d.Start()
		close(done)
	}()

	time.Sleep(120 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d.Stop(ctx)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("daemon did not stop")
	}
}
