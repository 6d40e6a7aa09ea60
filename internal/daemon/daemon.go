// Package daemon wires the sign-in pass together: credentials in, report out.
package daemon

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/drivesign/drivesign/internal/account"
	"github.com/drivesign/drivesign/internal/config"
	"github.com/drivesign/drivesign/internal/drive"
	"github.com/drivesign/drivesign/internal/logging"
	"github.com/drivesign/drivesign/internal/metrics"
	"github.com/drivesign/drivesign/internal/notify"
	"github.com/drivesign/drivesign/internal/report"
	"github.com/drivesign/drivesign/internal/runner"
)

// Summary is the outcome of one full pass, handed back to the entry point so
// it can decide the exit status and surface rotated credentials.
type Summary struct {
	Results []runner.Result
	// Outcomes maps channel name to its delivery result. Empty when no
	// channel was configured, the level gate suppressed the push, or the
	// pass ran dry.
	Outcomes map[string]notify.Outcome
	// RotatedTokens is the refresh-token list after this pass, in input
	// order, with exchanged tokens replaced by their rotated successors.
	RotatedTokens []string
}

// Daemon runs sign-in passes, either once or on an interval.
type Daemon struct {
	cfg        *config.Config
	signer     runner.Signer
	dispatcher *notify.Dispatcher
	quit       chan struct{}
	wg         sync.WaitGroup   // tracks active passes
	Now        func() time.Time // injectable clock for testing
	cancel     func()           // cancels the active context (set at Start)
}

// New creates a daemon with an injected sign-in client. Passing nil builds
// the real drive client from the config.
func New(cfg *config.Config, signer runner.Signer) *Daemon {
	if signer == nil {
		signer = drive.New(drive.WithTimeout(cfg.SignInTimeout))
	}
	d := &Daemon{cfg: cfg, signer: signer, quit: make(chan struct{}), Now: time.Now}

	d.initServices()

	for _, w := range cfg.Validate() {
		logging.Get().Warn().Str("warning", w).Msg("config validation")
	}

	return d
}

// initServices registers every selected channel whose required fields are all
// present. A selected channel with missing fields is skipped, not attempted;
// Validate already warned about it.
func (d *Daemon) initServices() {
	d.dispatcher = notify.NewDispatcher()
	cfg := d.cfg
	entries := []struct {
		name       string
		configured bool
		add        func()
	}{
		{config.ChannelDingTalk,
			cfg.DingTalkAppKey != "" && cfg.DingTalkAppSecret != "" && cfg.DingTalkUserID != "",
			func() {
				d.dispatcher.Add(&notify.DingTalk{AppKey: cfg.DingTalkAppKey, AppSecret: cfg.DingTalkAppSecret, UserID: cfg.DingTalkUserID})
			}},
		{config.ChannelServerChan,
			cfg.ServerChanSendKey != "",
			func() {
				d.dispatcher.Add(&notify.ServerChan{SendKey: cfg.ServerChanSendKey, Endpoint: cfg.ServerChanEndpoint})
			}},
		{config.ChannelTelegram,
			cfg.TelegramBotToken != "" && cfg.TelegramChatID != "",
			func() {
				d.dispatcher.Add(&notify.Telegram{BotToken: cfg.TelegramBotToken, ChatID: cfg.TelegramChatID, Endpoint: cfg.TelegramEndpoint, Proxy: cfg.TelegramProxy})
			}},
		{config.ChannelPushPlus,
			cfg.PushPlusToken != "",
			func() {
				d.dispatcher.Add(&notify.PushPlus{Token: cfg.PushPlusToken})
			}},
		{config.ChannelMail,
			cfg.SMTPHost != "" && cfg.SMTPPort != 0 && cfg.SMTPUser != "" && cfg.SMTPPass != "" && cfg.SMTPSender != "" && cfg.SMTPReceiver != "",
			func() {
				d.dispatcher.Add(&notify.Email{
					Host: cfg.SMTPHost, Port: cfg.SMTPPort, UseTLS: cfg.SMTPTLS,
					User: cfg.SMTPUser, Pass: cfg.SMTPPass,
					Sender: cfg.SMTPSender, Receiver: cfg.SMTPReceiver,
				})
			}},
	}
	for _, e := range entries {
		if cfg.ChannelSelected(e.name) && e.configured {
			e.add()
		}
	}
}

// Dispatcher exposes the configured channel set (tests).
func (d *Daemon) Dispatcher() *notify.Dispatcher {
	return d.dispatcher
}

// RunOnce performs a single sign-in pass. The returned error is a
// configuration error only (empty credential list); account failures and
// delivery failures are recorded in the Summary, never returned.
func (d *Daemon) RunOnce(ctx context.Context) (*Summary, error) {
	started := d.Now()

	creds, err := account.Parse(d.cfg.RefreshTokens)
	if err != nil {
		return nil, err
	}

	logging.Get().Info().Int("accounts", len(creds)).Int("channels", d.dispatcher.Len()).Msg("starting sign-in pass")

	results := runner.New(d.signer, d.cfg.Workers).Run(ctx, creds)
	recordResultMetrics(results)
	metrics.SetLastRun(d.Now(), len(results))
	metrics.ObserveRunDuration(d.Now().Sub(started).Seconds())

	summary := &Summary{
		Results:       results,
		Outcomes:      map[string]notify.Outcome{},
		RotatedTokens: runner.RotatedTokens(creds, results),
	}

	if !d.shouldNotify(results) {
		logging.Get().Info().Str("level", d.cfg.NotificationLevel).Msg("notification suppressed by level")
		return summary, nil
	}
	if d.cfg.DryRun {
		logging.Get().Info().Msg("dry-run: skipping notification dispatch")
		return summary, nil
	}

	summary.Outcomes = d.dispatcher.Dispatch(ctx, report.Format(results))
	for name, out := range summary.Outcomes {
		if out.Delivered {
			metrics.IncNotifyDelivered()
			logging.Get().Info().Str("channel", name).Msg("report delivered")
		} else {
			metrics.IncNotifyFailed()
			logging.Get().Error().Str("channel", name).Str("reason", out.Reason).Msg("report delivery failed")
		}
	}

	return summary, nil
}

// shouldNotify applies the notification level gate: "all" pushes every run,
// "failure" pushes only runs where some account failed, "none" never pushes.
func (d *Daemon) shouldNotify(results []runner.Result) bool {
	switch strings.ToLower(d.cfg.NotificationLevel) {
	case "none":
		return false
	case "failure":
		return runner.Failed(results) > 0
	default:
		return true
	}
}

func recordResultMetrics(results []runner.Result) {
	for _, r := range results {
		switch r.Outcome.Status {
		case drive.StatusSuccess:
			metrics.IncSignInSuccess()
		case drive.StatusAlreadySigned:
			metrics.IncSignInAlready()
		default:
			metrics.IncSignInFailed()
		}
	}
}

// Start runs one pass per interval tick, with an immediate pass first so a
// freshly started daemon doesn't wait a full day for its first sign-in.
func (d *Daemon) Start() {
	logging.Get().Info().Dur("interval", d.cfg.Interval).Msg("starting drivesign daemon")
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	d.runPass(ctx)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			d.runPass(ctx)
		case <-d.quit:
			logging.Get().Info().Msg("stopping daemon")
			return
		}
	}
}

func (d *Daemon) runPass(ctx context.Context) {
	d.wg.Add(1)
	defer d.wg.Done()
	if _, err := d.RunOnce(ctx); err != nil {
		logging.Get().Error().Err(err).Msg("sign-in pass aborted")
	}
}

// Stop signals the daemon to stop and waits for the active pass to complete
// or the provided context to expire.
func (d *Daemon) Stop(ctx context.Context) {
	if d.cancel != nil {
		d.cancel()
	}
	close(d.quit)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logging.Get().Info().Msg("active pass completed")
	case <-ctx.Done():
		logging.Get().Warn().Msg("shutdown timeout exceeded, pass may be incomplete")
	}
}
