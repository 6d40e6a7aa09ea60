// Package runner iterates the account list and drives one sign-in per account.
package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/drivesign/drivesign/internal/account"
	"github.com/drivesign/drivesign/internal/drive"
	"github.com/drivesign/drivesign/internal/logging"
)

// Signer is the per-account sign-in call. Satisfied by *drive.Client.
type Signer interface {
	SignIn(ctx context.Context, cred account.Credential) drive.Outcome
}

// Result pairs an account's masked label with its sign-in outcome. Results
// keep the order accounts appear in the credential list.
type Result struct {
	Label   string
	Outcome drive.Outcome
}

// DisplayName prefers the account name the API reported over the masked token.
func (r Result) DisplayName() string {
	if r.Outcome.UserName != "" {
		return r.Outcome.UserName
	}
	return r.Label
}

// Runner fans sign-ins out over a bounded worker pool. workers=1 keeps the
// strictly sequential behavior the upstream API's rate limiting favors.
type Runner struct {
	signer  Signer
	workers int
}

// New builds a Runner. workers below 1 is treated as 1.
func New(signer Signer, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{signer: signer, workers: workers}
}

// Run signs every credential in, in input order. A failure on one account
// never stops the rest: panics escaping the signer are converted to a failed
// outcome for that account only. The returned slice always has one entry per
// credential, indexed like the input.
func (r *Runner) Run(ctx context.Context, creds []account.Credential) []Result {
	results := make([]Result, len(creds))

	sem := make(chan struct{}, r.workers)
	var wg sync.WaitGroup
	for i, cred := range creds {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, cred account.Credential) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = Result{Label: cred.Label(), Outcome: r.signOne(ctx, cred)}
		}(i, cred)
	}
	wg.Wait()

	return results
}

// signOne converts a panicking signer into a failed outcome so the rest of
// the batch still runs.
func (r *Runner) signOne(ctx context.Context, cred account.Credential) (out drive.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Get().Error().Str("account", cred.Label()).Interface("panic", rec).Msg("sign-in panicked")
			out = drive.Outcome{Status: drive.StatusFailed, Reason: fmt.Sprintf("unexpected error: %v", rec)}
		}
	}()
	return r.signer.SignIn(ctx, cred)
}

// Failed counts results whose sign-in did not complete. Already-signed-in is
// not a failure.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Outcome.Status == drive.StatusFailed {
			n++
		}
	}
	return n
}

// RotatedTokens returns the refresh-token list after this run, one entry per
// account in input order. Accounts whose exchange never happened keep their
// original token so the stored list stays usable.
func RotatedTokens(creds []account.Credential, results []Result) []string {
	tokens := make([]string, len(creds))
	for i, cred := range creds {
		tokens[i] = cred.Token()
		if i < len(results) && results[i].Outcome.NewRefreshToken != "" {
			tokens[i] = results[i].Outcome.NewRefreshToken
		}
	}
	return tokens
}
