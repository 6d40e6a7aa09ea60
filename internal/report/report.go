// Package report renders the per-account outcomes into one message.
package report

import (
	"fmt"
	"html"
	"strings"

	"github.com/drivesign/drivesign/internal/drive"
	"github.com/drivesign/drivesign/internal/notify"
	"github.com/drivesign/drivesign/internal/runner"
)

// DefaultTitle heads every run report.
const DefaultTitle = "Aliyun Drive Sign-in"

// Format renders the results, in input order, into a channel-agnostic
// message. Pure function: identical input always yields identical text.
func Format(results []runner.Result) notify.Message {
	plain := make([]string, 0, len(results))
	rich := make([]string, 0, len(results))
	for _, r := range results {
		p, h := renderResult(r)
		plain = append(plain, p)
		rich = append(rich, h)
	}
	return notify.Message{
		Title:    DefaultTitle,
		Body:     strings.Join(plain, "\n\n"),
		HTMLBody: strings.Join(rich, "\n\n"),
	}
}

func renderResult(r runner.Result) (plain, rich string) {
	name := r.DisplayName()
	switch r.Outcome.Status {
	case drive.StatusSuccess:
		detail := fmt.Sprintf("signed in, %d days this month.\n%s", r.Outcome.SignInCount, rewardLine(r.Outcome.Reward))
		plain = fmt.Sprintf("[%s] %s", name, detail)
		rich = fmt.Sprintf("<code>%s</code> %s", html.EscapeString(name), html.EscapeString(detail))
	case drive.StatusAlreadySigned:
		detail := fmt.Sprintf("already signed in today, %d days this month.", r.Outcome.SignInCount)
		plain = fmt.Sprintf("[%s] %s", name, detail)
		rich = fmt.Sprintf("<code>%s</code> %s", html.EscapeString(name), html.EscapeString(detail))
	default:
		plain = fmt.Sprintf("[%s] sign-in failed\n%s", name, r.Outcome.Reason)
		rich = fmt.Sprintf("<code>%s</code> sign-in failed\n<code>%s</code>",
			html.EscapeString(name), html.EscapeString(r.Outcome.Reason))
	}
	return plain, rich
}

func rewardLine(reward string) string {
	if reward == "" {
		return "No reward today."
	}
	return "Today's reward: " + reward
}
