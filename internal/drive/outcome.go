package drive

// Status classifies the result of one account's sign-in attempt.
type Status int

const (
	// StatusFailed covers everything from transport errors to rejected tokens.
	StatusFailed Status = iota
	// StatusSuccess means today's sign-in was recorded by this run.
	StatusSuccess
	// StatusAlreadySigned means the account had already signed in today.
	// Not an error: the day's credit exists, there is nothing to retry.
	StatusAlreadySigned
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusAlreadySigned:
		return "already signed in"
	default:
		return "failed"
	}
}

// Outcome is the structured result of one sign-in attempt. Produced once by
// Client.SignIn and never mutated afterwards.
type Outcome struct {
	Status Status
	// SignInCount is the month-to-date sign-in total reported by the API.
	SignInCount int
	// Reward describes today's sign-in reward, empty when there was none.
	Reward string
	// UserName is the account display name from the token exchange, when known.
	UserName string
	// NewRefreshToken is the rotated token from the exchange; callers that
	// persist credentials should store it in place of the one they sent.
	NewRefreshToken string
	// Reason holds the failure detail when Status is StatusFailed.
	Reason string
}

// failure builds a StatusFailed outcome with the given reason.
func failure(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}
