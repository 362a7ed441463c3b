package assistant

// Status tags the outcome of one completion call. Provider failures are
// never surfaced as errors; they collapse into one of these variants so
// the end user always receives natural-language text.
type Status int

const (
	StatusOK Status = iota
	StatusBillingExhausted
	StatusDailyQuotaExceeded
	StatusHighDemand
	StatusUnprocessable
	StatusExhausted
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBillingExhausted:
		return "billing_exhausted"
	case StatusDailyQuotaExceeded:
		return "daily_quota_exceeded"
	case StatusHighDemand:
		return "high_demand"
	case StatusUnprocessable:
		return "unprocessable"
	case StatusExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// User-facing renderings for each failure variant. Callers that only
// display text rely on these exact strings; do not reword them.
const (
	MsgBillingExhausted   = "AI service billing limit reached. Please check the provider account or try again later."
	MsgDailyQuotaExceeded = "The AI service's daily limit has been reached. Please try again tomorrow."
	MsgHighDemand         = "The AI service is experiencing high demand right now. Please try again in a few minutes."
	MsgUnprocessable      = "Sorry, I couldn't process that request. Please try again."
	MsgExhausted          = "Sorry, we're experiencing technical difficulties right now. Please try again later."
)

// Result is the tagged outcome of Client.Complete. Content is only set
// for StatusOK and is already cleaned for display.
type Result struct {
	Status  Status
	Content string
	Model   string // model that produced the content, empty on failure
}

// Text renders the result as the plain string shown to the end user.
func (r Result) Text() string {
	switch r.Status {
	case StatusOK:
		return r.Content
	case StatusBillingExhausted:
		return MsgBillingExhausted
	case StatusDailyQuotaExceeded:
		return MsgDailyQuotaExceeded
	case StatusHighDemand:
		return MsgHighDemand
	case StatusUnprocessable:
		return MsgUnprocessable
	default:
		return MsgExhausted
	}
}

// OK reports whether the call produced a usable completion.
func (r Result) OK() bool { return r.Status == StatusOK }
