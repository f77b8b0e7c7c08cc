package pvoutput

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		status int
		body   string
		want   PostError
	}{
		{200, "OK", ErrNone},
		{204, "", ErrNone},
		{400, "Bad request 400: Date is older than 14 days [20231001]", ErrDateTooOld},
		{400, "Bad request 400: Date is in the future [20991231]", ErrDateInFuture},
		{400, "Bad request 400: Invalid future date", ErrDateInFuture},
		{400, "Bad request 400: Moon powered [20:00]", ErrMoonPowered},
		{400, "Bad request 400: No status found", ErrNoStatus},
		{403, "Forbidden 403: Exceeded 60 requests per hour", ErrRateLimit},
		{400, "Bad request 400: something new", ErrUnmapped},
		{403, "Forbidden 403: Invalid API Key", ErrUnmapped},
		{500, "Internal server error", ErrUnmapped},
		{401, "Unauthorized", ErrUnmapped},
	}

	for _, c := range cases {
		if got := Classify(c.status, c.body); got != c.want {
			t.Errorf("Classify(%d, %q) = %s, want %s", c.status, c.body, got, c.want)
		}
	}
}

func TestErrorClassProperties(t *testing.T) {
	if !ErrDateTooOld.Skippable() || !ErrMoonPowered.Skippable() {
		t.Error("DATE_TOO_OLD and MOON_POWERED must be skippable")
	}
	if ErrRateLimit.Skippable() || ErrUnmapped.Skippable() {
		t.Error("RATE_LIMIT and UNMAPPED_ERROR must not be skippable")
	}
	if !ErrRateLimit.UnlimitedRetry() || !ErrDateInFuture.UnlimitedRetry() {
		t.Error("RATE_LIMIT and DATE_IN_FUTURE retry without budget")
	}
	if ErrUnmapped.UnlimitedRetry() {
		t.Error("UNMAPPED_ERROR honours the retry budget")
	}
}
