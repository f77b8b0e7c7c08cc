package pvoutput

// Status is the running-state snapshot exposed through the status port.
type Status struct {
	State string `json:"state"`

	DayStart string `json:"dayStart"`
	PrevPost string `json:"prevPost"`
	NextPost string `json:"nextPost"`

	UnixDayStart int64 `json:"unixDayStart"`
	UnixPrevPost int64 `json:"unixPrevPost"`
	UnixNextPost int64 `json:"unixNextPost"`

	MainsChannelReversed bool `json:"mainsChannelReversed"`
	SolarChannelReversed bool `json:"solarChannelReversed"`

	ReqEntries int    `json:"reqEntries"`
	RetryCount int    `json:"retryCount"`
	ReqData    string `json:"reqData"`

	OutstandingHTTPRequest bool `json:"outstandingHttpRequest"`

	Config Config `json:"config"`
}

// Status returns a consistent snapshot of the uploader.
func (u *Uploader) Status() Status {
	u.mu.Lock()
	defer u.mu.Unlock()

	z := u.deps.Zone
	return Status{
		State:                  u.state.String(),
		DayStart:               z.FormatLocal(u.unixDayStart),
		PrevPost:               z.FormatLocal(u.unixPrevPost),
		NextPost:               z.FormatLocal(u.unixNextPost),
		UnixDayStart:           u.unixDayStart,
		UnixPrevPost:           u.unixPrevPost,
		UnixNextPost:           u.unixNextPost,
		MainsChannelReversed:   u.mainsReversed,
		SolarChannelReversed:   u.solarReversed,
		ReqEntries:             u.reqEntries,
		RetryCount:             u.retryCount,
		ReqData:                u.reqData,
		OutstandingHTTPRequest: u.req != nil,
		Config:                 u.config.Redacted(),
	}
}
