package pvoutput

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gridwatch/energy-monitor/internal/asynchttp"
	"github.com/gridwatch/energy-monitor/internal/datalog"
	"github.com/gridwatch/energy-monitor/internal/scheduler"
)

// Batch and buffer limits imposed by the remote.
const (
	MaxBatchEntries  = 30
	RequestDataLimit = 4000

	// The remote rejects data older than 14 days; keep a day of margin.
	MaxPastPostTime = 13 * 24 * 3600

	requestPrefix = "c1=0&n=0&data="
)

// State is the uploader's position in its cooperative loop.
type State int

const (
	StateStopped State = iota
	StateStopping
	StateInitialize
	StateQueryGetStatus
	StateQueryGetStatusWait
	StateCollateData
	StatePostData
	StatePostDataWait
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStopping:
		return "STOPPING"
	case StateInitialize:
		return "INITIALIZE"
	case StateQueryGetStatus:
		return "QUERY_GET_STATUS"
	case StateQueryGetStatusWait:
		return "QUERY_GET_STATUS_WAIT"
	case StateCollateData:
		return "COLLATE_DATA"
	case StatePostData:
		return "POST_DATA"
	case StatePostDataWait:
		return "POST_DATA_WAIT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// LogReader is the read-only energy log view the uploader consumes.
type LogReader interface {
	IsOpen() bool
	FirstKey() (int64, error)
	LastKey() (int64, error)
	ReadAtOrBefore(t int64) (*datalog.Record, error)
	ReadFirstAfter(t int64) (*datalog.Record, error)
}

// Deps are the uploader's external collaborators. Zero-value fields get
// production defaults in New.
type Deps struct {
	Log      LogReader
	Slots    *asynchttp.SlotManager
	Channels []InputChannel
	Zone     Zone
	BaseURL  string
	Now      func() int64
	ClockOK  func() bool
	// NewSender builds the HTTP sender for a config's timeout; swappable in
	// tests.
	NewSender func(timeout time.Duration) Sender
}

type controlMsg struct {
	cfg  *Config
	stop bool
}

// Uploader is the PVOutput reporting service. There is exactly one; all
// mutation happens inside Tick, which the cooperative scheduler serialises.
type Uploader struct {
	mu sync.Mutex

	deps   Deps
	sender Sender

	queue *scheduler.Queue
	sb    *scheduler.ServiceBlock

	// Control mailbox, drained at tick entry.
	control      []controlMsg
	haveConfig   bool
	lastRevision int

	config Config
	state  State

	unixDayStart int64
	unixPrevPost int64
	unixNextPost int64

	reqData    string
	reqEntries int
	retryCount int

	mainsReversed bool
	solarReversed bool

	req HTTPRequest
}

// New creates the uploader. The service block is created on the first
// accepted config.
func New(deps Deps) *Uploader {
	if deps.BaseURL == "" {
		deps.BaseURL = "http://pvoutput.org"
	}
	if deps.Now == nil {
		deps.Now = func() int64 { return time.Now().Unix() }
	}
	if deps.ClockOK == nil {
		deps.ClockOK = func() bool { return true }
	}
	if deps.NewSender == nil {
		deps.NewSender = NewAsyncSender
	}
	return &Uploader{deps: deps, state: StateStopped}
}

// Attach binds the uploader to the scheduler queue it runs on.
func (u *Uploader) Attach(q *scheduler.Queue) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.queue = q
}

// SetConfig applies a configuration document. An invalid document stops the
// service and returns the validation error. An identical revision is a
// no-op. Otherwise the running service is stopped, reconfigured, and
// restarted from INITIALIZE.
func (u *Uploader) SetConfig(cfg Config) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := cfg.Validate(); err != nil {
		u.control = append(u.control, controlMsg{stop: true})
		u.wakeService()
		return err
	}
	if u.haveConfig && cfg.Revision == u.lastRevision {
		log.Debugf("pvoutput: config revision %d unchanged, ignoring", cfg.Revision)
		return nil
	}
	u.haveConfig = true
	u.lastRevision = cfg.Revision
	u.control = append(u.control, controlMsg{cfg: &cfg})

	if u.queue != nil {
		if u.sb == nil {
			u.sb = u.queue.NewService("pvoutput", scheduler.PriorityMed, u.Tick)
		} else {
			u.wakeService()
		}
	}
	return nil
}

// Stop requests an orderly stop; observable one tick later.
func (u *Uploader) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.control = append(u.control, controlMsg{stop: true})
	u.wakeService()
}

// wakeService reschedules the (possibly descheduled) service block for the
// next pass. Callers hold u.mu.
func (u *Uploader) wakeService() {
	if u.sb != nil && u.queue != nil {
		u.queue.Wake(u.sb)
	}
}

// Tick runs one cooperative step. The return value is the scheduler timing
// hint: 0 = deschedule, 1 = next pass, else an absolute UNIX time.
func (u *Uploader) Tick(sb *scheduler.ServiceBlock) int64 {
	u.mu.Lock()
	defer u.mu.Unlock()

	now := u.deps.Now()
	u.drainControl()

	switch u.state {
	case StateStopped:
		return 0
	case StateStopping:
		u.state = StateStopped
		log.Infof("pvoutput: stopped")
		return 0
	case StateInitialize:
		return u.tickInitialize(sb, now)
	case StateQueryGetStatus:
		return u.tickQueryStatus(now)
	case StateQueryGetStatusWait:
		return u.tickQueryStatusWait(now)
	case StateCollateData:
		return u.tickCollate(now)
	case StatePostData:
		return u.tickPost(now)
	case StatePostDataWait:
		return u.tickPostWait(now)
	}
	return 1
}

// drainControl consumes the mailbox. Callers hold u.mu.
func (u *Uploader) drainControl() {
	msgs := u.control
	u.control = nil
	for _, m := range msgs {
		switch {
		case m.cfg != nil:
			u.abortRequest()
			u.resetSession()
			u.config = *m.cfg
			u.sender = u.deps.NewSender(time.Duration(m.cfg.HTTPTimeout) * time.Millisecond)
			u.state = StateInitialize
			log.Infof("pvoutput: (re)starting with config revision %d", m.cfg.Revision)
		case m.stop:
			u.abortRequest()
			u.resetSession()
			if u.state != StateStopped {
				u.state = StateStopping
			}
		}
	}
}

// resetSession clears everything learned or buffered since the last start.
func (u *Uploader) resetSession() {
	u.reqData = ""
	u.reqEntries = 0
	u.retryCount = 0
	u.mainsReversed = false
	u.solarReversed = false
	u.unixDayStart = 0
	u.unixPrevPost = 0
	u.unixNextPost = 0
}

// abortRequest cancels any in-flight exchange and returns its slot.
// Idempotent. Callers hold u.mu.
func (u *Uploader) abortRequest() {
	if u.req != nil {
		u.req.Abort()
		u.req = nil
		u.deps.Slots.Release()
	}
}

func (u *Uploader) tickInitialize(sb *scheduler.ServiceBlock, now int64) int64 {
	if !u.deps.ClockOK() {
		log.Infof("pvoutput: clock not yet running, delaying service 5s")
		return now + 5
	}
	if !u.deps.Log.IsOpen() {
		log.Infof("pvoutput: datalog not yet open, delaying service 5s")
		return now + 5
	}

	// Let the datalog service run ahead of this one from here on.
	sb.Priority = scheduler.PriorityLow

	log.Infof("pvoutput: started")
	log.Infof("pvoutput:    reportInterval: %d", u.config.ReportInterval)
	log.Infof("pvoutput:    systemId: %d", u.config.SystemID)
	log.Infof("pvoutput:    mainsChannel: %d", u.config.MainsChannel)
	log.Infof("pvoutput:    solarChannel: %d", u.config.SolarChannel)
	log.Infof("pvoutput:    httpTimeout: %dms", u.config.HTTPTimeout)
	log.Infof("pvoutput:    bulkSend: %d", u.config.BulkSend)

	u.state = StateQueryGetStatus
	return 1
}

func (u *Uploader) tickQueryStatus(now int64) int64 {
	if err := u.deps.Slots.Acquire(); err != nil {
		log.Debugf("pvoutput: getstatus deferred: %v", err)
		return now + 1
	}

	req, err := u.sender.Send("GET", u.deps.BaseURL+"/service/r2/getstatus.jsp", u.headers(false), "")
	if err != nil {
		u.deps.Slots.Release()
		log.Warnf("pvoutput: getstatus send failed: %v", err)
		return now + 5
	}
	u.req = req
	u.state = StateQueryGetStatusWait
	return now + 1
}

func (u *Uploader) tickQueryStatusWait(now int64) int64 {
	if !u.req.Done() {
		return now + 1
	}
	req := u.req
	u.req = nil
	u.deps.Slots.Release()

	if err := req.Err(); err != nil {
		log.Warnf("pvoutput: getstatus transport failed: %v", err)
		u.state = StateQueryGetStatus
		return now + 5
	}

	interval := int64(u.config.ReportInterval)
	status, body := req.StatusCode(), req.Body()

	if status == 200 {
		last, err := ParseStatus(body, u.deps.Zone)
		if err != nil {
			log.Warnf("pvoutput: getstatus parse failed: %v", err)
			u.state = StateQueryGetStatus
			return now + 1
		}
		u.initFromStatus(last)
		u.logSchedule(now)
		u.state = StateCollateData
		return 1
	}

	switch perr := Classify(status, body); perr {
	case ErrNoStatus:
		// Brand-new remote system: start far enough back to be useful but
		// inside the postable window.
		prev := now - MaxPastPostTime + 2*interval
		prev -= prev % interval
		u.unixPrevPost = prev
		u.unixNextPost = prev + interval
		u.unixDayStart = u.deps.Zone.DayStart(u.unixNextPost, interval)
		log.Infof("pvoutput: remote has no status yet, starting from %s", u.deps.Zone.FormatLocal(u.unixPrevPost))
		u.logSchedule(now)
		u.state = StateCollateData
		return 1
	case ErrRateLimit:
		log.Warnf("pvoutput: getstatus rate limited, retrying in %ds", interval)
		u.state = StateQueryGetStatus
		return now + interval
	default:
		log.Warnf("pvoutput: getstatus failed: %s code %d: %s", perr, status, body)
		u.state = StateQueryGetStatus
		return now + 1
	}
}

// initFromStatus derives the post schedule from the remote's last status
// time.
func (u *Uploader) initFromStatus(last int64) {
	interval := int64(u.config.ReportInterval)
	if u.deps.Zone.IsDayEnd(last) {
		// The remote already holds the previous day's closing sentinel.
		u.unixNextPost = last + 1
		u.unixPrevPost = u.unixNextPost - interval
	} else {
		// The next post lands on the first interval boundary strictly after
		// the last one; prevPost may be off-grid after an interval change
		// and the first period simply covers the remainder.
		u.unixPrevPost = last
		u.unixNextPost = last + interval - last%interval
	}
	u.unixDayStart = u.deps.Zone.DayStart(u.unixNextPost, interval)
}

func (u *Uploader) logSchedule(now int64) {
	z := u.deps.Zone
	log.Infof("pvoutput: next post at %s (%d), day start %s (%d), previous post %s (%d), now %s (%d)",
		z.FormatLocal(u.unixNextPost), u.unixNextPost,
		z.FormatLocal(u.unixDayStart), u.unixDayStart,
		z.FormatLocal(u.unixPrevPost), u.unixPrevPost,
		z.FormatLocal(now), now)
}

func (u *Uploader) tickCollate(now int64) int64 {
	lastKey, err := u.deps.Log.LastKey()
	if err != nil {
		return now + 1
	}

	if u.reqEntries < MaxBatchEntries && len(u.reqData) < RequestDataLimit &&
		u.unixNextPost <= lastKey {
		ok, retry := u.collect(now)
		if !ok {
			return retry
		}
		return 1
	}

	if u.readyToPost(now) {
		if u.deps.Slots.Free() > 0 {
			u.state = StatePostData
			return 1
		}
		return now + 1
	}

	if u.unixNextPost <= now {
		// The log has not caught up to the post time yet.
		return now + 1
	}
	return u.unixNextPost
}

func (u *Uploader) readyToPost(now int64) bool {
	if u.reqEntries == 0 {
		return false
	}
	return (u.reqEntries >= u.config.BulkSend && u.unixNextPost >= now) ||
		u.reqEntries >= MaxBatchEntries ||
		len(u.reqData) >= RequestDataLimit
}

// collect advances exactly one logical step: skip an unpostable period,
// skip an empty one, or encode one entry. Returns false with a retry time
// when a required record is unavailable.
func (u *Uploader) collect(now int64) (bool, int64) {
	interval := int64(u.config.ReportInterval)

	if u.unixNextPost+MaxPastPostTime < now {
		periods := (now-MaxPastPostTime-u.unixNextPost)/interval + 1
		log.Warnf("pvoutput: %s is beyond the postable window, skipping %d periods",
			u.deps.Zone.FormatLocal(u.unixNextPost), periods)
		u.advance(periods, "unpostable")
		return true, 0
	}

	prevRec, err := u.deps.Log.ReadAtOrBefore(u.unixPrevPost)
	if err != nil {
		return false, now + 1
	}

	var additional int64
	if u.deps.Zone.IsDayEnd(u.unixNextPost) {
		additional = 1
	}
	nextRec, err := u.deps.Log.ReadAtOrBefore(u.unixNextPost + additional)
	if err != nil {
		return false, now + 1
	}

	if nextRec.LogHours == prevRec.LogHours && u.deps.Zone.SecondOfDay(u.unixNextPost) != 0 {
		periods := u.missingPeriods(u.unixNextPost)
		log.Infof("pvoutput: no data logged for %s, skipping %d periods",
			u.deps.Zone.FormatLocal(u.unixNextPost), periods)
		u.advance(periods, "empty period")
		return true, 0
	}

	dayRec, err := u.deps.Log.ReadAtOrBefore(u.unixDayStart)
	if err != nil {
		return false, now + 1
	}

	prev := toPartial(prevRec, &u.config, u.deps.Channels)
	next := toPartial(nextRec, &u.config, u.deps.Channels)
	day := toPartial(dayRec, &u.config, u.deps.Channels)

	entry, mainsRev, solarRev := calculateEntry(u.unixNextPost, prev, next, day,
		u.mainsReversed, u.solarReversed)
	u.mainsReversed, u.solarReversed = mainsRev, solarRev

	encoded := EncodeEntry(entry, u.deps.Zone)
	if u.reqEntries == 0 {
		u.reqData = requestPrefix + encoded
	} else {
		u.reqData += ";" + encoded
	}
	u.reqEntries++

	u.advance(1, "collected")
	return true, 0
}

// missingPeriods computes how many whole periods the log's next record skips
// past t, minus one when the gap is an exact multiple of the interval, and at
// least 1. For an exact multiple the next post lands one period before the
// record; the following collection pass steps onto it.
func (u *Uploader) missingPeriods(t int64) int64 {
	interval := int64(u.config.ReportInterval)
	rec, err := u.deps.Log.ReadFirstAfter(t)
	if err != nil {
		return 1
	}
	delta := rec.UnixTime - t
	periods := delta / interval
	if delta%interval == 0 {
		periods--
	}
	if periods < 1 {
		periods = 1
	}
	return periods
}

func (u *Uploader) advance(periods int64, label string) {
	w := timeWalker{interval: int64(u.config.ReportInterval), zone: u.deps.Zone}
	u.unixPrevPost, u.unixNextPost, u.unixDayStart =
		w.advance(u.unixPrevPost, u.unixNextPost, u.unixDayStart, periods, label)
}

func (u *Uploader) tickPost(now int64) int64 {
	if err := u.deps.Slots.Acquire(); err != nil {
		log.Debugf("pvoutput: post deferred: %v", err)
		return now + 1
	}

	req, err := u.sender.Send("POST", u.deps.BaseURL+"/service/r2/addbatchstatus.jsp",
		u.headers(true), u.reqData)
	if err != nil {
		u.deps.Slots.Release()
		log.Warnf("pvoutput: post send failed: %v", err)
		return now + 5
	}
	u.req = req
	u.state = StatePostDataWait
	return now + 1
}

func (u *Uploader) tickPostWait(now int64) int64 {
	if !u.req.Done() {
		return now + 1
	}
	req := u.req
	u.req = nil
	u.deps.Slots.Release()

	if err := req.Err(); err != nil {
		log.Warnf("pvoutput: post transport failed, resending in 5s: %v", err)
		u.state = StatePostData
		return now + 5
	}

	interval := int64(u.config.ReportInterval)
	status, body := req.StatusCode(), req.Body()

	if status == 200 {
		log.Debugf("pvoutput: posted %d entries", u.reqEntries)
		u.retryCount = 0
		u.resetRequestData()
		u.state = StateCollateData
		return 1
	}

	perr := Classify(status, body)
	switch {
	case perr.Skippable():
		log.Warnf("pvoutput: remote refused %d entries (%s), skipping: %s", u.reqEntries, perr, body)
		u.retryCount = 0
		u.resetRequestData()
		u.state = StateCollateData
		return 1
	case perr.UnlimitedRetry():
		u.retryCount++
		log.Warnf("pvoutput: post failed (%s), retry %d in %ds", perr, u.retryCount, interval)
		u.state = StatePostData
		return now + interval
	default:
		if u.config.MaxRetryCount < 0 || u.retryCount < u.config.MaxRetryCount {
			u.retryCount++
			log.Warnf("pvoutput: post failed (%s code %d), retry %d in %ds: %s",
				perr, status, u.retryCount, interval, body)
			u.state = StatePostData
			return now + interval
		}
		log.Errorf("pvoutput: dropping %d entries after %d failed posts: code %d: %s",
			u.reqEntries, u.retryCount, status, body)
		u.retryCount = 0
		u.resetRequestData()
		u.state = StateCollateData
		return 1
	}
}

func (u *Uploader) resetRequestData() {
	u.reqData = ""
	u.reqEntries = 0
}

func (u *Uploader) headers(post bool) map[string]string {
	h := map[string]string{
		"Host":                "pvoutput.org",
		"X-Pvoutput-Apikey":   u.config.APIKey,
		"X-Pvoutput-SystemId": strconv.Itoa(u.config.SystemID),
	}
	if post {
		h["Content-Type"] = "application/x-www-form-urlencoded"
	}
	return h
}
