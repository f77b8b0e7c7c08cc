package pvoutput

import (
	log "github.com/sirupsen/logrus"
)

// timeWalker advances the (prevPost, nextPost, dayStart) tuple after a
// successful post or a recognised skip.
type timeWalker struct {
	interval int64
	zone     Zone
}

// advance moves the tuple forward by increments periods of the report
// interval, handling day-end sentinels and day-boundary crossings. The
// label is diagnostic only.
func (w timeWalker) advance(prevPost, nextPost, dayStart int64, increments int64, label string) (int64, int64, int64) {
	if increments < 1 {
		increments = 1
	}

	if w.zone.IsDayEnd(nextPost) {
		// The sentinel just closed the day. Move one second to the new
		// day's midnight; prevPost stays so the first power sample of the
		// new day is computed against the last report of the old one.
		nextPost++
		dayStart = w.zone.DayStart(nextPost, w.interval)
		log.Debugf("pvoutput: advance (%s): sentinel complete, next post %s", label, w.zone.FormatLocal(nextPost))
		return prevPost, nextPost, dayStart
	}

	raw := nextPost + increments*w.interval
	if !w.zone.SameLocalDay(raw, nextPost) {
		sentinel := w.zone.MidnightUTC(raw) - 1
		if w.zone.SameLocalDay(sentinel, prevPost) {
			// The closing day has real data behind it; a 23:59:59 post is
			// required to close its daily bucket. The just-completed post
			// becomes the power reference for the sentinel.
			prevPost = nextPost
			nextPost = sentinel
			log.Debugf("pvoutput: advance (%s): day-end sentinel due at %s", label, w.zone.FormatLocal(nextPost))
		} else {
			// The skipped day carried no data; no sentinel, straight to the
			// new day's midnight.
			nextPost = sentinel + 1
			prevPost = nextPost - w.interval
			log.Debugf("pvoutput: advance (%s): skipping empty day, next post %s", label, w.zone.FormatLocal(nextPost))
		}
	} else {
		nextPost = raw
		prevPost = nextPost - w.interval
	}

	dayStart = w.zone.DayStart(nextPost, w.interval)
	return prevPost, nextPost, dayStart
}
