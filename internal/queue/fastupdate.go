// CRC: crc-ActionQueue.md
// Sequence: seq-fast-update.md
package queue

import "time"

// SetFastUpdateMode polls every FastUpdateInterval until an event of
// watchType arrives (any event when empty) or the window runs out.
func (q *Queue) SetFastUpdateMode(watchType string) {
	q.fastUpdate = true
	q.fastUpdateStart = q.now()
	q.fastUpdateWatch = watchType
	q.config.Log(2, "ActionQueue: fast update on, watching %q", watchType)
}

// ClearFastUpdateMode returns to normal polling.
func (q *Queue) ClearFastUpdateMode() {
	if !q.fastUpdate {
		return
	}
	q.fastUpdate = false
	q.fastUpdateWatch = ""
	q.config.Log(2, "ActionQueue: fast update off")
}

// FastUpdate reports whether fast update mode is on and what it waits for.
func (q *Queue) FastUpdate() (bool, string) {
	return q.fastUpdate, q.fastUpdateWatch
}

// ObserveEvent ends fast update mode when the awaited event arrives.
func (q *Queue) ObserveEvent(eventType string) {
	if q.fastUpdate && (q.fastUpdateWatch == "" || q.fastUpdateWatch == eventType) {
		q.ClearFastUpdateMode()
	}
}

// fastUpdateLimit is the full window with a watch type, half without one.
func (q *Queue) fastUpdateLimit() time.Duration {
	if q.fastUpdateWatch == "" {
		return q.fastUpdateWindow / 2
	}
	return q.fastUpdateWindow
}

// expireFastUpdate runs at flush time.
func (q *Queue) expireFastUpdate() {
	if q.fastUpdate && q.now().Sub(q.fastUpdateStart) > q.fastUpdateLimit() {
		q.config.Log(1, "ActionQueue: fast update for %q timed out", q.fastUpdateWatch)
		q.ClearFastUpdateMode()
	}
}
