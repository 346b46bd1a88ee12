package jobs

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nirmal141/nvidiaxdell-hack/pkg/enums"
	pkgerrors "github.com/nirmal141/nvidiaxdell-hack/pkg/errors"
)

// Event is one progress notification fanned out to subscribers. Terminal
// events (completed, failed, cancelled) are the last a subscriber sees.
type Event struct {
	JobID       uuid.UUID      `json:"job_id"`
	VideoID     uuid.UUID      `json:"video_id"`
	State       enums.JobState `json:"state"`
	CurrentUnit int            `json:"current_unit"`
	TotalUnits  int            `json:"total_units"`
	Message     string         `json:"message,omitempty"`
	Error       string         `json:"error,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

const subscriberBuffer = 16

type job struct {
	id        uuid.UUID
	videoID   uuid.UUID
	state     enums.JobState
	total     int
	current   int
	message   string
	errMsg    string
	startedAt time.Time
	updatedAt time.Time
}

// Registry tracks the one active ingestion job allowed per video and fans
// progress out to websocket subscribers. Jobs live in process memory only;
// durable status lives on the video row.
type Registry struct {
	mu      sync.Mutex
	active  map[uuid.UUID]*job
	subs    map[uuid.UUID]map[int]chan Event
	nextSub int
}

// NewRegistry builds an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[uuid.UUID]*job),
		subs:   make(map[uuid.UUID]map[int]chan Event),
	}
}

// Handle is the pipeline's writing end for one job.
type Handle struct {
	registry *Registry
	videoID  uuid.UUID
	id       uuid.UUID
}

// Start registers a new running job for the video. A second start while a
// job is live returns a conflict.
func (r *Registry) Start(videoID uuid.UUID) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.active[videoID]; ok && !existing.state.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "video is already being processed")
	}

	now := time.Now()
	j := &job{
		id:        uuid.New(),
		videoID:   videoID,
		state:     enums.JobStateRunning,
		startedAt: now,
		updatedAt: now,
	}
	r.active[videoID] = j
	r.publishLocked(j)
	return &Handle{registry: r, videoID: videoID, id: j.id}, nil
}

// ID returns the job identifier.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// SetTotal records the unit count once the pipeline has measured the video.
func (h *Handle) SetTotal(total int) {
	h.registry.update(h, func(j *job) {
		j.total = total
	})
}

// Progress advances the current unit. Regressions are ignored so every
// subscriber observes a non-decreasing unit counter.
func (h *Handle) Progress(current int, message string) {
	h.registry.update(h, func(j *job) {
		if current > j.current {
			j.current = current
		}
		j.message = message
	})
}

// CancelRequested reports whether a stop has been requested. The pipeline
// checks this between units.
func (h *Handle) CancelRequested() bool {
	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()
	j, ok := h.registry.active[h.videoID]
	if !ok || j.id != h.id {
		return true
	}
	return j.state == enums.JobStateCancelling
}

// Complete marks the job done and detaches it from the registry.
func (h *Handle) Complete(message string) {
	h.finish(enums.JobStateCompleted, message, "")
}

// Fail marks the job failed with the given error text.
func (h *Handle) Fail(errMsg string) {
	h.finish(enums.JobStateFailed, "", errMsg)
}

// Cancelled acknowledges a stop request; the pipeline calls it after the
// last in-flight unit has settled.
func (h *Handle) Cancelled() {
	h.finish(enums.JobStateCancelled, "processing stopped", "")
}

func (h *Handle) finish(state enums.JobState, message, errMsg string) {
	r := h.registry
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.active[h.videoID]
	if !ok || j.id != h.id {
		return
	}
	j.state = state
	j.message = message
	j.errMsg = errMsg
	j.updatedAt = time.Now()
	r.publishLocked(j)
	delete(r.active, h.videoID)
	r.closeSubscribersLocked(h.videoID)
}

func (r *Registry) update(h *Handle, mutate func(*job)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.active[h.videoID]
	if !ok || j.id != h.id {
		return
	}
	mutate(j)
	j.updatedAt = time.Now()
	r.publishLocked(j)
}

// RequestCancel flips a running job to cancelling. It reports false when no
// job is live, which callers treat as an idempotent no-op.
func (r *Registry) RequestCancel(videoID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.active[videoID]
	if !ok || j.state.IsTerminal() {
		return false
	}
	if j.state == enums.JobStateRunning {
		j.state = enums.JobStateCancelling
		j.updatedAt = time.Now()
		r.publishLocked(j)
	}
	return true
}

// Snapshot returns the current state of the active job for a video.
func (r *Registry) Snapshot(videoID uuid.UUID) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.active[videoID]
	if !ok {
		return Event{}, false
	}
	return j.event(), true
}

// Subscribe registers a progress listener for a video. The returned cancel
// func is safe to call more than once; the channel closes on terminal events.
func (r *Registry) Subscribe(videoID uuid.UUID) (<-chan Event, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if r.subs[videoID] == nil {
		r.subs[videoID] = make(map[int]chan Event)
	}
	id := r.nextSub
	r.nextSub++
	r.subs[videoID][id] = ch

	// replay current state so late subscribers see where the job is
	if j, ok := r.active[videoID]; ok {
		ch <- j.event()
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if set, ok := r.subs[videoID]; ok {
				if _, live := set[id]; live {
					delete(set, id)
					close(ch)
				}
				if len(set) == 0 {
					delete(r.subs, videoID)
				}
			}
		})
	}
	return ch, cancel
}

// publishLocked fans the job state out without blocking the pipeline. A full
// subscriber buffer sheds its oldest event to make room, so a slow reader
// skips intermediate updates but always holds the newest one. The terminal
// event therefore survives the channel close that follows it.
func (r *Registry) publishLocked(j *job) {
	event := j.event()
	for _, ch := range r.subs[j.videoID] {
		sendNewest(ch, event)
	}
}

// sendNewest delivers event, discarding buffered entries when the channel is
// full. All sends happen under the registry mutex, so the loop terminates.
func sendNewest(ch chan Event, event Event) {
	for {
		select {
		case ch <- event:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func (r *Registry) closeSubscribersLocked(videoID uuid.UUID) {
	for id, ch := range r.subs[videoID] {
		close(ch)
		delete(r.subs[videoID], id)
	}
	delete(r.subs, videoID)
}

func (j *job) event() Event {
	return Event{
		JobID:       j.id,
		VideoID:     j.videoID,
		State:       j.state,
		CurrentUnit: j.current,
		TotalUnits:  j.total,
		Message:     j.message,
		Error:       j.errMsg,
		Timestamp:   j.updatedAt,
	}
}
