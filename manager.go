package remoteplay

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var nopLogger = zap.NewNop().Sugar()

// DownloadManager owns the download tasks of every resource currently being
// accessed. All task state is mutated by a single loop (see Run); producers
// only talk to it through a bounded message queue.
type DownloadManager struct {
	// Client is the http client used to access urls to be downloaded
	Client *http.Client

	// Logger receives debug and error messages. Nil disables logging.
	Logger *zap.SugaredLogger

	// TickInterval is how often pending requests are processed. Default is 50ms
	TickInterval time.Duration

	// IdleChunkSize is the amount of data read per task on ticks without any
	// pending read request. Default is 2048 bytes
	IdleChunkSize int

	// MaxStreamsPerTask is the maximum number of range connections kept open
	// for a single resource. The least recently used one is closed when a new
	// connection is needed. Default is 4
	MaxStreamsPerTask int

	// MaxConcurrentTasks limits how many resources are served in parallel
	// during a tick. Default is 8
	MaxConcurrentTasks int

	// OpenAttempts is the number of ticks a read request is retried when its
	// range connection cannot be established. Default is 3
	OpenAttempts int

	// UserAgent, if set, is sent with every request.
	UserAgent string

	// RejectZeroPayload makes a read that returns only zero bytes fail. Some
	// upstreams answer with zero-filled bodies instead of an error.
	RejectZeroPayload bool

	ingress chan message
	wake    chan struct{}
	replies chan Reply
	done    chan struct{}
	running atomic.Bool
	nextID  atomic.Uint64

	// only accessed from the loop
	tasks   map[string]*downloadTask
	pending []*pendingRead
}

type pendingRead struct {
	req      ReadRequest
	attempts int

	// result of the current tick
	data []byte
	done bool
}

func NewDownloadManager() *DownloadManager {
	return &DownloadManager{
		Client:             newHTTPClient(),
		TickInterval:       50 * time.Millisecond,
		IdleChunkSize:      2048,
		MaxStreamsPerTask:  4,
		MaxConcurrentTasks: 8,
		OpenAttempts:       3,
		RejectZeroPayload:  true,
		ingress:            make(chan message, 64),
		wake:               make(chan struct{}, 1),
		replies:            make(chan Reply, 64),
		done:               make(chan struct{}),
		tasks:              make(map[string]*downloadTask),
	}
}

func (dlm *DownloadManager) log() *zap.SugaredLogger {
	if dlm.Logger == nil {
		return nopLogger
	}
	return dlm.Logger
}

func (dlm *DownloadManager) client() *http.Client {
	if dlm.Client == nil {
		return http.DefaultClient
	}
	return dlm.Client
}

// Run processes requests until ctx is cancelled. Open connections are closed
// before it returns, and any later request fails with ErrManagerStopped.
func (dlm *DownloadManager) Run(ctx context.Context) error {
	if !dlm.running.CompareAndSwap(false, true) {
		return errors.New("remoteplay: download manager already running")
	}
	defer close(dlm.done)
	defer dlm.shutdown()

	interval := dlm.TickInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			dlm.tick(ctx)
		case <-dlm.wake:
			dlm.serve(ctx)
		}
	}
}

// Replies returns the channel on which answers to Read are delivered.
func (dlm *DownloadManager) Replies() <-chan Reply {
	return dlm.replies
}

// Read queues req and returns the ID that the matching Reply will carry.
func (dlm *DownloadManager) Read(ctx context.Context, req ReadRequest) (uint64, error) {
	req.reply = nil
	return dlm.submitRead(ctx, req)
}

// Remove drops the in-memory state of a resource, including its open
// connections and any read request not answered yet.
func (dlm *DownloadManager) Remove(ctx context.Context, resourceID string) error {
	return dlm.submit(ctx, RemoveRequest{ResourceID: resourceID})
}

// Progress reports the download state of a resource.
func (dlm *DownloadManager) Progress(ctx context.Context, resourceID string) (Progress, error) {
	ch := make(chan Progress, 1)
	if err := dlm.submit(ctx, progressRequest{resourceID: resourceID, reply: ch}); err != nil {
		return Progress{}, err
	}

	select {
	case p := <-ch:
		return p, nil
	case <-dlm.done:
		return Progress{}, ErrManagerStopped
	case <-ctx.Done():
		return Progress{}, ctx.Err()
	}
}

func (dlm *DownloadManager) submitRead(ctx context.Context, req ReadRequest) (uint64, error) {
	req.ID = dlm.nextID.Add(1)
	if err := dlm.submit(ctx, req); err != nil {
		return 0, err
	}
	return req.ID, nil
}

func (dlm *DownloadManager) submit(ctx context.Context, msg message) error {
	select {
	case <-dlm.done:
		return ErrManagerStopped
	default:
	}

	select {
	case dlm.ingress <- msg:
		dlm.notify()
		return nil
	case <-dlm.done:
		return ErrManagerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// notify wakes the loop without waiting for the next tick.
func (dlm *DownloadManager) notify() {
	select {
	case dlm.wake <- struct{}{}:
	default:
	}
}

// serve answers queued messages right away. The idle pass stays on the
// ticker so its pace does not depend on how busy the readers are.
func (dlm *DownloadManager) serve(ctx context.Context) {
	dlm.drain()
	if len(dlm.pending) > 0 {
		dlm.process(ctx)
	}
}

func (dlm *DownloadManager) tick(ctx context.Context) {
	dlm.drain()

	if len(dlm.pending) == 0 {
		dlm.idle(ctx)
		return
	}

	dlm.process(ctx)
}

// drain moves queued messages into the loop state, in arrival order.
func (dlm *DownloadManager) drain() {
	for n := len(dlm.ingress); n > 0; n-- {
		switch m := (<-dlm.ingress).(type) {
		case ReadRequest:
			dlm.pending = append(dlm.pending, &pendingRead{req: m})
		case RemoveRequest:
			dlm.remove(m.ResourceID)
		case progressRequest:
			m.reply <- dlm.progress(m.resourceID)
		}
	}
}

func (dlm *DownloadManager) remove(resourceID string) {
	pending := dlm.pending[:0]
	for _, p := range dlm.pending {
		if p.req.ResourceID != resourceID {
			pending = append(pending, p)
		}
	}
	clear(dlm.pending[len(pending):])
	dlm.pending = pending

	t, ok := dlm.tasks[resourceID]
	if !ok {
		return
	}
	t.closeStreams()
	delete(dlm.tasks, resourceID)
	dlm.log().Debugf("%s: task removed", resourceID)
}

func (dlm *DownloadManager) progress(resourceID string) Progress {
	t, ok := dlm.tasks[resourceID]
	if !ok {
		return Progress{Size: -1}
	}

	return Progress{
		Found:      true,
		Downloaded: t.buf.downloaded(),
		Size:       t.size,
		Streams:    len(t.streams),
		Cached:     t.cached,
	}
}

// process resolves the pending reads. Resources are served concurrently,
// reads of one resource one after another, and nothing is answered before
// the whole batch is done.
func (dlm *DownloadManager) process(ctx context.Context) {
	var order []*downloadTask
	groups := make(map[*downloadTask][]*pendingRead)

	for _, p := range dlm.pending {
		t := dlm.getTask(ctx, p.req)
		if _, ok := groups[t]; !ok {
			order = append(order, t)
		}
		groups[t] = append(groups[t], p)
	}

	var g errgroup.Group
	g.SetLimit(max(dlm.MaxConcurrentTasks, 1))
	for _, t := range order {
		reads := groups[t]
		g.Go(func() error {
			for _, p := range reads {
				p.data, p.done = t.satisfy(ctx, dlm, p.req)
			}
			return nil
		})
	}
	g.Wait()

	pending := dlm.pending[:0]
	for _, p := range dlm.pending {
		if !p.done {
			p.attempts++
			if p.attempts < dlm.OpenAttempts {
				pending = append(pending, p)
				continue
			}
			dlm.log().Warnf("%s: giving up on read at byte %d after %d attempts", p.req.ResourceID, p.req.Offset, p.attempts)
			p.data = nil
		}
		dlm.reply(ctx, Reply{Request: p.req, Data: p.data})
	}
	clear(dlm.pending[len(pending):])
	dlm.pending = pending
}

func (dlm *DownloadManager) reply(ctx context.Context, r Reply) {
	if ch := r.Request.reply; ch != nil {
		r.Request.reply = nil
		select {
		case ch <- r:
		default:
			dlm.log().Warnf("%s: dropping reply %d, reader is not waiting", r.Request.ResourceID, r.Request.ID)
		}
		return
	}

	select {
	case dlm.replies <- r:
	case <-ctx.Done():
	}
}

// idle moves every download forward a little while nobody is reading.
func (dlm *DownloadManager) idle(ctx context.Context) {
	if len(dlm.tasks) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(max(dlm.MaxConcurrentTasks, 1))
	for _, t := range dlm.tasks {
		g.Go(func() error {
			t.idle(ctx, dlm)
			return nil
		})
	}
	g.Wait()
}

func (dlm *DownloadManager) shutdown() {
	for id, t := range dlm.tasks {
		t.closeStreams()
		delete(dlm.tasks, id)
	}
	dlm.pending = nil
}
