// Package gallery is the headless view model of the image gallery: the
// listed records, the search query and the upload flow. Front ends render
// its snapshots and forward user input to it.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atinyakov/imagedash/internal/client/debounce"
	"github.com/atinyakov/imagedash/internal/client/events"
	"github.com/atinyakov/imagedash/internal/clock"
	"github.com/atinyakov/imagedash/internal/common"
	"github.com/atinyakov/imagedash/internal/models"
	"github.com/atinyakov/imagedash/internal/service"
	"go.uber.org/zap"
)

// DefaultUploadTimeout bounds an upload as seen from the client.
const DefaultUploadTimeout = 30 * time.Second

// ImageAPI is the proxy surface the gallery uses.
type ImageAPI interface {
	ListImages(ctx context.Context, token string) ([]models.Image, error)
	SearchImages(ctx context.Context, token, query string) ([]models.Image, error)
	UploadImage(ctx context.Context, token, filename string, data []byte) (*models.Image, error)
}

// Session supplies the token and is told about authorization failures.
type Session interface {
	Token() string
	Invalidate(ctx context.Context, token string, err error) bool
}

// Options tune a Model. Zero values select the defaults.
type Options struct {
	Clock         clock.Clock
	SearchDelay   time.Duration
	UploadTimeout time.Duration
	// Bus is shared with other components; a private one is used if nil.
	Bus *events.Bus
}

// Snapshot is the renderable state of the gallery.
type Snapshot struct {
	Images  []models.Image
	Query   string
	Loading bool
	// Error is the user message of the last failed operation.
	Error string
}

// Model is safe for concurrent use.
type Model struct {
	api           ImageAPI
	session       Session
	log           *zap.Logger
	bus           *events.Bus
	search        *debounce.Debouncer
	uploadTimeout time.Duration

	// loading is set while a list or search call is outstanding.
	loading atomic.Bool

	mu     sync.Mutex
	images []models.Image
	query  string
	err    string

	changes events.Topic[Snapshot]
	unsubs  []func()
}

// New returns a Model wired to the search and upload topics of the bus.
func New(api ImageAPI, session Session, log *zap.Logger, opts Options) *Model {
	if opts.SearchDelay <= 0 {
		opts.SearchDelay = debounce.DefaultDelay
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = DefaultUploadTimeout
	}
	if opts.Bus == nil {
		opts.Bus = &events.Bus{}
	}
	m := &Model{
		api:           api,
		session:       session,
		log:           log,
		bus:           opts.Bus,
		search:        debounce.New(opts.Clock, opts.SearchDelay),
		uploadTimeout: opts.UploadTimeout,
		images:        []models.Image{},
	}
	m.unsubs = append(m.unsubs,
		m.bus.SearchChanged.Subscribe(func(e events.SearchChanged) {
			if err := m.Search(context.Background(), e.Query); err != nil && !errors.Is(err, common.ErrBusy) {
				m.log.Debug("search failed", zap.Error(err))
			}
		}),
		m.bus.ImageUploaded.Subscribe(func(e events.ImageUploaded) {
			m.prepend(e.Image)
		}),
	)
	return m
}

// Close stops the pending search and detaches from the bus.
func (m *Model) Close() {
	m.search.Cancel()
	for _, unsub := range m.unsubs {
		unsub()
	}
}

// Subscribe registers fn to receive every new snapshot.
func (m *Model) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return m.changes.Subscribe(fn)
}

// Snapshot returns the current state. The image slice is a copy.
func (m *Model) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Model) snapshotLocked() Snapshot {
	return Snapshot{
		Images:  slices.Clone(m.images),
		Query:   m.query,
		Loading: m.loading.Load(),
		Error:   m.err,
	}
}

// update applies fn under the lock and publishes the result.
func (m *Model) update(fn func()) {
	m.mu.Lock()
	fn()
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.changes.Publish(snap)
}

// Load fetches the full list. A call made while another list or search is
// outstanding is dropped with common.ErrBusy.
func (m *Model) Load(ctx context.Context) error {
	return m.fetch(ctx, "", func(token string) ([]models.Image, error) {
		return m.api.ListImages(ctx, token)
	})
}

// Search shows the records matching query right away. An empty query
// restores the full list.
func (m *Model) Search(ctx context.Context, query string) error {
	if query == "" {
		return m.Load(ctx)
	}
	return m.fetch(ctx, query, func(token string) ([]models.Image, error) {
		return m.api.SearchImages(ctx, token, query)
	})
}

// SetQuery records a keystroke in the search box. The search runs once the
// text has settled; only the text present at that moment is searched.
func (m *Model) SetQuery(query string) {
	m.search.Trigger(func() {
		m.bus.SearchChanged.Publish(events.SearchChanged{Query: query})
	})
}

func (m *Model) fetch(ctx context.Context, query string, call func(token string) ([]models.Image, error)) error {
	if !m.loading.CompareAndSwap(false, true) {
		return common.ErrBusy
	}
	m.update(func() { m.err = "" })

	token := m.session.Token()
	images, err := call(token)
	m.loading.Store(false)
	if err != nil {
		m.fail(ctx, token, err)
		return err
	}
	m.update(func() {
		m.images = models.NormalizeImages(images)
		m.query = query
	})
	return nil
}

// Upload sends an image file and prepends the created record. The upload
// is abandoned after the client deadline; a response arriving later is
// discarded.
func (m *Model) Upload(ctx context.Context, filename string, data []byte) (*models.Image, error) {
	token := m.session.Token()
	if err := service.ValidateImageFile(data); err != nil {
		m.failWith(ctx, token, err, UploadFailure(err))
		return nil, err
	}
	if token == "" {
		m.fail(ctx, token, common.ErrUnauthorized)
		return nil, common.ErrUnauthorized
	}

	ctx, cancel := context.WithTimeout(ctx, m.uploadTimeout)
	defer cancel()

	type result struct {
		img *models.Image
		err error
	}
	done := make(chan result, 1)
	go func() {
		img, err := m.api.UploadImage(ctx, token, filename, data)
		done <- result{img, err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		r.err = ctx.Err()
	}
	if errors.Is(r.err, context.DeadlineExceeded) && !errors.Is(r.err, common.ErrTimeout) {
		r.err = fmt.Errorf("%w: upload did not finish within %s", common.ErrTimeout, m.uploadTimeout)
	}
	if r.err != nil {
		m.log.Warn("upload failed", zap.String("filename", filename), zap.Error(r.err))
		m.failWith(ctx, token, r.err, UploadFailure(r.err))
		return nil, r.err
	}

	m.log.Info("image uploaded", zap.String("hash", r.img.Hash))
	m.bus.ImageUploaded.Publish(events.ImageUploaded{Image: *r.img})
	return r.img, nil
}

// UploadFailure is the message shown when an upload fails.
func UploadFailure(err error) string {
	return "Upload failed: " + common.DetailMessage(err)
}

// prepend inserts img unless a record with its hash is already listed.
func (m *Model) prepend(img models.Image) {
	m.update(func() {
		m.err = ""
		if slices.ContainsFunc(m.images, func(i models.Image) bool { return i.Hash == img.Hash }) {
			return
		}
		m.images = append([]models.Image{img}, m.images...)
	})
}

func (m *Model) fail(ctx context.Context, token string, err error) {
	m.failWith(ctx, token, err, common.UserMessage(err))
}

// failWith records msg and reports err to the session as a failure of a
// call made with token.
func (m *Model) failWith(ctx context.Context, token string, err error, msg string) {
	// The call's own context may already be done.
	if m.session.Invalidate(context.WithoutCancel(ctx), token, err) {
		m.log.Info("session ended by proxied call", zap.Error(err))
	}
	m.update(func() { m.err = msg })
}
