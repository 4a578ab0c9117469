package gallery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atinyakov/imagedash/internal/client/events"
	"github.com/atinyakov/imagedash/internal/clock"
	"github.com/atinyakov/imagedash/internal/common"
	"github.com/atinyakov/imagedash/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeAPI struct {
	listCalls   atomic.Int32
	searchCalls atomic.Int32
	list        func(ctx context.Context, token string) ([]models.Image, error)
	search      func(ctx context.Context, token, query string) ([]models.Image, error)
	upload      func(ctx context.Context, token, filename string, data []byte) (*models.Image, error)
}

func (f *fakeAPI) ListImages(ctx context.Context, token string) ([]models.Image, error) {
	f.listCalls.Add(1)
	return f.list(ctx, token)
}

func (f *fakeAPI) SearchImages(ctx context.Context, token, query string) ([]models.Image, error) {
	f.searchCalls.Add(1)
	return f.search(ctx, token, query)
}

func (f *fakeAPI) UploadImage(ctx context.Context, token, filename string, data []byte) (*models.Image, error) {
	return f.upload(ctx, token, filename, data)
}

type fakeSession struct {
	mu          sync.Mutex
	token       string
	invalidated int
}

func (s *fakeSession) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *fakeSession) Invalidate(_ context.Context, token string, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !errors.Is(err, common.ErrUnauthorized) || s.token == "" || s.token != token {
		return false
	}
	s.token = ""
	s.invalidated++
	return true
}

var (
	catImage = models.Image{Hash: "abc", Description: "cat", Tags: models.Tags{"pet", "cute"}}
	dogImage = models.Image{Hash: "def", Description: "dog", Tags: models.Tags{}}
)

func newAPI() *fakeAPI {
	return &fakeAPI{
		list: func(context.Context, string) ([]models.Image, error) {
			return []models.Image{catImage, dogImage}, nil
		},
		search: func(_ context.Context, _ string, q string) ([]models.Image, error) {
			if q == "cat" {
				return []models.Image{catImage}, nil
			}
			return nil, nil
		},
	}
}

func hashes(images []models.Image) []string {
	out := make([]string, len(images))
	for i, img := range images {
		out[i] = img.Hash
	}
	return out
}

func TestModel_Load(t *testing.T) {
	m := New(newAPI(), &fakeSession{token: "tok"}, zap.NewNop(), Options{})
	defer m.Close()

	var snaps []Snapshot
	m.Subscribe(func(s Snapshot) { snaps = append(snaps, s) })

	require.NoError(t, m.Load(context.Background()))

	got := m.Snapshot()
	if diff := cmp.Diff([]models.Image{catImage, dogImage}, got.Images); diff != "" {
		t.Errorf("images mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, got.Loading)
	require.Len(t, snaps, 2)
	assert.True(t, snaps[0].Loading)
	assert.False(t, snaps[1].Loading)
}

func TestModel_DuplicateLoadIsDropped(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	api := newAPI()
	api.list = func(context.Context, string) ([]models.Image, error) {
		close(started)
		<-release
		return []models.Image{catImage}, nil
	}
	m := New(api, &fakeSession{token: "tok"}, zap.NewNop(), Options{})
	defer m.Close()

	done := make(chan error)
	go func() { done <- m.Load(context.Background()) }()
	<-started

	assert.ErrorIs(t, m.Load(context.Background()), common.ErrBusy)
	assert.ErrorIs(t, m.Search(context.Background(), "cat"), common.ErrBusy)
	close(release)
	require.NoError(t, <-done)

	assert.EqualValues(t, 1, api.listCalls.Load())
	assert.EqualValues(t, 0, api.searchCalls.Load())
}

func TestModel_DebouncedSearch(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	api := newAPI()
	bus := &events.Bus{}
	var published []string
	bus.SearchChanged.Subscribe(func(e events.SearchChanged) { published = append(published, e.Query) })

	m := New(api, &fakeSession{token: "tok"}, zap.NewNop(), Options{Clock: fake, Bus: bus})
	defer m.Close()
	require.NoError(t, m.Load(context.Background()))

	for _, q := range []string{"c", "ca", "cat"} {
		m.SetQuery(q)
		fake.Advance(100 * time.Millisecond)
	}
	assert.Zero(t, api.searchCalls.Load(), "still typing")

	fake.Advance(400 * time.Millisecond)
	assert.Equal(t, []string{"cat"}, published)
	assert.EqualValues(t, 1, api.searchCalls.Load())
	assert.Equal(t, []string{"abc"}, hashes(m.Snapshot().Images))
	assert.Equal(t, "cat", m.Snapshot().Query)

	// Clearing the box restores the full list.
	m.SetQuery("")
	fake.Advance(500 * time.Millisecond)
	assert.Equal(t, []string{"abc", "def"}, hashes(m.Snapshot().Images))
	assert.Empty(t, m.Snapshot().Query)
	assert.EqualValues(t, 2, api.listCalls.Load())
}

func TestModel_Upload(t *testing.T) {
	newImage := models.Image{Hash: "new", Description: "bird", Tags: models.Tags{"sky"}}
	api := newAPI()
	api.upload = func(_ context.Context, token, filename string, _ []byte) (*models.Image, error) {
		assert.Equal(t, "tok", token)
		assert.Equal(t, "bird.png", filename)
		img := newImage
		return &img, nil
	}
	bus := &events.Bus{}
	var uploaded []string
	bus.ImageUploaded.Subscribe(func(e events.ImageUploaded) { uploaded = append(uploaded, e.Image.Hash) })

	m := New(api, &fakeSession{token: "tok"}, zap.NewNop(), Options{Bus: bus})
	defer m.Close()
	require.NoError(t, m.Load(context.Background()))

	img, err := m.Upload(context.Background(), "bird.png", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, "new", img.Hash)
	assert.Equal(t, []string{"new"}, uploaded)
	assert.Equal(t, []string{"new", "abc", "def"}, hashes(m.Snapshot().Images), "prepended without re-fetch")
	assert.EqualValues(t, 1, api.listCalls.Load())

	// The same hash again is not listed twice.
	_, err = m.Upload(context.Background(), "bird.png", pngHeader)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "abc", "def"}, hashes(m.Snapshot().Images))
}

func TestModel_UploadTimeout(t *testing.T) {
	late := make(chan struct{})
	api := newAPI()
	api.upload = func(ctx context.Context, _, _ string, _ []byte) (*models.Image, error) {
		<-late
		return &models.Image{Hash: "late"}, nil
	}
	m := New(api, &fakeSession{token: "tok"}, zap.NewNop(), Options{UploadTimeout: 20 * time.Millisecond})
	defer m.Close()
	require.NoError(t, m.Load(context.Background()))

	_, err := m.Upload(context.Background(), "cat.png", pngHeader)
	assert.ErrorIs(t, err, common.ErrTimeout)
	close(late)

	snap := m.Snapshot()
	assert.Equal(t, []string{"abc", "def"}, hashes(snap.Images), "late response never inserts a record")
	assert.Contains(t, snap.Error, "Upload failed:")
}

func TestModel_UploadRejectsNonImage(t *testing.T) {
	api := newAPI()
	api.upload = func(context.Context, string, string, []byte) (*models.Image, error) {
		t.Fatal("upload must not reach the network")
		return nil, nil
	}
	m := New(api, &fakeSession{token: "tok"}, zap.NewNop(), Options{})
	defer m.Close()

	_, err := m.Upload(context.Background(), "notes.txt", []byte("hello world"))
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Contains(t, m.Snapshot().Error, "Upload failed: validation error")
}

func TestModel_UnauthorizedEndsSession(t *testing.T) {
	api := newAPI()
	api.list = func(context.Context, string) ([]models.Image, error) {
		return nil, &common.BackendError{Status: 401, Detail: "token expired"}
	}
	sess := &fakeSession{token: "tok"}
	m := New(api, sess, zap.NewNop(), Options{})
	defer m.Close()

	err := m.Load(context.Background())
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	assert.Equal(t, 1, sess.invalidated)
	assert.Empty(t, sess.Token())
	assert.NotEmpty(t, m.Snapshot().Error)
}

func TestModel_StaleUnauthorizedKeepsNewSession(t *testing.T) {
	sess := &fakeSession{token: "old"}
	inFlight := make(chan struct{})
	release := make(chan struct{})
	api := newAPI()
	api.upload = func(context.Context, string, string, []byte) (*models.Image, error) {
		close(inFlight)
		<-release
		return nil, &common.BackendError{Status: 401, Detail: "token expired"}
	}
	m := New(api, sess, zap.NewNop(), Options{})
	defer m.Close()

	done := make(chan error, 1)
	go func() {
		_, err := m.Upload(context.Background(), "cat.png", pngHeader)
		done <- err
	}()
	<-inFlight

	// Signed out and in again while the upload was running.
	sess.mu.Lock()
	sess.token = "new"
	sess.mu.Unlock()
	close(release)

	assert.ErrorIs(t, <-done, common.ErrUnauthorized)
	assert.Zero(t, sess.invalidated)
	assert.Equal(t, "new", sess.Token())
}
