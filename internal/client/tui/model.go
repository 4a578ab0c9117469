// Package tui is the terminal rendition of the dashboard: a login form and
// an image gallery driven by the session store and the gallery model.
package tui

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/imagedash/internal/client/gallery"
	"github.com/atinyakov/imagedash/internal/client/session"
	"github.com/atinyakov/imagedash/internal/common"
	"github.com/atinyakov/imagedash/internal/guard"
	"github.com/atinyakov/imagedash/internal/models"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// Session is the part of session.Store the UI drives.
type Session interface {
	State() session.State
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context)
	Invalidate(ctx context.Context, token string, err error) bool
	Subscribe(fn func(session.State)) (unsubscribe func())
}

// Gallery is the part of gallery.Model the UI drives.
type Gallery interface {
	Snapshot() gallery.Snapshot
	Load(ctx context.Context) error
	SetQuery(query string)
	Upload(ctx context.Context, filename string, data []byte) (*models.Image, error)
	Subscribe(fn func(gallery.Snapshot)) (unsubscribe func())
}

// ImageFetcher downloads image bytes.
type ImageFetcher interface {
	GetImage(ctx context.Context, token, hash string) (*models.ImageContent, error)
}

// Options configure a Model.
type Options struct {
	// DownloadDir receives downloaded images; the working directory if
	// empty.
	DownloadDir string
	Logger      *zap.Logger
	Keys        *KeyMap
}

// focus is the input that receives key presses.
type focus int

const (
	focusNone focus = iota
	focusUsername
	focusPassword
	focusSearch
	focusUpload
)

type (
	sessionMsg  struct{ state session.State }
	snapshotMsg struct{ snap gallery.Snapshot }
	// doneMsg reports the end of a background operation. Empty fields
	// leave the footer as it is.
	doneMsg struct {
		status  string
		errText string
	}
)

// Model implements tea.Model.
type Model struct {
	session Session
	gallery Gallery
	fetcher ImageFetcher
	log     *zap.Logger
	keys    KeyMap
	dir     string

	events chan tea.Msg
	unsubs []func()

	view    guard.View
	state   session.State
	snap    gallery.Snapshot
	cursor  int
	focus   focus
	status  string
	err     string
	loading bool

	username textinput.Model
	password textinput.Model
	search   textinput.Model
	upload   textinput.Model
	spinner  spinner.Model
	help     help.Model
	width    int
}

// New returns a Model subscribed to the session and gallery. Call Close
// once the program has exited.
func New(s Session, g Gallery, f ImageFetcher, opts Options) *Model {
	keys := DefaultKeyMap
	if opts.Keys != nil {
		keys = *opts.Keys
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	username := textinput.New()
	username.Placeholder = "username"
	username.Prompt = "Username: "

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	search := textinput.New()
	search.Placeholder = "search images"
	search.Prompt = "/ "

	upload := textinput.New()
	upload.Placeholder = "path to image file"
	upload.Prompt = "Upload: "

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	m := &Model{
		session:  s,
		gallery:  g,
		fetcher:  f,
		log:      log,
		keys:     keys,
		dir:      opts.DownloadDir,
		events:   make(chan tea.Msg, 64),
		view:     guard.Login,
		state:    s.State(),
		snap:     g.Snapshot(),
		username: username,
		password: password,
		search:   search,
		upload:   upload,
		spinner:  sp,
		help:     help.New(),
	}
	m.unsubs = append(m.unsubs,
		s.Subscribe(func(st session.State) { m.events <- sessionMsg{st} }),
		g.Subscribe(func(snap gallery.Snapshot) { m.events <- snapshotMsg{snap} }),
	)
	m.focusOn(focusUsername)
	m.route()
	return m
}

// Close detaches the model from the session and gallery.
func (m *Model) Close() {
	for _, unsub := range m.unsubs {
		unsub()
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{listen(m.events), m.spinner.Tick}
	if m.view == guard.Gallery {
		cmds = append(cmds, m.loadCmd())
	}
	return tea.Batch(cmds...)
}

// listen delivers the next subscription message to the program.
func listen(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

// route applies the guard rules to the current view and reports whether
// the view changed.
func (m *Model) route() bool {
	d := guard.Decide(m.view, m.state.Status)
	if d.Action != guard.Redirect {
		return false
	}
	m.view = d.Target
	m.cursor = 0
	m.status = ""
	m.err = ""
	if m.view == guard.Login {
		m.focusOn(focusUsername)
	} else {
		m.focusOn(focusNone)
		m.password.Reset()
	}
	return true
}

func (m *Model) focusOn(f focus) {
	m.focus = f
	for in, target := range map[*textinput.Model]focus{
		&m.username: focusUsername,
		&m.password: focusPassword,
		&m.search:   focusSearch,
		&m.upload:   focusUpload,
	} {
		if target == f {
			in.Focus()
		} else {
			in.Blur()
		}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case sessionMsg:
		m.state = msg.state
		var cmd tea.Cmd
		if m.route() && m.view == guard.Gallery {
			cmd = m.loadCmd()
		}
		if m.view == guard.Login && m.state.Error != "" {
			m.err = m.state.Error
		}
		return m, tea.Batch(listen(m.events), cmd)

	case snapshotMsg:
		m.snap = msg.snap
		if m.cursor >= len(m.snap.Images) {
			m.cursor = max(len(m.snap.Images)-1, 0)
		}
		return m, listen(m.events)

	case doneMsg:
		m.loading = false
		if msg.status != "" {
			m.status, m.err = msg.status, ""
		}
		if msg.errText != "" {
			m.status, m.err = "", msg.errText
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.view == guard.Login {
			return m.updateLogin(msg)
		}
		return m.updateGallery(msg)
	}
	return m, nil
}

// failed turns err into a footer message. Dropped duplicate requests are
// not reported.
func failed(err error) doneMsg {
	if err == nil || errors.Is(err, common.ErrBusy) {
		return doneMsg{}
	}
	return doneMsg{errText: common.UserMessage(err)}
}

func (m *Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.state.Status == models.SessionAuthenticating {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.NextField):
		if m.focus == focusUsername {
			m.focusOn(focusPassword)
		} else {
			m.focusOn(focusUsername)
		}
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		if m.focus == focusUsername {
			m.focusOn(focusPassword)
			return m, nil
		}
		username, password := strings.TrimSpace(m.username.Value()), m.password.Value()
		m.password.Reset()
		m.err = ""
		return m, m.loginCmd(username, password)
	case key.Matches(msg, m.keys.Cancel):
		return m, tea.Quit
	}

	var cmd tea.Cmd
	if m.focus == focusPassword {
		m.password, cmd = m.password.Update(msg)
	} else {
		m.username, cmd = m.username.Update(msg)
	}
	return m, cmd
}

func (m *Model) updateGallery(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.focus {
	case focusSearch:
		switch {
		case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.Submit):
			m.focusOn(focusNone)
			return m, nil
		}
		before := m.search.Value()
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		if v := m.search.Value(); v != before {
			m.gallery.SetQuery(strings.TrimSpace(v))
		}
		return m, cmd

	case focusUpload:
		switch {
		case key.Matches(msg, m.keys.Cancel):
			m.upload.Reset()
			m.focusOn(focusNone)
			return m, nil
		case key.Matches(msg, m.keys.Submit):
			path := strings.TrimSpace(m.upload.Value())
			m.upload.Reset()
			m.focusOn(focusNone)
			if path == "" {
				return m, nil
			}
			return m, m.uploadCmd(path)
		}
		var cmd tea.Cmd
		m.upload, cmd = m.upload.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.snap.Images)-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Search):
		m.focusOn(focusSearch)
	case key.Matches(msg, m.keys.Upload):
		m.focusOn(focusUpload)
	case key.Matches(msg, m.keys.Refresh):
		return m, m.loadCmd()
	case key.Matches(msg, m.keys.Download):
		if m.cursor < len(m.snap.Images) {
			return m, m.downloadCmd(m.snap.Images[m.cursor])
		}
	case key.Matches(msg, m.keys.Logout):
		return m, m.logoutCmd()
	}
	return m, nil
}

func (m *Model) loginCmd(username, password string) tea.Cmd {
	s := m.session
	return func() tea.Msg {
		// The outcome arrives as a session state change.
		_ = s.Login(context.Background(), username, password)
		return doneMsg{}
	}
}

func (m *Model) logoutCmd() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		s.Logout(context.Background())
		return doneMsg{status: "Signed out."}
	}
}

func (m *Model) loadCmd() tea.Cmd {
	m.loading = true
	g := m.gallery
	return func() tea.Msg {
		return failed(g.Load(context.Background()))
	}
}

func (m *Model) uploadCmd(path string) tea.Cmd {
	m.loading = true
	g := m.gallery
	return func() tea.Msg {
		data, err := os.ReadFile(path)
		if err != nil {
			return doneMsg{errText: "Upload failed: cannot read " + path}
		}
		img, err := g.Upload(context.Background(), filepath.Base(path), data)
		if err != nil {
			return doneMsg{errText: gallery.UploadFailure(err)}
		}
		return doneMsg{status: "Uploaded " + img.Hash}
	}
}

func (m *Model) downloadCmd(img models.Image) tea.Cmd {
	m.loading = true
	token := m.state.Token
	s, f, dir, log := m.session, m.fetcher, m.dir, m.log
	return func() tea.Msg {
		ctx := context.Background()
		content, err := f.GetImage(ctx, token, img.Hash)
		if err != nil {
			s.Invalidate(ctx, token, err)
			return doneMsg{errText: "Download failed: " + common.DetailMessage(err)}
		}
		path := filepath.Join(dir, img.Hash+extension(content.ContentType))
		if err := os.WriteFile(path, content.Data, 0o600); err != nil {
			log.Warn("save image", zap.String("path", path), zap.Error(err))
			return doneMsg{errText: fmt.Sprintf("Download failed: cannot write %s", path)}
		}
		return doneMsg{status: "Saved " + path}
	}
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
