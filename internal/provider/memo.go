package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/starford/quire/internal/apperr"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/storage"
)

// MemoClient is the subset of *caldav.Client the memo provider uses.
type MemoClient interface {
	FindCurrentUserPrincipal(ctx context.Context) (string, error)
	FindCalendarHomeSet(ctx context.Context, principal string) (string, error)
	FindCalendars(ctx context.Context, homeSet string) ([]caldav.Calendar, error)
	QueryCalendar(ctx context.Context, calendar string, query *caldav.CalendarQuery) ([]caldav.CalendarObject, error)
	PutCalendarObject(ctx context.Context, path string, cal *ical.Calendar) (*caldav.CalendarObject, error)
	RemoveAll(ctx context.Context, path string) error
}

var _ MemoClient = (*caldav.Client)(nil)

// MemoOptions configures a CalDAV memo provider.
type MemoOptions struct {
	// ID names the account; the provider uid is "memo:" + ID.
	ID       string
	Name     string
	Endpoint string
	Username string
	Password string
	// Calendar is the collection path. Empty means discover the first
	// calendar that accepts VJOURNAL.
	Calendar   string
	HTTPClient *http.Client
	// Client overrides the CalDAV client built from Endpoint.
	Client MemoClient
	Logger *slog.Logger
}

// memoRecord is the locator of a memo: its object path and the calendar it
// was read from, kept so a re-PUT preserves properties quire does not map.
type memoRecord struct {
	path string
	cal  *ical.Calendar
}

// Memo maps VJOURNAL entries of a CalDAV calendar onto plain notes. SUMMARY
// is the title and the DESCRIPTION values joined by newlines are the body.
// Memos have no trash.
type Memo struct {
	Base
	opts MemoOptions

	opMu     sync.Mutex
	client   MemoClient // guarded by Base.mu
	calendar string
	records  map[models.Note]memoRecord
}

var _ Connector = (*Memo)(nil)

// NewMemo performs no I/O.
func NewMemo(opts MemoOptions) *Memo {
	if opts.Name == "" {
		opts.Name = opts.ID
	}
	m := &Memo{opts: opts, records: make(map[models.Note]memoRecord)}
	m.Base.init(Info{
		UID:          "memo:" + opts.ID,
		Name:         opts.Name,
		Icon:         "x-office-calendar-symbolic",
		Domain:       opts.Endpoint,
		UserName:     opts.Username,
		LocationName: opts.Calendar,
		Features:     models.FeatureCreationDate | models.FeatureModificationDate,
	}, opts.Logger)
	return m
}

// Connect resolves principal, calendar home and the memo calendar. Any
// failing step ends the pipeline with a single error.
func (m *Memo) Connect(ctx context.Context) error {
	client := m.opts.Client
	if client == nil {
		var hc webdav.HTTPClient = http.DefaultClient
		if m.opts.HTTPClient != nil {
			hc = m.opts.HTTPClient
		}
		if m.opts.Username != "" {
			hc = webdav.HTTPClientWithBasicAuth(hc, m.opts.Username, m.opts.Password)
		}
		c, err := caldav.NewClient(storage.StatusClient(hc), m.opts.Endpoint)
		if err != nil {
			return fmt.Errorf("provider: %s: connect: %w: %w", m.info.UID, apperr.ErrIO, err)
		}
		client = c
	}

	calendar := m.opts.Calendar
	if calendar == "" {
		principal, err := client.FindCurrentUserPrincipal(ctx)
		if err != nil {
			return fmt.Errorf("provider: %s: connect: principal: %w: %w", m.info.UID, apperr.ErrIO, err)
		}
		home, err := client.FindCalendarHomeSet(ctx, principal)
		if err != nil {
			return fmt.Errorf("provider: %s: connect: home set: %w: %w", m.info.UID, apperr.ErrIO, err)
		}
		cals, err := client.FindCalendars(ctx, home)
		if err != nil {
			return fmt.Errorf("provider: %s: connect: calendars: %w: %w", m.info.UID, apperr.ErrIO, err)
		}
		calendar = pickJournalCalendar(cals)
		if calendar == "" {
			return fmt.Errorf("provider: %s: connect: no calendar accepts %s: %w", m.info.UID, ical.CompJournal, apperr.ErrNotFound)
		}
	}

	m.mu.Lock()
	m.client = client
	m.calendar = calendar
	m.mu.Unlock()
	m.logger.Info("connected", slog.String("calendar", calendar))
	return nil
}

func pickJournalCalendar(cals []caldav.Calendar) string {
	for _, c := range cals {
		// An empty set means the server accepts every component.
		if len(c.SupportedComponentSet) == 0 || slices.Contains(c.SupportedComponentSet, ical.CompJournal) {
			return c.Path
		}
	}
	return ""
}

func (m *Memo) conn() (MemoClient, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, "", fmt.Errorf("provider: %s: %w", m.info.UID, apperr.ErrNotConnected)
	}
	return m.client, m.calendar, nil
}

// LoadItems queries every VJOURNAL of the calendar.
func (m *Memo) LoadItems(ctx context.Context) ([]models.Note, []models.Note, error) {
	client, calendar, err := m.conn()
	if err != nil {
		return nil, nil, err
	}
	if err := m.beginLoad(); err != nil {
		return nil, nil, err
	}
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     ical.CompCalendar,
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name:  ical.CompCalendar,
			Comps: []caldav.CompFilter{{Name: ical.CompJournal}},
		},
	}
	objs, err := client.QueryCalendar(ctx, calendar, query)
	if err != nil {
		m.abortLoad()
		return nil, nil, fmt.Errorf("provider: %s: load: %w: %w", m.info.UID, apperr.ErrIO, err)
	}

	var notes []models.Note
	records := make(map[models.Note]memoRecord, len(objs))
	for _, obj := range objs {
		if obj.Data == nil {
			continue
		}
		n, ok := memoFromCalendar(obj.Data)
		if !ok {
			m.logger.Warn("skip object without journal", slog.String("path", obj.Path))
			continue
		}
		if n.UID() == "" {
			base := path.Base(obj.Path)
			n.SetUID(strings.TrimSuffix(base, path.Ext(base)))
		}
		n.ClearModified()
		records[n] = memoRecord{path: obj.Path, cal: obj.Data}
		notes = append(notes, n)
	}

	m.mu.Lock()
	m.notes, m.trash = notes, nil
	for n, r := range records {
		m.records[n] = r
	}
	m.mu.Unlock()
	m.logger.Info("loaded", slog.Int("notes", len(notes)))
	return m.Notes(), nil, nil
}

func journalOf(cal *ical.Calendar) *ical.Component {
	for _, c := range cal.Children {
		if c.Name == ical.CompJournal {
			return c
		}
	}
	return nil
}

func textProp(c *ical.Component, name string) string {
	p := c.Props.Get(name)
	if p == nil {
		return ""
	}
	v, err := p.Text()
	if err != nil {
		return p.Value
	}
	return v
}

func timeProp(c *ical.Component, name string) int64 {
	t, err := c.Props.DateTime(name, time.UTC)
	if err != nil || t.IsZero() {
		return 0
	}
	return t.Unix()
}

// memoFromCalendar maps the first VJOURNAL of cal onto a plain note.
func memoFromCalendar(cal *ical.Calendar) (*models.PlainNote, bool) {
	j := journalOf(cal)
	if j == nil {
		return nil, false
	}
	var desc []string
	for _, p := range j.Props.Values(ical.PropDescription) {
		v, err := p.Text()
		if err != nil {
			v = p.Value
		}
		desc = append(desc, v)
	}
	n := models.NewPlainNote()
	n.SetUID(textProp(j, ical.PropUID))
	n.SetTitle(textProp(j, ical.PropSummary))
	n.SetRawContent(strings.Join(desc, "\n"))
	n.SetCreationTime(timeProp(j, ical.PropCreated))
	n.SetModificationTime(timeProp(j, ical.PropLastModified))
	return n, true
}

// newMemoCalendar wraps an empty VJOURNAL in a VCALENDAR.
func newMemoCalendar(uid string, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//quire//memo//EN")
	j := ical.NewComponent(ical.CompJournal)
	j.Props.SetText(ical.PropUID, uid)
	j.Props.SetDateTime(ical.PropCreated, now)
	cal.Children = append(cal.Children, j)
	return cal
}

// applyMemo writes the note fields into the journal of cal.
func applyMemo(cal *ical.Calendar, n models.Note, now time.Time) {
	j := journalOf(cal)
	j.Props.SetText(ical.PropSummary, n.Title())
	j.Props.SetText(ical.PropDescription, n.RawContent())
	j.Props.SetDateTime(ical.PropDateTimeStamp, now)
	j.Props.SetDateTime(ical.PropLastModified, now)
}

// SaveItem creates a memo for new notes and re-PUTs existing ones at their
// object path.
func (m *Memo) SaveItem(ctx context.Context, n models.Note) error {
	client, calendar, err := m.conn()
	if err != nil {
		return err
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	rec, known := m.records[n]
	m.mu.RUnlock()

	now := time.Now().UTC().Truncate(time.Second)
	uid := n.UID()
	if !known {
		if uid == "" {
			uid = uuid.New().String()
		}
		rec = memoRecord{
			path: path.Join(calendar, uid+".ics"),
			cal:  newMemoCalendar(uid, now),
		}
	}
	applyMemo(rec.cal, n, now)

	if _, err := client.PutCalendarObject(ctx, rec.path, rec.cal); err != nil {
		return fmt.Errorf("provider: %s: save: %w: %w", m.info.UID, apperr.ErrIO, err)
	}

	m.mu.Lock()
	n.SetUID(uid)
	if n.CreationTime() == 0 {
		n.SetCreationTime(now.Unix())
	}
	n.SetModificationTime(now.Unix())
	n.ClearModified()
	m.records[n] = rec
	if !known {
		m.notes = append([]models.Note{n}, m.notes...)
	}
	m.mu.Unlock()

	if known {
		m.emit(EventItemSaved, n)
	} else {
		m.emit(EventItemAdded, n)
	}
	return nil
}

// DeleteItem removes the memo object.
func (m *Memo) DeleteItem(ctx context.Context, n models.Note) error {
	client, _, err := m.conn()
	if err != nil {
		return err
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	rec, ok := m.records[n]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("provider: %s: delete %q: %w", m.info.UID, n.UID(), apperr.ErrNotFound)
	}
	rctx, st := storage.TrackStatus(ctx)
	if err := client.RemoveAll(rctx, rec.path); err != nil && !st.NotFound() {
		return fmt.Errorf("provider: %s: delete: %w: %w", m.info.UID, apperr.ErrIO, err)
	}

	m.mu.Lock()
	m.forget(n)
	delete(m.records, n)
	m.mu.Unlock()
	m.emit(EventItemDeleted, n)
	return nil
}

// Calendar returns the resolved calendar path, empty before Connect.
func (m *Memo) Calendar() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calendar
}

// LocationName is the calendar path once connected.
func (m *Memo) LocationName() string { return m.Calendar() }
