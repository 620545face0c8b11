package calendar

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vamosnene/vamosnene/internal/debuglog"
	"github.com/vamosnene/vamosnene/internal/storage"
)

const eventLength = 3 * time.Hour

// Store is the part of storage the calendar reads and writes.
type Store interface {
	storage.EventStore
	storage.MetaStore
}

// Syncer copies a season schedule from the client into the store.
type Syncer struct {
	client *Client
	store  Store
	season int
	clock  func() time.Time
}

func NewSyncer(client *Client, store Store, season int) *Syncer {
	if season <= 0 {
		season = time.Now().Year()
	}
	return &Syncer{client: client, store: store, season: season, clock: time.Now}
}

func (s *Syncer) SetClock(clock func() time.Time) {
	s.clock = clock
}

func (s *Syncer) Season() int {
	return s.season
}

// Sync upserts every race of the configured season and records the
// schedule sync time. Races with an unreadable date are skipped.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	races, err := s.client.Races(ctx, s.season)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, race := range races {
		ev, err := EventFromRace(s.season, race)
		if err != nil {
			debuglog.WithFields(debuglog.Fields{"job": storage.MetaSchedule, "race": race.RaceName}).
				WithError(err).Warn("skipping race")
			continue
		}
		ev.CreatedAt = s.clock().UTC()
		if err := s.store.UpsertEvent(ctx, ev); err != nil {
			return stored, fmt.Errorf("saving event %s: %w", ev.Slug, err)
		}
		stored++
	}

	now := s.clock()
	if err := s.store.SetMeta(ctx, storage.MetaSchedule, now.UTC().Format(time.RFC3339), now); err != nil {
		return stored, fmt.Errorf("recording sync time: %w", err)
	}

	debuglog.WithFields(debuglog.Fields{
		"job":    storage.MetaSchedule,
		"season": s.season,
		"events": stored,
	}).Info("schedule sync finished")
	return stored, nil
}

// EventFromRace builds the stored event and its sessions. The event spans
// three hours from the race start.
func EventFromRace(season int, race Race) (*storage.Event, error) {
	round, _ := strconv.Atoi(race.Round)
	start, err := parseStart(race.Date, race.Time)
	if err != nil {
		return nil, err
	}

	ev := &storage.Event{
		Season:      season,
		Round:       round,
		Slug:        Slug(race.RaceName, round),
		Name:        race.RaceName,
		CircuitName: race.Circuit.CircuitName,
		Locality:    race.Circuit.Location.Locality,
		Country:     race.Circuit.Location.Country,
		StartAt:     start,
		EndAt:       start.Add(eventLength),
	}

	add := func(name string, dt *DateTime, length time.Duration) {
		if dt == nil || dt.Date == "" {
			return
		}
		st, err := parseStart(dt.Date, dt.Time)
		if err != nil {
			return
		}
		ev.Sessions = append(ev.Sessions, storage.Session{Name: name, StartAt: st, EndAt: st.Add(length)})
	}
	add("Práctica 1", race.FirstPractice, time.Hour)
	add("Práctica 2", race.SecondPractice, time.Hour)
	add("Práctica 3", race.ThirdPractice, time.Hour)
	add("Sprint", race.Sprint, time.Hour)
	add("Clasificación", race.Qualifying, time.Hour)
	add("Carrera", &DateTime{Date: race.Date, Time: race.Time}, 2*time.Hour)

	return ev, nil
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slug turns a race name into its URL key, "round-N" when nothing is left.
func Slug(name string, round int) string {
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		return fmt.Sprintf("round-%d", round)
	}
	return slug
}

// parseStart reads an Ergast date and optional time; a missing time means
// midnight UTC.
func parseStart(date, clock string) (time.Time, error) {
	if clock == "" {
		clock = "00:00:00Z"
	}
	t, err := time.Parse(time.RFC3339, date+"T"+clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid start %q %q: %w", date, clock, err)
	}
	return t.UTC(), nil
}
