package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ad-monitor/internal/monitor"

	"github.com/lib/pq"
)

// Store implements monitor.Store over the companies, screens, ads,
// heartbeats and playback_events tables. Schema management is external.
type Store struct {
	db *sql.DB
}

var _ monitor.Store = (*Store)(nil)

// New returns a Store using db.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

const heartbeatColumns = `id, screen_id, "timestamp", current_ad_id, player_status`

const playbackColumns = `id, screen_id, ad_id, started_at, ended_at, status`

const screenColumns = `id, name, company_id, status, last_heartbeat_at`

const adColumns = `id, name, owner_company_id, file_url, duration_sec`

// AppendHeartbeat implements monitor.EventStore.AppendHeartbeat. The insert
// and the hint update commit together, so a failed call leaves no row
// behind and the client can safely retry. The cached hint only moves
// forward in time.
func (s *Store) AppendHeartbeat(ctx context.Context, hb monitor.Heartbeat) (monitor.HeartbeatID, error) {
	var adID sql.NullInt64
	if hb.CurrentAdID != nil {
		adID = sql.NullInt64{Int64: int64(*hb.CurrentAdID), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin heartbeat tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO heartbeats (screen_id, "timestamp", current_ad_id, player_status)
		SELECT $1::bigint, $2::timestamptz, $3::bigint, $4::text
		WHERE EXISTS (SELECT 1 FROM screens WHERE id = $1)
		RETURNING id`,
		int64(hb.ScreenID), hb.Timestamp, adID, hb.PlayerStatus,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("screen %d: %w", hb.ScreenID, monitor.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("insert heartbeat: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE screens SET last_heartbeat_at = $2, status = $3
		WHERE id = $1 AND (last_heartbeat_at IS NULL OR last_heartbeat_at <= $2)`,
		int64(hb.ScreenID), hb.Timestamp, monitor.StatusOnline,
	)
	if err != nil {
		return 0, fmt.Errorf("update screen hint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit heartbeat: %w", err)
	}
	return monitor.HeartbeatID(id), nil
}

// AppendPlayback implements monitor.EventStore.AppendPlayback.
func (s *Store) AppendPlayback(ctx context.Context, ev monitor.PlaybackEvent) (monitor.PlaybackID, error) {
	if err := ev.Validate(); err != nil {
		return 0, err
	}

	var screenOK, adOK bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM screens WHERE id = $1),
		       EXISTS (SELECT 1 FROM ads WHERE id = $2)`,
		int64(ev.ScreenID), int64(ev.AdID),
	).Scan(&screenOK, &adOK)
	if err != nil {
		return 0, fmt.Errorf("check playback references: %w", err)
	}
	if !screenOK {
		return 0, fmt.Errorf("screen %d: %w", ev.ScreenID, monitor.ErrNotFound)
	}
	if !adOK {
		return 0, fmt.Errorf("ad %d: %w", ev.AdID, monitor.ErrNotFound)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO playback_events (screen_id, ad_id, started_at, ended_at, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		int64(ev.ScreenID), int64(ev.AdID), nullTime(ev.StartedAt), nullTime(ev.EndedAt), ev.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert playback: %w", err)
	}
	return monitor.PlaybackID(id), nil
}

// LatestHeartbeat implements monitor.EventStore.LatestHeartbeat.
func (s *Store) LatestHeartbeat(ctx context.Context, screenID monitor.ScreenID) (monitor.Heartbeat, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+heartbeatColumns+`
		FROM heartbeats
		WHERE screen_id = $1
		ORDER BY "timestamp" DESC, id DESC
		LIMIT 1`,
		int64(screenID),
	)
	hb, err := scanHeartbeat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return monitor.Heartbeat{}, false, nil
	}
	if err != nil {
		return monitor.Heartbeat{}, false, fmt.Errorf("latest heartbeat: %w", err)
	}
	return hb, true, nil
}

// HeartbeatsInWindow implements monitor.EventStore.HeartbeatsInWindow.
func (s *Store) HeartbeatsInWindow(ctx context.Context, screenID monitor.ScreenID, from, to time.Time) ([]monitor.Heartbeat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+heartbeatColumns+`
		FROM heartbeats
		WHERE screen_id = $1 AND "timestamp" >= $2 AND "timestamp" <= $3
		ORDER BY "timestamp" ASC, id ASC`,
		int64(screenID), from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query heartbeats: %w", err)
	}
	defer rows.Close()

	var out []monitor.Heartbeat
	for rows.Next() {
		hb, err := scanHeartbeat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan heartbeat: %w", err)
		}
		out = append(out, hb)
	}
	return out, rows.Err()
}

// PlaybackEventsInRange implements monitor.EventStore.PlaybackEventsInRange.
func (s *Store) PlaybackEventsInRange(ctx context.Context, f monitor.PlaybackFilter) ([]monitor.PlaybackEvent, error) {
	where := []string{"started_at >= $1", "started_at < $2"}
	args := []any{f.From, f.To}

	if f.AdID != nil {
		args = append(args, int64(*f.AdID))
		where = append(where, fmt.Sprintf("ad_id = $%d", len(args)))
	}
	if len(f.ScreenIDs) > 0 {
		ids := make([]int64, len(f.ScreenIDs))
		for i, id := range f.ScreenIDs {
			ids[i] = int64(id)
		}
		args = append(args, pq.Array(ids))
		where = append(where, fmt.Sprintf("screen_id = ANY($%d)", len(args)))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+playbackColumns+`
		FROM playback_events
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY started_at ASC, id ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query playback events: %w", err)
	}
	defer rows.Close()

	var out []monitor.PlaybackEvent
	for rows.Next() {
		var (
			ev             monitor.PlaybackEvent
			id, screen, ad int64
			started, ended sql.NullTime
			status         sql.NullString
		)
		if err := rows.Scan(&id, &screen, &ad, &started, &ended, &status); err != nil {
			return nil, fmt.Errorf("scan playback event: %w", err)
		}
		ev.ID = monitor.PlaybackID(id)
		ev.ScreenID = monitor.ScreenID(screen)
		ev.AdID = monitor.AdID(ad)
		if started.Valid {
			ev.StartedAt = started.Time.UTC()
		}
		if ended.Valid {
			ev.EndedAt = ended.Time.UTC()
		}
		ev.Status = status.String
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Company implements monitor.Catalog.Company.
func (s *Store) Company(ctx context.Context, id monitor.CompanyID) (monitor.Company, error) {
	var c monitor.Company
	var cid int64
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM companies WHERE id = $1`, int64(id)).Scan(&cid, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return monitor.Company{}, fmt.Errorf("company %d: %w", id, monitor.ErrNotFound)
	}
	if err != nil {
		return monitor.Company{}, fmt.Errorf("get company: %w", err)
	}
	c.ID = monitor.CompanyID(cid)
	return c, nil
}

// Screen implements monitor.Catalog.Screen.
func (s *Store) Screen(ctx context.Context, id monitor.ScreenID) (monitor.Screen, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+screenColumns+` FROM screens WHERE id = $1`, int64(id))
	sc, err := scanScreen(row)
	if errors.Is(err, sql.ErrNoRows) {
		return monitor.Screen{}, fmt.Errorf("screen %d: %w", id, monitor.ErrNotFound)
	}
	if err != nil {
		return monitor.Screen{}, fmt.Errorf("get screen: %w", err)
	}
	return sc, nil
}

// Ad implements monitor.Catalog.Ad.
func (s *Store) Ad(ctx context.Context, id monitor.AdID) (monitor.Ad, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+adColumns+` FROM ads WHERE id = $1`, int64(id))
	ad, err := scanAd(row)
	if errors.Is(err, sql.ErrNoRows) {
		return monitor.Ad{}, fmt.Errorf("ad %d: %w", id, monitor.ErrNotFound)
	}
	if err != nil {
		return monitor.Ad{}, fmt.Errorf("get ad: %w", err)
	}
	return ad, nil
}

// ScreensByCompany implements monitor.Catalog.ScreensByCompany.
func (s *Store) ScreensByCompany(ctx context.Context, id monitor.CompanyID) ([]monitor.Screen, error) {
	return s.queryScreens(ctx, `SELECT `+screenColumns+` FROM screens WHERE company_id = $1 ORDER BY id`, int64(id))
}

// ListScreens implements monitor.Catalog.ListScreens.
func (s *Store) ListScreens(ctx context.Context) ([]monitor.Screen, error) {
	return s.queryScreens(ctx, `SELECT `+screenColumns+` FROM screens ORDER BY id`)
}

// AdsByCompany implements monitor.Catalog.AdsByCompany.
func (s *Store) AdsByCompany(ctx context.Context, id monitor.CompanyID) ([]monitor.Ad, error) {
	return s.queryAds(ctx, `SELECT `+adColumns+` FROM ads WHERE owner_company_id = $1 ORDER BY id`, int64(id))
}

// ListAds implements monitor.Catalog.ListAds.
func (s *Store) ListAds(ctx context.Context) ([]monitor.Ad, error) {
	return s.queryAds(ctx, `SELECT `+adColumns+` FROM ads ORDER BY id`)
}

// ListCompanies implements monitor.Catalog.ListCompanies.
func (s *Store) ListCompanies(ctx context.Context) ([]monitor.Company, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM companies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query companies: %w", err)
	}
	defer rows.Close()

	var out []monitor.Company
	for rows.Next() {
		var id int64
		var c monitor.Company
		if err := rows.Scan(&id, &c.Name); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		c.ID = monitor.CompanyID(id)
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCompany implements monitor.Catalog.CreateCompany. Ids come from the
// table's sequence; c.ID is ignored.
func (s *Store) CreateCompany(ctx context.Context, c monitor.Company) (monitor.Company, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `INSERT INTO companies (name) VALUES ($1) RETURNING id`, c.Name).Scan(&id); err != nil {
		return monitor.Company{}, fmt.Errorf("insert company: %w", err)
	}
	c.ID = monitor.CompanyID(id)
	return c, nil
}

// CreateScreen implements monitor.Catalog.CreateScreen.
func (s *Store) CreateScreen(ctx context.Context, sc monitor.Screen) (monitor.Screen, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO screens (name, company_id, status) VALUES ($1, $2, $3) RETURNING id`,
		sc.Name, int64(sc.CompanyID), monitor.StatusOffline,
	).Scan(&id)
	if err != nil {
		return monitor.Screen{}, fmt.Errorf("insert screen: %w", err)
	}
	sc.ID = monitor.ScreenID(id)
	sc.Status = monitor.StatusOffline
	sc.LastHeartbeatAt = nil
	return sc, nil
}

// CreateAd implements monitor.Catalog.CreateAd.
func (s *Store) CreateAd(ctx context.Context, a monitor.Ad) (monitor.Ad, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO ads (name, owner_company_id, file_url, duration_sec) VALUES ($1, $2, $3, $4) RETURNING id`,
		a.Name, int64(a.OwnerCompanyID), a.FileURL, a.DurationSec,
	).Scan(&id)
	if err != nil {
		return monitor.Ad{}, fmt.Errorf("insert ad: %w", err)
	}
	a.ID = monitor.AdID(id)
	return a, nil
}

func (s *Store) queryScreens(ctx context.Context, query string, args ...any) ([]monitor.Screen, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query screens: %w", err)
	}
	defer rows.Close()

	var out []monitor.Screen
	for rows.Next() {
		sc, err := scanScreen(rows)
		if err != nil {
			return nil, fmt.Errorf("scan screen: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) queryAds(ctx context.Context, query string, args ...any) ([]monitor.Ad, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ads: %w", err)
	}
	defer rows.Close()

	var out []monitor.Ad
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ad: %w", err)
		}
		out = append(out, ad)
	}
	return out, rows.Err()
}

func scanHeartbeat(row rowScanner) (monitor.Heartbeat, error) {
	var (
		hb           monitor.Heartbeat
		id, screenID int64
		ts           time.Time
		adID         sql.NullInt64
		status       sql.NullString
	)
	if err := row.Scan(&id, &screenID, &ts, &adID, &status); err != nil {
		return monitor.Heartbeat{}, err
	}
	hb.ID = monitor.HeartbeatID(id)
	hb.ScreenID = monitor.ScreenID(screenID)
	hb.Timestamp = ts.UTC()
	if adID.Valid {
		ad := monitor.AdID(adID.Int64)
		hb.CurrentAdID = &ad
	}
	hb.PlayerStatus = status.String
	return hb, nil
}

func scanScreen(row rowScanner) (monitor.Screen, error) {
	var (
		sc        monitor.Screen
		id        int64
		companyID sql.NullInt64
		status    sql.NullString
		lastHB    sql.NullTime
	)
	if err := row.Scan(&id, &sc.Name, &companyID, &status, &lastHB); err != nil {
		return monitor.Screen{}, err
	}
	sc.ID = monitor.ScreenID(id)
	sc.CompanyID = monitor.CompanyID(companyID.Int64)
	sc.Status = monitor.StatusOffline
	if status.Valid && status.String != "" {
		sc.Status = status.String
	}
	if lastHB.Valid {
		ts := lastHB.Time.UTC()
		sc.LastHeartbeatAt = &ts
	}
	return sc, nil
}

func scanAd(row rowScanner) (monitor.Ad, error) {
	var (
		ad       monitor.Ad
		id       int64
		owner    sql.NullInt64
		fileURL  sql.NullString
		duration sql.NullInt64
	)
	if err := row.Scan(&id, &ad.Name, &owner, &fileURL, &duration); err != nil {
		return monitor.Ad{}, err
	}
	ad.ID = monitor.AdID(id)
	ad.OwnerCompanyID = monitor.CompanyID(owner.Int64)
	ad.FileURL = fileURL.String
	ad.DurationSec = int(duration.Int64)
	return ad, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
