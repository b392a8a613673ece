// Package archive keeps a durable history of finished sessions. Writes are
// best-effort: the engine's result is already in the caller's hands when
// archiving runs, so a failure here never loses a workout.
package archive

import (
	"context"
	"time"

	"runstr-engine/internal/db"
	"runstr-engine/internal/track"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

// Record is one archived session row.
type Record struct {
	SessionID      string             `json:"session_id"`
	ActivityType   track.ActivityType `json:"activity_type"`
	StartedAt      time.Time          `json:"started_at"`
	EndedAt        time.Time          `json:"ended_at"`
	DistanceM      float64            `json:"distance_m"`
	DurationSec    int64              `json:"duration_sec"`
	PausedSec      int64              `json:"paused_sec"`
	PauseCount     int                `json:"pause_count"`
	ElevationGainM float64            `json:"elevation_gain_m"`
	PointCount     int                `json:"point_count"`
}

// SaveResult archives a final result and its point set.
func (s *Service) SaveResult(ctx context.Context, result track.FinalSessionResult) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO activity_sessions (id, activity_type, started_at, ended_at, distance_m, duration_sec, paused_sec, pause_count, elevation_gain_m, point_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, result.SessionID, string(result.ActivityType), result.StartedAt, result.EndedAt,
		result.DistanceM, int64(result.Duration.Seconds()), int64(result.PausedDuration.Seconds()),
		result.PauseCount, result.ElevationGainM, len(result.Points))
	if err != nil {
		return err
	}

	for _, p := range result.Points {
		_, err := s.db.Exec(ctx, `
			INSERT INTO activity_points (session_id, lat, lng, altitude_m, recorded_at, accuracy_m, speed_mps)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`, result.SessionID, p.Lat, p.Lng, p.AltitudeM, p.Timestamp, p.AccuracyM, p.SpeedMps)
		if err != nil {
			return err
		}
	}
	return nil
}

// History returns the most recent archived sessions.
func (s *Service) History(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, activity_type, started_at, ended_at, COALESCE(distance_m,0), COALESCE(duration_sec,0), COALESCE(paused_sec,0), COALESCE(pause_count,0), COALESCE(elevation_gain_m,0), COALESCE(point_count,0)
		FROM activity_sessions
		ORDER BY ended_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var activity string
		if err := rows.Scan(&r.SessionID, &activity, &r.StartedAt, &r.EndedAt, &r.DistanceM, &r.DurationSec, &r.PausedSec, &r.PauseCount, &r.ElevationGainM, &r.PointCount); err != nil {
			return nil, err
		}
		r.ActivityType = track.ActivityType(activity)
		records = append(records, r)
	}
	return records, nil
}
