package pg

import (
	"context"

	"github.com/cronkit/scheduler/internal/apperror"
)

// DBStats is the "database" sub-document of GET /jobs/stats (spec §4.F).
type DBStats struct {
	TotalJobs         int64            `json:"totalJobs"`
	ActiveJobs        int64            `json:"activeJobs"`
	TotalExecutions   int64            `json:"totalExecutions"`
	RecentExecutions  int64            `json:"recentExecutions24h"`
	JobsByType        map[string]int64 `json:"jobsByType"`
}

func (s *PGStore) AggregateStats(ctx context.Context) (DBStats, error) {
	var out DBStats
	out.JobsByType = map[string]int64{}

	err := s.timed("aggregate stats", func() error {
		if err := s.db.GetContext(ctx, &out.TotalJobs, `SELECT count(*) FROM jobs`); err != nil {
			return err
		}
		if err := s.db.GetContext(ctx, &out.ActiveJobs, `SELECT count(*) FROM jobs WHERE is_active`); err != nil {
			return err
		}
		if err := s.db.GetContext(ctx, &out.TotalExecutions, `SELECT count(*) FROM job_executions`); err != nil {
			return err
		}
		if err := s.db.GetContext(ctx, &out.RecentExecutions, `SELECT count(*) FROM job_executions WHERE started_at >= now() - interval '24 hours'`); err != nil {
			return err
		}

		rows, err := s.db.QueryContext(ctx, `SELECT job_type, count(*) FROM jobs GROUP BY job_type`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var jobType string
			var count int64
			if err := rows.Scan(&jobType, &count); err != nil {
				return err
			}
			out.JobsByType[jobType] = count
		}
		return rows.Err()
	})
	if err != nil {
		return DBStats{}, apperror.Wrap(apperror.KindTransient, "aggregate stats", err)
	}
	return out, nil
}
