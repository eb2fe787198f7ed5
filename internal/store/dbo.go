package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/datallboy/hlsget/internal/domain"
)

// jobDBO maps to the jobs table
type jobDBO struct {
	ID                string         `db:"id"`
	ManifestURL       string         `db:"manifest_url"`
	OutputName        string         `db:"output_name"`
	OutputPath        string         `db:"output_path"`
	Status            string         `db:"status"`
	TotalSegments     int64          `db:"total_segments"`
	CompletedSegments int64          `db:"completed_segments"`
	FailedSegments    int64          `db:"failed_segments"`
	Bytes             int64          `db:"bytes"`
	Failed            string         `db:"failed"`
	Error             sql.NullString `db:"error"`
	CreatedAt         int64          `db:"created_at"`
	StartedAt         int64          `db:"started_at"`
	EndedAt           int64          `db:"ended_at"`
}

// Mapper: DBO to Domain Job
func (j *jobDBO) ToDomain() *domain.Job {
	var failed []domain.SegmentFailure
	if j.Failed != "" {
		// A damaged column only loses the per-segment detail
		_ = json.Unmarshal([]byte(j.Failed), &failed)
	}

	return domain.JobFromView(domain.JobView{
		ID:                j.ID,
		ManifestURL:       j.ManifestURL,
		OutputName:        j.OutputName,
		OutputPath:        j.OutputPath,
		Status:            domain.JobStatus(j.Status),
		TotalSegments:     j.TotalSegments,
		CompletedSegments: j.CompletedSegments,
		FailedSegments:    j.FailedSegments,
		Bytes:             uint64(j.Bytes),
		Failed:            failed,
		Error:             j.Error.String,
		CreatedAt:         fromUnix(j.CreatedAt),
		StartedAt:         fromUnix(j.StartedAt),
		EndedAt:           fromUnix(j.EndedAt),
	})
}

// Mapper: Domain Job to DBO
func (j *jobDBO) FromDomain(job *domain.Job) error {
	v := job.View()

	failed := []byte("[]")
	if len(v.Failed) > 0 {
		var err error
		if failed, err = json.Marshal(v.Failed); err != nil {
			return err
		}
	}

	j.ID = v.ID
	j.ManifestURL = v.ManifestURL
	j.OutputName = v.OutputName
	j.OutputPath = v.OutputPath
	j.Status = string(v.Status)
	j.TotalSegments = v.TotalSegments
	j.CompletedSegments = v.CompletedSegments
	j.FailedSegments = v.FailedSegments
	j.Bytes = int64(v.Bytes)
	j.Failed = string(failed)
	j.Error = sql.NullString{String: v.Error, Valid: v.Error != ""}
	j.CreatedAt = toUnix(v.CreatedAt)
	j.StartedAt = toUnix(v.StartedAt)
	j.EndedAt = toUnix(v.EndedAt)
	return nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
