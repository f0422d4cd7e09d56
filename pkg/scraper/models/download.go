package models

import (
	"time"

	"github.com/google/uuid"
)

// DownloadState is the lifecycle of one download attempt.
type DownloadState string

const (
	DownloadPending    DownloadState = "pending"
	DownloadInProgress DownloadState = "in_progress"
	DownloadCompleted  DownloadState = "completed"
	DownloadFailed     DownloadState = "failed"
)

// DownloadStatus tracks a single in-flight download. It lives only for the
// duration of the attempt and is never persisted; the durable outcome is
// the version row's Downloaded/FilePath pair.
type DownloadStatus struct {
	ID              string
	AppKey          string
	VersionID       string
	State           DownloadState
	DownloadedBytes int64
	TotalBytes      int64
	ErrorMessage    string
	RetryCount      int
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

func NewDownloadStatus(appKey, versionID string) *DownloadStatus {
	return &DownloadStatus{
		ID:        uuid.New().String(),
		AppKey:    appKey,
		VersionID: versionID,
		State:     DownloadPending,
	}
}

func (s *DownloadStatus) MarkStarted() {
	now := time.Now()
	s.State = DownloadInProgress
	s.StartedAt = &now
}

func (s *DownloadStatus) MarkCompleted() {
	now := time.Now()
	s.State = DownloadCompleted
	s.CompletedAt = &now
	s.DownloadedBytes = s.TotalBytes
}

func (s *DownloadStatus) MarkFailed(errMsg string) {
	s.State = DownloadFailed
	s.ErrorMessage = errMsg
	s.RetryCount++
}

// Progress reports completion as a percentage, 0 when the total is unknown.
func (s *DownloadStatus) Progress() float64 {
	if s.TotalBytes <= 0 {
		return 0
	}
	return float64(s.DownloadedBytes) / float64(s.TotalBytes) * 100
}
