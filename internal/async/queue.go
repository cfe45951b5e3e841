package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job is one artifact drop waiting for extraction. Extend as needed later
// (retry count, priority, etc).
type Job struct {
	ArtifactPath string // Textract artifact path under the inbox
	Force        bool   // enqueue even if a result artifact already exists
	SubmittedAt  time.Time
	TraceID      string
}

// NewJob stamps a job with a trace ID and submission time.
func NewJob(path string) Job {
	return Job{
		ArtifactPath: path,
		SubmittedAt:  time.Now().UTC(),
		TraceID:      uuid.NewString(),
	}
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
