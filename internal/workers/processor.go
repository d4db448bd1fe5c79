package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/studyhall-app/studyhall/internal/queue"
	"github.com/studyhall-app/studyhall/internal/services/ai"
)

// Processor dispatches queue messages to the per-type workers and owns the
// retry policy.
type Processor struct {
	repairer   *ProfileRepairer
	summarizer *ChatSummarizer
	jobQueue   queue.JobQueue // For re-enqueueing jobs with delays
}

// NewProcessor creates a new processor
func NewProcessor(repairer *ProfileRepairer, summarizer *ChatSummarizer, jobQueue queue.JobQueue) *Processor {
	return &Processor{
		repairer:   repairer,
		summarizer: summarizer,
		jobQueue:   jobQueue,
	}
}

// ProcessJob processes a job based on its type
func (p *Processor) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	// Respect NotBefore; delayed delivery normally handles this, but a
	// redelivered message can arrive early.
	if !job.ShouldProcess() {
		log.Printf("Job %s not ready yet (NotBefore: %v), skipping", job.ID, job.NotBefore)
		if ackErr := msg.Ack(); ackErr != nil {
			log.Printf("Failed to ack job for later processing: %v", ackErr)
		}
		return nil
	}

	switch job.Type {
	case queue.JobTypeProfileRepair:
		if err := p.repairer.ProcessProfileRepairJob(ctx, job); err != nil {
			return p.handleJobError(ctx, msg, job, err, "profile repair")
		}
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil

	case queue.JobTypeChatSummary:
		if err := p.summarizer.ProcessChatSummaryJob(ctx, job); err != nil {
			return p.handleJobError(ctx, msg, job, err, "chat summary")
		}
		if ackErr := msg.Ack(); ackErr != nil {
			return fmt.Errorf("failed to ack job: %w", ackErr)
		}
		return nil

	default:
		if nackErr := msg.Nack(false); nackErr != nil { // Unknown job type, send to DLQ
			log.Printf("Failed to nack unknown job type: %v", nackErr)
		}
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// handleJobError applies the retry policy: quota and rate-limit errors are
// re-enqueued with a delay through the delayed exchange; everything else uses
// nack-requeue until retries are exhausted, then goes to the DLQ.
func (p *Processor) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error, jobType string) error {
	if ai.IsQuotaError(err) {
		log.Printf("Quota exceeded for %s job %s: %v", jobType, job.ID, err)

		retryDelay := ai.GetRetryDelay(err, job.RetryCount)
		notBefore := time.Now().Add(retryDelay)

		if ackErr := msg.Ack(); ackErr != nil {
			log.Printf("Failed to ack job before re-enqueue: %v", ackErr)
		}

		if p.jobQueue != nil {
			if enqueueErr := p.jobQueue.Enqueue(ctx, delayedRetry(job, notBefore)); enqueueErr != nil {
				log.Printf("Failed to re-enqueue job %s with delay: %v", job.ID, enqueueErr)
				return fmt.Errorf("quota exhausted, failed to re-enqueue: %w", enqueueErr)
			}
			log.Printf("Re-enqueued %s job %s for retry at %v", jobType, job.ID, notBefore)
			return nil
		}

		return fmt.Errorf("quota exhausted (job %s): %w", job.ID, err)
	}

	if ai.IsRateLimitError(err) {
		log.Printf("Rate limited for %s job %s: %v", jobType, job.ID, err)

		if job.CanRetry() && p.jobQueue != nil {
			notBefore := time.Now().Add(ai.GetRetryDelay(err, job.RetryCount))

			if ackErr := msg.Ack(); ackErr != nil {
				log.Printf("Failed to ack rate limited job: %v", ackErr)
			}

			if enqueueErr := p.jobQueue.Enqueue(ctx, delayedRetry(job, notBefore)); enqueueErr != nil {
				log.Printf("Failed to re-enqueue rate limited job %s: %v", job.ID, enqueueErr)
				if nackErr := msg.Nack(true); nackErr != nil {
					log.Printf("Failed to nack rate limited job: %v", nackErr)
				}
				return fmt.Errorf("rate limited, failed to re-enqueue: %w", enqueueErr)
			}

			log.Printf("Rate limited: re-enqueued %s job %s for retry at %v", jobType, job.ID, notBefore)
			return nil
		}
	}

	if job.CanRetry() {
		job.IncrementRetry()
		log.Printf("%s job %s failed (attempt %d/%d): %v, will retry", jobType, job.ID, job.RetryCount, job.MaxRetries, err)
		if nackErr := msg.Nack(true); nackErr != nil {
			log.Printf("Failed to nack job: %v", nackErr)
		}
		return fmt.Errorf("job failed (will retry): %w", err)
	}

	log.Printf("%s job %s failed after %d retries: %v, sending to DLQ", jobType, job.ID, job.MaxRetries, err)
	if nackErr := msg.Nack(false); nackErr != nil {
		log.Printf("Failed to nack job to DLQ: %v", nackErr)
	}
	return fmt.Errorf("job failed (max retries): %w", err)
}

// delayedRetry clones a job for delayed redelivery with the retry count
// advanced.
func delayedRetry(job *queue.Job, notBefore time.Time) *queue.Job {
	return &queue.Job{
		ID:         job.ID,
		Type:       job.Type,
		IdentityID: job.IdentityID,
		NotBefore:  &notBefore,
		NotAfter:   job.NotAfter,
		Metadata:   job.Metadata,
		CreatedAt:  job.CreatedAt,
		RetryCount: job.RetryCount + 1,
		MaxRetries: job.MaxRetries,
	}
}
