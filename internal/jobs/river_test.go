package jobs

import (
	"testing"
	"time"

	"github.com/riverqueue/river/rivertype"
)

func TestRetryPolicyBackoffDoubles(t *testing.T) {
	policy := NewRetryPolicy()
	attempted := time.Now().Add(-time.Minute)

	first := policy.NextRetry(&rivertype.JobRow{
		Kind:        JobKindDecisionNotify,
		Attempt:     1,
		AttemptedAt: &attempted,
	})
	second := policy.NextRetry(&rivertype.JobRow{
		Kind:        JobKindDecisionNotify,
		Attempt:     2,
		AttemptedAt: &attempted,
	})

	firstDelay := first.Sub(attempted)
	secondDelay := second.Sub(attempted)
	if secondDelay != 2*firstDelay {
		t.Fatalf("expected doubling backoff, got %v then %v", firstDelay, secondDelay)
	}
}

func TestRetryPolicyCapsAtMaxDelay(t *testing.T) {
	policy := NewRetryPolicy()
	attempted := time.Now()

	far := policy.NextRetry(&rivertype.JobRow{
		Kind:        JobKindDecisionNotify,
		Attempt:     30,
		AttemptedAt: &attempted,
	})
	if got := far.Sub(attempted); got > time.Hour {
		t.Fatalf("delay %v exceeds cap", got)
	}
}

func TestInsertOptsForKind(t *testing.T) {
	if got := InsertOptsForKind(JobKindDecisionNotify).MaxAttempts; got != DecisionNotifyMaxAttempts {
		t.Fatalf("decision notify max attempts = %d", got)
	}
	if got := InsertOptsForKind(JobKindBlobSweep).MaxAttempts; got != BlobSweepMaxAttempts {
		t.Fatalf("blob sweep max attempts = %d", got)
	}
	if got := InsertOptsForKind("unknown").MaxAttempts; got != DecisionNotifyMaxAttempts {
		t.Fatalf("unknown kind should use default, got %d", got)
	}
}
