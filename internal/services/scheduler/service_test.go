package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/servicedesk-io/slacore/internal/models"
)

func testJob(slug, handler string) *models.ScheduledJob {
	return &models.ScheduledJob{
		Name:     slug,
		Slug:     slug,
		Handler:  handler,
		Schedule: "@every 1m",
	}
}

func jobBySlug(t *testing.T, s *Service, slug string) *models.ScheduledJob {
	t.Helper()
	for _, job := range s.Jobs() {
		if job.Slug == slug {
			return job
		}
	}
	t.Fatalf("job %s not found", slug)
	return nil
}

func TestExecuteJobRecordsSuccess(t *testing.T) {
	s := NewService(WithJobs([]*models.ScheduledJob{testJob("scan", "test.scan")}))

	ran := false
	s.RegisterHandler("test.scan", func(ctx context.Context, job *models.ScheduledJob) error {
		ran = true
		return nil
	})

	s.executeJob("scan", 0)

	if !ran {
		t.Fatal("handler did not run")
	}
	job := jobBySlug(t, s, "scan")
	if job.LastStatus != statusSuccess {
		t.Errorf("status = %s, want %s", job.LastStatus, statusSuccess)
	}
	if job.LastRunAt == nil {
		t.Error("LastRunAt not recorded")
	}
	if job.ErrorMessage != nil {
		t.Errorf("unexpected error message %q", *job.ErrorMessage)
	}
}

func TestExecuteJobRecordsFailure(t *testing.T) {
	s := NewService(WithJobs([]*models.ScheduledJob{testJob("scan", "test.scan")}))
	s.RegisterHandler("test.scan", func(ctx context.Context, job *models.ScheduledJob) error {
		return errors.New("boom")
	})

	s.executeJob("scan", 0)

	job := jobBySlug(t, s, "scan")
	if job.LastStatus != statusFailed {
		t.Errorf("status = %s, want %s", job.LastStatus, statusFailed)
	}
	if job.ErrorMessage == nil || *job.ErrorMessage != "boom" {
		t.Errorf("error message = %v, want boom", job.ErrorMessage)
	}
}

func TestExecuteJobRecoversFromPanic(t *testing.T) {
	s := NewService(WithJobs([]*models.ScheduledJob{testJob("scan", "test.scan")}))
	s.RegisterHandler("test.scan", func(ctx context.Context, job *models.ScheduledJob) error {
		panic("scan exploded")
	})

	s.executeJob("scan", 0)

	job := jobBySlug(t, s, "scan")
	if job.LastStatus != statusFailed {
		t.Errorf("status = %s, want %s", job.LastStatus, statusFailed)
	}
	if job.ErrorMessage == nil {
		t.Fatal("panic not captured as error message")
	}
}

func TestExecuteJobWithoutHandlerFails(t *testing.T) {
	s := NewService(WithJobs([]*models.ScheduledJob{testJob("scan", "test.missing")}))

	s.executeJob("scan", 0)

	job := jobBySlug(t, s, "scan")
	if job.LastStatus != statusFailed {
		t.Errorf("status = %s, want %s", job.LastStatus, statusFailed)
	}
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	s := NewService(WithJobs([]*models.ScheduledJob{testJob("scan", "test.scan")}))

	release := make(chan struct{})
	started := make(chan struct{})
	s.RegisterHandler("test.scan", func(ctx context.Context, job *models.ScheduledJob) error {
		close(started)
		<-release
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.executeJob("scan", 0)
	}()

	<-started
	// Second firing while the first still holds the job.
	s.executeJob("scan", 0)

	job := jobBySlug(t, s, "scan")
	if job.LastStatus != statusSkipped {
		t.Errorf("status = %s, want %s", job.LastStatus, statusSkipped)
	}

	close(release)
	wg.Wait()

	job = jobBySlug(t, s, "scan")
	if job.LastStatus != statusSuccess {
		t.Errorf("status after release = %s, want %s", job.LastStatus, statusSuccess)
	}
}

func TestJobTimeoutCancelsContext(t *testing.T) {
	job := testJob("scan", "test.scan")
	job.TimeoutSeconds = 1
	s := NewService(WithJobs([]*models.ScheduledJob{job}))

	s.RegisterHandler("test.scan", func(ctx context.Context, job *models.ScheduledJob) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Second):
			return nil
		}
	})

	done := make(chan struct{})
	go func() {
		s.executeJob("scan", 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not respect its timeout")
	}

	if got := jobBySlug(t, s, "scan").LastStatus; got != statusFailed {
		t.Errorf("status = %s, want %s", got, statusFailed)
	}
}

func TestDefaultJobsAreCloned(t *testing.T) {
	first := DefaultJobs()
	first[0].Schedule = "@every 1h"

	second := DefaultJobs()
	if second[0].Schedule == "@every 1h" {
		t.Error("DefaultJobs leaked shared state between calls")
	}
}

func TestIntFromConfig(t *testing.T) {
	cfg := map[string]any{
		"float":  float64(7),
		"int":    3,
		"string": " 11 ",
		"junk":   "nope",
	}
	tests := []struct {
		key  string
		want int
	}{
		{"float", 7},
		{"int", 3},
		{"string", 11},
		{"junk", 5},
		{"missing", 5},
	}
	for _, tt := range tests {
		if got := IntFromConfig(cfg, tt.key, 5); got != tt.want {
			t.Errorf("IntFromConfig(%s) = %d, want %d", tt.key, got, tt.want)
		}
	}
}
