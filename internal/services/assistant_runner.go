package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/luminachat/lumina-backend/internal/clients/openai"
	"github.com/luminachat/lumina-backend/internal/pkg/envutil"
	"github.com/luminachat/lumina-backend/internal/pkg/logger"
)

// AssistantRunCoordinator owns the external conversation-thread lifecycle.
// The upstream service rejects adding a message while a run is active on
// the same thread; the coordinator holds no in-process lock and instead
// polls the externally-reported run status.
type AssistantRunCoordinator interface {
	CreateThread(ctx context.Context) (string, error)

	// AddUserMessage waits for the thread's latest run to go idle (bounded
	// poll, soft timeout), adds the message, and on an active-run conflict
	// in the race window waits once more and retries exactly once.
	AddUserMessage(ctx context.Context, threadID string, text string) error

	// RunAssistant creates a run and polls until completion. A run ending
	// failed/cancelled/expired returns *RunFailedError with the upstream
	// detail. The poll is bounded; a run still live at the ceiling is an
	// error, not a hang.
	RunAssistant(ctx context.Context, threadID string, assistantID string) (string, error)
}

type assistantRunCoordinator struct {
	log    *logger.Logger
	client openai.Client

	pollInterval   time.Duration
	addWaitCeiling time.Duration
	runCeiling     time.Duration
}

func NewAssistantRunCoordinator(log *logger.Logger, client openai.Client) AssistantRunCoordinator {
	return &assistantRunCoordinator{
		log:            log.With("service", "AssistantRunCoordinator"),
		client:         client,
		pollInterval:   time.Second,
		addWaitCeiling: envutil.Seconds("ASSISTANT_ADD_WAIT_SECONDS", 60*time.Second),
		runCeiling:     envutil.Seconds("ASSISTANT_RUN_TIMEOUT_SECONDS", 120*time.Second),
	}
}

func (c *assistantRunCoordinator) CreateThread(ctx context.Context) (string, error) {
	return c.client.CreateThread(ctx)
}

func (c *assistantRunCoordinator) AddUserMessage(ctx context.Context, threadID string, text string) error {
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return fmt.Errorf("thread_id required")
	}

	if err := c.waitForIdleThread(ctx, threadID); err != nil {
		return err
	}

	err := c.client.CreateMessage(ctx, threadID, "user", text)
	if err == nil {
		return nil
	}
	if !openai.IsActiveRunConflict(err) {
		return err
	}

	// A run slipped in between the idle check and the add. Wait it out and
	// retry exactly once; a second failure propagates.
	c.log.Warn("Message add lost race with a new run; retrying once",
		"thread_id", threadID,
	)
	if waitErr := c.waitForIdleThread(ctx, threadID); waitErr != nil {
		return waitErr
	}
	return c.client.CreateMessage(ctx, threadID, "user", text)
}

// waitForIdleThread polls the thread's most recent run until it is no
// longer active. Hitting the ceiling is a soft timeout: logged, then the
// caller proceeds regardless.
func (c *assistantRunCoordinator) waitForIdleThread(ctx context.Context, threadID string) error {
	deadline := time.Now().Add(c.addWaitCeiling)
	for {
		run, err := c.client.GetLatestRun(ctx, threadID)
		if err != nil {
			return err
		}
		if !run.Active() {
			return nil
		}
		if !time.Now().Before(deadline) {
			c.log.Warn("Timed out waiting for active run to clear; proceeding",
				"thread_id", threadID,
				"run_id", run.ID,
				"run_status", run.Status,
				"waited", c.addWaitCeiling.String(),
			)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *assistantRunCoordinator) RunAssistant(ctx context.Context, threadID string, assistantID string) (string, error) {
	run, err := c.client.CreateRun(ctx, threadID, assistantID)
	if err != nil {
		return "", err
	}

	started := time.Now()
	for run.Status != openai.RunStatusCompleted {
		switch run.Status {
		case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired:
			rfe := &RunFailedError{ThreadID: threadID, RunID: run.ID, Status: run.Status}
			if run.LastError != nil {
				rfe.Code = run.LastError.Code
				rfe.Message = run.LastError.Message
			}
			return "", rfe
		}

		if time.Since(started) > c.runCeiling {
			return "", fmt.Errorf("assistant run %s on thread %s still %s after %s", run.ID, threadID, run.Status, c.runCeiling)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}

		run, err = c.client.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return "", err
		}
	}

	msg, err := c.client.GetLatestMessage(ctx, threadID)
	if err != nil {
		return "", err
	}
	reply := msg.FirstText()
	if strings.TrimSpace(reply) == "" {
		return "", fmt.Errorf("assistant reply on thread %s has no text block", threadID)
	}
	return reply, nil
}
