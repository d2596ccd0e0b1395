package requests_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Lavizord/coinflip-client/internal/apperr"
	"github.com/Lavizord/coinflip-client/internal/requests"
)

func TestTrackerLifecycle(t *testing.T) {
	tracker := requests.NewTracker[int]()

	if state := tracker.State(); state.Status != requests.StatusIdle {
		t.Fatalf("expected idle, got %s", state.Status)
	}

	state := tracker.Run(context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	if state.Status != requests.StatusFulfilled || state.Value != 42 {
		t.Errorf("expected fulfilled 42, got %s %d", state.Status, state.Value)
	}

	state = tracker.Run(context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("backend down")
	})
	if state.Status != requests.StatusRejected {
		t.Errorf("expected rejected, got %s", state.Status)
	}
	if state.Err == nil || state.Err.Kind != apperr.KindUnknown {
		t.Errorf("expected unknown error kind, got %+v", state.Err)
	}

	// A failed operation can be re-run back into fulfilled.
	state = tracker.Run(context.Background(), func(ctx context.Context) (int, error) {
		return 7, nil
	})
	if state.Status != requests.StatusFulfilled || state.Value != 7 || state.Err != nil {
		t.Errorf("expected recovery to fulfilled 7, got %+v", state)
	}
}

func TestTrackerErrorKindPropagation(t *testing.T) {
	tracker := requests.NewTracker[string]()

	state := tracker.Run(context.Background(), func(ctx context.Context) (string, error) {
		return "", apperr.New(apperr.KindRateLimited, "rate_limited", "slow down")
	})
	if state.Err == nil || state.Err.Kind != apperr.KindRateLimited {
		t.Fatalf("expected rate limited kind, got %+v", state.Err)
	}
	if msg := apperr.UserMessage(state.Err); msg == "" || msg == "slow down" {
		t.Errorf("expected mapped user message, got %q", msg)
	}
}

func TestTrackerSupersede(t *testing.T) {
	tracker := requests.NewTracker[string]()

	firstStarted := make(chan struct{})
	release := make(chan struct{})
	done := make(chan requests.State[string], 1)

	go func() {
		done <- tracker.Run(context.Background(), func(ctx context.Context) (string, error) {
			close(firstStarted)
			<-release
			return "stale", nil
		})
	}()

	<-firstStarted
	state := tracker.Run(context.Background(), func(ctx context.Context) (string, error) {
		return "fresh", nil
	})
	if state.Status != requests.StatusFulfilled || state.Value != "fresh" {
		t.Fatalf("second invocation should win: %+v", state)
	}

	// Let the first, superseded operation finish; its completion must be
	// discarded wholesale.
	close(release)
	<-done

	final := tracker.State()
	if final.Value != "fresh" {
		t.Errorf("stale completion overwrote the fresh value: %+v", final)
	}
	if final.Status != requests.StatusFulfilled {
		t.Errorf("expected fulfilled, got %s", final.Status)
	}
}

func TestStaleWhileRevalidate(t *testing.T) {
	tracker := requests.NewTracker[int]()

	tracker.Run(context.Background(), func(ctx context.Context) (int, error) {
		return 1, nil
	})

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		tracker.Run(context.Background(), func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 2, nil
		})
	}()

	<-started
	state := tracker.State()
	if state.Status != requests.StatusPending {
		t.Errorf("expected pending during re-invocation, got %s", state.Status)
	}
	if state.Value != 1 {
		t.Errorf("previous value should stay readable while pending, got %d", state.Value)
	}
	close(release)
}

func TestPageTrackerMetadata(t *testing.T) {
	tracker := requests.NewPageTracker[string]()

	state := tracker.Run(context.Background(), func(ctx context.Context) (requests.Page[string], error) {
		return requests.Page[string]{
			Items:      []string{"a", "b"},
			Page:       2,
			TotalPages: 9,
			TotalItems: 171,
		}, nil
	})
	if state.Status != requests.StatusFulfilled {
		t.Fatalf("expected fulfilled, got %s", state.Status)
	}
	if state.Value.Page != 2 || state.Value.TotalPages != 9 || state.Value.TotalItems != 171 {
		t.Errorf("pagination metadata lost: %+v", state.Value)
	}
}
