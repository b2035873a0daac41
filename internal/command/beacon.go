package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DK5EN/mcapp-gateway/internal/model"
	"github.com/DK5EN/mcapp-gateway/internal/router"
)

const minBeaconIntervalSeconds = 10

// beaconTask is one running `!topic` repeater for a single group.
type beaconTask struct {
	group    string
	topic    string
	interval time.Duration // actual sleep between beacons: period minus 10s, floored at 10s
	cancel   context.CancelFunc
}

// beaconScheduler runs one cooperative goroutine per group with an active
// topic beacon (spec.md §4.3/§5). Cancellation is cooperative via
// context, never a hard kill: cancelling a task ends its current wait at
// once, without publishing another beacon.
type beaconScheduler struct {
	log    *zap.Logger
	router *router.Router

	mu    sync.Mutex
	tasks map[string]*beaconTask // group -> task
}

func newBeaconScheduler(log *zap.Logger, r *router.Router) *beaconScheduler {
	return &beaconScheduler{
		log:    log.Named("beacon"),
		router: r,
		tasks:  make(map[string]*beaconTask),
	}
}

// start begins (or replaces) the topic beacon for group, repeating every
// intervalMinutes minutes. The actual sleep is intervalMinutes*60-10
// seconds, floored at 10s, so the beacon fires slightly ahead of the
// nominal period (spec.md §5).
func (s *beaconScheduler) start(group, topic string, intervalMinutes int) {
	group = strings.ToUpper(group)
	sleep := time.Duration(intervalMinutes)*time.Minute - 10*time.Second
	if sleep < minBeaconIntervalSeconds*time.Second {
		sleep = minBeaconIntervalSeconds * time.Second
	}

	s.mu.Lock()
	if existing, ok := s.tasks[group]; ok {
		existing.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	task := &beaconTask{group: group, topic: topic, interval: sleep, cancel: cancel}
	s.tasks[group] = task
	s.mu.Unlock()

	go s.run(ctx, task)
}

func (s *beaconScheduler) run(ctx context.Context, task *beaconTask) {
	ticker := time.NewTicker(task.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.router.Publish("beacon", router.TopicUDPMessage, model.Message{
				Dst:  task.group,
				Text: task.topic,
				Type: model.TypeMsg,
			})
		}
	}
}

// stop cancels the beacon for group, satisfying `!topic delete GROUP`. It
// reports whether a beacon was actually running.
func (s *beaconScheduler) stop(group string) bool {
	group = strings.ToUpper(group)
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[group]
	if !ok {
		return false
	}
	task.cancel()
	delete(s.tasks, group)
	return true
}

// list renders the active beacons for `!topic` with no arguments.
func (s *beaconScheduler) list() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 {
		return "no active topics"
	}
	var b strings.Builder
	for group, task := range s.tasks {
		fmt.Fprintf(&b, "%s: %q; ", group, task.topic)
	}
	return strings.TrimSuffix(b.String(), "; ")
}

// stopAll cancels every beacon, used on gateway shutdown.
func (s *beaconScheduler) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for group, task := range s.tasks {
		task.cancel()
		delete(s.tasks, group)
	}
}
