package update

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Controller drives one update attempt end to end (spec.md §4.7).
type Controller struct {
	log           *zap.Logger
	layout        *Layout
	events        *Broadcaster
	etcDir        string
	bootstrapPath string
	checks        []Check

	deploymentID string
}

func NewController(log *zap.Logger, layout *Layout, events *Broadcaster, etcDir, bootstrapPath string, checks []Check) *Controller {
	return &Controller{
		log:           log.Named("update"),
		layout:        layout,
		events:        events,
		etcDir:        etcDir,
		bootstrapPath: bootstrapPath,
		checks:        checks,
	}
}

// Result is the terminal outcome of one Run, reported on the `/status`
// endpoint after completion.
type Result struct {
	DeploymentID string
	Succeeded    bool
	TargetSlot   int
	Error        string
}

// Run executes spec.md §4.7's six-step flow: target selection, etc
// snapshot, bootstrap into the target slot (streaming log/phase events),
// atomic symlink swap, health checks, and rollback on any failure. Each
// attempt gets its own UUID so concurrent log lines across /status
// polls and the SSE stream can be correlated back to one run.
func (c *Controller) Run(ctx context.Context, version string) Result {
	c.deploymentID = uuid.NewString()

	active, err := c.layout.ActiveSlot()
	if err != nil {
		return c.fail(err)
	}

	target, err := c.layout.TargetSlot()
	if err != nil {
		return c.fail(err)
	}
	c.publishPhase("select_target", 5, fmt.Sprintf("deploying to slot %d (active: slot %d)", target, active))

	snapshotPath := c.layout.EtcSnapshotPath(active)
	if err := SnapshotEtc(c.etcDir, snapshotPath); err != nil {
		return c.fail(fmt.Errorf("snapshot /etc: %w", err))
	}
	c.publishPhase("snapshot", 15, "etc snapshot complete")

	if err := c.layout.WriteMeta(SlotMeta{SlotID: target, Version: version, Status: SlotDeploying, DeployedAt: nowISO()}); err != nil {
		return c.fail(err)
	}

	if err := c.runBootstrap(ctx, target); err != nil {
		c.layout.WriteMeta(SlotMeta{SlotID: target, Version: version, Status: SlotFailed, DeployedAt: nowISO()})
		return c.fail(fmt.Errorf("bootstrap failed: %w", err))
	}
	c.publishPhase("bootstrap", 70, "bootstrap complete")

	if err := c.layout.SwapCurrent(target); err != nil {
		return c.fail(fmt.Errorf("swap current: %w", err))
	}
	c.publishPhase("swap", 80, fmt.Sprintf("current now points at slot %d", target))

	checkErr := RunChecks(ctx, c.checks, func(name string, attempt int, err error) {
		status := "ok"
		if err != nil {
			status = err.Error()
		}
		c.events.Publish(Event{Kind: "log", DeploymentID: c.deploymentID, Phase: "healthcheck", Text: fmt.Sprintf("%s (attempt %d): %s", name, attempt, status)})
	})

	if checkErr != nil {
		c.publishPhase("rollback", 85, checkErr.Error())
		if rbErr := c.rollback(ctx, active, snapshotPath); rbErr != nil {
			return c.fail(fmt.Errorf("health checks failed (%v) and rollback also failed: %w", checkErr, rbErr))
		}
		c.layout.WriteMeta(SlotMeta{SlotID: target, Version: version, Status: SlotFailed, DeployedAt: nowISO()})
		return c.fail(fmt.Errorf("health checks failed, rolled back to slot %d: %w", active, checkErr))
	}

	c.layout.WriteMeta(SlotMeta{SlotID: target, Version: version, Status: SlotHealthy, DeployedAt: nowISO()})
	c.publishPhase("complete", 100, "deployment healthy")
	return Result{DeploymentID: c.deploymentID, Succeeded: true, TargetSlot: target}
}

// rollback swaps `current` back to the previous slot, restores its /etc
// snapshot, and restarts services (spec.md §4.7 step 6).
func (c *Controller) rollback(ctx context.Context, previousSlot int, etcSnapshot string) error {
	if err := c.layout.SwapCurrent(previousSlot); err != nil {
		return fmt.Errorf("swap back to slot %d: %w", previousSlot, err)
	}
	if err := RestoreEtc(etcSnapshot, c.etcDir); err != nil {
		return fmt.Errorf("restore etc snapshot: %w", err)
	}
	if err := exec.CommandContext(ctx, "systemctl", "daemon-reload").Run(); err != nil {
		c.log.Warn("daemon-reload failed during rollback", zap.Error(err))
	}
	for _, unit := range []string{"mcapp", "lighttpd"} {
		if err := exec.CommandContext(ctx, "systemctl", "restart", unit).Run(); err != nil {
			c.log.Warn("service restart failed during rollback", zap.String("unit", unit), zap.Error(err))
		}
	}
	c.events.Publish(Event{Kind: "rollback", DeploymentID: c.deploymentID, Text: fmt.Sprintf("rolled back to slot %d", previousSlot)})
	return nil
}

// runBootstrap runs the bootstrap script into the target slot directory,
// streaming each output line as a `log` event under the `bootstrap` phase.
func (c *Controller) runBootstrap(ctx context.Context, target int) error {
	cmd := exec.CommandContext(ctx, c.bootstrapPath, c.layout.SlotDir(target))
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start bootstrap script: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		c.events.Publish(Event{Kind: "log", DeploymentID: c.deploymentID, Phase: "bootstrap", Text: scanner.Text()})
	}

	return cmd.Wait()
}

func (c *Controller) publishPhase(phase string, pct int, text string) {
	c.log.Info("update phase", zap.String("phase", phase), zap.Int("pct", pct), zap.String("text", text))
	c.events.Publish(Event{Kind: "phase", DeploymentID: c.deploymentID, Phase: phase, Pct: pct, Text: text})
}

func (c *Controller) fail(err error) Result {
	c.log.Error("update failed", zap.String("deployment_id", c.deploymentID), zap.Error(err))
	c.events.Publish(Event{Kind: "result", DeploymentID: c.deploymentID, Text: err.Error()})
	return Result{DeploymentID: c.deploymentID, Succeeded: false, Error: err.Error()}
}

func nowISO() string { return time.Now().UTC().Format(time.RFC3339) }
