// Package swarm drives Docker Swarm through the docker CLI. Stack deploys
// are not exposed by the engine API, so every operation shells out with a
// bounded timeout and captured stderr.
package swarm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// CLI runs docker commands against the local swarm manager.
type CLI struct {
	logger        *zap.Logger
	deployTimeout time.Duration
}

// NewCLI constructs a docker CLI wrapper.
func NewCLI(logger *zap.Logger, deployTimeout time.Duration) *CLI {
	if logger == nil {
		panic("swarm cli requires logger")
	}
	if deployTimeout <= 0 {
		deployTimeout = 60 * time.Second
	}
	return &CLI{logger: logger, deployTimeout: deployTimeout}
}

func (c *CLI) run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return "", fmt.Errorf("docker %s: %s", args[0], msg)
	}
	return stdout.String(), nil
}

// DeployStack writes the rendered compose definition to a temp file and
// runs `docker stack deploy`. The temp file is removed afterwards so
// credentials embedded in the definition don't linger on disk.
func (c *CLI) DeployStack(ctx context.Context, stack string, compose []byte) error {
	f, err := os.CreateTemp("", "stack-*.yml")
	if err != nil {
		return fmt.Errorf("write compose file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(compose); err != nil {
		f.Close()
		return fmt.Errorf("write compose file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write compose file: %w", err)
	}

	if _, err := c.run(ctx, c.deployTimeout, "stack", "deploy", "-c", f.Name(), stack); err != nil {
		return err
	}
	c.logger.Info("stack deployed", zap.String("stack", stack))
	return nil
}

// RemoveStack tears down a stack. Removing an absent stack is not an error.
func (c *CLI) RemoveStack(ctx context.Context, stack string) error {
	if _, err := c.run(ctx, 30*time.Second, "stack", "rm", stack); err != nil {
		if strings.Contains(err.Error(), "not found") {
			return nil
		}
		return err
	}
	return nil
}

// RunningTasks counts the tasks of a service currently in the running state.
func (c *CLI) RunningTasks(ctx context.Context, service string) (int, error) {
	out, err := c.run(ctx, 15*time.Second,
		"service", "ps", service,
		"--filter", "desired-state=running",
		"--format", "{{.CurrentState}}",
	)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "Running") {
			count++
		}
	}
	return count, nil
}

// ScaleService sets the replica count of a service.
func (c *CLI) ScaleService(ctx context.Context, service string, replicas int) error {
	_, err := c.run(ctx, 30*time.Second, "service", "scale", "-d", fmt.Sprintf("%s=%d", service, replicas))
	return err
}

// ExecInService runs a command inside the first container of a service on
// this node and returns its combined output. A non-zero exit surfaces as
// an error carrying the output.
func (c *CLI) ExecInService(ctx context.Context, service string, command ...string) (string, error) {
	out, err := c.run(ctx, 15*time.Second, "ps", "--filter", "name="+service, "--format", "{{.ID}}", "--latest")
	if err != nil {
		return "", err
	}
	containerID := strings.TrimSpace(out)
	if containerID == "" {
		return "", fmt.Errorf("no running container for service %s", service)
	}

	args := append([]string{"exec", containerID}, command...)
	return c.run(ctx, 5*time.Minute, args...)
}
