package transport

import (
	"os/exec"

	"vulnalert/internal/logger"
	"vulnalert/pkg/models"
)

// StartTaskHandler starts another task through the management client,
// authenticated as the alert owner. The child runs on its own; the
// dispatch returns as soon as the client process is started.
type StartTaskHandler struct {
	// ClientPath is the management protocol client binary.
	ClientPath string
}

// NewStartTaskHandler creates the start-task handler.
func NewStartTaskHandler(clientPath string) *StartTaskHandler {
	if clientPath == "" {
		clientPath = "vulnmgr-cli"
	}
	return &StartTaskHandler{ClientPath: clientPath}
}

// Kind returns MethodStartTask.
func (h *StartTaskHandler) Kind() models.MethodKind { return models.MethodStartTask }

// Dispatch spawns the client and returns without waiting.
func (h *StartTaskHandler) Dispatch(ctx *Context) models.DispatchResult {
	taskID := ctx.MethodData("start_task_task")
	if taskID == "" {
		logger.Warnf("Alert %s: start-task method without start_task_task", ctx.Alert.ID)
		return models.NewResult(models.ErrInternal)
	}

	cmd := exec.Command(h.ClientPath, "--user", ctx.Alert.Owner, "start-task", taskID)
	if err := cmd.Start(); err != nil {
		logger.Errorf("Alert %s: start task %s: %v", ctx.Alert.ID, taskID, err)
		return models.NewResult(models.ErrInternal)
	}
	// Reap the child in the background; the result is not awaited.
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Warnf("Alert %s: start-task client exited: %v", ctx.Alert.ID, err)
		}
	}()

	logger.Infof("Alert %s: requested start of task %s as %s", ctx.Alert.ID, taskID, ctx.Alert.Owner)
	return models.NewResult(models.OK)
}
