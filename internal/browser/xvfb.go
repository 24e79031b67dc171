package browser

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const x11SocketDir = "/tmp/.X11-unix"

// display is the X server a headful Chrome draws on. An X server already
// listening on the display is reused and left running on stop.
type display struct {
	name      string
	screen    string
	socketDir string
	ready     time.Duration
	log       *slog.Logger

	cmd    *exec.Cmd
	exited chan struct{}
}

func newDisplay(name, screen string, logger *slog.Logger) *display {
	return &display{
		name:      name,
		screen:    screen,
		socketDir: x11SocketDir,
		ready:     5 * time.Second,
		log:       logger,
	}
}

// socketPath maps ":99" or ":99.0" to the server's unix socket.
func (d *display) socketPath() (string, error) {
	num, ok := strings.CutPrefix(d.name, ":")
	if !ok {
		return "", fmt.Errorf("browser: xvfb: display %q: want :N", d.name)
	}
	num, _, _ = strings.Cut(num, ".")
	if num == "" || strings.Trim(num, "0123456789") != "" {
		return "", fmt.Errorf("browser: xvfb: display %q: want :N", d.name)
	}
	return filepath.Join(d.socketDir, "X"+num), nil
}

func (d *display) start() error {
	if d.cmd != nil {
		return nil
	}
	sock, err := d.socketPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(sock); err == nil {
		d.log.Info("browser: reusing x server", "display", d.name)
		return nil
	}

	cmd := exec.Command("Xvfb", d.name, "-screen", "0", d.screen, "-nolisten", "tcp", "-ac")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("browser: xvfb: start: %w", err)
	}
	exited := make(chan struct{})
	go func() {
		cmd.Wait()
		close(exited)
	}()

	deadline := time.Now().Add(d.ready)
	for {
		if _, err := os.Stat(sock); err == nil {
			break
		}
		select {
		case <-exited:
			return fmt.Errorf("browser: xvfb: exited before %s was ready", d.name)
		case <-time.After(50 * time.Millisecond):
		}
		if time.Now().After(deadline) {
			cmd.Process.Kill()
			<-exited
			return errors.New("browser: xvfb: no socket at " + sock + " after " + d.ready.String())
		}
	}
	d.cmd, d.exited = cmd, exited
	d.log.Info("browser: xvfb started", "display", d.name, "screen", d.screen, "pid", cmd.Process.Pid)
	return nil
}

func (d *display) stop() {
	if d.cmd == nil {
		return
	}
	d.cmd.Process.Kill()
	<-d.exited
	d.log.Info("browser: xvfb stopped", "display", d.name)
	d.cmd, d.exited = nil, nil
}
