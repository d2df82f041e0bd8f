package notify

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// OSAScript posts macOS notifications through osascript.
type OSAScript struct {
	run func(ctx context.Context, script string) ([]byte, error)
}

func NewOSAScript() *OSAScript {
	return &OSAScript{run: runOSAScript}
}

func (o *OSAScript) Notify(ctx context.Context, summary, body string) error {
	script := fmt.Sprintf("display notification %s with title %s", quote(body), quote(summary))
	if out, err := o.run(ctx, script); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func runOSAScript(ctx context.Context, script string) ([]byte, error) {
	return exec.CommandContext(ctx, "osascript", "-e", script).CombinedOutput()
}

// quote renders s as an AppleScript string literal.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
