package input

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// inputBackend is one way of injecting input on this platform. Backends are
// ordered; the operator caches the first available one at initialize.
type inputBackend interface {
	name() string
	available() bool
	click(ctx context.Context, x, y int, button string, count int) error
	drag(ctx context.Context, fromX, fromY, toX, toY int) error
	typeText(ctx context.Context, text string, delay time.Duration) error
	key(ctx context.Context, key string) error
	scroll(ctx context.Context, direction string, clicks int) error
}

// backendChain returns the ordered fallback chain for the current GOOS.
func backendChain() []inputBackend {
	switch runtime.GOOS {
	case "darwin":
		return []inputBackend{cliclickBackend{}, osascriptBackend{}}
	case "windows":
		return []inputBackend{powershellBackend{}}
	default:
		return []inputBackend{xdotoolBackend{}}
	}
}

func run(ctx context.Context, tool string, args ...string) error {
	cmd := exec.CommandContext(ctx, tool, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %s: %w (%s)", tool, strings.Join(args, " "), err, bytes.TrimSpace(output))
	}
	return nil
}

// -- xdotool (linux/X11) --

type xdotoolBackend struct{}

func (xdotoolBackend) name() string { return "xdotool" }

func (xdotoolBackend) available() bool {
	_, err := exec.LookPath("xdotool")
	return err == nil
}

var xdotoolButtons = map[string]string{"left": "1", "middle": "2", "right": "3"}

func (b xdotoolBackend) click(ctx context.Context, x, y int, button string, count int) error {
	btn, ok := xdotoolButtons[button]
	if !ok {
		btn = "1"
	}
	return run(ctx, "xdotool", "mousemove", strconv.Itoa(x), strconv.Itoa(y),
		"click", "--repeat", strconv.Itoa(count), btn)
}

func (b xdotoolBackend) drag(ctx context.Context, fromX, fromY, toX, toY int) error {
	steps := [][]string{
		{"mousemove", strconv.Itoa(fromX), strconv.Itoa(fromY)},
		{"mousedown", "1"},
		{"mousemove", strconv.Itoa(toX), strconv.Itoa(toY)},
		{"mouseup", "1"},
	}
	for _, args := range steps {
		if err := run(ctx, "xdotool", args...); err != nil {
			return err
		}
	}
	return nil
}

func (b xdotoolBackend) typeText(ctx context.Context, text string, delay time.Duration) error {
	delayMs := int(delay / time.Millisecond)
	if delayMs <= 0 {
		delayMs = 12
	}
	return run(ctx, "xdotool", "type", "--delay", strconv.Itoa(delayMs), "--", text)
}

func (b xdotoolBackend) key(ctx context.Context, key string) error {
	// xdotool expects "ctrl+s" style combos, which is our param format too.
	return run(ctx, "xdotool", "key", key)
}

func (b xdotoolBackend) scroll(ctx context.Context, direction string, clicks int) error {
	btn := "5" // wheel down
	if strings.EqualFold(direction, "up") {
		btn = "4"
	}
	return run(ctx, "xdotool", "click", "--repeat", strconv.Itoa(clicks), btn)
}

// -- cliclick (macOS) --

type cliclickBackend struct{}

func (cliclickBackend) name() string { return "cliclick" }

func (cliclickBackend) available() bool {
	_, err := exec.LookPath("cliclick")
	return err == nil
}

func (b cliclickBackend) click(ctx context.Context, x, y int, button string, count int) error {
	op := "c"
	switch {
	case button == "right":
		op = "rc"
	case count >= 2:
		op = "dc"
	}
	return run(ctx, "cliclick", fmt.Sprintf("%s:%d,%d", op, x, y))
}

func (b cliclickBackend) drag(ctx context.Context, fromX, fromY, toX, toY int) error {
	return run(ctx, "cliclick",
		fmt.Sprintf("dd:%d,%d", fromX, fromY),
		fmt.Sprintf("du:%d,%d", toX, toY))
}

func (b cliclickBackend) typeText(ctx context.Context, text string, _ time.Duration) error {
	return run(ctx, "cliclick", "t:"+text)
}

func (b cliclickBackend) key(ctx context.Context, key string) error {
	return run(ctx, "cliclick", "kp:"+strings.ToLower(key))
}

func (b cliclickBackend) scroll(ctx context.Context, direction string, clicks int) error {
	amount := clicks
	if !strings.EqualFold(direction, "up") {
		amount = -clicks
	}
	return run(ctx, "cliclick", fmt.Sprintf("sy:%d", amount))
}

// -- osascript (macOS fallback when cliclick is not installed) --

type osascriptBackend struct{}

func (osascriptBackend) name() string { return "osascript" }

func (osascriptBackend) available() bool {
	_, err := exec.LookPath("osascript")
	return err == nil
}

func (b osascriptBackend) click(ctx context.Context, x, y int, button string, count int) error {
	script := fmt.Sprintf(`tell application "System Events" to click at {%d, %d}`, x, y)
	if button == "right" {
		return fmt.Errorf("osascript backend does not support right click")
	}
	for i := 0; i < count; i++ {
		if err := run(ctx, "osascript", "-e", script); err != nil {
			return err
		}
	}
	return nil
}

func (b osascriptBackend) drag(ctx context.Context, fromX, fromY, toX, toY int) error {
	return fmt.Errorf("osascript backend does not support drag")
}

func (b osascriptBackend) typeText(ctx context.Context, text string, _ time.Duration) error {
	script := fmt.Sprintf(`tell application "System Events" to keystroke %q`, text)
	return run(ctx, "osascript", "-e", script)
}

func (b osascriptBackend) key(ctx context.Context, key string) error {
	script := fmt.Sprintf(`tell application "System Events" to key code (key code of %q)`, key)
	if len(key) == 1 {
		script = fmt.Sprintf(`tell application "System Events" to keystroke %q`, key)
	}
	return run(ctx, "osascript", "-e", script)
}

func (b osascriptBackend) scroll(ctx context.Context, direction string, clicks int) error {
	keyCode := 121 // page down
	if strings.EqualFold(direction, "up") {
		keyCode = 116 // page up
	}
	for i := 0; i < clicks; i++ {
		if err := run(ctx, "osascript", "-e",
			fmt.Sprintf(`tell application "System Events" to key code %d`, keyCode)); err != nil {
			return err
		}
	}
	return nil
}

// -- powershell (windows) --

type powershellBackend struct{}

func (powershellBackend) name() string { return "powershell" }

func (powershellBackend) available() bool {
	_, err := exec.LookPath("powershell")
	return err == nil
}

func (b powershellBackend) ps(ctx context.Context, script string) error {
	return run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
}

const psMouseType = `Add-Type -MemberDefinition '
[DllImport("user32.dll")] public static extern void mouse_event(uint f, uint dx, uint dy, uint d, int e);
[DllImport("user32.dll")] public static extern bool SetCursorPos(int x, int y);' -Name U32 -Namespace W;`

func (b powershellBackend) click(ctx context.Context, x, y int, button string, count int) error {
	down, up := "0x02", "0x04" // left
	if button == "right" {
		down, up = "0x08", "0x10"
	}
	script := psMouseType + fmt.Sprintf("[W.U32]::SetCursorPos(%d,%d);", x, y)
	for i := 0; i < count; i++ {
		script += fmt.Sprintf("[W.U32]::mouse_event(%s,0,0,0,0);[W.U32]::mouse_event(%s,0,0,0,0);", down, up)
	}
	return b.ps(ctx, script)
}

func (b powershellBackend) drag(ctx context.Context, fromX, fromY, toX, toY int) error {
	script := psMouseType + fmt.Sprintf(
		"[W.U32]::SetCursorPos(%d,%d);[W.U32]::mouse_event(0x02,0,0,0,0);"+
			"Start-Sleep -Milliseconds 120;[W.U32]::SetCursorPos(%d,%d);"+
			"Start-Sleep -Milliseconds 120;[W.U32]::mouse_event(0x04,0,0,0,0);",
		fromX, fromY, toX, toY)
	return b.ps(ctx, script)
}

func (b powershellBackend) typeText(ctx context.Context, text string, _ time.Duration) error {
	escaped := strings.NewReplacer("'", "''", "{", "{{}", "}", "{}}").Replace(text)
	return b.ps(ctx, fmt.Sprintf(
		`Add-Type -AssemblyName System.Windows.Forms;[System.Windows.Forms.SendKeys]::SendWait('%s')`, escaped))
}

var psKeyNames = map[string]string{
	"enter": "{ENTER}", "return": "{ENTER}", "tab": "{TAB}", "escape": "{ESC}",
	"esc": "{ESC}", "backspace": "{BACKSPACE}", "delete": "{DELETE}",
	"up": "{UP}", "down": "{DOWN}", "left": "{LEFT}", "right": "{RIGHT}",
	"home": "{HOME}", "end": "{END}", "pageup": "{PGUP}", "pagedown": "{PGDN}",
}

func (b powershellBackend) key(ctx context.Context, key string) error {
	// Translate "ctrl+s" style combos into SendKeys modifier syntax.
	parts := strings.Split(strings.ToLower(key), "+")
	var sb strings.Builder
	for _, p := range parts[:len(parts)-1] {
		switch p {
		case "ctrl", "control":
			sb.WriteString("^")
		case "alt":
			sb.WriteString("%")
		case "shift":
			sb.WriteString("+")
		}
	}
	last := parts[len(parts)-1]
	if named, ok := psKeyNames[last]; ok {
		sb.WriteString(named)
	} else {
		sb.WriteString(last)
	}
	return b.ps(ctx, fmt.Sprintf(
		`Add-Type -AssemblyName System.Windows.Forms;[System.Windows.Forms.SendKeys]::SendWait('%s')`, sb.String()))
}

func (b powershellBackend) scroll(ctx context.Context, direction string, clicks int) error {
	delta := -120 * clicks
	if strings.EqualFold(direction, "up") {
		delta = 120 * clicks
	}
	script := psMouseType + fmt.Sprintf("[W.U32]::mouse_event(0x0800,0,0,%d,0);", delta)
	return b.ps(ctx, script)
}
