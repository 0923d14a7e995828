package screen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"

	"github.com/goelayush89/robin-ai-sub000/internal/config"
)

// captureStrategy is one way of producing a screenshot on this platform.
// Strategies are ordered; the operator caches the first available one.
type captureStrategy interface {
	name() string
	available() bool
	capture(ctx context.Context, cfg config.ScreenSettings) ([]byte, error)
}

// strategyChain returns the ordered fallback chain for the current GOOS.
func strategyChain() []captureStrategy {
	switch runtime.GOOS {
	case "darwin":
		return []captureStrategy{
			commandStrategy{tool: "screencapture", args: func(out string, _ config.ScreenSettings) []string {
				return []string{"-x", "-t", "png", out}
			}},
		}
	case "windows":
		return []captureStrategy{powershellStrategy{}}
	default: // linux and friends
		return []captureStrategy{
			commandStrategy{tool: "gnome-screenshot", args: func(out string, _ config.ScreenSettings) []string {
				return []string{"-f", out}
			}},
			commandStrategy{tool: "scrot", args: func(out string, _ config.ScreenSettings) []string {
				return []string{"-o", out}
			}},
			commandStrategy{tool: "import", args: func(out string, _ config.ScreenSettings) []string {
				return []string{"-window", "root", out}
			}},
		}
	}
}

// commandStrategy shells out to a capture tool that writes a file.
type commandStrategy struct {
	tool string
	args func(outPath string, cfg config.ScreenSettings) []string
}

func (s commandStrategy) name() string { return s.tool }

func (s commandStrategy) available() bool {
	_, err := exec.LookPath(s.tool)
	return err == nil
}

func (s commandStrategy) capture(ctx context.Context, cfg config.ScreenSettings) ([]byte, error) {
	out := filepath.Join(os.TempDir(), fmt.Sprintf("robin-shot-%s.png", uuid.NewString()))
	defer os.Remove(out)

	cmd := exec.CommandContext(ctx, s.tool, s.args(out, cfg)...)
	if cfg.Display != "" {
		cmd.Env = append(os.Environ(), "DISPLAY="+cfg.Display)
	}
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%s: %w (%s)", s.tool, err, bytes.TrimSpace(output))
	}
	return os.ReadFile(out)
}

// powershellStrategy captures via .NET System.Drawing, the stock approach on
// hosts without a dedicated capture tool.
type powershellStrategy struct{}

func (powershellStrategy) name() string { return "powershell" }

func (powershellStrategy) available() bool {
	_, err := exec.LookPath("powershell")
	return err == nil
}

const psCaptureScript = `Add-Type -AssemblyName System.Windows.Forms,System.Drawing;
$b = [System.Windows.Forms.Screen]::PrimaryScreen.Bounds;
$bmp = New-Object System.Drawing.Bitmap $b.Width, $b.Height;
$g = [System.Drawing.Graphics]::FromImage($bmp);
$g.CopyFromScreen($b.Location, [System.Drawing.Point]::Empty, $b.Size);
$bmp.Save('%s', [System.Drawing.Imaging.ImageFormat]::Png)`

func (powershellStrategy) capture(ctx context.Context, _ config.ScreenSettings) ([]byte, error) {
	out := filepath.Join(os.TempDir(), fmt.Sprintf("robin-shot-%s.png", uuid.NewString()))
	defer os.Remove(out)

	script := fmt.Sprintf(psCaptureScript, out)
	cmd := exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("powershell capture: %w (%s)", err, bytes.TrimSpace(output))
	}
	return os.ReadFile(out)
}

// imageDimensions decodes just the header. Zero dimensions are tolerable;
// they only degrade the out-of-bounds validation warning.
func imageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
