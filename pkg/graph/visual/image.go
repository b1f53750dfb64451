package visual

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ImageOptions extends MermaidOptions with PNG rendering settings.
type ImageOptions struct {
	MermaidOptions

	// Width is the PNG width in pixels. 0 means auto.
	Width int

	// Height is the PNG height in pixels. 0 means auto.
	Height int

	// Theme is the Mermaid theme (default, dark, forest, neutral).
	// Defaults to "default" if empty.
	Theme string
}

// RenderMermaidToImage converts Mermaid text into a PNG image using
// mermaid-cli (mmdc), which must be available on $PATH:
//
//	npm install -g @mermaid-js/mermaid-cli
func RenderMermaidToImage(mermaidText string, opts ImageOptions) ([]byte, error) {
	mmdcPath, err := exec.LookPath("mmdc")
	if err != nil {
		return nil, fmt.Errorf(
			"mermaid-cli (mmdc) is not installed or not on $PATH\n\n" +
				"Install it with:\n" +
				"  npm install -g @mermaid-js/mermaid-cli\n\n" +
				"Alternatively, omit --output to get the raw diagram text,\n" +
				"which you can paste into any Mermaid renderer (e.g., mermaid.live).",
		)
	}

	tmpDir, err := os.MkdirTemp("", "evidctl-mermaid-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	inputFile := filepath.Join(tmpDir, "input.mmd")
	outputFile := filepath.Join(tmpDir, "output.png")

	if err := os.WriteFile(inputFile, []byte(mermaidText), 0644); err != nil {
		return nil, fmt.Errorf("failed to write mermaid input: %w", err)
	}

	args := []string{"-i", inputFile, "-o", outputFile, "-e", "png"}

	theme := opts.Theme
	if theme == "" {
		theme = "default"
	}
	args = append(args, "-t", theme)

	if opts.Width > 0 {
		args = append(args, "-w", fmt.Sprintf("%d", opts.Width))
	}
	if opts.Height > 0 {
		args = append(args, "-H", fmt.Sprintf("%d", opts.Height))
	}

	cmd := exec.Command(mmdcPath, args...)
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("mmdc failed: %w", err)
	}

	return os.ReadFile(outputFile)
}
