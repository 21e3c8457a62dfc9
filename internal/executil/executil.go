package executil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/template"
)

// TemplateData defines the available fields in command templates.
type TemplateData struct {
	// Args are tool arguments.
	Args map[string]any
	// ToolName is the tool name.
	ToolName string
	// SessionID is the relay session the call belongs to.
	SessionID string
}

// Command describes a process to start.
type Command struct {
	// Path is the executable, or a shell snippet when Shell is set.
	Path string
	// Args are command arguments; each may be a template.
	Args []string
	// Env adds environment variables; values may be templates.
	Env map[string]string
	// Dir is the working directory.
	Dir string
	// Shell runs Path through bash -c.
	Shell bool
}

// RenderTemplate renders a string template with TemplateData.
func RenderTemplate(value string, data TemplateData) (string, error) {
	if !strings.Contains(value, "{{") {
		return value, nil
	}
	tmpl, err := template.New("value").Funcs(template.FuncMap{
		"arg": func(name string) any {
			if data.Args == nil {
				return nil
			}
			return data.Args[name]
		},
	}).Parse(value)
	if err != nil {
		return "", fmt.Errorf("template parse: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("template render: %w", err)
	}
	return buf.String(), nil
}

// BuildCommand builds an exec.Cmd with rendered args and env.
func BuildCommand(ctx context.Context, spec Command, data TemplateData) (*exec.Cmd, error) {
	if strings.TrimSpace(spec.Path) == "" {
		return nil, fmt.Errorf("command is empty")
	}
	renderedPath, err := RenderTemplate(spec.Path, data)
	if err != nil {
		return nil, err
	}

	renderedArgs := make([]string, 0, len(spec.Args))
	for _, arg := range spec.Args {
		rendered, err := RenderTemplate(arg, data)
		if err != nil {
			return nil, err
		}
		renderedArgs = append(renderedArgs, rendered)
	}

	var cmd *exec.Cmd
	if spec.Shell {
		cmd = exec.CommandContext(ctx, "bash", append([]string{"-c", renderedPath, "bash"}, renderedArgs...)...)
	} else {
		cmd = exec.CommandContext(ctx, renderedPath, renderedArgs...)
	}
	cmd.Dir = spec.Dir

	cmd.Env = os.Environ()
	for key, value := range spec.Env {
		rendered, err := RenderTemplate(value, data)
		if err != nil {
			return nil, err
		}
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", key, rendered))
	}

	return cmd, nil
}

// RunCommand executes a command and returns combined output, exit code, and error.
func RunCommand(ctx context.Context, spec Command, data TemplateData) (string, int, error) {
	cmd, err := BuildCommand(ctx, spec, data)
	if err != nil {
		return "", -1, err
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err = cmd.Run()
	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	return output.String(), exitCode, err
}
