package task

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// lookPath is swapped by tests.
var lookPath = exec.LookPath

// Validate checks a task list and returns the validated copy.
//
// Commands are resolved to the absolute path exec.LookPath finds, so a task
// keeps pointing at the same executable for the process lifetime. A relative
// command path ("./jobs/x") is resolved against the task's Dir, where it will
// run. Every problem is collected into one *ConfigError.
func Validate(defs []Task) ([]Task, error) {
	if len(defs) == 0 {
		return nil, &ConfigError{Problems: []error{ErrNoTasks}}
	}

	var problems []error
	seen := make(map[string]int, len(defs))
	out := make([]Task, 0, len(defs))

	for i, d := range defs {
		path := fmt.Sprintf("tasks[%d]", i)
		name := strings.TrimSpace(d.Name)
		if name == "" {
			problems = append(problems, fmt.Errorf("%s.name: required", path))
		} else {
			path = fmt.Sprintf("tasks[%d](%s)", i, name)
			if prev, dup := seen[name]; dup {
				problems = append(problems, fmt.Errorf("%s.name: duplicate of tasks[%d]", path, prev))
			}
			seen[name] = i
		}

		if d.Interval <= 0 {
			problems = append(problems, fmt.Errorf("%s.interval: must be > 0 (got %s)", path, d.Interval))
		}
		if d.Timeout < 0 {
			problems = append(problems, fmt.Errorf("%s.timeout: must be >= 0", path))
		}

		cmd := strings.TrimSpace(d.Command)
		resolved := ""
		if cmd == "" {
			problems = append(problems, fmt.Errorf("%s.command: required", path))
		} else if p, err := resolveCommand(cmd, d.Dir); err != nil {
			problems = append(problems, fmt.Errorf("%s.command: %w", path, err))
		} else {
			resolved = p
		}

		for _, kv := range d.Env {
			if !strings.Contains(kv, "=") {
				problems = append(problems, fmt.Errorf("%s.env: %q is not KEY=VALUE", path, kv))
			}
		}

		t := d
		t.Name = name
		t.Command = resolved
		t.Args = append([]string(nil), d.Args...)
		t.Env = append([]string(nil), d.Env...)
		out = append(out, t)
	}

	if len(problems) > 0 {
		return nil, &ConfigError{Problems: problems}
	}
	return out, nil
}

// resolveCommand finds cmd the way exec would when started in dir. Bare names
// are searched in PATH; paths with a separator are taken relative to dir.
func resolveCommand(cmd, dir string) (string, error) {
	target := cmd
	if dir != "" && !filepath.IsAbs(cmd) && strings.ContainsAny(cmd, `/`+string(filepath.Separator)) {
		target = filepath.Join(dir, cmd)
	}
	p, err := lookPath(target)
	if err != nil {
		return "", err
	}
	return filepath.Abs(p)
}
