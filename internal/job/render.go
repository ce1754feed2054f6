package job

import (
	"path"
	"strconv"
	"strings"
)

const shebang = "#!/bin/sh"

// diagnostics is printed ahead of every build so each log records the host it ran on.
var diagnostics = []string{
	"echo '===== ENVIRONMENT ====='",
	"lscpu",
	"echo",
}

// Render produces the batch script for a descriptor.
//
// Sections are emitted in a fixed order (interpreter, scheduler directives, modules,
// environment, diagnostics, build, run), separated by one blank line. Empty sections
// are omitted. The output depends only on the descriptor.
func Render(d Descriptor) string {
	sections := [][]string{
		{shebang},
		directives(d),
		modules(d.Modules),
		exports(d.Env),
		diagnostics,
		build(d),
		{runLine(d)},
	}

	var b strings.Builder
	first := true
	for _, lines := range sections {
		if len(lines) == 0 {
			continue
		}
		if !first {
			b.WriteByte('\n')
		}
		first = false
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func directive(key, value string) string {
	if value == "" {
		return "#SBATCH --" + key
	}
	return "#SBATCH --" + key + "=" + value
}

func directives(d Descriptor) []string {
	lines := []string{
		directive("cpus-per-task", strconv.Itoa(d.Resources.CoreCount)),
		directive("time", d.Resources.Timeout),
		directive("mem", strconv.Itoa(d.Resources.MemoryMB)),
	}
	if d.Label != "" {
		lines = append(lines,
			directive("job-name", d.Label),
			directive("output", OutputPattern(d, ".out")),
			directive("error", OutputPattern(d, ".err")),
		)
	}
	for _, opt := range d.Options {
		lines = append(lines, directive(opt.Key, opt.Value))
	}
	return lines
}

// OutputPattern is the scheduler file pattern for a labelled run's output, with %j
// standing in for the job id. It is empty when the descriptor has no label.
func OutputPattern(d Descriptor, ext string) string {
	if d.Label == "" {
		return ""
	}
	name := d.Label + "_%j" + ext
	if d.OutputDir == "" {
		return name
	}
	return path.Join(d.OutputDir, name)
}

func modules(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	return []string{
		"module purge",
		"module load " + strings.Join(names, " "),
	}
}

func exports(env []EnvVar) []string {
	lines := make([]string, 0, len(env))
	for _, e := range env {
		lines = append(lines, "export "+e.Name+"="+e.Value)
	}
	return lines
}

func build(d Descriptor) []string {
	lines := make([]string, 0, len(d.BuildSteps)+2)
	lines = append(lines, "echo '===== BUILD & RUN ====='", "cd "+d.Directory)
	return append(lines, d.BuildSteps...)
}

func runLine(d Descriptor) string {
	launch := d.LaunchCommand
	if launch == "" {
		launch = DefaultLaunchCommand
	}
	line := "time " + launch + " " + executablePath(d.Executable)
	if d.Args != "" {
		line += " " + d.Args
	}
	return line
}

// executablePath makes a relative executable explicit so the shell does not search PATH.
func executablePath(exe string) string {
	if exe == "" || path.IsAbs(exe) {
		return exe
	}
	cleaned := path.Clean(exe)
	if strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return cleaned
	}
	return "./" + cleaned
}
