package cryocare

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	PredictProgram          = "cryoCARE_predict.py"
	TrainProgram            = "cryoCARE_train.py"
	ExtractTrainDataProgram = "cryoCARE_extract_train_data.py"

	stderrTailLines = 20

	// Time given to a cancelled program to release its output pipes.
	cancelWaitDelay = 10 * time.Second
)

// Runner executes a cryoCARE program inside its environment.
type Runner interface {
	Run(ctx context.Context, program string, args []string, cwd string) error
}

type EnvConfig struct {
	Version            string `env:"CRYOCARE_VERSION"`
	CondaActivationCmd string `env:"CONDA_ACTIVATION_CMD"`
	EnvActivation      string `env:"CRYOCARE_ENV_ACTIVATION"`
	InstallRoot        string `env:"SCIPION_HOME"`
	CudaLib            string `env:"CRYOCARE_CUDA_LIB"`
	DefaultCudaLib     string `env:"CUDA_LIB"`
}

type Environment struct {
	recipe Recipe
	cfg    EnvConfig
}

var _ Runner = (*Environment)(nil)

func NewEnvironment(cfg EnvConfig) (*Environment, error) {
	recipe, err := LookupRecipe(cfg.Version)
	if err != nil {
		return nil, err
	}
	if cfg.EnvActivation == "" {
		cfg.EnvActivation = recipe.DefaultActivation()
	}
	return &Environment{recipe: recipe, cfg: cfg}, nil
}

func (e *Environment) Recipe() Recipe {
	return e.recipe
}

func (e *Environment) CondaActivation() string {
	cmd := strings.TrimSpace(e.cfg.CondaActivationCmd)
	return strings.TrimSpace(strings.TrimSuffix(cmd, "&&"))
}

// EnvActivation returns the configured activation with the platform install
// root (SCIPION_HOME) prefix removed, so that relative env locations keep working.
func (e *Environment) EnvActivation() string {
	activation := e.cfg.EnvActivation
	if e.cfg.InstallRoot == "" {
		return activation
	}
	prefix := strings.TrimSuffix(e.cfg.InstallRoot, string(os.PathSeparator)) + string(os.PathSeparator)
	return strings.Replace(activation, prefix, "", 1)
}

func (e *Environment) cudaLib() string {
	if e.cfg.CudaLib != "" {
		return e.cfg.CudaLib
	}
	return e.cfg.DefaultCudaLib
}

// Environ returns a copy of base without PYTHONPATH, which breaks the conda
// env, and with the cuda libraries prepended to LD_LIBRARY_PATH.
func (e *Environment) Environ(base []string) []string {
	out := make([]string, 0, len(base)+1)
	ldPath, hasLdPath := "", false
	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		switch key {
		case "PYTHONPATH":
			continue
		case "LD_LIBRARY_PATH":
			ldPath, hasLdPath = value, true
			continue
		}
		out = append(out, kv)
	}

	if lib := e.cudaLib(); lib != "" {
		if ldPath == "" {
			ldPath = lib
		} else {
			ldPath = lib + string(os.PathListSeparator) + ldPath
		}
		hasLdPath = true
	}
	if hasLdPath {
		out = append(out, "LD_LIBRARY_PATH="+ldPath)
	}
	return out
}

// Dependencies lists the programs that must be on the PATH before installing.
func (e *Environment) Dependencies() []string {
	if e.CondaActivation() == "" {
		return []string{"conda"}
	}
	return []string{}
}

func (e *Environment) CommandLine(program string, args []string) string {
	parts := make([]string, 0, 3)
	if conda := e.CondaActivation(); conda != "" {
		parts = append(parts, conda)
	}
	if activation := e.EnvActivation(); activation != "" {
		parts = append(parts, activation)
	}

	command := []string{program}
	for _, arg := range args {
		command = append(command, shellQuote(arg))
	}
	parts = append(parts, strings.Join(command, " "))

	return strings.Join(parts, " && ")
}

// InstallScript is the single shell line that installs the environment.
func (e *Environment) InstallScript() string {
	cmds := InstallCommands(e.recipe)
	if conda := e.CondaActivation(); conda != "" {
		cmds = append([]string{conda}, cmds...)
	}
	return strings.Join(cmds, " && ")
}

// InstallSteps returns the install commands as standalone shell lines, each
// carrying the activations issued before it, so they can run one at a time.
func (e *Environment) InstallSteps() []string {
	var prefix []string
	if conda := e.CondaActivation(); conda != "" {
		prefix = append(prefix, conda)
	}

	var steps []string
	for _, cmd := range InstallCommands(e.recipe) {
		if strings.HasPrefix(cmd, "conda activate ") {
			prefix = append(prefix, cmd)
			continue
		}
		steps = append(steps, strings.Join(append(slices.Clone(prefix), cmd), " && "))
	}
	return steps
}

func (e *Environment) Run(ctx context.Context, program string, args []string, cwd string) error {
	cmdLine := e.CommandLine(program, args)

	cmd := exec.CommandContext(ctx, "bash", "-c", cmdLine)
	cmd.Env = e.Environ(os.Environ())
	cmd.Dir = cwd
	cmd.WaitDelay = cancelWaitDelay
	killProcessGroupOnCancel(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("error creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("error creating stderr pipe: %w", err)
	}

	slog.Info("running cryocare program", "program", program, "cwd", cwd, "command", cmdLine)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("error starting %s: %w", program, err)
	}

	tail := newLineTail(stderrTailLines)
	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		logLines(stdout, program, "stdout", nil)
	}()
	go func() {
		defer wg.Done()
		logLines(stderr, program, "stderr", tail)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s was cancelled: %w", program, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with status %d: %s", program, exitErr.ExitCode(), tail.String())
		}
		return fmt.Errorf("error running %s: %w", program, err)
	}

	slog.Info("cryocare program finished", "program", program)
	return nil
}

// ConfigArgs returns the arguments passing a json config file to a cryoCARE program.
func ConfigArgs(configPath string) []string {
	return []string{"--conf", filepath.Clean(configPath)}
}

func logLines(r io.Reader, program, stream string, tail *lineTail) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		slog.Debug("cryocare output", "program", program, "stream", stream, "line", line)
		if tail != nil {
			tail.add(line)
		}
	}
}

type lineTail struct {
	lines []string
	size  int
}

func newLineTail(size int) *lineTail {
	return &lineTail{size: size}
}

func (t *lineTail) add(line string) {
	t.lines = append(t.lines, line)
	if len(t.lines) > t.size {
		t.lines = t.lines[len(t.lines)-t.size:]
	}
}

func (t *lineTail) String() string {
	return strings.Join(t.lines, "\n")
}

var safeShellArg = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

func shellQuote(arg string) string {
	if arg == "" {
		return "''"
	}
	if safeShellArg.MatchString(arg) {
		return arg
	}
	return "'" + strings.ReplaceAll(arg, "'", `'"'"'`) + "'"
}
