package cryocare

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupRecipe(t *testing.T) {
	r, err := LookupRecipe("")
	require.NoError(t, err)
	assert.Equal(t, DefaultVersion(), r.Version)
	assert.Equal(t, "cryoCARE-0.3.0", r.EnvName())

	legacy, err := LookupRecipe("0.1.1")
	require.NoError(t, err)
	assert.Equal(t, "3.6", legacy.Python)
	assert.Equal(t, "cryoCARE_0.1.1_installed", legacy.InstalledFlag())

	_, err = LookupRecipe("9.9.9")
	assert.ErrorContains(t, err, "unknown cryoCARE version")
}

func TestInstallCommands(t *testing.T) {
	r, err := LookupRecipe("0.1.1")
	require.NoError(t, err)

	cmds := InstallCommands(r)
	assert.Equal(t, "conda create -y -n cryoCARE-0.1.1 -c conda-forge -c anaconda python=3.6 tensorflow-gpu==1.15", cmds[0])
	assert.Equal(t, "conda activate cryoCARE-0.1.1", cmds[1])
	assert.Contains(t, cmds, "pip install 'numpy<1.19.0,>=1.16.0'")
	assert.Contains(t, cmds, "pip install 'h5py<3.0.0'")
	assert.Equal(t, "pip install cryoCARE==0.1.1", cmds[len(cmds)-2])
	assert.Equal(t, "touch cryoCARE_0.1.1_installed", cmds[len(cmds)-1])
}

func TestEnvActivation(t *testing.T) {
	env, err := NewEnvironment(EnvConfig{})
	require.NoError(t, err)
	assert.Equal(t, "conda activate cryoCARE-0.3.0", env.EnvActivation())
	assert.Equal(t, []string{"conda"}, env.Dependencies())

	env, err = NewEnvironment(EnvConfig{
		CondaActivationCmd: `eval "$(/opt/conda/bin/conda shell.bash hook)" && `,
		EnvActivation:      "source /opt/scipion/envs/cryocare/bin/activate /opt/scipion/envs/cryocare",
		InstallRoot:        "/opt/scipion",
	})
	require.NoError(t, err)
	assert.Equal(t, "source envs/cryocare/bin/activate /opt/scipion/envs/cryocare", env.EnvActivation())
	assert.Empty(t, env.Dependencies())
	assert.Equal(t,
		`eval "$(/opt/conda/bin/conda shell.bash hook)" && source envs/cryocare/bin/activate /opt/scipion/envs/cryocare && cryoCARE_predict.py --conf '/tmp/my conf.json'`,
		env.CommandLine(PredictProgram, []string{"--conf", "/tmp/my conf.json"}),
	)
	assert.True(t, strings.HasPrefix(env.InstallScript(), `eval "$(/opt/conda/bin/conda shell.bash hook)" && conda create`))
}

func TestInstallSteps(t *testing.T) {
	env, err := NewEnvironment(EnvConfig{Version: "0.1.1", CondaActivationCmd: "source ~/.bashrc &&"})
	require.NoError(t, err)

	cmds := InstallCommands(env.Recipe())
	steps := env.InstallSteps()
	require.Len(t, steps, len(cmds)-1)

	assert.True(t, strings.HasPrefix(steps[0], "source ~/.bashrc && conda create -y -n cryoCARE-0.1.1"))
	for _, step := range steps[1:] {
		assert.True(t, strings.HasPrefix(step, "source ~/.bashrc && conda activate cryoCARE-0.1.1 && "), step)
	}
	assert.Equal(t, "source ~/.bashrc && conda activate cryoCARE-0.1.1 && touch cryoCARE_0.1.1_installed", steps[len(steps)-1])
}

func TestEnviron(t *testing.T) {
	env, err := NewEnvironment(EnvConfig{CudaLib: "/usr/local/cuda/lib64", DefaultCudaLib: "/usr/lib/cuda"})
	require.NoError(t, err)

	out := env.Environ([]string{"HOME=/root", "PYTHONPATH=/opt/lib", "LD_LIBRARY_PATH=/usr/lib"})
	assert.ElementsMatch(t, []string{"HOME=/root", "LD_LIBRARY_PATH=/usr/local/cuda/lib64:/usr/lib"}, out)

	env, err = NewEnvironment(EnvConfig{DefaultCudaLib: "/usr/lib/cuda"})
	require.NoError(t, err)
	out = env.Environ([]string{"HOME=/root"})
	assert.ElementsMatch(t, []string{"HOME=/root", "LD_LIBRARY_PATH=/usr/lib/cuda"}, out)

	env, err = NewEnvironment(EnvConfig{})
	require.NoError(t, err)
	out = env.Environ([]string{"HOME=/root", "PYTHONPATH="})
	assert.Equal(t, []string{"HOME=/root"}, out)
}

func TestRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires bash")
	}

	dir := t.TempDir()
	env, err := NewEnvironment(EnvConfig{EnvActivation: "true"})
	require.NoError(t, err)

	require.NoError(t, env.Run(context.Background(), "touch", []string{"out file.txt"}, dir))
	_, err = os.Stat(filepath.Join(dir, "out file.txt"))
	assert.NoError(t, err)

	err = env.Run(context.Background(), "echo boom >&2; exit 3", nil, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with status 3")
	assert.Contains(t, err.Error(), "boom")
}

func TestRunCancelled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires bash")
	}

	env, err := NewEnvironment(EnvConfig{EnvActivation: "true"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	// The sleep is a child of bash and holds its stdout.
	err = env.Run(ctx, "sleep 30; echo done", nil, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestEnvConfigFromEnv(t *testing.T) {
	t.Setenv("CRYOCARE_VERSION", "0.1.1")
	t.Setenv("SCIPION_HOME", "/opt/scipion")
	t.Setenv("CRYOCARE_HOME", "/opt/scipion/software/em/cryoCARE")

	cfg, err := env.ParseAs[EnvConfig]()
	require.NoError(t, err)
	assert.Equal(t, "0.1.1", cfg.Version)
	assert.Equal(t, "/opt/scipion", cfg.InstallRoot)
}
