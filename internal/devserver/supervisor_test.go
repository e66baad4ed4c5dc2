package devserver

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_Args(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  SupervisorConfig
		want []string
	}{
		{
			name: "defaults",
			cfg:  SupervisorConfig{Dir: dir, BundlerConfig: "webpack.config.js", Port: 8080},
			want: []string{
				"node", filepath.Join(dir, BundlerScript),
				"--config", filepath.Join(dir, "webpack.config.js"),
				"--port", "8080",
				"--watch-options-stdin",
				"--devtool=eval-source-map", "--mode=development",
			},
		},
		{
			name: "custom options replace the development flags",
			cfg:  SupervisorConfig{Dir: dir, BundlerConfig: "webpack.config.js", Port: 9000, Options: "--mode=production   --hot"},
			want: []string{
				"node", filepath.Join(dir, BundlerScript),
				"--config", filepath.Join(dir, "webpack.config.js"),
				"--port", "9000",
				"--watch-options-stdin",
				"--mode=production", "--hot",
			},
		},
		{
			name: "command override",
			cfg:  SupervisorConfig{Dir: dir, Command: []string{"npx", "webpack", "serve"}, BundlerConfig: "build/webpack.js", Port: 8080},
			want: []string{
				"npx", "webpack", "serve",
				"--config", filepath.Join(dir, "build/webpack.js"),
				"--port", "8080",
				"--watch-options-stdin",
				"--devtool=eval-source-map", "--mode=development",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSupervisor(tt.cfg, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Args())
		})
	}
}

func TestSupervisor_Environ(t *testing.T) {
	s, err := NewSupervisor(SupervisorConfig{Port: 8080, Env: map[string]string{
		"NODE_OPTIONS": "--max-old-space-size=4096",
		"BUNDLER_MODE": "dev",
	}}, nil, nil)
	require.NoError(t, err)

	env := s.Environ()
	require.GreaterOrEqual(t, len(env), 2)
	assert.Equal(t, []string{"BUNDLER_MODE=dev", "NODE_OPTIONS=--max-old-space-size=4096"}, env[len(env)-2:])
}

func TestNewSupervisor_Rejects(t *testing.T) {
	_, err := NewSupervisor(SupervisorConfig{Port: 0}, nil, nil)
	assert.Error(t, err)

	_, err = NewSupervisor(SupervisorConfig{Port: 8080, SuccessPattern: "("}, nil, nil)
	assert.Error(t, err)
}

// fakeBundler runs a shell script in place of the bundler. The bundler flags end up
// as positional parameters of the script and are ignored.
func fakeBundler(t *testing.T, script string, timeout time.Duration, onCompile func(CompileResult)) *Supervisor {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	s, err := NewSupervisor(SupervisorConfig{
		Dir:            t.TempDir(),
		Command:        []string{"sh", "-c", script},
		BundlerConfig:  "webpack.config.js",
		Port:           8080,
		SuccessPattern: DefaultSuccessPattern,
		FailurePattern: DefaultFailurePattern,
		StartTimeout:   timeout,
	}, nil, onCompile)
	require.NoError(t, err)
	t.Cleanup(func() { s.Stop() })
	return s
}

func TestSupervisor_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("waits for the first compilation", func(t *testing.T) {
		var mu sync.Mutex
		var results []CompileResult
		s := fakeBundler(t, "echo 'building'; echo 'webpack: Compiled.'; cat", 5*time.Second, func(r CompileResult) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		})

		require.NoError(t, s.Start(ctx))
		assert.Equal(t, StateRunning, s.State())
		assert.ErrorIs(t, s.Start(ctx), ErrAlreadyRunning)

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(results) == 1
		}, time.Second, 10*time.Millisecond)
		mu.Lock()
		assert.Equal(t, CompileResult{Success: true, Output: "building\n"}, results[0])
		mu.Unlock()

		require.NoError(t, s.Stop())
		assert.Equal(t, StateStopped, s.State())
	})

	t.Run("failed first compilation still starts", func(t *testing.T) {
		s := fakeBundler(t, "echo 'ERROR in x'; echo 'webpack: Failed to compile.'; cat", 5*time.Second, nil)

		require.NoError(t, s.Start(ctx))
		assert.Equal(t, StateRunning, s.State())
		count, firstOK := s.Tracker().Compilations()
		assert.Equal(t, 1, count)
		assert.False(t, firstOK)
	})

	t.Run("process exits early", func(t *testing.T) {
		s := fakeBundler(t, "echo 'cannot find module'; exit 3", 5*time.Second, nil)

		assert.Error(t, s.Start(ctx))
		assert.Equal(t, StateFailed, s.State())
	})

	t.Run("start timeout", func(t *testing.T) {
		s := fakeBundler(t, "sleep 30", 200*time.Millisecond, nil)

		err := s.Start(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "did not compile within")
		assert.Equal(t, StateFailed, s.State())
	})

	t.Run("context cancelled", func(t *testing.T) {
		s := fakeBundler(t, "sleep 30", 5*time.Second, nil)

		cctx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancel()
		err := s.Start(cctx)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Equal(t, StateStopped, s.State())
	})

	t.Run("restart after stop", func(t *testing.T) {
		s := fakeBundler(t, "echo 'webpack: Compiled.'; cat", 5*time.Second, nil)

		require.NoError(t, s.Start(ctx))
		require.NoError(t, s.Stop())
		require.NoError(t, s.Start(ctx))
		assert.Equal(t, StateRunning, s.State())
	})
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}
