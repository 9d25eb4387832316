package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nanostl/amalgamate/internal/watch"
)

const (
	rootHeader = `/*
 * The MIT License (MIT)
 */
#ifndef NANOSTL_H_
#define NANOSTL_H_

#include "__nullptr"
#include "nanovector.h"

#endif // NANOSTL_H_
`
	nullptrHeader = `namespace nanostl {
typedef decltype(nullptr) nullptr_t;
}
`
	vectorHeader = `#ifndef NANOSTL_VECTOR_H_
#define NANOSTL_VECTOR_H_

namespace nanostl {
template <class T> class vector {};
}

#ifdef NANOSTL_CONFIG_RUNNER
#include "nanorunner.h"
#endif

#endif // NANOSTL_VECTOR_H_
`
	runnerHeader = `#ifndef NANOSTL_RUNNER_H_
#define NANOSTL_RUNNER_H_
int run_all() { return 0; }
#endif // NANOSTL_RUNNER_H_
`
)

// project lays out include/ and a config file in a temp dir and returns
// the config path and the default output path. extra lines are appended
// to the config.
func project(t *testing.T, extra ...string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	inc := filepath.Join(dir, "include")
	require.NoError(t, os.MkdirAll(inc, 0o755))
	for name, body := range map[string]string{
		"nanostl.h":    rootHeader,
		"nanovector.h": vectorHeader,
		"nanorunner.h": runnerHeader,
		"__nullptr":    nullptrHeader,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(inc, name), []byte(body), 0o644))
	}
	cfgPath := filepath.Join(dir, "amalgamate.yaml")
	cfg := "base_path: " + dir + "\n" + strings.Join(extra, "\n") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cfgPath, filepath.Join(dir, "single_include", "nanostl.h")
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestGenerate(t *testing.T) {
	cfg, out := project(t)

	code, stdout, stderr := runCLI("--config", cfg, "--version-string", "9.9.9")
	require.Equal(t, exitOK, code, stderr)
	assert.Equal(t, "Generated single include for NanoSTL v9.9.9\n", stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	got := string(data)
	assert.Contains(t, got, " * NanoSTL v9.9.9\n")
	assert.Contains(t, got, "// #included from: nanovector.h\n")
	assert.Contains(t, got, "typedef decltype(nullptr) nullptr_t;\n")
	assert.Contains(t, got, "int run_all() { return 0; }\n")
	assert.Contains(t, got, "#endif // NANOSTL_SINGLE_INCLUDE_H_\n\n")
	assert.NotContains(t, got, "#ifndef NANOSTL_VECTOR_H_")
	assert.Equal(t, 1, strings.Count(got, "The MIT License"))
}

func TestNoImpl(t *testing.T) {
	for _, args := range [][]string{{"noimpl"}, {"NoImpl"}, {"--no-impl"}} {
		t.Run(args[0], func(t *testing.T) {
			cfg, out := project(t)
			code, _, stderr := runCLI(append(args, "--config", cfg)...)
			require.Equal(t, exitOK, code, stderr)
			assert.Contains(t, stderr, "not including impl code")

			data, err := os.ReadFile(out)
			require.NoError(t, err)
			assert.NotContains(t, string(data), "run_all")
			assert.Contains(t, string(data), "template <class T> class vector {};")
		})
	}
}

func TestUsageErrorsTouchNothing(t *testing.T) {
	tests := [][]string{
		{"bogus"},
		{"noimpl", "extra"},
		{"--unknown-flag"},
		{"--check", "--watch"},
		{"--log-level", "loud"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			cfg, out := project(t)
			code, _, stderr := runCLI(append(args, "--config", cfg)...)
			assert.Equal(t, exitUsage, code)
			assert.Contains(t, stderr, "Usage:")
			_, err := os.Stat(out)
			assert.True(t, os.IsNotExist(err), "output written despite usage error")
		})
	}
}

func TestUnrecognisedArgumentMessage(t *testing.T) {
	code, _, stderr := runCLI("Bogus")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "** unrecognised argument: bogus **")
}

func TestUnresolvedInclude(t *testing.T) {
	cfg, out := project(t)
	inc := filepath.Join(filepath.Dir(cfg), "include")
	require.NoError(t, os.Remove(filepath.Join(inc, "nanorunner.h")))

	code, _, stderr := runCLI("--config", cfg)
	assert.Equal(t, exitErr, code)
	assert.Contains(t, stderr, `include "nanorunner.h"`)
	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err), "output written despite unresolved include")
}

func TestCheck(t *testing.T) {
	cfg, _ := project(t)

	code, _, _ := runCLI("--config", cfg, "--check")
	assert.Equal(t, exitErr, code, "missing artifact must be stale")

	code, _, stderr := runCLI("--config", cfg)
	require.Equal(t, exitOK, code, stderr)

	code, stdout, stderr := runCLI("--config", cfg, "--check")
	require.Equal(t, exitOK, code, stderr)
	assert.Contains(t, stdout, "is up to date")

	vec := filepath.Join(filepath.Dir(cfg), "include", "nanovector.h")
	src, err := os.ReadFile(vec)
	require.NoError(t, err)
	src = bytes.Replace(src, []byte("class vector {};"), []byte("class vector { T* p; };"), 1)
	require.NoError(t, os.WriteFile(vec, src, 0o644))

	code, stdout, stderr = runCLI("--config", cfg, "--check")
	assert.Equal(t, exitErr, code)
	assert.Contains(t, stdout, "- template <class T> class vector {};\n")
	assert.Contains(t, stdout, "+ template <class T> class vector { T* p; };\n")
	assert.Contains(t, stderr, "out of date")
}

func TestBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("guard_prefix: 1-2\n"), 0o644))

	code, _, stderr := runCLI("--config", path)
	assert.Equal(t, exitErr, code)
	assert.Contains(t, stderr, "invalid config")
}

// syncBuffer is written by the watch goroutine while the test reads it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// startWatch runs the CLI in watch mode until the test ends and returns
// its stderr once the watcher is registered.
func startWatch(t *testing.T, cfg string) *syncBuffer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var stdout, stderr syncBuffer
	done := make(chan int, 1)
	go func() { done <- execute(ctx, []string{"--config", cfg, "--watch"}, &stdout, &stderr) }()
	t.Cleanup(func() {
		cancel()
		select {
		case code := <-done:
			assert.Equal(t, exitOK, code, stderr.String())
		case <-time.After(5 * time.Second):
			t.Error("watch did not stop after cancel")
		}
	})
	require.Eventually(t, func() bool {
		return strings.Contains(stderr.String(), "watching for changes")
	}, 5*time.Second, 10*time.Millisecond, "watcher never started")
	return &stderr
}

func TestWatchRegeneratesOnExtensionlessHeader(t *testing.T) {
	cfg, out := project(t)
	startWatch(t, cfg)

	hdr := filepath.Join(filepath.Dir(cfg), "include", "__nullptr")
	body := strings.Replace(nullptrHeader, "nullptr_t;", "nullptr_t; // edited", 1)
	require.NoError(t, os.WriteFile(hdr, []byte(body), 0o644))

	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		return err == nil && strings.Contains(string(data), "nullptr_t; // edited")
	}, 5*time.Second, 20*time.Millisecond, "artifact not regenerated")
}

func TestWatchIgnoresOwnOutput(t *testing.T) {
	cfg, _ := project(t, "output: include/single.h")
	out := filepath.Join(filepath.Dir(cfg), "include", "single.h")
	stderr := startWatch(t, cfg)

	vec := filepath.Join(filepath.Dir(cfg), "include", "nanovector.h")
	body := strings.Replace(vectorHeader, "class vector {};", "class vector { T* p; };", 1)
	require.NoError(t, os.WriteFile(vec, []byte(body), 0o644))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		return err == nil && strings.Contains(string(data), "class vector { T* p; };")
	}, 5*time.Second, 20*time.Millisecond, "artifact not regenerated")

	// the rename of the artifact into the watched tree must not start
	// another run
	n := strings.Count(stderr.String(), "generated single include")
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, n, strings.Count(stderr.String(), "generated single include"))
}

func TestRegeneratorAffected(t *testing.T) {
	dir := t.TempDir()
	hdr := filepath.Join(dir, "include", "__nullptr")
	out := filepath.Join(dir, "include", "single.h")
	g := &regenerator{output: out, files: map[string]bool{hdr: true}}

	tests := []struct {
		name    string
		changes []watch.Change
		failed  bool
		want    bool
	}{
		{"read file written", []watch.Change{{Path: hdr, Op: fsnotify.Write}}, false, true},
		{"unrelated file written", []watch.Change{{Path: filepath.Join(dir, "include", "notes.txt"), Op: fsnotify.Write}}, false, false},
		{"new file", []watch.Change{{Path: filepath.Join(dir, "include", "nanonew.h"), Op: fsnotify.Create | fsnotify.Write}}, false, true},
		{"own output renamed in", []watch.Change{{Path: out, Op: fsnotify.Create}}, false, false},
		{"own output after failure", []watch.Change{{Path: out, Op: fsnotify.Create}}, true, false},
		{"anything after failure", []watch.Change{{Path: filepath.Join(dir, "include", "notes.txt"), Op: fsnotify.Write}}, true, true},
		{"empty batch", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g.failed = tt.failed
			assert.Equal(t, tt.want, g.affected(tt.changes))
		})
	}
}
