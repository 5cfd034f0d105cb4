package cmd

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/fuser/internal/cache"
	"github.com/Norgate-AV/fuser/internal/codes"
	"github.com/Norgate-AV/fuser/internal/config"
	"github.com/Norgate-AV/fuser/internal/fuser"
)

const twoBundles = `
[[bundle]]
name = "app"
files = ["a.js", "b.js"]
combined_file = "dist/app.js"
source_root = "/src"

[[bundle]]
name = "admin"
files = ["b.js"]
combined_file = "dist/admin.js"
source_map = false
`

// setupProject creates a project directory with sources and a manifest and
// makes it the working directory
func setupProject(t *testing.T, manifest string) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	dir := t.TempDir()
	files := map[string]string{
		"a.js":       "var a = 1;\n",
		"b.js":       "var b = 2;",
		"fuser.toml": manifest,
	}

	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	chdirForTest(t, dir)
	return dir
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}

	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)

	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// executeCommand runs the CLI with args against fresh flag and viper state
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	viper.Reset()
	configFile = ""
	resetFlags(rootCmd)
	t.Cleanup(viper.Reset)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)

	_, err := rootCmd.ExecuteC()
	return out.String(), err
}

func TestBuild_SingleBundle(t *testing.T) {
	dir := setupProject(t, twoBundles)

	out, err := executeCommand(t, "build", "app")
	require.NoError(t, err)

	combined := filepath.Join(dir, "dist", "app.js")
	assert.Contains(t, out, "app: "+combined)
	assert.FileExists(t, combined)
	assert.FileExists(t, combined+".jsm")
	assert.NoFileExists(t, filepath.Join(dir, "dist", "admin.js"))

	data, err := os.ReadFile(combined)
	require.NoError(t, err)
	assert.Contains(t, string(data), "JSLoader.expectToLoadModules(['a.js','b.js']);")
}

func TestBuild_All(t *testing.T) {
	dir := setupProject(t, twoBundles)

	out, err := executeCommand(t, "build", "--all")
	require.NoError(t, err)

	assert.Contains(t, out, "app: ")
	assert.Contains(t, out, "admin: ")
	assert.FileExists(t, filepath.Join(dir, "dist", "app.js"))
	assert.FileExists(t, filepath.Join(dir, "dist", "admin.js"))
	assert.NoFileExists(t, filepath.Join(dir, "dist", "admin.js.jsm"))
}

func TestBuild_UnknownBundle(t *testing.T) {
	setupProject(t, twoBundles)

	_, err := executeCommand(t, "build", "nope")
	require.Error(t, err)

	assert.Contains(t, err.Error(), `unknown bundle "nope"`)
	assert.Equal(t, codes.Configuration, codes.FromError(err))
}

func TestBuild_AmbiguousBundle(t *testing.T) {
	setupProject(t, twoBundles)

	_, err := executeCommand(t, "build")
	require.Error(t, err)

	assert.Contains(t, err.Error(), "--all")
}

func TestBuild_MissingSource(t *testing.T) {
	dir := setupProject(t, twoBundles)
	require.NoError(t, os.Remove(filepath.Join(dir, "a.js")))

	_, err := executeCommand(t, "build", "app")
	require.Error(t, err)

	assert.True(t, fuser.IsSourceReadError(err))
	assert.Equal(t, codes.SourceRead, codes.FromError(err))
	assert.Contains(t, err.Error(), "bundle app")
}

func TestBuild_MissingManifest(t *testing.T) {
	setupProject(t, twoBundles)

	_, err := executeCommand(t, "build", "--manifest", "other.toml", "app")
	require.Error(t, err)

	assert.Equal(t, codes.Configuration, codes.FromError(err))
}

func TestBuild_ManifestInParentDirectory(t *testing.T) {
	dir := setupProject(t, twoBundles)

	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	chdirForTest(t, sub)

	_, err := executeCommand(t, "build", "app")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "dist", "app.js"))
}

func TestHash(t *testing.T) {
	dir := setupProject(t, twoBundles)

	out, err := executeCommand(t, "hash", "app")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "dist", "app.js"))
	require.NoError(t, err)

	sum := md5.Sum(data)
	assert.Equal(t, hex.EncodeToString(sum[:])+"\n", out)
}

func TestHistory(t *testing.T) {
	setupProject(t, twoBundles)

	_, err := executeCommand(t, "build", "app")
	require.NoError(t, err)
	_, err = executeCommand(t, "build", "app")
	require.NoError(t, err)

	out, err := executeCommand(t, "history", "app")
	require.NoError(t, err)
	assert.Contains(t, out, "STARTED")
	assert.Equal(t, 3, strings.Count(out, "\n"), out)

	out, err = executeCommand(t, "history", "app", "-n", "1")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "\n"), out)

	out, err = executeCommand(t, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "2 builds of 1 bundles")

	out, err = executeCommand(t, "history", "--clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared build history")

	out, err = executeCommand(t, "history", "app")
	require.NoError(t, err)
	assert.Contains(t, out, "No builds recorded")
}

func TestHistory_Disabled(t *testing.T) {
	setupProject(t, twoBundles)

	_, err := executeCommand(t, "build", "app", "--no-history")
	require.NoError(t, err)

	out, err := executeCommand(t, "history", "app")
	require.NoError(t, err)
	assert.Contains(t, out, "No builds recorded")
}

func TestLocate(t *testing.T) {
	setupProject(t, twoBundles)

	_, err := executeCommand(t, "build", "app")
	require.NoError(t, err)

	// a.js starts on line 6 and b.js on line 10
	out, err := executeCommand(t, "locate", "app", "7")
	require.NoError(t, err)
	assert.Equal(t, "a.js:2\n", out)

	out, err = executeCommand(t, "locate", "app", "10")
	require.NoError(t, err)
	assert.Equal(t, "b.js:1\n", out)

	_, err = executeCommand(t, "locate", "app", "1")
	assert.Error(t, err)

	_, err = executeCommand(t, "locate", "app", "zero")
	assert.Error(t, err)
}

func TestLocate_MapDisabled(t *testing.T) {
	setupProject(t, twoBundles)

	_, err := executeCommand(t, "build", "admin")
	require.NoError(t, err)

	_, err = executeCommand(t, "locate", "admin", "6")
	require.Error(t, err)
	assert.ErrorIs(t, err, fuser.ErrNoSourceMap)
	assert.Equal(t, codes.ArtifactAccess, codes.FromError(err))
}

func TestSelectBundles(t *testing.T) {
	m, err := config.ParseManifest([]byte(twoBundles), t.TempDir(), "fuser.toml")
	require.NoError(t, err)
	s := &session{manifest: m}

	all, err := s.selectBundles(nil, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	picked, err := s.selectBundles([]string{"admin"}, false)
	require.NoError(t, err)
	require.Len(t, picked, 1)
	assert.Equal(t, "admin", picked[0].Name)

	_, err = s.selectBundles(nil, false)
	assert.True(t, fuser.IsConfigurationError(err))

	single := &session{manifest: &config.Manifest{Bundles: m.Bundles[:1]}}
	only, err := single.selectBundles(nil, false)
	require.NoError(t, err)
	assert.Equal(t, "app", only[0].Name)
}

func TestWriteHistory(t *testing.T) {
	started := time.Date(2024, 1, 2, 3, 4, 5, 0, time.Local)

	var buf bytes.Buffer
	err := writeHistory(&buf, []cache.Entry{
		{Started: started, Duration: 1500 * time.Microsecond, Files: 2, Size: 120, Digest: "abc123", Success: true},
		{Started: started.Add(time.Minute), Files: 2, Error: "error reading b.js: missing"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "2024-01-02 03:04:05")
	assert.Contains(t, lines[1], "abc123")
	assert.Contains(t, lines[2], "failed: error reading b.js: missing")
}

func TestWriteBuildSummary(t *testing.T) {
	b := config.Bundle{Name: "app", BaseDirectory: "/srv", Files: []string{"a.js"}, CombinedFile: "app.js", SourceMapFile: "app.js.jsm", SourceMap: true}

	var buf bytes.Buffer
	writeBuildSummary(&buf, []config.Bundle{b, b}, []*fuser.BuildResult{
		{Files: make([]fuser.FileOffset, 1), Size: 42, Digest: "d41d8cd9"},
		nil,
	})

	out := buf.String()
	assert.Contains(t, out, "app: "+filepath.Join("/srv", "app.js")+" (1 files, 42 bytes, md5 d41d8cd9)")
	assert.Contains(t, out, "app: "+filepath.Join("/srv", "app.js.jsm"))
	assert.Contains(t, out, "(up to date)")
}
