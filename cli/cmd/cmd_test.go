package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lottoworks/drawstack/cli/internal/seeder"
)

// resetFlags restores every flag to its default so commands can be executed
// repeatedly within one test binary.
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

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "config.yaml")}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandsRegistered(t *testing.T) {
	expected := map[string][]string{
		"draws":    {"run", "trigger"},
		"exports":  {"run"},
		"lottery":  {"due", "get", "winners", "tickets", "purge"},
		"simulate": nil,
		"seed":     nil,
		"profile":  {"set", "list", "remove"},
	}

	for name, subs := range expected {
		t.Run(name, func(t *testing.T) {
			c, _, err := rootCmd.Find([]string{name})
			require.NoError(t, err)
			require.Equal(t, name, c.Name())

			for _, sub := range subs {
				sc, _, err := c.Find([]string{sub})
				require.NoError(t, err)
				assert.Equal(t, sub, sc.Name())
			}
		})
	}
}

func TestSimulate_Fixed(t *testing.T) {
	out, err := execute(t, "simulate", "-o", "json", "--quota", "2", "T1", "T2", "T3", "T4", "T5")
	require.NoError(t, err)

	var res SimulationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 5, res.PoolSize)
	assert.Equal(t, "fixed(2)", res.Quota)
	require.Len(t, res.Winners, 2)
	assert.Equal(t, 1, res.Winners[0].WinnerPosition)
	assert.Equal(t, 2, res.Winners[1].WinnerPosition)
	assert.Len(t, res.Seed, 64)
}

func TestSimulate_ReplaySeed(t *testing.T) {
	args := []string{"simulate", "-o", "json", "--percent", "0.4", "A", "B", "C", "D", "E"}
	out, err := execute(t, args...)
	require.NoError(t, err)
	var first SimulationResult
	require.NoError(t, json.Unmarshal([]byte(out), &first))
	require.Len(t, first.Winners, 2)

	out, err = execute(t, append(args, "--seed", first.Seed)...)
	require.NoError(t, err)
	var replay SimulationResult
	require.NoError(t, json.Unmarshal([]byte(out), &replay))

	assert.Equal(t, first.Winners, replay.Winners)
}

func TestSimulate_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickets.txt")
	require.NoError(t, os.WriteFile(path, []byte("X1\n\n X2 \nX3\n"), 0600))

	out, err := execute(t, "simulate", "-o", "json", "--quota", "10", "--file", path)
	require.NoError(t, err)

	var res SimulationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 3, res.PoolSize)
	assert.Len(t, res.Winners, 3)
}

func TestSimulate_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no tickets", []string{"simulate"}, "no tickets"},
		{"both quotas", []string{"simulate", "--quota", "1", "--percent", "0.5", "T1"}, "mutually exclusive"},
		{"percent out of range", []string{"simulate", "--percent", "2", "T1"}, "within [0,1]"},
		{"bad seed", []string{"simulate", "--seed", "zz", "T1"}, "decode seed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestDrawsRun_AgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/draws/run", r.URL.Path)
		w.Write([]byte(`{"processed":2,"succeeded":[7],"failed":[{"lottery_id":8,"error":"no tickets","permanent":false}]}`))
	}))
	defer srv.Close()

	out, err := execute(t, "--server", srv.URL, "draws", "run")
	require.NoError(t, err)

	assert.Contains(t, out, "1 of 2 lotteries drawn")
	assert.Contains(t, out, "no tickets")
}

func TestLotteryGet_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"lottery not found","code":"not_found"}`))
	}))
	defer srv.Close()

	_, err := execute(t, "--server", srv.URL, "lottery", "get", "3")
	assert.ErrorContains(t, err, "not_found")

	_, err = execute(t, "--server", srv.URL, "lottery", "get", "abc")
	assert.ErrorContains(t, err, "invalid lottery id")
}

func TestSeed_DryRun(t *testing.T) {
	_, err := execute(t, "seed", "--dry-run", "-o", "json",
		"--seeder-config", filepath.Join(t.TempDir(), "seeder.yaml"),
		"--lotteries", "2", "--tickets", "4", "--seed", "7")
	// an explicit seeder config that does not exist is an error
	require.Error(t, err)

	out, err := execute(t, "seed", "--dry-run", "-o", "json", "--lotteries", "2", "--tickets", "4", "--seed", "7")
	require.NoError(t, err)

	var plan seeder.Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.Len(t, plan.Schedules, 2)
	assert.Len(t, plan.Sales, 8)
}

func TestProfileSetAndList(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--config", cfgPath, "profile", "set", "local", "--server", "http://localhost:9999"})
	require.NoError(t, rootCmd.Execute())

	resetFlags(rootCmd)
	out.Reset()
	rootCmd.SetArgs([]string{"--config", cfgPath, "profile", "list"})
	require.NoError(t, rootCmd.Execute())

	assert.True(t, strings.Contains(out.String(), "http://localhost:9999"))
}
