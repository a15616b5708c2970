package inventory

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/edgeopslabs/probe/pkg/config"
	"github.com/edgeopslabs/probe/pkg/discovery"
	"github.com/edgeopslabs/probe/pkg/policy"
	"github.com/edgeopslabs/probe/pkg/providers"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stubEnv = "PROBE_INVENTORY_STUB"

func TestMain(m *testing.M) {
	if name := os.Getenv(stubEnv); name != "" {
		s := server.NewMCPServer(name, "1.2.3", server.WithToolCapabilities(false))
		handler := func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultText("ok"), nil
		}
		s.AddTool(mcp.NewTool("read_file", mcp.WithDescription("Read a file.")), handler)
		s.AddTool(mcp.NewTool("write_file", mcp.WithDescription("Write a file.")), handler)
		if err := server.ServeStdio(s); err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}
	os.Exit(m.Run())
}

type fakeDiscoverer struct {
	mu      sync.Mutex
	active  int
	peak    int
	specs   []discovery.ProviderInvocationSpec
	results map[string]discovery.SessionResult
}

func (f *fakeDiscoverer) Discover(ctx context.Context, spec discovery.ProviderInvocationSpec) discovery.SessionResult {
	f.mu.Lock()
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.specs = append(f.specs, spec)
	f.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.active--
	if result, ok := f.results[spec.Executable]; ok {
		return result
	}
	return discovery.SessionResult{Success: true, Tools: []discovery.ToolDescriptor{{Name: "ping"}}}
}

func def(name, command string) providers.Definition {
	return providers.Definition{ProviderConfig: config.ProviderConfig{Name: name, Command: command}}
}

func TestRunBoundsConcurrencyAndKeepsOrder(t *testing.T) {
	f := &fakeDiscoverer{results: map[string]discovery.SessionResult{
		"bad": {Success: false, Tools: []discovery.ToolDescriptor{}, Error: "initialize error: refused"},
	}}
	defs := []providers.Definition{
		def("one", "a"), def("two", "bad"), def("three", "c"), def("four", "d"), def("five", "e"),
	}

	reports := Run(context.Background(), f, defs, Options{
		Timeout:     time.Second,
		Concurrency: 2,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	require.Len(t, reports, len(defs))
	for i, report := range reports {
		assert.Equal(t, defs[i].Name, report.Name)
	}
	assert.LessOrEqual(t, f.peak, 2)
	assert.False(t, reports[1].Success)
	assert.Equal(t, "initialize error: refused", reports[1].Error)
	assert.NotNil(t, reports[1].Tools)
	assert.True(t, reports[0].Success)

	report := Report{Providers: reports}
	assert.Equal(t, 1, report.Failed())

	for _, spec := range f.specs {
		assert.Equal(t, time.Second, spec.Deadline)
	}
}

func TestRunAppliesPolicy(t *testing.T) {
	f := &fakeDiscoverer{results: map[string]discovery.SessionResult{
		"fs": {Success: true, Tools: []discovery.ToolDescriptor{{Name: "read_file"}, {Name: "write_file"}, {Name: "search"}}},
	}}
	p := policy.New(config.PolicyConfig{SafeMode: true, ConfirmTools: []string{"files/search"}})

	reports := Run(context.Background(), f, []providers.Definition{def("files", "fs")}, Options{Timeout: time.Second, Concurrency: 1, Policy: p})
	require.Len(t, reports, 1)
	tools := reports[0].Tools
	require.Len(t, tools, 3)
	assert.Equal(t, policy.Allow, tools[0].Status)
	assert.Equal(t, policy.Deny, tools[1].Status)
	assert.Equal(t, policy.Confirm, tools[2].Status)
}

func TestRunAgainstMCPProvider(t *testing.T) {
	defs := []providers.Definition{{
		ProviderConfig: config.ProviderConfig{
			Name:    "files",
			Command: os.Args[0],
			Env:     map[string]string{stubEnv: "files-stub"},
			Timeout: 5 * time.Second,
		},
		Source: providers.SourceConfig,
	}}
	client := discovery.NewClient(discovery.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	reports := Run(context.Background(), client, defs, Options{Timeout: time.Second, Concurrency: 1})
	require.Len(t, reports, 1)
	report := reports[0]
	require.True(t, report.Success, "error: %s", report.Error)
	require.NotNil(t, report.Server)
	assert.Equal(t, "files-stub", report.Server.Name)
	assert.Equal(t, "1.2.3", report.Server.Version)

	names := []string{}
	for _, tool := range report.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"read_file", "write_file"}, names)

	data, err := json.Marshal(Report{Client: "probe", Version: "v0.0.1", Transport: "stdio", Providers: reports})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"allowed"`)
}
