package backend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/amgproxy/fault"
)

func TestNewLaunchSpec(t *testing.T) {
	spec := NewLaunchSpec("", "https://grafana.example")
	assert.Equal(t, DefaultBinary, spec.Path)
	assert.Equal(t, []string{
		"--AmgMcpOptions:Transport=Stdio",
		"--AmgMcpOptions:AzureManagedGrafanaEndpoint=https://grafana.example",
	}, spec.Args)
}

func TestStart(t *testing.T) {
	sink := &lockedBuffer{}
	session, err := Start(context.Background(), fakeSpec("ok"), testOptions(sink))
	require.NoError(t, err)
	defer session.Close()

	assert.True(t, session.Alive())
	assert.NotEmpty(t, session.ID)
	assert.Greater(t, session.PID(), 0)
	assert.Equal(t, []string{"amgmcp_datasource_list", "amgmcp_query_datasource", "exit", "fail", "hang"}, session.Tools())
	assert.Equal(t, []string{"datasourceUid", "query"}, session.Registry().Accepted("amgmcp_query_datasource"))
	assert.Eventually(t, func() bool {
		return sink.String() == "[amg-mcp] fake amg-mcp ready\n"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStart_HandshakeFailed(t *testing.T) {
	var testCases = []struct {
		description string
		mode        string
		timeout     bool
	}{
		{description: "initialize error", mode: "init-error"},
		{description: "initialize timeout", mode: "init-silent", timeout: true},
		{description: "tools/list error", mode: "list-error"},
	}
	for _, testCase := range testCases {
		options := testOptions(nil)
		options.InitTimeout = 300 * time.Millisecond
		session, err := Start(context.Background(), fakeSpec(testCase.mode), options)
		assert.Nil(t, session, testCase.description)
		require.Error(t, err, testCase.description)
		assert.Equal(t, fault.HandshakeFailed, fault.KindOf(err), testCase.description)
		assert.Equal(t, testCase.timeout, fault.Is(err, fault.Timeout), testCase.description)
	}
}

func TestStart_MissingBinary(t *testing.T) {
	_, err := Start(context.Background(), LaunchSpec{Path: "/nonexistent/amg-mcp"}, testOptions(nil))
	assert.Equal(t, fault.HandshakeFailed, fault.KindOf(err))
}

func TestSession_Call(t *testing.T) {
	session, err := Start(context.Background(), fakeSpec("ok"), testOptions(nil))
	require.NoError(t, err)
	defer session.Close()

	var testCases = []struct {
		description string
		tool        string
		args        Arguments
		expect      string
	}{
		{
			description: "filtered to accepted keys",
			tool:        "amgmcp_query_datasource",
			args:        Arguments{"datasourceUid": "loki", "query": "{app=\"x\"}", "fromMs": 1},
			expect:      `{"tool":"amgmcp_query_datasource","arguments":{"datasourceUid":"loki","query":"{app=\"x\"}"}}`,
		},
		{
			description: "no accepted keys declared",
			tool:        "amgmcp_datasource_list",
			args:        Arguments{"anything": true},
			expect:      `{"tool":"amgmcp_datasource_list","arguments":{"anything":true}}`,
		},
		{
			description: "unknown tool",
			tool:        "amgmcp_unknown",
			args:        nil,
			expect:      `{"tool":"amgmcp_unknown","arguments":{}}`,
		},
	}
	for _, testCase := range testCases {
		response, err := session.Call(context.Background(), testCase.tool, testCase.args, 2*time.Second)
		require.NoError(t, err, testCase.description)
		assert.False(t, response.IsError(), testCase.description)
		assert.JSONEq(t, testCase.expect, string(response.Result), testCase.description)
	}
}

func TestSession_Call_RemoteError(t *testing.T) {
	session, err := Start(context.Background(), fakeSpec("ok"), testOptions(nil))
	require.NoError(t, err)
	defer session.Close()

	response, err := session.Call(context.Background(), "fail", nil, 2*time.Second)
	require.NoError(t, err)
	assert.True(t, response.IsError())
	assert.Equal(t, "query rejected", response.Error.Message)
	assert.True(t, session.Alive())
}

func TestSession_Call_ProcessExit(t *testing.T) {
	session, err := Start(context.Background(), fakeSpec("ok"), testOptions(nil))
	require.NoError(t, err)
	defer session.Close()

	_, err = session.Call(context.Background(), "exit", nil, 2*time.Second)
	require.Error(t, err)
	assert.Equal(t, fault.ChannelClosed, fault.KindOf(err))
	assert.Contains(t, err.Error(), "exit status: 3")
	assert.False(t, session.Alive())

	_, err = session.Call(context.Background(), "amgmcp_datasource_list", nil, time.Second)
	assert.Equal(t, fault.ChannelClosed, fault.KindOf(err))
}

func TestSession_Call_ReplyThenExit(t *testing.T) {
	for i := 0; i < 10; i++ {
		session, err := Start(context.Background(), fakeSpec("ok"), testOptions(nil))
		require.NoError(t, err)
		response, err := session.Call(context.Background(), "reply-exit", nil, 2*time.Second)
		require.NoError(t, err, "run %d", i)
		assert.JSONEq(t, `{"last":true}`, string(response.Result), "run %d", i)
		session.Close()
	}
}

func TestSession_ExitStatus_Running(t *testing.T) {
	session, err := Start(context.Background(), fakeSpec("ok"), testOptions(nil))
	require.NoError(t, err)
	defer session.Close()

	started := time.Now()
	assert.Equal(t, "running", session.ExitStatus())
	assert.Less(t, time.Since(started), 100*time.Millisecond)
}

func TestSession_Close(t *testing.T) {
	session, err := Start(context.Background(), fakeSpec("ok"), testOptions(nil))
	require.NoError(t, err)
	session.Close()
	session.Close()
	assert.False(t, session.Alive())
	assert.NotEqual(t, "running", session.ExitStatus())
}
