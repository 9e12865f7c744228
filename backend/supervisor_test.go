package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/amgproxy/fault"
)

func TestSupervisor_GetOrCreate(t *testing.T) {
	supervisor := NewSupervisor(NewFactory(fakeSpec("ok"), testOptions(nil)), zerolog.Nop())
	defer supervisor.Close()

	first, err := supervisor.GetOrCreate(context.Background())
	require.NoError(t, err)
	second, err := supervisor.GetOrCreate(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestSupervisor_TimeoutReplacesSession(t *testing.T) {
	supervisor := NewSupervisor(NewFactory(fakeSpec("ok"), testOptions(nil)), zerolog.Nop())
	defer supervisor.Close()

	session, err := supervisor.GetOrCreate(context.Background())
	require.NoError(t, err)
	faultedPID := session.PID()

	started := time.Now()
	_, err = session.Call(context.Background(), "hang", nil, time.Second)
	elapsed := time.Since(started)
	assert.Equal(t, fault.Timeout, fault.KindOf(err))
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 3*time.Second)
	supervisor.InvalidateSession(session, err.Error())

	replacement, err := supervisor.GetOrCreate(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, session, replacement)
	assert.NotEqual(t, faultedPID, replacement.PID())
	assert.False(t, session.Alive())
}

func TestSupervisor_DeadSessionReplacedWithoutInvalidate(t *testing.T) {
	supervisor := NewSupervisor(NewFactory(fakeSpec("ok"), testOptions(nil)), zerolog.Nop())
	defer supervisor.Close()

	session, err := supervisor.GetOrCreate(context.Background())
	require.NoError(t, err)
	_, err = session.Call(context.Background(), "exit", nil, time.Second)
	assert.Equal(t, fault.ChannelClosed, fault.KindOf(err))

	replacement, err := supervisor.GetOrCreate(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, session, replacement)
}

func TestSupervisor_StaleInvalidateKeepsReplacement(t *testing.T) {
	supervisor := NewSupervisor(NewFactory(fakeSpec("ok"), testOptions(nil)), zerolog.Nop())
	defer supervisor.Close()

	stale, err := supervisor.GetOrCreate(context.Background())
	require.NoError(t, err)
	supervisor.Invalidate("test")
	current, err := supervisor.GetOrCreate(context.Background())
	require.NoError(t, err)

	supervisor.InvalidateSession(stale, "late fault")
	assert.Same(t, current, supervisor.Current())
	assert.True(t, current.Alive())
}

func TestSupervisor_FailedStartCachesNothing(t *testing.T) {
	supervisor := NewSupervisor(NewFactory(fakeSpec("init-error"), testOptions(nil)), zerolog.Nop())
	defer supervisor.Close()

	session, err := supervisor.GetOrCreate(context.Background())
	assert.Nil(t, session)
	assert.Equal(t, fault.HandshakeFailed, fault.KindOf(err))
	assert.Nil(t, supervisor.Current())
	assert.Error(t, supervisor.Warm(context.Background()))
}

func TestSupervisor_RetriesAfterFailure(t *testing.T) {
	calls := 0
	factory := func(ctx context.Context) (*Session, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("first start fails")
		}
		return Start(ctx, fakeSpec("ok"), testOptions(nil))
	}
	supervisor := NewSupervisor(factory, zerolog.Nop())
	defer supervisor.Close()

	_, err := supervisor.GetOrCreate(context.Background())
	assert.Error(t, err)
	session, err := supervisor.GetOrCreate(context.Background())
	require.NoError(t, err)
	assert.True(t, session.Alive())
	assert.Equal(t, 2, calls)
}
