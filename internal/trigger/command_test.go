package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chav-jf/speedy-green-flash/internal/channel"
	"github.com/chav-jf/speedy-green-flash/internal/protocol"
)

type fakeSender struct {
	state  channel.State
	accept bool
	sent   []protocol.Event
}

func (s *fakeSender) State() channel.State { return s.state }

func (s *fakeSender) Send(ev protocol.Event) bool {
	if !s.accept {
		return false
	}
	s.sent = append(s.sent, ev)
	return true
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestFire_Connected(t *testing.T) {
	s := &fakeSender{state: channel.Connected, accept: true}
	clk := &clock{t: time.Unix(100, 0)}
	cmd := NewCommand(s, 0, clk.now, zap.NewNop())

	require.NoError(t, cmd.Fire())
	assert.Equal(t, []protocol.Event{protocol.New(protocol.StimulusNow)}, s.sent)
	assert.True(t, cmd.CoolingDown())

	clk.t = clk.t.Add(499 * time.Millisecond)
	assert.ErrorIs(t, cmd.Fire(), ErrCoolingDown)
	assert.Len(t, s.sent, 1)

	clk.t = clk.t.Add(time.Millisecond)
	assert.False(t, cmd.CoolingDown())
	require.NoError(t, cmd.Fire())
	assert.Len(t, s.sent, 2)
	assert.Equal(t, 2, cmd.Sent())
}

func TestFire_NotConnected(t *testing.T) {
	for _, st := range []channel.State{channel.Disconnected, channel.Connecting, channel.Offline} {
		t.Run(st.String(), func(t *testing.T) {
			s := &fakeSender{state: st, accept: true}
			cmd := NewCommand(s, 0, nil, zap.NewNop())

			err := cmd.Fire()
			assert.ErrorIs(t, err, ErrNotConnected)
			assert.Contains(t, err.Error(), "not connected to the relay")
			assert.Empty(t, s.sent)
			assert.False(t, cmd.CoolingDown())
		})
	}
}

func TestFire_WriteDropped(t *testing.T) {
	s := &fakeSender{state: channel.Connected}
	cmd := NewCommand(s, 0, nil, zap.NewNop())

	assert.ErrorIs(t, cmd.Fire(), ErrNotConnected)
	assert.False(t, cmd.CoolingDown())
	assert.Zero(t, cmd.Sent())
}
