package router

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackstrix/zeusgate/internal/clienthub"
	"github.com/hackstrix/zeusgate/internal/fanout"
	"github.com/hackstrix/zeusgate/internal/fleet"
	"github.com/hackstrix/zeusgate/internal/pool"
	"github.com/hackstrix/zeusgate/internal/registry"
	"github.com/hackstrix/zeusgate/internal/wire"
)

type captureSender struct{ frames []map[string]interface{} }

func (c *captureSender) Send(frame []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(frame, &m); err != nil {
		return err
	}
	c.frames = append(c.frames, m)
	return nil
}

func (c *captureSender) last() map[string]interface{} {
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

func newTestRouter(t *testing.T) (*Router, *clienthub.Hub, string, *captureSender) {
	t.Helper()
	reg := registry.New()
	p := pool.New(reg, 1)
	hub := clienthub.New()
	fan := fanout.New(hub, func(string) (fanout.ProcessInfo, bool) { return fanout.ProcessInfo{}, false })
	fl := fleet.New(fleet.Options{Registry: reg})

	r := New(Options{
		Registry:           reg,
		Pool:               p,
		Hub:                hub,
		Fanout:             fan,
		Fleet:              fl,
		Providers:          []string{"claude", "codex"},
		AutoSpawnProviders: nil,
	})

	sender := &captureSender{}
	clientID := hub.Attach(sender)
	return r, hub, clientID, sender
}

func TestHandlePingRepliesPong(t *testing.T) {
	r, _, clientID, sender := newTestRouter(t)
	r.Handle(context.Background(), clientID, wire.Envelope{Type: wire.CmdPing})

	require.NotNil(t, sender.last())
	assert.Equal(t, wire.EvtPong, sender.last()["type"])
}

func TestHandleUnknownCommandRepliesError(t *testing.T) {
	r, _, clientID, sender := newTestRouter(t)
	r.Handle(context.Background(), clientID, wire.Envelope{Type: "frobnicate"})

	require.NotNil(t, sender.last())
	assert.Equal(t, wire.EvtError, sender.last()["type"])
}

func TestHandleListProvidersRepliesConfiguredSet(t *testing.T) {
	r, _, clientID, sender := newTestRouter(t)
	r.Handle(context.Background(), clientID, wire.Envelope{Type: wire.CmdListProviders})

	require.NotNil(t, sender.last())
	assert.Equal(t, wire.EvtProviders, sender.last()["type"])
	payload := sender.last()["payload"].([]interface{})
	assert.ElementsMatch(t, []interface{}{"claude", "codex"}, payload)
}

func TestSubscribeThenListSubscriptionsRoundTrips(t *testing.T) {
	r, _, clientID, sender := newTestRouter(t)

	sub := wire.MustNew(wire.CmdSubscribe, wire.SubscribePayload{Provider: "claude"})
	r.Handle(context.Background(), clientID, sub)
	require.Equal(t, wire.EvtSubscribed, sender.last()["type"])

	r.Handle(context.Background(), clientID, wire.Envelope{Type: wire.CmdListSubscriptions})
	payload := sender.last()["payload"].(map[string]interface{})
	assert.Equal(t, []interface{}{"claude"}, payload["providers"])
}

func TestUnsubscribeAllClearsBothKinds(t *testing.T) {
	r, hub, clientID, sender := newTestRouter(t)
	hub.AddSub(clientID, clienthub.Sub{Kind: clienthub.SubWorker, Key: "w1"})
	hub.AddSub(clientID, clienthub.Sub{Kind: clienthub.SubProvider, Key: "claude"})

	r.Handle(context.Background(), clientID, wire.MustNew(wire.CmdUnsubscribe, wire.SubscribePayload{All: true}))
	require.Equal(t, wire.EvtUnsubscribed, sender.last()["type"])
	assert.Empty(t, hub.SubscriptionsOf(clientID))
}

func TestChatWithNoHealthyWorkerAndNoAutoSpawnRepliesError(t *testing.T) {
	r, _, clientID, sender := newTestRouter(t)
	r.Handle(context.Background(), clientID, wire.MustNew(wire.CmdChat, wire.ChatPayload{Provider: "claude", Text: "hi"}))

	require.NotNil(t, sender.last())
	assert.Equal(t, wire.EvtError, sender.last()["type"])
}

func TestStopUnknownProviderReportsZeroCount(t *testing.T) {
	r, _, clientID, sender := newTestRouter(t)
	r.Handle(context.Background(), clientID, wire.MustNew(wire.CmdStop, wire.StopPayload{Provider: "nobody"}))

	require.NotNil(t, sender.last())
	assert.Equal(t, wire.EvtStopped, sender.last()["type"])
	payload := sender.last()["payload"].(map[string]interface{})
	assert.Equal(t, float64(0), payload["count"])
}
