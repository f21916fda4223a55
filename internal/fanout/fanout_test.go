package fanout

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackstrix/zeusgate/internal/clienthub"
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

func resolverFor(provider, name string) Resolver {
	return func(string) (ProcessInfo, bool) {
		return ProcessInfo{Provider: provider, ProcessName: name}, true
	}
}

func TestDeliverAffinityOnlyReceivesUnwrapped(t *testing.T) {
	hub := clienthub.New()
	sender := &captureSender{}
	id := hub.Attach(sender)
	hub.SetCurrentWorker(id, "w1")

	f := New(hub, resolverFor("claude", "worker-1"))
	f.Deliver("w1", wire.Envelope{Type: "content"})

	require.Len(t, sender.frames, 1)
	assert.Equal(t, "content", sender.frames[0]["type"])
}

func TestDeliverClearsAffinityOnTerminalEvent(t *testing.T) {
	hub := clienthub.New()
	sender := &captureSender{}
	id := hub.Attach(sender)
	hub.SetCurrentWorker(id, "w1")

	f := New(hub, resolverFor("claude", "worker-1"))
	f.Deliver("w1", wire.Envelope{Type: "done"})

	c, ok := hub.Get(id)
	require.True(t, ok)
	assert.Empty(t, c.CurrentWorkerID)
}

func TestDeliverDedupsAffinityAgainstWorkerSub(t *testing.T) {
	hub := clienthub.New()
	sender := &captureSender{}
	id := hub.Attach(sender)
	hub.SetCurrentWorker(id, "w1")
	hub.AddSub(id, clienthub.Sub{Kind: clienthub.SubWorker, Key: "w1"})

	f := New(hub, resolverFor("claude", "worker-1"))
	f.Deliver("w1", wire.Envelope{Type: "content"})

	assert.Len(t, sender.frames, 1)
}

func TestDeliverWorkerSubscriberGetsWrappedEnvelope(t *testing.T) {
	hub := clienthub.New()
	sender := &captureSender{}
	id := hub.Attach(sender)
	hub.AddSub(id, clienthub.Sub{Kind: clienthub.SubWorker, Key: "w1"})

	f := New(hub, resolverFor("claude", "worker-1"))
	f.Deliver("w1", wire.Envelope{Type: "content"})

	require.Len(t, sender.frames, 1)
	assert.Equal(t, "stream", sender.frames[0]["type"])
	assert.Equal(t, "process", sender.frames[0]["source"])
	assert.Equal(t, "content", sender.frames[0]["event"])
}

func TestDeliverWorkerAndProviderSubscribersGetTheirOwnSource(t *testing.T) {
	hub := clienthub.New()
	workerSubSender := &captureSender{}
	providerSubSender := &captureSender{}
	wid := hub.Attach(workerSubSender)
	pid := hub.Attach(providerSubSender)
	hub.AddSub(wid, clienthub.Sub{Kind: clienthub.SubWorker, Key: "w1"})
	hub.AddSub(pid, clienthub.Sub{Kind: clienthub.SubProvider, Key: "claude"})

	f := New(hub, resolverFor("claude", "worker-1"))
	f.Deliver("w1", wire.Envelope{Type: "content"})

	require.Len(t, workerSubSender.frames, 1)
	assert.Equal(t, "process", workerSubSender.frames[0]["source"])
	require.Len(t, providerSubSender.frames, 1)
	assert.Equal(t, "provider", providerSubSender.frames[0]["source"])
}
