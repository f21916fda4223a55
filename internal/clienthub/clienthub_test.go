package clienthub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct{ sent [][]byte }

func (f *fakeSender) Send(frame []byte) error {
	f.sent = append(f.sent, frame)
	return nil
}

func TestAttachAndDetachClearsIndexes(t *testing.T) {
	h := New()
	id := h.Attach(&fakeSender{})
	h.AddSub(id, Sub{Kind: SubWorker, Key: "w1"})
	h.AddSub(id, Sub{Kind: SubProvider, Key: "claude"})

	assert.Equal(t, []string{id}, h.WorkerSubscribers("w1"))
	assert.Equal(t, []string{id}, h.ProviderSubscribers("claude"))

	h.Detach(id)
	_, ok := h.Get(id)
	assert.False(t, ok)
	assert.Empty(t, h.WorkerSubscribers("w1"))
	assert.Empty(t, h.ProviderSubscribers("claude"))
}

func TestCurrentWorkerAffinity(t *testing.T) {
	h := New()
	id := h.Attach(&fakeSender{})
	h.SetCurrentWorker(id, "w1")

	assert.Equal(t, []string{id}, h.ClientsWithAffinity("w1"))

	h.ClearAffinityTo("w1")
	assert.Empty(t, h.ClientsWithAffinity("w1"))

	c, ok := h.Get(id)
	require.True(t, ok)
	assert.Empty(t, c.CurrentWorkerID)
}

func TestRemoveSubIsIdempotent(t *testing.T) {
	h := New()
	id := h.Attach(&fakeSender{})
	sub := Sub{Kind: SubWorker, Key: "w1"}
	h.AddSub(id, sub)
	h.RemoveSub(id, sub)
	h.RemoveSub(id, sub)

	assert.Empty(t, h.SubscriptionsOf(id))
	assert.Empty(t, h.WorkerSubscribers("w1"))
}

func TestRemoveAllSubsOnlyAffectsOneKind(t *testing.T) {
	h := New()
	id := h.Attach(&fakeSender{})
	h.AddSub(id, Sub{Kind: SubWorker, Key: "w1"})
	h.AddSub(id, Sub{Kind: SubProvider, Key: "claude"})

	h.RemoveAllSubs(id, SubWorker)

	subs := h.SubscriptionsOf(id)
	require.Len(t, subs, 1)
	assert.Equal(t, SubProvider, subs[0].Kind)
}
