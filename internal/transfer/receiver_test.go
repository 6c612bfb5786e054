// ABOUTME: Tests for the chunked upload receiver
// ABOUTME: Drives the wire protocol against an in-memory store
package transfer

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aurelay-Project/aurelay-go/internal/config"
	"github.com/Aurelay-Project/aurelay-go/internal/storage"
)

type fakePublisher struct {
	topics   []string
	payloads []string
}

func (f *fakePublisher) Publish(topic string, payload []byte, _ bool) bool {
	f.topics = append(f.topics, topic)
	f.payloads = append(f.payloads, string(payload))
	return true
}

func (f *fakePublisher) on(topic string) []string {
	var out []string
	for i, t := range f.topics {
		if t == topic {
			out = append(out, f.payloads[i])
		}
	}
	return out
}

func newTestReceiver(t *testing.T) (*Receiver, storage.Store, *fakePublisher) {
	t.Helper()
	store, err := storage.NewLocal(afero.NewMemMapFs(), "audio", 1<<20)
	require.NoError(t, err)
	pub := &fakePublisher{}
	return New(store, pub), store, pub
}

func chunkMsg(index int, payload []byte) []byte {
	head := []byte(fmt.Sprintf("CHUNK:%d:0:", index))
	return append(head, payload...)
}

func TestUploadEndToEnd(t *testing.T) {
	r, store, pub := newTestReceiver(t)

	const total = 1024
	const chunkSize = 103 // 9 full chunks + a short tail

	require.True(t, r.HandleChunk([]byte(fmt.Sprintf("START:%d", total))))
	assert.True(t, r.Receiving())

	data := make([]byte, total)
	for i := range data {
		data[i] = byte(i)
	}

	var index int
	for off := 0; off < total; off += chunkSize {
		end := off + chunkSize
		if end > total {
			end = total
		}
		require.True(t, r.HandleChunk(chunkMsg(index, data[off:end])))
		index++
	}

	require.True(t, r.HandleChunk([]byte("END")))
	assert.False(t, r.Receiving())

	acks := pub.on(config.TopicAudioAck)
	require.Len(t, acks, index)
	for i, ack := range acks {
		assert.Equal(t, fmt.Sprintf("ACK:%d", i), ack)
	}

	assert.Equal(t, []string{"UPLOAD_COMPLETE"}, pub.on(config.TopicAudioResult))

	f, err := store.Open("/sound.mp3")
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestChunkBeforeStartRejected(t *testing.T) {
	r, store, pub := newTestReceiver(t)

	require.True(t, r.HandleChunk(chunkMsg(0, []byte("orphan"))))

	assert.False(t, store.Exists("/sound.mp3"))
	assert.Empty(t, pub.on(config.TopicAudioAck))
}

func TestChunkWithBrokenHeaderIgnored(t *testing.T) {
	r, _, pub := newTestReceiver(t)

	require.True(t, r.HandleChunk([]byte("START:100")))
	require.True(t, r.HandleChunk([]byte("CHUNK:0-no-delimiters")))

	assert.Empty(t, pub.on(config.TopicAudioAck))
	assert.True(t, r.Receiving())
}

func TestChunkOverflowRejected(t *testing.T) {
	r, _, pub := newTestReceiver(t)

	require.True(t, r.HandleChunk([]byte("START:4")))
	require.True(t, r.HandleChunk(chunkMsg(0, []byte("toolong"))))

	assert.Empty(t, pub.on(config.TopicAudioAck))
}

func TestDoubleEndIsNoOp(t *testing.T) {
	r, _, pub := newTestReceiver(t)

	require.True(t, r.HandleChunk([]byte("START:3")))
	require.True(t, r.HandleChunk(chunkMsg(0, []byte("abc"))))
	require.True(t, r.HandleChunk([]byte("END")))
	require.True(t, r.HandleChunk([]byte("END")))

	assert.Equal(t, []string{"UPLOAD_COMPLETE"}, pub.on(config.TopicAudioResult))
}

func TestStartSupersedesPartialUpload(t *testing.T) {
	r, store, _ := newTestReceiver(t)

	require.True(t, r.HandleChunk([]byte("START:100")))
	require.True(t, r.HandleChunk(chunkMsg(0, []byte("old"))))

	require.True(t, r.HandleChunk([]byte("START:3")))
	require.True(t, r.HandleChunk(chunkMsg(0, []byte("new"))))
	require.True(t, r.HandleChunk([]byte("END")))

	assert.Equal(t, int64(3), store.FileSize("/sound.mp3"))
}

func TestSizeMismatchAtEndStillCompletes(t *testing.T) {
	r, store, pub := newTestReceiver(t)

	require.True(t, r.HandleChunk([]byte("START:100")))
	require.True(t, r.HandleChunk(chunkMsg(0, []byte("short"))))
	require.True(t, r.HandleChunk([]byte("END")))

	assert.Equal(t, []string{"UPLOAD_COMPLETE"}, pub.on(config.TopicAudioResult))
	assert.Equal(t, int64(5), store.FileSize("/sound.mp3"))
}

func TestFreeSpaceRequest(t *testing.T) {
	r, _, pub := newTestReceiver(t)

	require.True(t, r.HandleRequest([]byte("REQUEST_FREE_SPACE")))

	replies := pub.on(config.TopicAudioResponse)
	require.Len(t, replies, 1)
	assert.Equal(t, fmt.Sprintf("FREE:%d:0", 1<<20), replies[0])
}

func TestStartRejectedWhenTooLarge(t *testing.T) {
	r, _, pub := newTestReceiver(t)

	require.True(t, r.HandleChunk([]byte(fmt.Sprintf("START:%d", 2<<20))))

	assert.False(t, r.Receiving())
	assert.Equal(t, []string{"UPLOAD_FAILED:NO_SPACE"}, pub.on(config.TopicAudioResult))
}

func TestTimeoutAbortsStalledUpload(t *testing.T) {
	r, store, pub := newTestReceiver(t)

	require.True(t, r.HandleChunk([]byte("START:100")))
	require.True(t, r.HandleChunk(chunkMsg(0, []byte("abc"))))

	// Not yet stalled.
	r.CheckTimeout(time.Now())
	assert.True(t, r.Receiving())

	r.CheckTimeout(time.Now().Add(time.Minute))
	assert.False(t, r.Receiving())
	assert.False(t, store.Exists("/sound.mp3"))
	assert.Equal(t, []string{"UPLOAD_TIMEOUT"}, pub.on(config.TopicAudioResult))
}

func TestBinaryChunkPayloadWithColons(t *testing.T) {
	r, store, _ := newTestReceiver(t)

	payload := []byte("a:b:c\x00\xff")
	require.True(t, r.HandleChunk([]byte(fmt.Sprintf("START:%d", len(payload)))))
	require.True(t, r.HandleChunk(chunkMsg(0, payload)))
	require.True(t, r.HandleChunk([]byte("END")))

	f, err := store.Open("/sound.mp3")
	require.NoError(t, err)
	defer f.Close()
	got, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}
