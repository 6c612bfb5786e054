// ABOUTME: ACK-driven chunked file upload receiver
// ABOUTME: Implements the START/CHUNK/END protocol with stop-and-wait flow control
package transfer

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Aurelay-Project/aurelay-go/internal/config"
	"github.com/Aurelay-Project/aurelay-go/internal/storage"
)

// Status is the receiver's protocol state.
type Status int

const (
	StatusIdle Status = iota
	StatusReceiving
	StatusFinalizing
)

const (
	// uploadFilename is the fixed destination for uploads; a new START
	// replaces the previous file.
	uploadFilename = "/sound.mp3"
	// flushInterval is how many payload bytes may accumulate before a
	// write-through, bounding data loss without per-chunk flush latency.
	flushInterval = 32 * 1024
	// inactivityTimeout aborts a stalled upload.
	inactivityTimeout = 30 * time.Second
)

// Publisher is the outbound slice of the command bus the receiver needs.
type Publisher interface {
	Publish(topic string, payload []byte, retain bool) bool
}

// state is the single cohesive record of an in-flight upload.
type state struct {
	filename     string
	expectedSize int64
	receivedSize int64
	lastActivity time.Time
	status       Status
}

// Receiver accepts chunked uploads over the command bus and writes them
// to storage. All methods are called from the dispatcher's delivery
// goroutine plus the watchdog task; the mutex covers both.
type Receiver struct {
	store storage.Store
	pub   Publisher

	mu        sync.Mutex
	st        state
	dst       storage.File
	unflushed int

	log *logrus.Entry
}

// New creates a receiver writing uploads to the given store.
func New(store storage.Store, pub Publisher) *Receiver {
	return &Receiver{
		store: store,
		pub:   pub,
		log:   logrus.WithField("component", "transfer"),
	}
}

// Receiving reports whether an upload is in flight. The sensor task
// checks this to keep telemetry off the bus mid-upload.
func (r *Receiver) Receiving() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st.status != StatusIdle
}

// HandleRequest answers storage queries on the request topic.
func (r *Receiver) HandleRequest(payload []byte) bool {
	if !bytes.Equal(payload, []byte("REQUEST_FREE_SPACE")) {
		r.log.WithField("payload", string(payload)).Warn("unknown storage request")
		return true
	}

	free := r.store.FreeSpace()
	current := r.store.FileSize(uploadFilename)
	r.pub.Publish(config.TopicAudioResponse, []byte(fmt.Sprintf("FREE:%d:%d", free, current)), false)
	return true
}

// HandleChunk processes one message on the chunk topic. START, CHUNK and
// END share the topic; everything else is a protocol violation, logged
// and ignored without state mutation.
func (r *Receiver) HandleChunk(payload []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case bytes.HasPrefix(payload, []byte("START:")):
		r.handleStart(payload[len("START:"):])
	case bytes.HasPrefix(payload, []byte("CHUNK:")):
		r.handleChunk(payload[len("CHUNK:"):])
	case bytes.Equal(payload, []byte("END")):
		r.handleEnd()
	default:
		r.log.WithField("prefix", previewOf(payload)).Warn("unrecognized chunk message")
	}
	return true
}

// handleStart opens a fresh destination, superseding any partial upload.
func (r *Receiver) handleStart(args []byte) {
	fields := bytes.SplitN(args, []byte(":"), 2)
	size, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil || size <= 0 {
		r.log.WithField("size", string(fields[0])).Warn("invalid upload size")
		return
	}
	id := ""
	if len(fields) == 2 {
		id = string(fields[1])
	}

	if r.st.status != StatusIdle {
		r.log.WithField("file", r.st.filename).Warn("upload superseded by new START")
		r.abortLocked()
	}

	if size > r.store.FreeSpace()+r.store.FileSize(uploadFilename) {
		r.log.WithField("size", size).Warn("upload rejected: insufficient space")
		r.pub.Publish(config.TopicAudioResult, []byte("UPLOAD_FAILED:NO_SPACE"), false)
		return
	}

	dst, err := r.store.OpenForWrite(uploadFilename)
	if err != nil {
		r.log.WithError(err).Error("failed to open upload destination")
		r.pub.Publish(config.TopicAudioResult, []byte("UPLOAD_FAILED:OPEN"), false)
		return
	}

	r.dst = dst
	r.unflushed = 0
	r.st = state{
		filename:     uploadFilename,
		expectedSize: size,
		lastActivity: time.Now(),
		status:       StatusReceiving,
	}

	r.log.WithFields(logrus.Fields{
		"file": uploadFilename,
		"size": size,
		"id":   id,
	}).Info("upload started")
}

// handleChunk writes one chunk at the current offset and acknowledges it.
// The header is colon-delimited ASCII; the payload after the second colon
// is binary and written verbatim.
func (r *Receiver) handleChunk(args []byte) {
	if r.st.status != StatusReceiving {
		r.log.Warn("chunk received while idle")
		return
	}

	c1 := bytes.IndexByte(args, ':')
	if c1 < 0 {
		r.log.Warn("chunk header missing index delimiter")
		return
	}
	c2 := bytes.IndexByte(args[c1+1:], ':')
	if c2 < 0 {
		r.log.Warn("chunk header missing total delimiter")
		return
	}
	c2 += c1 + 1

	index, err := strconv.Atoi(string(args[:c1]))
	if err != nil {
		r.log.WithField("index", string(args[:c1])).Warn("invalid chunk index")
		return
	}
	raw := args[c2+1:]

	if r.st.receivedSize+int64(len(raw)) > r.st.expectedSize {
		r.log.WithFields(logrus.Fields{
			"index":    index,
			"received": r.st.receivedSize,
			"expected": r.st.expectedSize,
		}).Warn("chunk overflows announced size")
		return
	}

	n, err := r.dst.Write(raw)
	if err != nil {
		r.log.WithError(err).Error("chunk write failed")
		r.abortLocked()
		r.pub.Publish(config.TopicAudioResult, []byte("UPLOAD_FAILED:WRITE"), false)
		return
	}

	r.st.receivedSize += int64(n)
	r.st.lastActivity = time.Now()
	r.unflushed += n
	if r.unflushed >= flushInterval {
		if err := r.dst.Sync(); err != nil {
			r.log.WithError(err).Warn("flush failed")
		}
		r.unflushed = 0
	}

	r.pub.Publish(config.TopicAudioAck, []byte(fmt.Sprintf("ACK:%d", index)), false)
}

// handleEnd finalizes the upload. A size mismatch is logged but the file
// is kept; a second END with no upload in flight is a no-op.
func (r *Receiver) handleEnd() {
	if r.st.status == StatusIdle {
		return
	}
	r.st.status = StatusFinalizing

	if r.st.receivedSize != r.st.expectedSize {
		r.log.WithFields(logrus.Fields{
			"received": r.st.receivedSize,
			"expected": r.st.expectedSize,
		}).Warn("upload size mismatch at END")
	}

	var failed bool
	if err := r.dst.Sync(); err != nil {
		r.log.WithError(err).Error("final flush failed")
		failed = true
	}
	if err := r.dst.Close(); err != nil {
		r.log.WithError(err).Error("close failed")
		failed = true
	}
	r.dst = nil

	if failed {
		r.pub.Publish(config.TopicAudioResult, []byte("UPLOAD_FAILED:FINALIZE"), false)
	} else {
		r.log.WithFields(logrus.Fields{
			"file":  r.st.filename,
			"bytes": r.st.receivedSize,
		}).Info("upload complete")
		r.pub.Publish(config.TopicAudioResult, []byte("UPLOAD_COMPLETE"), false)
	}

	r.st = state{}
}

// CheckTimeout aborts a stalled upload. Driven by the watchdog task.
func (r *Receiver) CheckTimeout(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.st.status != StatusReceiving {
		return
	}
	if now.Sub(r.st.lastActivity) < inactivityTimeout {
		return
	}

	r.log.WithFields(logrus.Fields{
		"file":     r.st.filename,
		"received": r.st.receivedSize,
	}).Warn("upload timed out")
	r.abortLocked()
	r.pub.Publish(config.TopicAudioResult, []byte("UPLOAD_TIMEOUT"), false)
}

// abortLocked tears down the in-flight upload and removes the partial
// file. Caller holds the mutex.
func (r *Receiver) abortLocked() {
	if r.dst != nil {
		_ = r.dst.Close()
		r.dst = nil
	}
	if r.st.filename != "" {
		if err := r.store.Remove(r.st.filename); err != nil {
			r.log.WithError(err).Warn("failed to remove partial upload")
		}
	}
	r.st = state{}
	r.unflushed = 0
}

// previewOf trims a payload for log output.
func previewOf(payload []byte) string {
	const max = 16
	if len(payload) <= max {
		return string(payload)
	}
	return string(payload[:max]) + "..."
}
