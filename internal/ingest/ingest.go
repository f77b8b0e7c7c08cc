// Package ingest receives sampled log records from the sampling process over
// ZeroMQ and appends them to the datalog.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-zeromq/zmq4"
	log "github.com/sirupsen/logrus"

	"github.com/gridwatch/energy-monitor/internal/datalog"
	"github.com/gridwatch/energy-monitor/internal/protocol"
)

// Config holds the bridge configuration.
type Config struct {
	// EventURL is the SUB socket endpoint the sampler publishes on.
	EventURL string
	// RolloverKeep is how many seconds of records stay in the hot segment.
	RolloverKeep int64
}

// DefaultConfig returns default bridge configuration.
func DefaultConfig() Config {
	return Config{
		EventURL:     "ipc:///tmp/energy-monitor_samples",
		RolloverKeep: 24 * 3600,
	}
}

// Bridge subscribes to the sampler's record stream.
type Bridge struct {
	config Config
	store  *datalog.Store

	eventSock zmq4.Socket
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool

	lastRollover int64
}

// New creates a bridge writing into store.
func New(config Config, store *datalog.Store) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		config: config,
		store:  store,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start connects the SUB socket and starts the event loop.
func (b *Bridge) Start() error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("ingest bridge already running")
	}
	b.running = true
	b.mu.Unlock()

	b.eventSock = zmq4.NewSub(b.ctx)
	if err := b.eventSock.Dial(b.config.EventURL); err != nil {
		return fmt.Errorf("failed to connect event socket: %w", err)
	}
	if err := b.eventSock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	b.wg.Add(1)
	go b.eventLoop()

	log.Infof("ingest: bridge started: event=%s", b.config.EventURL)
	return nil
}

// Stop stops the bridge and closes the socket.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = false
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	if b.eventSock != nil {
		b.eventSock.Close()
	}
	log.Infof("ingest: bridge stopped")
	return nil
}

func (b *Bridge) eventLoop() {
	defer b.wg.Done()

	for {
		msg, err := b.eventSock.Recv()
		if err != nil {
			select {
			case <-b.ctx.Done():
				return
			default:
			}
			log.Warnf("ingest: receive failed: %v", err)
			continue
		}
		if err := b.handleFrame(msg.Bytes()); err != nil {
			log.Warnf("ingest: %v", err)
		}
	}
}

// handleFrame decodes one record frame, appends it, and rolls the hot
// segment over to history once per day.
func (b *Bridge) handleFrame(data []byte) error {
	frame, err := protocol.DecodeRecord(data)
	if err != nil {
		return fmt.Errorf("bad record frame: %w", err)
	}

	rec := datalog.FromFrame(frame)
	if err := b.store.Append(rec); err != nil {
		return fmt.Errorf("append record: %w", err)
	}

	if b.lastRollover == 0 {
		b.lastRollover = rec.UnixTime
	} else if rec.UnixTime-b.lastRollover >= 24*3600 {
		cutoff := rec.UnixTime - b.config.RolloverKeep
		moved, err := b.store.Rollover(cutoff)
		if err != nil {
			return fmt.Errorf("rollover: %w", err)
		}
		b.lastRollover = rec.UnixTime
		log.Infof("ingest: rolled %d records into history before %d", moved, cutoff)
	}
	return nil
}
