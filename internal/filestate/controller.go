// Copyright (C) 2026 The Landrop Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package filestate

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/landrop/landrop/internal/beacon"
	"github.com/landrop/landrop/internal/config"
	"github.com/landrop/landrop/internal/discovery"
	"github.com/landrop/landrop/internal/metastore"
	"github.com/landrop/landrop/internal/metrics"
	"github.com/landrop/landrop/internal/transfer"
	"github.com/landrop/landrop/lib/events"
	"github.com/landrop/landrop/lib/rnd"
	"github.com/landrop/landrop/lib/syncutil"
)

// Service is the subset of suture.Service this package depends on,
// declared locally so internal/filestate doesn't need to import
// thejerf/suture itself; cmd/landropd adds the concrete values this
// interface is satisfied by directly to its supervisor.
type Service interface {
	Serve(ctx context.Context) error
	String() string
}

// Controller owns the file-state map and brokers every provider and
// consumer registration against it. It is the only mutator of file
// status and current size/digest.
type Controller struct {
	cfg        config.Config
	storageDir string
	store      *metastore.Store
	pool       *metastore.Pool
	discovery  *discovery.Engine
	transfer   *transfer.Server
	uSock      *beacon.Socket
	bSock      *beacon.Socket
	evt        *events.Logger

	mut     syncutil.Mutex
	files   map[string]*FileState
	running atomic.Bool
}

// New builds a Controller and its sockets, discovery engine, and
// transfer server, but starts none of them; call Services() for the
// suture.Service list in startup order, and Bootstrap() once they're
// all added.
func New(cfg config.Config, storageDir string, evt *events.Logger) (*Controller, error) {
	store, err := metastore.New(storageDir)
	if err != nil {
		return nil, fmt.Errorf("filestate: %w", err)
	}

	uSock, err := beacon.NewUnicast(cfg.BindIP, cfg.UDPPort, beacon.Options{OmitSelf: true})
	if err != nil {
		return nil, fmt.Errorf("filestate: unicast socket: %w", err)
	}
	bSock, err := beacon.NewBroadcast(cfg.BindIP, cfg.BroadcastPort, cfg.BroadcastIface,
		cfg.BroadcastDropChance, cfg.BroadcastDropInRow, beacon.Options{OmitSelf: true})
	if err != nil {
		return nil, fmt.Errorf("filestate: broadcast socket: %w", err)
	}

	c := &Controller{
		cfg:        cfg,
		storageDir: storageDir,
		store:      store,
		pool:       metastore.NewPool(4),
		uSock:      uSock,
		bSock:      bSock,
		evt:        evt,
		mut:        syncutil.NewMutex(),
		files:      make(map[string]*FileState),
	}
	c.discovery = discovery.New(cfg, uSock, bSock, c, evt)
	c.transfer = transfer.NewServer(fmt.Sprintf("%s:%d", cfg.BindIP, cfg.TCPPort), c)
	return c, nil
}

// LoadPersisted asks the metadata store to load every tracked file and
// seeds the in-memory FileState map from it. Records whose content no
// longer verifies come back already downgraded to INVALID.
func (c *Controller) LoadPersisted() error {
	recs, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("filestate: load metadata: %w", err)
	}
	c.mut.Lock()
	defer c.mut.Unlock()
	for _, rec := range recs {
		c.files[rec.Name] = &FileState{Meta: rec}
	}
	return nil
}

// Services returns the suture.Service values to add to a supervisor,
// in startup order: sockets, discovery's advertise loop, the transfer
// server, then the file monitor.
func (c *Controller) Services() []Service {
	return []Service{
		c.uSock,
		c.bSock,
		c.discovery.AdvertiseService(),
		c.transfer,
		&monitorLoop{c: c},
	}
}

// Bootstrap broadcasts the node's initial HELLO; call it once every
// service above has been added to its supervisor.
func (c *Controller) Bootstrap() error {
	c.running.Store(true)
	return c.discovery.Bootstrap()
}

// IsRunning reports whether Bootstrap has run and Stop has not yet
// been called.
func (c *Controller) IsRunning() bool {
	return c.running.Load()
}

// Stop asks every attached provider and consumer to end its stream at
// the next chunk boundary and shuts down the metadata worker pool.
// Stopping the services themselves (closing sockets, the transfer
// listener) is the supervisor's job once its context is cancelled.
func (c *Controller) Stop() {
	c.running.Store(false)

	c.mut.Lock()
	for _, fs := range c.files {
		if fs.provider != nil {
			fs.provider.stopped.Store(true)
		}
		for _, cons := range fs.consumers {
			cons.stopped.Store(true)
		}
	}
	c.mut.Unlock()

	c.pool.Stop()
}

// KnownPeers delegates to the discovery engine.
func (c *Controller) KnownPeers() []discovery.Peer {
	return c.discovery.KnownPeers()
}

// PeerCount and ActiveSearchCount satisfy internal/metrics.Source by
// delegating to the discovery engine's own accessors.
func (c *Controller) PeerCount() int {
	return c.discovery.PeerCount()
}

func (c *Controller) ActiveSearchCount() int {
	return c.discovery.ActiveSearchCount()
}

// SearchFile delegates to the discovery engine's search protocol.
func (c *Controller) SearchFile(ctx context.Context, name, digest string) (map[string][]discovery.FoundResponse, error) {
	return c.discovery.Search(ctx, name, digest)
}

// PeerByIP delegates to the discovery engine, used by callers that
// need a peer's registered transfer port.
func (c *Controller) PeerByIP(ip string) (discovery.Peer, bool) {
	return c.discovery.PeerByIP(ip)
}

// FileStatusCounts satisfies internal/metrics.Source: a count of
// tracked files per status, for the files gauge vector.
func (c *Controller) FileStatusCounts() map[string]int {
	c.mut.Lock()
	defer c.mut.Unlock()
	counts := map[string]int{
		string(StatusReady):       0,
		string(StatusDownloading): 0,
		string(StatusInvalid):     0,
	}
	for _, fs := range c.files {
		counts[string(fs.Meta.Status)]++
	}
	return counts
}

// GetFile returns the current metadata for name.
func (c *Controller) GetFile(name string) (FileMetadata, error) {
	if len(name) > config.MaxNameLength {
		return FileMetadata{}, metastore.ErrNameTooLong
	}
	c.mut.Lock()
	defer c.mut.Unlock()
	fs, ok := c.files[name]
	if !ok {
		return FileMetadata{}, metastore.ErrNotFound
	}
	return fs.Meta, nil
}

// AddFile registers a locally complete file as READY and shareable.
func (c *Controller) AddFile(path string) (FileMetadata, error) {
	var rec FileMetadata
	err := c.pool.SubmitWait(func() error {
		r, err := c.store.AddFile(path)
		rec = r
		return err
	})
	if err != nil {
		return FileMetadata{}, err
	}

	c.mut.Lock()
	c.files[rec.Name] = &FileState{Meta: rec}
	c.mut.Unlock()

	if c.evt != nil {
		c.evt.Log(events.FileStateChanged, rec.Name)
	}
	return rec, nil
}

// RemoveFile drops name from the state map and its metadata record.
// Adding then removing a file returns the state map to its prior key
// set.
func (c *Controller) RemoveFile(name string) error {
	c.mut.Lock()
	delete(c.files, name)
	c.mut.Unlock()
	return c.store.RemoveFile(name)
}

// ScheduleDownload registers a DOWNLOADING placeholder for name and
// starts the download task in the background.
func (c *Controller) ScheduleDownload(name, digest string, size uint64, ip string, tcpPort int) error {
	c.mut.Lock()
	if _, exists := c.files[name]; exists {
		c.mut.Unlock()
		return metastore.ErrDuplicateFile
	}
	c.mut.Unlock()

	destPath := filepath.Join(c.storageDir, name)
	var rec FileMetadata
	err := c.pool.SubmitWait(func() error {
		r, err := c.store.InitMeta(name, destPath, digest, size)
		rec = r
		return err
	})
	if err != nil {
		return err
	}

	c.mut.Lock()
	c.files[name] = &FileState{Meta: rec}
	c.mut.Unlock()

	go c.runDownload(name, ip, tcpPort)
	return nil
}

// State returns a read-only projection of every tracked file.
func (c *Controller) State() map[string]View {
	c.mut.Lock()
	defer c.mut.Unlock()
	out := make(map[string]View, len(c.files))
	for name, fs := range c.files {
		out[name] = fs.view()
	}
	return out
}

// --- internal/discovery.FileLookup ---

func (c *Controller) LookupFile(name string) (digest string, size uint64, ok bool) {
	c.mut.Lock()
	defer c.mut.Unlock()
	fs, exists := c.files[name]
	if !exists || !fs.Meta.CanShare() {
		return "", 0, false
	}
	return fs.Meta.Digest, fs.Meta.Size, true
}

// --- internal/transfer.FileSource ---

func (c *Controller) ResolveFile(name string) (path string, size uint64, digest string, ok bool) {
	c.mut.Lock()
	defer c.mut.Unlock()
	fs, exists := c.files[name]
	if !exists || !fs.Meta.CanShare() {
		return "", 0, "", false
	}
	return fs.Meta.Path, fs.Meta.Size, fs.Meta.Digest, true
}

func (c *Controller) RegisterConsumer(name, peerIP string) (transfer.ConsumerHandle, bool) {
	c.mut.Lock()
	defer c.mut.Unlock()
	fs, exists := c.files[name]
	if !exists || !fs.Meta.CanShare() {
		return nil, false
	}
	if fs.consumers == nil {
		fs.consumers = make(map[string]*consumerHandle)
	}
	h := &consumerHandle{name: name, peerIP: peerIP, c: c}
	fs.consumers[peerIP] = h
	if c.evt != nil {
		c.evt.Log(events.TransferStarted, name)
	}
	return h, true
}

// --- internal/transfer.ProviderController ---

func (c *Controller) RegisterProvider(name string) (transfer.ProviderHandle, bool) {
	c.mut.Lock()
	defer c.mut.Unlock()
	fs, exists := c.files[name]
	if !exists || fs.provider != nil {
		return nil, false
	}
	h := &providerHandle{name: name, c: c}
	fs.provider = h
	return h, true
}

func (c *Controller) ExpectedDigest(name string) string {
	c.mut.Lock()
	defer c.mut.Unlock()
	if fs, ok := c.files[name]; ok {
		return fs.Meta.Digest
	}
	return ""
}

// runDownload drives one outgoing download to completion, including
// the success-and-failure handling that belongs to the controller
// rather than the transfer engine: recompute the stat, transition to
// READY or INVALID, and evict the remote peer on transport failure.
func (c *Controller) runDownload(name, ip string, tcpPort int) {
	c.mut.Lock()
	fs, ok := c.files[name]
	c.mut.Unlock()
	if !ok {
		return
	}

	if c.evt != nil {
		c.evt.Log(events.TransferStarted, name)
	}

	err := transfer.Download(c, name, fs.Meta.Path, ip, tcpPort)
	if err != nil {
		l.Warnf("filestate: download of %q from %s failed: %v", name, ip, err)
		c.discovery.EvictPeer(ip)
		if c.evt != nil {
			c.evt.Log(events.TransferFailed, name)
		}
		metrics.TransferCompleted("failed")
		return
	}

	var rec FileMetadata
	statErr := c.pool.SubmitWait(func() error {
		r, err := c.store.UpdateStat(name)
		rec = r
		return err
	})
	if statErr != nil {
		l.Warnf("filestate: failed recomputing stat for %q: %v", name, statErr)
		return
	}

	if rec.IsValid() {
		rec, statErr = c.changeState(name, StatusReady)
		if statErr != nil {
			l.Warnf("filestate: failed marking %q READY: %v", name, statErr)
			return
		}
		if c.evt != nil {
			c.evt.Log(events.TransferCompleted, name)
		}
		metrics.TransferCompleted("success")
	} else {
		rec, statErr = c.changeState(name, StatusInvalid)
		if statErr != nil {
			l.Warnf("filestate: failed marking %q INVALID: %v", name, statErr)
			return
		}
		l.Warnf("filestate: %v: %q", transfer.ErrInvalidDownload, name)
		if c.evt != nil {
			c.evt.Log(events.TransferFailed, name)
		}
		metrics.TransferCompleted("invalid")
	}

	c.mut.Lock()
	if fs, ok := c.files[name]; ok {
		fs.Meta = rec
	}
	c.mut.Unlock()
}

func (c *Controller) changeState(name string, status FileStatus) (FileMetadata, error) {
	var rec FileMetadata
	err := c.pool.SubmitWait(func() error {
		r, err := c.store.ChangeState(name, status)
		rec = r
		return err
	})
	return rec, err
}

func (c *Controller) markInvalid(name string) {
	rec, err := c.changeState(name, StatusInvalid)
	if err != nil {
		l.Warnf("filestate: failed marking %q INVALID: %v", name, err)
		return
	}
	c.mut.Lock()
	if fs, ok := c.files[name]; ok {
		fs.Meta = rec
	}
	c.mut.Unlock()
	if c.evt != nil {
		c.evt.Log(events.FileStateChanged, name)
	}
}

// retryDownload searches for the file, and if the expected digest
// turns up, starts a download from a random responder. Called by the
// monitor loop for DOWNLOADING files with no attached provider.
func (c *Controller) retryDownload(name string) {
	c.mut.Lock()
	fs, ok := c.files[name]
	c.mut.Unlock()
	if !ok {
		return
	}
	digest := fs.Meta.Digest

	ctx := context.Background()
	results, err := c.discovery.Search(ctx, name, digest)
	if err != nil {
		if debug {
			l.Debugf("filestate: retry search for %q failed: %v", name, err)
		}
		return
	}

	responders, found := results[digest]
	if !found || len(responders) == 0 {
		return
	}
	chosen := rnd.Pick(responders)

	peer, ok := c.discovery.PeerByIP(chosen.ProviderIP)
	if !ok {
		return
	}
	go c.runDownload(name, peer.IP, int(peer.TCPPort))
}
