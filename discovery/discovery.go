// Package discovery turns SPI device nodes appearing and disappearing into probe and remove
// events for a dynamic binding.
package discovery

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/spibridge/components/spibridge/binding"
	"go.viam.com/spibridge/components/spibridge/buses"
	"go.viam.com/spibridge/logging"
)

// A Prober receives discovery events.
type Prober interface {
	Probe(ctx context.Context, info binding.PeerInfo) error
	Remove(ctx context.Context, addr buses.Address) error
}

// Watcher watches a device directory for the node of one SPI address.
type Watcher struct {
	dir    string
	addr   buses.Address
	prober Prober
	logger logging.Logger

	watcher                 *fsnotify.Watcher
	cancelCtx               context.Context
	cancelFunc              func()
	activeBackgroundWorkers sync.WaitGroup
}

// NewWatcher starts watching dir for spidev<bus>.<cs> of addr. If the node is already present the
// prober is probed before NewWatcher returns.
func NewWatcher(ctx context.Context, dir string, addr buses.Address, prober Prober, logger logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "cannot watch %s", dir), fsw.Close())
	}

	cancelCtx, cancelFunc := context.WithCancel(context.Background())
	w := &Watcher{
		dir:        dir,
		addr:       addr,
		prober:     prober,
		logger:     logger,
		watcher:    fsw,
		cancelCtx:  cancelCtx,
		cancelFunc: cancelFunc,
	}

	if _, err := os.Stat(filepath.Join(dir, addr.DevName())); err == nil {
		w.probe(ctx)
	}

	w.activeBackgroundWorkers.Add(1)
	utils.ManagedGo(w.run, w.activeBackgroundWorkers.Done)
	return w, nil
}

func (w *Watcher) probe(ctx context.Context) {
	info := binding.PeerInfo{Name: w.addr.DevName(), Aliases: []string{w.addr.String()}, Addr: w.addr}
	if err := w.prober.Probe(ctx, info); err != nil {
		w.logger.Warnw("probe failed", "addr", w.addr, "error", err)
	}
}

func (w *Watcher) remove(ctx context.Context) {
	if err := w.prober.Remove(ctx, w.addr); err != nil {
		w.logger.Warnw("remove failed", "addr", w.addr, "error", err)
	}
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.cancelCtx.Done():
			return
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("device directory watch error", "dir", w.dir, "error", err)
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			addr, ok := buses.ParseDevName(filepath.Base(event.Name))
			if !ok || addr != w.addr {
				continue
			}
			w.logger.Debugw("device node event", "name", event.Name, "op", event.Op.String())
			switch {
			case event.Has(fsnotify.Create):
				w.probe(w.cancelCtx)
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				w.remove(w.cancelCtx)
			}
		}
	}
}

// Close stops watching. Events after Close are not delivered.
func (w *Watcher) Close() error {
	w.cancelFunc()
	err := w.watcher.Close()
	w.activeBackgroundWorkers.Wait()
	return err
}
