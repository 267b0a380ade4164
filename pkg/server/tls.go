package server

import (
	"context"
	"crypto/tls"
	"errors"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// certReloader serves the current keypair to TLS handshakes and swaps it whenever the
// cert or key file changes on disk.
type certReloader struct {
	certPath string
	keyPath  string

	mu   sync.RWMutex
	cert *tls.Certificate
}

func newCertReloader(certPath, keyPath string) (*certReloader, error) {
	r := &certReloader{certPath: certPath, keyPath: keyPath}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *certReloader) reload() error {
	cert, err := tls.LoadX509KeyPair(r.certPath, r.keyPath)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()
	return nil
}

func (r *certReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.cert == nil {
		return nil, errors.New("no tls certificate loaded")
	}
	return r.cert, nil
}

func (r *certReloader) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: r.GetCertificate,
	}
}

// watch reloads on changes until ctx is cancelled. Parent directories are watched so
// atomic renames (mounted secrets) are seen too.
func (r *certReloader) watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dirs := map[string]struct{}{filepath.Dir(r.certPath): {}, filepath.Dir(r.keyPath): {}}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return err
		}
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !r.relevant(ev) {
					continue
				}
				if err := r.reload(); err != nil {
					zap.L().Warn("[TLS] reload failed, keeping previous certificate", zap.String("file", ev.Name), zap.Error(err))
					continue
				}
				zap.L().Info("[TLS] certificate reloaded", zap.String("file", ev.Name))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				zap.L().Error("[TLS] watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func (r *certReloader) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(ev.Name)
	if name == filepath.Clean(r.certPath) || name == filepath.Clean(r.keyPath) {
		return true
	}
	// kubernetes secret mounts swap a ..data symlink
	return filepath.Base(name) == "..data"
}
