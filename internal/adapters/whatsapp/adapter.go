// Package whatsapp adapts go.mau.fi/whatsmeow to the transport.Client
// interface. It owns the device credential database (SQLite inside the
// gateway's credential directory) and translates whatsmeow's event types
// into the gateway's lifecycle events.
package whatsapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"wagate/internal/transport"
	logx "wagate/pkg/logx"
)

const deviceDBFile = "device.db"

// ErrNotInitialized is returned by operations that need a live client
// before Initialize has been called (or after Destroy).
var ErrNotInitialized = errors.New("whatsapp: client not initialized")

type Config struct {
	// StoreDir holds the device credential database. Wiping it forces a
	// fresh pairing on the next Initialize.
	StoreDir string
	// DeviceName is shown in the phone's linked-devices list.
	DeviceName string
}

type Adapter struct {
	cfg Config
	log logx.Logger

	mu        sync.Mutex
	db        *sql.DB
	container *sqlstore.Container
	client    *whatsmeow.Client
	qrCancel  context.CancelFunc

	out    chan<- transport.Event
	runCtx context.Context
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.StoreDir) == "" {
		return nil, errors.New("whatsapp: store dir is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.DeviceName != "" {
		store.DeviceProps.Os = proto.String(cfg.DeviceName)
	}
	return &Adapter{cfg: cfg, log: log}, nil
}

// Start registers the event destination. The adapter has no pump loop of
// its own: whatsmeow invokes handlers on its socket goroutine and emit()
// forwards onto out, blocking until the consumer takes the event or
// ctx ends.
func (a *Adapter) Start(ctx context.Context, out chan<- transport.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.out != nil {
		return errors.New("whatsapp: already started")
	}
	a.out = out
	a.runCtx = ctx
	return nil
}

func (a *Adapter) emit(ev transport.Event) {
	a.mu.Lock()
	out := a.out
	ctx := a.runCtx
	a.mu.Unlock()
	if out == nil {
		return
	}
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

// Initialize opens the device store and connects. Already connected is a
// no-op, which makes reconnect idempotent.
func (a *Adapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil && a.client.IsConnected() {
		return nil
	}
	if a.client == nil {
		if err := a.openLocked(ctx); err != nil {
			return err
		}
	}
	return a.connectLocked()
}

func (a *Adapter) openLocked(ctx context.Context) error {
	// The dir may have been wiped by a session delete since the last open.
	if err := os.MkdirAll(a.cfg.StoreDir, 0o700); err != nil {
		return fmt.Errorf("whatsapp: store dir: %w", err)
	}
	dsn := "file:" + filepath.Join(a.cfg.StoreDir, deviceDBFile) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("whatsapp: open device store: %w", err)
	}
	// modernc's driver serializes writes through one connection.
	db.SetMaxOpenConns(1)

	container := sqlstore.NewWithDB(db, "sqlite3", newWALog(a.log.With(logx.String("comp", "wa-store"))))
	if err := container.Upgrade(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("whatsapp: migrate device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("whatsapp: load device: %w", err)
	}

	client := whatsmeow.NewClient(device, newWALog(a.log.With(logx.String("comp", "wa-client"))))
	client.AddEventHandler(a.handleEvent)

	a.db = db
	a.container = container
	a.client = client
	return nil
}

func (a *Adapter) connectLocked() error {
	client := a.client

	if client.Store.ID == nil {
		// No stored credentials: pairing flow. The QR channel must be
		// claimed before Connect. A pump from an earlier attempt has to
		// go first; whatsmeow hands out one channel per client.
		a.cancelQRLocked()
		qrCtx, cancel := context.WithCancel(a.runCtxOrBackground())
		qrChan, err := client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("whatsapp: qr channel: %w", err)
		}
		a.qrCancel = cancel
		go a.pumpQR(qrChan)
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("whatsapp: connect: %w", err)
	}
	return nil
}

// cancelQRLocked stops the current QR pump, if any. Callers hold a.mu.
func (a *Adapter) cancelQRLocked() {
	if a.qrCancel != nil {
		a.qrCancel()
		a.qrCancel = nil
	}
}

func (a *Adapter) runCtxOrBackground() context.Context {
	if a.runCtx != nil {
		return a.runCtx
	}
	return context.Background()
}

// Logout invalidates the session on the server and drops the stored
// credentials' pairing.
func (a *Adapter) Logout(ctx context.Context) error {
	client := a.currentClient()
	if client == nil {
		return ErrNotInitialized
	}
	if err := client.Logout(ctx); err != nil {
		return fmt.Errorf("whatsapp: logout: %w", err)
	}
	return nil
}

// Destroy disconnects and releases the device store. Credentials on disk
// survive; a later Initialize reopens them.
func (a *Adapter) Destroy(ctx context.Context) error {
	a.mu.Lock()
	client := a.client
	db := a.db
	a.cancelQRLocked()
	a.client = nil
	a.container = nil
	a.db = nil
	a.mu.Unlock()

	if client != nil {
		client.RemoveEventHandlers()
		client.Disconnect()
	}
	if db != nil {
		if err := db.Close(); err != nil {
			return fmt.Errorf("whatsapp: close device store: %w", err)
		}
	}
	return nil
}

// Self returns the paired account's number.
func (a *Adapter) Self(ctx context.Context) (string, error) {
	client := a.currentClient()
	if client == nil {
		return "", ErrNotInitialized
	}
	id := client.Store.ID
	if id == nil {
		return "", errors.New("whatsapp: not paired")
	}
	return id.User, nil
}

func (a *Adapter) currentClient() *whatsmeow.Client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.client
}
