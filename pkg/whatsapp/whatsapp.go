package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	qrCode "github.com/skip2/go-qrcode"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/tambongslade/pos-whatsapp-gateway/pkg/env"
	"github.com/tambongslade/pos-whatsapp-gateway/pkg/log"
)

// State is the connection lifecycle position. Transitions only happen inside
// the manager; callers observe it through Status.
type State string

const (
	StateDisconnected State = "disconnected"
	StatePairing      State = "pairing"
	StateConnected    State = "connected"
)

var (
	ErrQRNotAvailable  = errors.New("no pairing qr code is currently available")
	ErrAlreadyStarted  = errors.New("whatsapp manager already started")
	ErrNotStarted      = errors.New("whatsapp manager not started")
	ErrSessionNotReady = errors.New("whatsapp session has no stored credentials")
)

const qrChannelWaitTimeout = 2 * time.Minute

// Config holds the session manager settings, normally read from the
// environment once at startup.
type Config struct {
	SessionDir        string
	DatastoreDriver   string
	DatastoreDSN      string
	AdminJID          string
	CountryCode       string
	NationalNumberLen int

	MaxRetries        int
	RetryBaseInterval time.Duration

	EnableAdminForwarding bool
	EnableAutoResponder   bool
	ImageConvertWebP      bool
	ImageCompression      bool
	SendsPerSecond        float64
}

func ConfigFromEnv() Config {
	cfg := Config{
		SessionDir:        env.GetEnvStringOrDefault("WHATSAPP_SESSION_DIR", "./whatsapp_session"),
		DatastoreDriver:   env.GetEnvStringOrDefault("WHATSAPP_DATASTORE_TYPE", "sqlite3"),
		DatastoreDSN:      env.GetEnvStringOrDefault("WHATSAPP_DATASTORE_URI", ""),
		AdminJID:          env.GetEnvStringOrDefault("WHATSAPP_ADMIN_PHONE", ""),
		CountryCode:       env.GetEnvStringOrDefault("WHATSAPP_COUNTRY_CODE", "237"),
		NationalNumberLen: env.GetEnvIntOrDefault("WHATSAPP_NATIONAL_NUMBER_LENGTH", 9),

		MaxRetries:        env.GetEnvIntOrDefault("WHATSAPP_MAX_RECONNECT_RETRIES", 5),
		RetryBaseInterval: env.GetEnvDurationOrDefault("WHATSAPP_RECONNECT_BASE_INTERVAL", 3*time.Second),

		EnableAdminForwarding: env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_ADMIN_FORWARDING", false),
		EnableAutoResponder:   env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_AUTO_RESPONDER", false),
		ImageConvertWebP:      env.GetEnvBoolOrDefault("WHATSAPP_MEDIA_IMAGE_CONVERT_WEBP", false),
		ImageCompression:      env.GetEnvBoolOrDefault("WHATSAPP_MEDIA_IMAGE_COMPRESSION", false),
		SendsPerSecond:        env.GetEnvFloat64OrDefault("WHATSAPP_SENDS_PER_SECOND", 1),
	}
	if cfg.DatastoreDSN == "" {
		cfg.DatastoreDSN = "file:" + filepath.Join(cfg.SessionDir, "session.db") + "?_foreign_keys=on"
	}
	return cfg
}

// reconnectPolicy produces the delay before a given retry attempt. Delays
// grow linearly with the attempt number.
type reconnectPolicy struct {
	base       time.Duration
	maxRetries int
}

// Delay returns the wait before the attempt-th retry (1-based), or false when
// the attempt number exceeds the retry budget.
func (p reconnectPolicy) Delay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > p.maxRetries {
		return 0, false
	}
	return time.Duration(attempt) * p.base, true
}

// Responder produces replies for inbound customer messages.
type Responder interface {
	HandleIncomingMessage(ctx context.Context, messageText string, senderID string) (string, error)
}

// Status is the externally visible session snapshot.
type Status struct {
	State       State  `json:"state"`
	PushName    string `json:"push_name,omitempty"`
	JID         string `json:"jid,omitempty"`
	RetryCount  int    `json:"retry_count"`
	QRAvailable bool   `json:"qr_available"`
}

// Manager owns the single WhatsApp session: the whatsmeow client, the
// connection state machine, the pairing QR, the inbound message cache and the
// follow-up ledger.
type Manager struct {
	cfg       Config
	policy    reconnectPolicy
	cache     *messageCache
	followUps *FollowUpStore
	responder Responder

	sendGate *semaphore.Weighted
	limiter  *rate.Limiter

	// Seams over the whatsmeow client lifecycle, replaced in tests.
	dial        func(client *whatsmeow.Client) error
	wipe        func(ctx context.Context, client *whatsmeow.Client) error
	resetClient func() *whatsmeow.Client

	mu         sync.Mutex
	client     *whatsmeow.Client
	container  *sqlstore.Container
	state      State
	generation int
	retryCount int
	qrCode     string
	qrExpires  time.Time
	started    bool
}

func NewManager(cfg Config, responder Responder) *Manager {
	sends := cfg.SendsPerSecond
	if sends <= 0 {
		sends = 1
	}
	m := &Manager{
		cfg:       cfg,
		policy:    reconnectPolicy{base: cfg.RetryBaseInterval, maxRetries: cfg.MaxRetries},
		cache:     newMessageCache(messageCacheCap, messageCacheTTL, nil),
		followUps: NewFollowUpStore(nil),
		responder: responder,
		sendGate:  semaphore.NewWeighted(1),
		limiter:   rate.NewLimiter(rate.Limit(sends), 1),
		state:     StateDisconnected,
	}
	m.dial = func(client *whatsmeow.Client) error { return client.Connect() }
	m.wipe = m.wipeCredentials
	m.resetClient = m.newPairingClient
	return m
}

// FollowUps exposes the pending payment ledger.
func (m *Manager) FollowUps() *FollowUpStore {
	return m.followUps
}

// MessageCacheCleanup drops expired cached messages.
func (m *Manager) MessageCacheCleanup() int {
	return m.cache.Cleanup()
}

func (m *Manager) adminJID() types.JID {
	if strings.TrimSpace(m.cfg.AdminJID) == "" {
		return types.EmptyJID
	}
	jid, err := types.ParseJID(FormatPhone(m.cfg.AdminJID, m.cfg.CountryCode, m.cfg.NationalNumberLen))
	if err != nil {
		return types.EmptyJID
	}
	return jid
}

// Start opens the credential datastore and either reconnects the stored
// session or begins QR pairing. Only datastore failures are returned;
// connection failures feed the reconnect policy instead.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.mu.Unlock()

	if err := os.MkdirAll(m.cfg.SessionDir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	driver := normalizeDatastoreDriver(m.cfg.DatastoreDriver)
	container, err := sqlstore.New(ctx, driver, m.cfg.DatastoreDSN, nil)
	if err != nil {
		return fmt.Errorf("failed to open whatsapp datastore: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("failed to load device credentials: %w", err)
	}

	store.DeviceProps.Os = proto.String(runtime.GOOS)
	store.DeviceProps.PlatformType = waCompanionReg.DeviceProps_CHROME.Enum()
	store.DeviceProps.RequireFullSync = proto.Bool(false)

	client := whatsmeow.NewClient(device, nil)
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true
	client.AddEventHandler(m.handleEvent)

	m.mu.Lock()
	m.client = client
	m.container = container
	m.mu.Unlock()

	return m.connect(ctx)
}

func normalizeDatastoreDriver(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgresql", "postgres", "pgx":
		return "pgx"
	case "", "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return strings.ToLower(strings.TrimSpace(driver))
	}
}

// connect transitions into pairing or connected depending on whether stored
// credentials exist. Connection failures never escape: they are logged and
// handed to the reconnect policy, so a dead network at boot behaves exactly
// like a dropped connection at runtime.
func (m *Manager) connect(ctx context.Context) error {
	m.mu.Lock()
	client := m.client
	generation := m.generation
	m.mu.Unlock()

	if client == nil {
		return ErrNotStarted
	}

	if client.Store.ID == nil {
		m.beginPairing(ctx, client, generation)
		return nil
	}

	m.setState(StatePairing) // transient until events.Connected arrives
	if err := m.dial(client); err != nil {
		m.setState(StateDisconnected)
		log.SessionOp("connect").WithError(err).Error("Connection attempt failed")
		m.scheduleReconnect()
	}
	return nil
}

// beginPairing starts the QR pairing flow. Codes rotate on the channel; the
// latest one is kept for the HTTP surface until pairing succeeds or times out.
func (m *Manager) beginPairing(ctx context.Context, client *whatsmeow.Client, generation int) {
	qrCtx, cancel := context.WithTimeout(context.Background(), qrChannelWaitTimeout)

	qrChan, err := client.GetQRChannel(qrCtx)
	if err != nil {
		cancel()
		log.SessionOp("pairing").WithError(err).Error("Failed to open qr channel")
		m.scheduleReconnect()
		return
	}

	if err := m.dial(client); err != nil {
		cancel()
		m.setState(StateDisconnected)
		log.SessionOp("pairing").WithError(err).Error("Connection attempt failed during pairing")
		m.scheduleReconnect()
		return
	}

	m.setState(StatePairing)
	log.SessionOp("pairing").Info("Waiting for QR scan")

	go func() {
		defer cancel()
		for evt := range qrChan {
			if m.currentGeneration() != generation {
				return
			}
			switch evt.Event {
			case "code":
				m.mu.Lock()
				m.qrCode = evt.Code
				m.qrExpires = time.Now().Add(evt.Timeout)
				m.mu.Unlock()
				log.SessionOp("pairing").Info("New pairing QR code issued")
			case whatsmeow.QRChannelSuccess.Event:
				m.mu.Lock()
				m.qrCode = ""
				m.mu.Unlock()
				log.SessionOp("pairing").Info("QR scan successful, session paired")
				return
			case whatsmeow.QRChannelTimeout.Event:
				m.mu.Lock()
				m.qrCode = ""
				m.mu.Unlock()
				m.setState(StateDisconnected)
				log.SessionOp("pairing").Warn("QR pairing timed out")
				return
			default:
				if evt.Error != nil {
					log.SessionOp("pairing").WithError(evt.Error).Error("QR pairing failed")
				}
				m.mu.Lock()
				m.qrCode = ""
				m.mu.Unlock()
				m.setState(StateDisconnected)
				return
			}
		}
	}()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	if s == StateConnected {
		m.retryCount = 0
	}
	m.mu.Unlock()
}

func (m *Manager) currentGeneration() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

// handleEvent is the single whatsmeow event sink.
func (m *Manager) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		m.setState(StateConnected)
		m.mu.Lock()
		m.qrCode = ""
		m.mu.Unlock()
		log.SessionOp("connect").Info("Client connected")
		go m.FlushCredentials(context.Background())
	case *events.Disconnected:
		m.setState(StateDisconnected)
		log.SessionOp("connect").Warn("Client disconnected")
		m.scheduleReconnect()
	case *events.ConnectFailure:
		m.setState(StateDisconnected)
		log.SessionOp("connect").Error(fmt.Sprintf("Connection failure: reason=%s message=%s", e.Reason, e.Message))
		m.scheduleReconnect()
	case *events.StreamReplaced:
		m.setState(StateDisconnected)
		log.SessionOp("connect").Error("Stream replaced by another client, not reconnecting")
	case *events.LoggedOut:
		log.SessionOp("logout").Warn("Logged out remotely, wiping session and restarting pairing")
		go func() {
			if err := m.Logout(context.Background()); err != nil {
				log.SessionOp("logout").WithError(err).Error("Failed to reset session after remote logout")
			}
		}()
	case *events.Message:
		m.handleMessage(e)
	}
}

// scheduleReconnect arms a delayed reconnect attempt. The generation counter
// invalidates timers armed before a restart or logout, so a stale timer can
// never revive a session the operator tore down.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	m.retryCount++
	attempt := m.retryCount
	generation := m.generation
	m.mu.Unlock()

	delay, ok := m.policy.Delay(attempt)
	if !ok {
		log.SessionOp("reconnect").
			WithField("attempts", attempt-1).
			Error("Reconnect retries exhausted, session requires manual restart")
		return
	}

	log.SessionOp("reconnect").
		WithField("attempt", attempt).
		WithField("delay", delay.String()).
		Warn("Scheduling reconnect attempt")

	time.AfterFunc(delay, func() {
		if m.currentGeneration() != generation {
			return
		}
		if m.IsConnected() {
			return
		}
		// connect re-arms the policy itself when the attempt fails.
		if err := m.connect(context.Background()); err != nil {
			log.SessionOp("reconnect").WithError(err).Error("Reconnect attempt failed")
		}
	})
}

// Restart tears the connection down and reconnects with the stored
// credentials. Pending reconnect timers from the previous life are voided.
func (m *Manager) Restart(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}
	m.generation++
	m.retryCount = 0
	m.qrCode = ""
	client := m.client
	m.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
	m.setState(StateDisconnected)
	log.SessionOp("restart").Info("Session restart requested")
	return m.connect(ctx)
}

// Logout ends the session, wipes stored credentials and begins a fresh QR
// pairing. This is the only path that destroys credentials.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return ErrNotStarted
	}
	m.generation++
	m.retryCount = 0
	m.qrCode = ""
	client := m.client
	m.mu.Unlock()

	if client != nil {
		if err := m.wipe(ctx, client); err != nil {
			log.SessionOp("logout").WithError(err).Warn("Failed to delete stored device")
		}
	}
	m.setState(StateDisconnected)

	fresh := m.resetClient()
	m.mu.Lock()
	m.client = fresh
	m.mu.Unlock()

	log.SessionOp("logout").Info("Session wiped, starting fresh pairing")
	return m.connect(ctx)
}

// wipeCredentials ends the session server-side on a best-effort basis, then
// destroys the locally stored device. Local state is wiped even when the
// server-side logout fails.
func (m *Manager) wipeCredentials(ctx context.Context, client *whatsmeow.Client) error {
	if client.Store.ID != nil {
		logoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := client.Logout(logoutCtx); err != nil {
			log.SessionOp("logout").WithError(err).Warn("Server-side logout failed, wiping local state anyway")
		}
		cancel()
	}
	client.Disconnect()
	if client.Store.ID == nil {
		return nil
	}
	return client.Store.Delete(ctx)
}

// newPairingClient builds a client around a blank device so the next connect
// enters QR pairing.
func (m *Manager) newPairingClient() *whatsmeow.Client {
	m.mu.Lock()
	container := m.container
	m.mu.Unlock()

	fresh := whatsmeow.NewClient(container.NewDevice(), nil)
	fresh.EnableAutoReconnect = false
	fresh.AutoTrustIdentity = true
	fresh.AddEventHandler(m.handleEvent)
	return fresh
}

// Shutdown disconnects without touching stored credentials.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.generation++
	client := m.client
	m.mu.Unlock()

	if client != nil {
		m.FlushCredentials(context.Background())
		client.Disconnect()
	}
	m.setState(StateDisconnected)
	log.SessionOp("shutdown").Info("Session shut down")
}

// FlushCredentials persists the device state. Errors are logged and
// swallowed: a failed flush must never interrupt messaging, the next flush
// or shutdown retries anyway.
func (m *Manager) FlushCredentials(ctx context.Context) {
	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil || client.Store.ID == nil {
		return
	}
	if err := client.Store.Save(ctx); err != nil {
		log.SessionOp("flush").WithError(err).Warn("Failed to flush session credentials")
		return
	}
	log.SessionOp("flush").Debug("Session credentials flushed")
}

func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected && m.client != nil && m.client.IsConnected()
}

// Status reports the current session snapshot.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{
		State:       m.state,
		RetryCount:  m.retryCount,
		QRAvailable: m.qrCode != "" && time.Now().Before(m.qrExpires),
	}
	if m.client != nil && m.client.Store.ID != nil {
		status.JID = m.client.Store.ID.String()
		status.PushName = m.client.Store.PushName
	}
	return status
}

// QRCode returns the current pairing code as raw text.
func (m *Manager) QRCode() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.qrCode == "" || time.Now().After(m.qrExpires) {
		return "", ErrQRNotAvailable
	}
	return m.qrCode, nil
}

// QRCodeImage returns the current pairing code rendered as a PNG.
func (m *Manager) QRCodeImage() ([]byte, error) {
	code, err := m.QRCode()
	if err != nil {
		return nil, err
	}
	return qrCode.Encode(code, qrCode.Medium, 256)
}

// RemindNow sends an immediate out-of-schedule reminder for an order and
// advances its escalation on success.
func (m *Manager) RemindNow(ctx context.Context, orderID int64) (FollowUp, error) {
	entry, ok := m.followUps.Get(orderID)
	if !ok {
		return FollowUp{}, fmt.Errorf("no follow-up registered for order %d", orderID)
	}
	if err := m.sendReminder(ctx, entry); err != nil {
		return FollowUp{}, err
	}
	updated, _ := m.followUps.markReminded(orderID)
	return updated, nil
}

// TickFollowUps runs one scheduler pass over the follow-up ledger.
func (m *Manager) TickFollowUps(ctx context.Context) {
	m.followUps.Tick(ctx, m)
}
