// Package whatsapp links LeadPipe to a WhatsApp account as a companion
// device through whatsmeow, so messages can go out from a real number.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/BTreeMap/LeadPipe/internal/store"
)

const (
	// DefaultSQLiteFile is the device database created in the state directory.
	DefaultSQLiteFile = "whatsmeow.db"
	// DefaultLoginTimeout bounds how long NewClient waits for the device to be linked.
	DefaultLoginTimeout = 3 * time.Minute
)

var (
	ErrNotConnected = errors.New("whatsapp client is not connected")
	ErrLoginTimeout = errors.New("whatsapp device was not linked in time")
)

// Sender sends a text message to a canonical phone number (digits only).
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Inbound is a text message received on the linked device.
type Inbound struct {
	From string // digits of the sender's phone number
	Body string
	At   time.Time
}

// Opts configures the client.
type Opts struct {
	DBDSN        string        // device database; empty uses SQLite in StateDir
	StateDir     string        // directory for the default SQLite database
	QRPath       string        // write the login QR code here instead of stdout
	NumericCode  bool          // print the raw pairing code instead of a QR code
	LoginTimeout time.Duration // defaults to DefaultLoginTimeout
}

// Option configures Opts.
type Option func(*Opts)

// WithDBDSN sets the device database connection string.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) { o.DBDSN = dsn }
}

// WithStateDir places the default device database under dir.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// WithQRCodeOutput writes the login QR code to path.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericCode prints the pairing code as text.
func WithNumericCode() Option {
	return func(o *Opts) { o.NumericCode = true }
}

// WithLoginTimeout bounds the linking flow.
func WithLoginTimeout(d time.Duration) Option {
	return func(o *Opts) { o.LoginTimeout = d }
}

func newOpts(opts []Option) Opts {
	cfg := Opts{LoginTimeout: DefaultLoginTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Client is a connected linked device.
type Client struct {
	wa *whatsmeow.Client
}

// Compile-time check that Client implements Sender.
var _ Sender = (*Client)(nil)

// resolveDSN picks the device database and its driver. The default is a
// SQLite file in the state directory with foreign keys enabled.
func resolveDSN(cfg Opts) (driver, dsn string) {
	dsn = cfg.DBDSN
	if dsn == "" {
		dsn = "file:" + filepath.Join(cfg.StateDir, DefaultSQLiteFile) + "?_foreign_keys=on"
	}
	if store.DetectDSNType(dsn) == "postgres" {
		return "postgres", dsn
	}
	if !strings.Contains(dsn, "foreign_keys") {
		slog.Warn("whatsapp: SQLite device database without foreign keys; append ?_foreign_keys=on", "dsn", dsn)
	}
	return "sqlite3", dsn
}

// NewClient opens the device database and connects. A device that is not
// linked yet goes through the QR login first, which blocks until the phone
// scans the code or the login timeout passes.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := newOpts(opts)
	slog.Debug("whatsapp.NewClient", "db_dsn_set", cfg.DBDSN != "", "qr_path_set", cfg.QRPath != "", "numeric_code", cfg.NumericCode)

	device, err := openDevice(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{wa: whatsmeow.NewClient(device, waLog.Stdout("Client", "INFO", true))}

	if c.wa.Store.ID == nil {
		if err := c.link(ctx, cfg); err != nil {
			c.wa.Disconnect()
			return nil, err
		}
	} else if err := c.wa.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to WhatsApp: %w", err)
	}
	slog.Info("whatsapp.NewClient: connected", "jid", c.wa.Store.ID)
	return c, nil
}

func openDevice(ctx context.Context, cfg Opts) (*wastore.Device, error) {
	driver, dsn := resolveDSN(cfg)
	container, err := sqlstore.New(ctx, driver, dsn, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		return nil, fmt.Errorf("failed to open WhatsApp device database: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load WhatsApp device: %w", err)
	}
	return device, nil
}

// link runs the pairing flow, printing each code as it rotates.
func (c *Client) link(ctx context.Context, cfg Opts) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.LoginTimeout)
	defer cancel()

	codes, err := c.wa.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to start WhatsApp login: %w", err)
	}
	if err := c.wa.Connect(); err != nil {
		return fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
	}
	out, closeOut, err := loginOutput(cfg.QRPath)
	if err != nil {
		return err
	}
	defer closeOut()

	slog.Info("whatsapp: device not linked, scan the code with WhatsApp > Linked devices")
	for evt := range codes {
		switch evt.Event {
		case whatsmeow.QRChannelEventCode:
			printCode(out, evt.Code, cfg.NumericCode)
		case whatsmeow.QRChannelSuccess.Event:
			slog.Info("whatsapp: device linked")
			return nil
		case whatsmeow.QRChannelTimeout.Event:
			return ErrLoginTimeout
		case whatsmeow.QRChannelEventError:
			return fmt.Errorf("whatsapp login failed: %w", evt.Error)
		default:
			slog.Debug("whatsapp: login event", "event", evt.Event)
		}
	}
	if ctx.Err() != nil {
		return ErrLoginTimeout
	}
	return nil
}

func loginOutput(path string) (io.Writer, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create QR file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func printCode(w io.Writer, code string, numeric bool) {
	if numeric {
		fmt.Fprintln(w, code)
		return
	}
	qrterminal.GenerateHalfBlock(code, qrterminal.L, w)
}

// SendMessage sends a text message to a canonical phone number.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if c.wa == nil || !c.wa.IsConnected() {
		return ErrNotConnected
	}
	if to == "" {
		return errors.New("recipient cannot be empty")
	}
	jid := types.NewJID(to, types.DefaultUserServer)
	resp, err := c.wa.SendMessage(ctx, jid, &waE2E.Message{Conversation: &body})
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	slog.Debug("whatsapp.SendMessage: sent", "to", to, "id", resp.ID)
	return nil
}

// OnMessage calls fn for every inbound text message. Media and messages sent
// from the linked account itself are skipped.
func (c *Client) OnMessage(fn func(Inbound)) {
	c.wa.AddEventHandler(func(evt any) {
		msg, ok := evt.(*events.Message)
		if !ok {
			return
		}
		if in, ok := inboundFrom(msg); ok {
			fn(in)
		}
	})
}

func inboundFrom(evt *events.Message) (Inbound, bool) {
	if evt.Message == nil || evt.Info.IsFromMe {
		return Inbound{}, false
	}
	var text string
	switch {
	case evt.Message.GetConversation() != "":
		text = evt.Message.GetConversation()
	case evt.Message.GetExtendedTextMessage().GetText() != "":
		text = evt.Message.GetExtendedTextMessage().GetText()
	default:
		return Inbound{}, false
	}
	return Inbound{From: evt.Info.Sender.User, Body: text, At: evt.Info.Timestamp}, true
}

// Disconnect closes the websocket connection.
func (c *Client) Disconnect() {
	if c.wa != nil {
		c.wa.Disconnect()
	}
}

// MockClient records messages instead of sending them.
type MockClient struct {
	mu   sync.Mutex
	Sent []string
	Err  error
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, to+": "+body)
	return nil
}
