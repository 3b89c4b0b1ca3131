package transport

import "context"

// EventKind identifies a lifecycle notification from the messaging client.
type EventKind string

const (
	// EventQR carries a fresh pairing token that must be scanned.
	EventQR EventKind = "qr"
	// EventReady means the session is connected and can send.
	EventReady EventKind = "ready"
	// EventAuthenticated means credentials were accepted. Some backends emit
	// both authenticated and ready for the same connection.
	EventAuthenticated EventKind = "authenticated"
	// EventDisconnected means the session dropped; Reason says why.
	EventDisconnected EventKind = "disconnected"
	// EventAuthFailure means the stored credentials were rejected.
	EventAuthFailure EventKind = "auth_failure"
	// EventLoading reports connection progress; informational only.
	EventLoading EventKind = "loading"
)

// Event is a single lifecycle notification.
//
// Events are delivered in emission order on the channel passed to
// Client.Start. Consumers must keep up; the pump goroutine blocks rather
// than dropping lifecycle transitions.
type Event struct {
	Kind    EventKind
	Code    string // EventQR: the raw pairing token
	Reason  string // EventDisconnected / EventAuthFailure
	Percent int    // EventLoading
}

// Contact is one entry in the backend's address book.
type Contact struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
}

// Media references an attachment staged on local disk.
type Media struct {
	Path     string
	MimeType string
	FileName string
}

// Client is the connection capability: one authenticated session with the
// messaging backend. Implementations own their transport and credential
// store; callers drive them only through this interface.
//
// Initialize is asynchronous: it starts the connection attempt and returns.
// Progress and outcome arrive as Events on the channel given to Start.
type Client interface {
	// Start begins delivering lifecycle events on out. It returns once the
	// pump is running; the pump stops when ctx is cancelled.
	Start(ctx context.Context, out chan<- Event) error

	// Initialize opens (or re-opens) the connection to the backend.
	Initialize(ctx context.Context) error

	// SendText sends a text message to a single recipient address.
	SendText(ctx context.Context, to string, text string) error

	// SendMedia sends a staged attachment with a caption to one recipient.
	SendMedia(ctx context.Context, to string, media Media, caption string) error

	// Contacts enumerates the backend's address book.
	Contacts(ctx context.Context) ([]Contact, error)

	// Self returns the paired account's own address, if known.
	Self(ctx context.Context) (string, error)

	// Logout invalidates the session server-side and disconnects.
	Logout(ctx context.Context) error

	// Destroy tears the connection down without touching credentials.
	Destroy(ctx context.Context) error
}
