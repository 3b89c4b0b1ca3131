package whatsapp

import (
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"

	"wagate/internal/transport"
	logx "wagate/pkg/logx"
)

// handleEvent translates whatsmeow's event types into lifecycle events.
// It runs on whatsmeow's dispatch goroutine; emit blocks until the
// session controller consumes the event, preserving emission order.
func (a *Adapter) handleEvent(raw interface{}) {
	switch evt := raw.(type) {
	case *events.Connected:
		a.emit(transport.Event{Kind: transport.EventReady})

	case *events.PairSuccess:
		a.emit(transport.Event{Kind: transport.EventAuthenticated})

	case *events.PairError:
		a.emit(transport.Event{Kind: transport.EventAuthFailure, Reason: evt.Error.Error()})

	case *events.LoggedOut:
		a.emit(transport.Event{Kind: transport.EventDisconnected, Reason: "logged out: " + evt.Reason.String()})

	case *events.StreamReplaced:
		a.emit(transport.Event{Kind: transport.EventDisconnected, Reason: "stream replaced by another client"})

	case *events.Disconnected:
		a.emit(transport.Event{Kind: transport.EventDisconnected, Reason: "connection closed"})

	case *events.ConnectFailure:
		if evt.Reason.IsLoggedOut() {
			a.emit(transport.Event{Kind: transport.EventAuthFailure, Reason: evt.Reason.String()})
			return
		}
		a.emit(transport.Event{Kind: transport.EventDisconnected, Reason: evt.Reason.String()})

	case *events.ClientOutdated:
		a.emit(transport.Event{Kind: transport.EventAuthFailure, Reason: "client version rejected by server"})

	case *events.TemporaryBan:
		a.emit(transport.Event{Kind: transport.EventAuthFailure, Reason: evt.String()})

	case *events.OfflineSyncPreview:
		a.emit(transport.Event{Kind: transport.EventLoading, Percent: 0})

	case *events.OfflineSyncCompleted:
		a.emit(transport.Event{Kind: transport.EventLoading, Percent: 100})
	}
}

// pumpQR forwards pairing codes from the QR channel. The channel closes
// after a successful pair, a timeout, or context cancellation.
func (a *Adapter) pumpQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			a.emit(transport.Event{Kind: transport.EventQR, Code: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			// PairSuccess arrives through handleEvent.
		case whatsmeow.QRChannelTimeout.Event:
			a.emit(transport.Event{Kind: transport.EventDisconnected, Reason: "pairing window expired"})
		case whatsmeow.QRChannelEventError:
			reason := "pairing failed"
			if item.Error != nil {
				reason = item.Error.Error()
			}
			a.emit(transport.Event{Kind: transport.EventAuthFailure, Reason: reason})
		default:
			a.log.Debug("unhandled qr channel item", logx.String("event", item.Event))
		}
	}
}
