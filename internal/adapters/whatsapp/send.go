package whatsapp

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"wagate/internal/transport"
)

// legacyUserServer is the address suffix used by browser-based WhatsApp
// clients ("628xx@c.us"). Accepted for compatibility and mapped onto the
// canonical server.
const legacyUserServer = "c.us"

// parseAddr turns an operator-supplied recipient into a JID. Bare digits
// become a user JID; full JIDs pass through.
func parseAddr(to string) (types.JID, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return types.JID{}, fmt.Errorf("whatsapp: empty recipient")
	}
	if !strings.ContainsRune(to, '@') {
		return types.NewJID(strings.TrimPrefix(to, "+"), types.DefaultUserServer), nil
	}
	jid, err := types.ParseJID(to)
	if err != nil {
		return types.JID{}, fmt.Errorf("whatsapp: bad recipient %q: %w", to, err)
	}
	if jid.Server == legacyUserServer {
		jid.Server = types.DefaultUserServer
	}
	return jid, nil
}

func (a *Adapter) SendText(ctx context.Context, to, text string) error {
	client := a.currentClient()
	if client == nil {
		return ErrNotInitialized
	}
	jid, err := parseAddr(to)
	if err != nil {
		return err
	}
	msg := &waE2E.Message{Conversation: proto.String(text)}
	if _, err := client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("whatsapp: send to %s: %w", jid, err)
	}
	return nil
}

func (a *Adapter) SendMedia(ctx context.Context, to string, media transport.Media, caption string) error {
	client := a.currentClient()
	if client == nil {
		return ErrNotInitialized
	}
	jid, err := parseAddr(to)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(media.Path)
	if err != nil {
		return fmt.Errorf("whatsapp: read staged file: %w", err)
	}

	var msg *waE2E.Message
	if strings.HasPrefix(media.MimeType, "image/") {
		up, err := client.Upload(ctx, data, whatsmeow.MediaImage)
		if err != nil {
			return fmt.Errorf("whatsapp: upload: %w", err)
		}
		msg = &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	} else {
		up, err := client.Upload(ctx, data, whatsmeow.MediaDocument)
		if err != nil {
			return fmt.Errorf("whatsapp: upload: %w", err)
		}
		msg = &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
			Caption:       proto.String(caption),
			FileName:      proto.String(media.FileName),
			Mimetype:      proto.String(media.MimeType),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}}
	}

	if _, err := client.SendMessage(ctx, jid, msg); err != nil {
		return fmt.Errorf("whatsapp: send media to %s: %w", jid, err)
	}
	return nil
}

// Contacts returns the device's address book, one entry per user JID,
// ordered by number for a stable listing.
func (a *Adapter) Contacts(ctx context.Context) ([]transport.Contact, error) {
	client := a.currentClient()
	if client == nil {
		return nil, ErrNotInitialized
	}
	all, err := client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: contacts: %w", err)
	}

	out := make([]transport.Contact, 0, len(all))
	for jid, info := range all {
		if jid.Server != types.DefaultUserServer {
			continue
		}
		out = append(out, transport.Contact{
			ID:     jid.String(),
			Name:   contactName(info),
			Number: jid.User,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func contactName(info types.ContactInfo) string {
	switch {
	case info.FullName != "":
		return info.FullName
	case info.FirstName != "":
		return info.FirstName
	case info.PushName != "":
		return info.PushName
	case info.BusinessName != "":
		return info.BusinessName
	default:
		return ""
	}
}
