package whatsapp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/forPelevin/gomoji"
	"github.com/rivo/uniseg"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/tambongslade/pos-whatsapp-gateway/pkg/log"
)

// inboundKind is the closed set of inbound event categories. Every arriving
// message is decoded into exactly one of these at the boundary instead of
// field-probing throughout the handlers.
type inboundKind int

const (
	inboundText inboundKind = iota
	inboundRevoke
	inboundStatusBroadcast
	inboundOwn
	inboundEmpty
)

type inboundMessage struct {
	Kind      inboundKind
	ID        string
	Chat      types.JID
	Sender    types.JID
	PushName  string
	Text      string // extracted text, may be empty for media
	Content   string // text, or media tag when no text exists
	RevokedID string // set for inboundRevoke
	Timestamp time.Time
}

const (
	messageCacheCap = 4096
	messageCacheTTL = 24 * time.Hour
	cachePreviewMax = 256 // graphemes kept per cached entry

	triggerPhrase = "yo"
	cannedReply   = "lol"
)

// cachedMessage is the minimal record needed to resolve a later revoke.
type cachedMessage struct {
	SenderJID  string
	SenderName string
	Content    string
	Timestamp  time.Time
	expiresAt  time.Time
}

// messageCache is a bounded TTL cache keyed by message id. Revokes of
// messages that aged out resolve as unknown content.
type messageCache struct {
	mu      sync.Mutex
	entries map[string]cachedMessage
	order   []string
	cap     int
	ttl     time.Duration
	now     func() time.Time
}

func newMessageCache(capacity int, ttl time.Duration, now func() time.Time) *messageCache {
	if now == nil {
		now = time.Now
	}
	return &messageCache{
		entries: make(map[string]cachedMessage, capacity),
		cap:     capacity,
		ttl:     ttl,
		now:     now,
	}
}

func (c *messageCache) Put(id string, msg cachedMessage) {
	if id == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[id]; !exists {
		c.order = append(c.order, id)
	}
	msg.expiresAt = c.now().Add(c.ttl)
	c.entries[id] = msg
	for len(c.entries) > c.cap && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
}

func (c *messageCache) Get(id string) (cachedMessage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg, ok := c.entries[id]
	if !ok {
		return cachedMessage{}, false
	}
	if c.now().After(msg.expiresAt) {
		delete(c.entries, id)
		return cachedMessage{}, false
	}
	return msg, true
}

func (c *messageCache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

func (c *messageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cleanup drops expired entries; run periodically from the cron routines.
func (c *messageCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	kept := c.order[:0]
	for _, id := range c.order {
		entry, ok := c.entries[id]
		if !ok {
			continue
		}
		if now.After(entry.expiresAt) {
			delete(c.entries, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
	return removed
}

// unwrapEphemeral removes one level of ephemeral wrapping, if present.
func unwrapEphemeral(msg *waE2E.Message) *waE2E.Message {
	if msg == nil {
		return nil
	}
	if eph := msg.GetEphemeralMessage(); eph != nil {
		return eph.GetMessage()
	}
	return msg
}

// extractText pulls the human-readable text out of a message: plain
// conversation first, then extended text, then image/video caption, then
// document caption. Empty when the message carries no text.
func extractText(msg *waE2E.Message) string {
	msg = unwrapEphemeral(msg)
	if msg == nil {
		return ""
	}
	if text := msg.GetConversation(); text != "" {
		return text
	}
	if text := msg.GetExtendedTextMessage().GetText(); text != "" {
		return text
	}
	if caption := msg.GetImageMessage().GetCaption(); caption != "" {
		return caption
	}
	if caption := msg.GetVideoMessage().GetCaption(); caption != "" {
		return caption
	}
	if caption := msg.GetDocumentMessage().GetCaption(); caption != "" {
		return caption
	}
	return ""
}

// mediaTag substitutes a display tag for messages with no textual content,
// checked in a fixed order.
func mediaTag(msg *waE2E.Message) string {
	msg = unwrapEphemeral(msg)
	if msg == nil {
		return "[Unknown Media]"
	}
	switch {
	case msg.GetImageMessage() != nil:
		return "[Image]"
	case msg.GetVideoMessage() != nil:
		return "[Video]"
	case msg.GetAudioMessage() != nil:
		return "[Audio]"
	case msg.GetStickerMessage() != nil:
		return "[Sticker]"
	case msg.GetDocumentMessage() != nil:
		return "[Document]"
	case msg.GetLocationMessage() != nil:
		return "[Location]"
	case msg.GetContactMessage() != nil:
		return "[Contact]"
	case msg.GetContactsArrayMessage() != nil:
		return "[Contacts List]"
	default:
		return "[Media or non-text message]"
	}
}

// contentDescriptor prefers extracted text, falling back to the media tag.
func contentDescriptor(msg *waE2E.Message) string {
	if text := strings.TrimSpace(extractText(msg)); text != "" {
		return text
	}
	return mediaTag(msg)
}

// truncateGraphemes caps a string at max grapheme clusters so that cached
// previews stay small without splitting emoji or combined characters.
func truncateGraphemes(s string, max int) string {
	if uniseg.GraphemeClusterCount(s) <= max {
		return s
	}
	gr := uniseg.NewGraphemes(s)
	var b strings.Builder
	count := 0
	for gr.Next() && count < max {
		b.WriteString(gr.Str())
		count++
	}
	return b.String() + "…"
}

// isEmojiOnly reports whether the text consists purely of emoji. Such
// messages skip the responder; they carry no answerable intent.
func isEmojiOnly(text string) bool {
	if !gomoji.ContainsEmoji(text) {
		return false
	}
	return strings.TrimSpace(gomoji.RemoveEmojis(text)) == ""
}

// displayName prefers the push name, then the phone part of the JID.
func displayName(pushName string, jid types.JID) string {
	if strings.TrimSpace(pushName) != "" {
		return pushName
	}
	if jid.User != "" {
		return jid.User
	}
	return "Unknown"
}

// decodeInbound classifies one raw message event into the closed variant set.
func decodeInbound(evt *events.Message, adminJID types.JID) inboundMessage {
	decoded := inboundMessage{
		Kind:      inboundText,
		ID:        evt.Info.ID,
		Chat:      evt.Info.Chat,
		Sender:    evt.Info.Sender,
		PushName:  evt.Info.PushName,
		Timestamp: evt.Info.Timestamp,
	}

	if evt.Message == nil {
		decoded.Kind = inboundEmpty
		return decoded
	}

	decoded.Text = extractText(evt.Message)
	decoded.Content = contentDescriptor(evt.Message)

	if protocol := evt.Message.GetProtocolMessage(); protocol != nil &&
		protocol.GetType() == waE2E.ProtocolMessage_REVOKE {
		decoded.Kind = inboundRevoke
		decoded.RevokedID = protocol.GetKey().GetID()
		return decoded
	}

	if evt.Info.Chat == types.StatusBroadcastJID {
		decoded.Kind = inboundStatusBroadcast
		return decoded
	}

	if evt.Info.IsFromMe || (!adminJID.IsEmpty() && evt.Info.Sender.User == adminJID.User) {
		decoded.Kind = inboundOwn
		return decoded
	}

	return decoded
}

// handleMessage routes one live inbound message. Events arrive serially from
// the whatsmeow event loop, so messages are processed exactly once in
// arrival order.
func (m *Manager) handleMessage(evt *events.Message) {
	decoded := decodeInbound(evt, m.adminJID())

	if decoded.Kind == inboundEmpty {
		return
	}

	// Cache everything with an id so later revokes can be resolved.
	m.cache.Put(decoded.ID, cachedMessage{
		SenderJID:  decoded.Sender.String(),
		SenderName: displayName(decoded.PushName, decoded.Sender),
		Content:    truncateGraphemes(decoded.Content, cachePreviewMax),
		Timestamp:  decoded.Timestamp,
	})

	switch decoded.Kind {
	case inboundRevoke:
		m.handleRevoke(decoded)
	case inboundStatusBroadcast:
		m.handleStatusBroadcast(decoded)
	case inboundOwn:
		// Own and admin messages are cached above but never answered,
		// to avoid feedback loops.
	case inboundText:
		m.handleChatMessage(decoded)
	}
}

func (m *Manager) handleRevoke(decoded inboundMessage) {
	actorName := displayName(decoded.PushName, decoded.Sender)

	var notice string
	if original, ok := m.cache.Get(decoded.RevokedID); ok {
		notice = formatDeletionNotice(actorName, original.SenderName, decoded.Chat.String(), original.Content, true)
		m.cache.Delete(decoded.RevokedID)
	} else {
		notice = formatDeletionNotice(actorName, "", decoded.Chat.String(), "", false)
	}

	if m.cfg.EnableAdminForwarding {
		if _, err := m.SendText(context.Background(), m.cfg.AdminJID, notice); err != nil {
			log.SessionOp("revoke").WithError(err).Warn("Failed to forward deletion notice to admin")
		}
		return
	}
	log.SessionOp("revoke").WithField("message_id", decoded.RevokedID).Debug(notice)
}

func (m *Manager) handleStatusBroadcast(decoded inboundMessage) {
	notice := formatStatusNotice(displayName(decoded.PushName, decoded.Sender), decoded.Content)

	if m.cfg.EnableAdminForwarding {
		if _, err := m.SendText(context.Background(), m.cfg.AdminJID, notice); err != nil {
			log.SessionOp("status").WithError(err).Warn("Failed to forward status notice to admin")
		}
		return
	}
	log.SessionOp("status").Debug(notice)
}

func (m *Manager) handleChatMessage(decoded inboundMessage) {
	text := strings.TrimSpace(decoded.Text)
	if text == "" {
		return
	}

	chat := decoded.Chat.String()

	if strings.EqualFold(text, triggerPhrase) {
		if _, err := m.SendText(context.Background(), chat, cannedReply); err != nil {
			log.SendOp("canned-reply", chat).WithError(err).Warn("Failed to send canned reply")
		}
		return
	}

	if isEmojiOnly(text) {
		return
	}

	if !m.cfg.EnableAutoResponder || m.responder == nil {
		log.SessionOp("inbound").
			WithField("from", log.MaskJID(decoded.Sender.String())).
			Info("Auto-responder disabled; message logged only")
		return
	}

	reply, err := m.responder.HandleIncomingMessage(context.Background(), text, decoded.Sender.String())
	if err != nil {
		log.SessionOp("inbound").WithError(err).Warn("Responder failed to produce a reply")
		return
	}
	if _, err := m.SendText(context.Background(), chat, reply); err != nil {
		log.SendOp("responder-reply", chat).WithError(err).Warn("Failed to send responder reply")
	}
}
