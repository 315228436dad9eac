package whatsapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

func textEvent(id string, chat types.JID, sender types.JID, text string) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			ID: id,
			MessageSource: types.MessageSource{
				Chat:   chat,
				Sender: sender,
			},
			Timestamp: time.Now(),
		},
		Message: &waE2E.Message{Conversation: proto.String(text)},
	}
}

func TestExtractText(t *testing.T) {
	t.Run("conversation wins over everything", func(t *testing.T) {
		msg := &waE2E.Message{
			Conversation:        proto.String("plain"),
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("extended")},
		}
		assert.Equal(t, "plain", extractText(msg))
	})

	t.Run("extended text before captions", func(t *testing.T) {
		msg := &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("extended")},
			ImageMessage:        &waE2E.ImageMessage{Caption: proto.String("caption")},
		}
		assert.Equal(t, "extended", extractText(msg))
	})

	t.Run("image caption", func(t *testing.T) {
		msg := &waE2E.Message{
			ImageMessage: &waE2E.ImageMessage{Caption: proto.String("look at this")},
		}
		assert.Equal(t, "look at this", extractText(msg))
	})

	t.Run("document caption", func(t *testing.T) {
		msg := &waE2E.Message{
			DocumentMessage: &waE2E.DocumentMessage{Caption: proto.String("the report")},
		}
		assert.Equal(t, "the report", extractText(msg))
	})

	t.Run("ephemeral unwrap", func(t *testing.T) {
		msg := &waE2E.Message{
			EphemeralMessage: &waE2E.FutureProofMessage{
				Message: &waE2E.Message{Conversation: proto.String("vanishing")},
			},
		}
		assert.Equal(t, "vanishing", extractText(msg))
	})

	t.Run("no text", func(t *testing.T) {
		assert.Equal(t, "", extractText(&waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}))
		assert.Equal(t, "", extractText(nil))
	})
}

func TestMediaTag(t *testing.T) {
	cases := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"image", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, "[Image]"},
		{"video", &waE2E.Message{VideoMessage: &waE2E.VideoMessage{}}, "[Video]"},
		{"audio", &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}, "[Audio]"},
		{"sticker", &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, "[Sticker]"},
		{"document", &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}}, "[Document]"},
		{"location", &waE2E.Message{LocationMessage: &waE2E.LocationMessage{}}, "[Location]"},
		{"contact", &waE2E.Message{ContactMessage: &waE2E.ContactMessage{}}, "[Contact]"},
		{"contacts list", &waE2E.Message{ContactsArrayMessage: &waE2E.ContactsArrayMessage{}}, "[Contacts List]"},
		{"unrecognized", &waE2E.Message{}, "[Media or non-text message]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, mediaTag(tc.msg))
		})
	}

	t.Run("image with caption keeps descriptor text", func(t *testing.T) {
		msg := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("receipt")}}
		assert.Equal(t, "receipt", contentDescriptor(msg))
	})
}

func TestDecodeInbound(t *testing.T) {
	customer := types.NewJID("237670527426", types.DefaultUserServer)
	admin := types.NewJID("237699000001", types.DefaultUserServer)

	t.Run("plain text", func(t *testing.T) {
		decoded := decodeInbound(textEvent("m1", customer, customer, "hello"), admin)
		assert.Equal(t, inboundText, decoded.Kind)
		assert.Equal(t, "hello", decoded.Text)
	})

	t.Run("revoke", func(t *testing.T) {
		evt := textEvent("m2", customer, customer, "")
		evt.Message = &waE2E.Message{
			ProtocolMessage: &waE2E.ProtocolMessage{
				Type: waE2E.ProtocolMessage_REVOKE.Enum(),
				Key:  &waCommon.MessageKey{ID: proto.String("m1")},
			},
		}
		decoded := decodeInbound(evt, admin)
		assert.Equal(t, inboundRevoke, decoded.Kind)
		assert.Equal(t, "m1", decoded.RevokedID)
	})

	t.Run("status broadcast", func(t *testing.T) {
		decoded := decodeInbound(textEvent("m3", types.StatusBroadcastJID, customer, "my status"), admin)
		assert.Equal(t, inboundStatusBroadcast, decoded.Kind)
	})

	t.Run("own message", func(t *testing.T) {
		evt := textEvent("m4", customer, customer, "sent by us")
		evt.Info.IsFromMe = true
		decoded := decodeInbound(evt, admin)
		assert.Equal(t, inboundOwn, decoded.Kind)
	})

	t.Run("admin message treated as own", func(t *testing.T) {
		decoded := decodeInbound(textEvent("m5", admin, admin, "admin note"), admin)
		assert.Equal(t, inboundOwn, decoded.Kind)
	})

	t.Run("nil content", func(t *testing.T) {
		evt := textEvent("m6", customer, customer, "")
		evt.Message = nil
		decoded := decodeInbound(evt, admin)
		assert.Equal(t, inboundEmpty, decoded.Kind)
	})
}

func TestMessageCache(t *testing.T) {
	t.Run("put and get", func(t *testing.T) {
		cache := newMessageCache(10, time.Hour, nil)
		cache.Put("m1", cachedMessage{Content: "hello"})
		entry, ok := cache.Get("m1")
		require.True(t, ok)
		assert.Equal(t, "hello", entry.Content)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		clock := newFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
		cache := newMessageCache(10, time.Hour, clock.Now)
		cache.Put("m1", cachedMessage{Content: "hello"})
		clock.Advance(2 * time.Hour)
		_, ok := cache.Get("m1")
		assert.False(t, ok)
	})

	t.Run("capacity eviction drops oldest", func(t *testing.T) {
		cache := newMessageCache(2, time.Hour, nil)
		cache.Put("m1", cachedMessage{Content: "a"})
		cache.Put("m2", cachedMessage{Content: "b"})
		cache.Put("m3", cachedMessage{Content: "c"})

		_, ok := cache.Get("m1")
		assert.False(t, ok)
		_, ok = cache.Get("m3")
		assert.True(t, ok)
		assert.Equal(t, 2, cache.Len())
	})

	t.Run("empty id ignored", func(t *testing.T) {
		cache := newMessageCache(10, time.Hour, nil)
		cache.Put("", cachedMessage{Content: "x"})
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("cleanup removes expired", func(t *testing.T) {
		clock := newFakeClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
		cache := newMessageCache(10, time.Hour, clock.Now)
		cache.Put("m1", cachedMessage{Content: "a"})
		clock.Advance(30 * time.Minute)
		cache.Put("m2", cachedMessage{Content: "b"})
		clock.Advance(45 * time.Minute)

		removed := cache.Cleanup()
		assert.Equal(t, 1, removed)
		assert.Equal(t, 1, cache.Len())
		_, ok := cache.Get("m2")
		assert.True(t, ok)
	})
}

func TestIsEmojiOnly(t *testing.T) {
	assert.True(t, isEmojiOnly("👍"))
	assert.True(t, isEmojiOnly("👍🔥 🎉"))
	assert.False(t, isEmojiOnly("thanks 👍"))
	assert.False(t, isEmojiOnly("hello"))
	assert.False(t, isEmojiOnly(""))
}

func TestTruncateGraphemes(t *testing.T) {
	assert.Equal(t, "abc", truncateGraphemes("abc", 5))
	assert.Equal(t, "ab…", truncateGraphemes("abcdef", 2))
	// An emoji with skin tone modifier is one grapheme.
	assert.Equal(t, "👍🏽…", truncateGraphemes("👍🏽👍🏽", 1))
}

func TestDisplayName(t *testing.T) {
	jid := types.NewJID("237670527426", types.DefaultUserServer)
	assert.Equal(t, "Alice", displayName("Alice", jid))
	assert.Equal(t, "237670527426", displayName("", jid))
	assert.Equal(t, "Unknown", displayName("  ", types.EmptyJID))
}
