package apt

import "fmt"

// Key correlates a reply frame with the request waiting for it.
//
// APT frames carry no transaction id, so a key is synthesized from the reply
// message id, the replying module address and, for channeled messages, the
// channel identifier. Two requests expecting the same key cannot be in
// flight at the same time on one connection.
type Key struct {
	ID      MessageID
	Source  Address
	Channel uint16
}

// NewKey creates the key of a reply with the given id from src on channel.
// Pass channel 0 for messages that carry no channel.
func NewKey(id MessageID, src Address, channel uint16) Key {
	return Key{ID: id, Source: src, Channel: channel}
}

func (k Key) String() string {
	return fmt.Sprintf("%s/src=0x%02X/ch=%d", k.ID, byte(k.Source), k.Channel)
}

// KeyFunc derives the correlation key of a received message.
type KeyFunc func(msg *Message) Key

// keyDeriver picks the KeyFunc for each received message: a per-id override
// when one is registered, otherwise the table driven default.
type keyDeriver struct {
	table     MessageTable
	overrides map[MessageID]KeyFunc
}

func (kd *keyDeriver) keyOf(msg *Message) Key {
	if fn, ok := kd.overrides[msg.ID]; ok {
		return fn(msg)
	}

	return DefaultKey(msg, kd.table)
}

// DefaultKey derives (id, source, channel) for msg. The channel is only
// taken into account for ids the table marks as channeled; unknown ids are
// keyed without a channel.
func DefaultKey(msg *Message, table MessageTable) Key {
	key := Key{ID: msg.ID, Source: msg.Source}
	if info, ok := table[msg.ID]; ok && info.Channeled {
		key.Channel = msg.Channel()
	}

	return key
}
