package pubsub

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // used for channel disambiguation, not security
	"encoding/hex"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// MaxChannelNameLength is the upper bound, in bytes, of any channel name
// handed to a broker.
const MaxChannelNameLength = 1024

// ChannelName maps an event name and its routing key to the broker channel
// the event travels on. Value-equal keys always produce the same channel,
// whatever order their fields were set in.
func ChannelName(name Name, key any) string {
	return channelNameWithLimit(canonicalChannel(name, key))
}

func canonicalChannel(name Name, key any) string {
	args, err := canonicalize(key)
	if err != nil {
		// Catalog keys are plain structs of strings; this only happens if a
		// key type with an unmarshalable field is added.
		panic(fmt.Sprintf("pubsub: routing key for %s is not serializable: %v", name, err))
	}
	out, err := stableMarshal(map[string]any{"name": string(name), "args": args})
	if err != nil {
		panic(fmt.Sprintf("pubsub: channel for %s is not serializable: %v", name, err))
	}
	return out
}

func channelNameWithLimit(channel string) string {
	if len(channel) <= MaxChannelNameLength {
		return channel
	}

	sum := sha1.Sum([]byte(channel)) //nolint:gosec
	hashed := hex.EncodeToString(sum[:]) + ":" + channel
	return truncateUTF8(hashed, MaxChannelNameLength)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// canonicalize round-trips v through JSON so that structs become maps, whose
// keys encoding/json always emits in sorted order.
func canonicalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func stableMarshal(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
