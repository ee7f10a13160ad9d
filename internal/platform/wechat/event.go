package wechat

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
)

// Event types that carry a scene string.
const (
	EventSubscribe = "subscribe"
	EventScan      = "SCAN"
)

// subscribeScenePrefix precedes the scene string when a new follower scans a code.
const subscribeScenePrefix = "qrscene_"

// Event is a push callback from the platform.
type Event struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   string   `xml:"ToUserName"`
	FromUserName string   `xml:"FromUserName"`
	CreateTime   int64    `xml:"CreateTime"`
	MsgType      string   `xml:"MsgType"`
	Event        string   `xml:"Event"`
	EventKey     string   `xml:"EventKey"`
	Ticket       string   `xml:"Ticket"`
}

// ParseEvent decodes an XML callback body.
func ParseEvent(body []byte) (*Event, error) {
	var e Event
	if err := xml.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if e.FromUserName == "" || e.MsgType == "" {
		return nil, fmt.Errorf("%w: missing sender or message type", ErrMalformedEvent)
	}
	return &e, nil
}

// OpenID is the follower's identity within the official account.
func (e *Event) OpenID() string {
	return e.FromUserName
}

// SceneString returns the scene encoded in the scanned code, if this event
// came from one.
func (e *Event) SceneString() (string, bool) {
	if e.MsgType != "event" {
		return "", false
	}
	var scene string
	switch e.Event {
	case EventSubscribe:
		s, ok := strings.CutPrefix(e.EventKey, subscribeScenePrefix)
		if !ok {
			return "", false
		}
		scene = s
	case EventScan:
		scene = e.EventKey
	default:
		return "", false
	}
	scene = strings.TrimSpace(scene)
	return scene, scene != ""
}

// VerifySignature checks a callback's signature query parameter: the SHA-1
// of token, timestamp and nonce sorted and concatenated.
func VerifySignature(token, signature, timestamp, nonce string) bool {
	if token == "" || signature == "" {
		return false
	}
	parts := []string{token, timestamp, nonce}
	sort.Strings(parts)
	sum := sha1.Sum([]byte(strings.Join(parts, "")))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(signature))) == 1
}
