package pubsub

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Name identifies what happened, e.g. "thread-created".
type Name string

const (
	NamePageThreadAddedWithLocation       Name = "page-thread-added-with-location"
	NamePageThreadDeleted                 Name = "page-thread-deleted"
	NameThreadFilterablePropertiesUpdated Name = "thread-filterable-properties-updated"
	NameThreadCreated                     Name = "thread-created"
	NameThreadDeleted                     Name = "thread-deleted"
	NameThreadMessageAdded                Name = "thread-message-added"
	NameThreadMessageUpdated              Name = "thread-message-updated"
	NameThreadMessageContentAppended      Name = "thread-message-content-appended"
	NameThreadMessageRemoved              Name = "thread-message-removed"
	NameThreadParticipantsUpdated         Name = "thread-participants-updated-incremental"
	NameThreadTypingUsersUpdated          Name = "thread-typing-users-updated"
	NameThreadShareToSlack                Name = "thread-share-to-slack"
	NameThreadPropertiesUpdated           Name = "thread-properties-updated"
	NameThreadSubscriberUpdated           Name = "thread-subscriber-updated"
	NameInboxUpdated                      Name = "inbox-updated"
	NameConsoleGettingStartedUpdated      Name = "console-getting-started-updated"
	NameUserPreferenceUpdated             Name = "user-preference-updated"
	NameUserIdentity                      Name = "user-identity"
	NameOrgUserIdentity                   Name = "org-user-identity"
	NameAnnotationsOnPageUpdated          Name = "annotations-on-page-updated"
	NameIncomingSlackEvent                Name = "incoming-slack-event"
	NamePubSubHealthCheck                 Name = "pub-sub-health-check"
	NameNotificationAdded                 Name = "notification-added"
	NameNotificationReadStateUpdated      Name = "notification-read-state-updated"
	NameNotificationDeleted               Name = "notification-deleted"
	NameContextPresence                   Name = "context-presence"
	NameOrgMemberAdded                    Name = "org-member-added"
	NameOrgMemberRemoved                  Name = "org-member-removed"
	NameRestartSubscription               Name = "restart-subscription"
	NameCustomerSubscriptionUpdated       Name = "customer-subscription-updated"
)

// Topics binds every event name to its routing key and payload types. A
// publish or subscribe with the wrong key or payload type does not compile.
var (
	PageThreadAddedWithLocation       = newTopic[OrgKey, ThreadLocation](NamePageThreadAddedWithLocation)
	PageThreadDeleted                 = newTopic[OrgKey, ThreadRef](NamePageThreadDeleted)
	ThreadFilterablePropertiesUpdated = newTopic[OrgKey, ThreadPropertyChanges](NameThreadFilterablePropertiesUpdated)
	ThreadCreated                     = newTopic[ThreadKey, ThreadRef](NameThreadCreated)
	ThreadDeleted                     = newTopic[ThreadKey, ThreadRef](NameThreadDeleted)
	ThreadMessageAdded                = newTopic[ThreadKey, MessageRef](NameThreadMessageAdded)
	ThreadMessageUpdated              = newTopic[ThreadKey, MessageRef](NameThreadMessageUpdated)
	ThreadMessageContentAppended      = newTopic[ThreadKey, MessageContentAppended](NameThreadMessageContentAppended)
	ThreadMessageRemoved              = newTopic[ThreadKey, MessageRef](NameThreadMessageRemoved)
	ThreadParticipantsUpdated         = newTopic[ThreadKey, UserRef](NameThreadParticipantsUpdated)
	ThreadTypingUsersUpdated          = newTopic[ThreadKey, TypingUsers](NameThreadTypingUsersUpdated)
	ThreadShareToSlack                = newTopic[ThreadKey, SlackShare](NameThreadShareToSlack)
	ThreadPropertiesUpdated           = newTopic[ThreadKey, NoPayload](NameThreadPropertiesUpdated)
	ThreadSubscriberUpdated           = newTopic[ThreadKey, UserRef](NameThreadSubscriberUpdated)
	InboxUpdated                      = newTopic[UserKey, *ThreadLocation](NameInboxUpdated)
	ConsoleGettingStartedUpdated      = newTopic[ApplicationKey, NoPayload](NameConsoleGettingStartedUpdated)
	UserPreferenceUpdated             = newTopic[UserKey, PreferenceRef](NameUserPreferenceUpdated)
	UserIdentity                      = newTopic[UserKey, NoPayload](NameUserIdentity)
	OrgUserIdentity                   = newTopic[OrgKey, UserRef](NameOrgUserIdentity)
	AnnotationsOnPageUpdated          = newTopic[PageKey, NoPayload](NameAnnotationsOnPageUpdated)
	IncomingSlackEvent                = newTopic[TierKey, SlackEvent](NameIncomingSlackEvent)
	PubSubHealthCheck                 = newTopic[NoKey, NoPayload](NamePubSubHealthCheck)
	NotificationAdded                 = newTopic[UserKey, NotificationRef](NameNotificationAdded)
	NotificationReadStateUpdated      = newTopic[UserKey, NotificationRef](NameNotificationReadStateUpdated)
	NotificationDeleted               = newTopic[UserKey, NotificationRef](NameNotificationDeleted)
	ContextPresence                   = newTopic[OrgKey, PresenceUpdate](NameContextPresence)
	OrgMemberAdded                    = newTopic[OrgKey, UserRef](NameOrgMemberAdded)
	OrgMemberRemoved                  = newTopic[OrgKey, UserRef](NameOrgMemberRemoved)
	RestartSubscription               = newTopic[UserKey, NoPayload](NameRestartSubscription)
	CustomerSubscriptionUpdated       = newTopic[CustomerKey, CustomerRef](NameCustomerSubscriptionUpdated)
)

// Topic is a typed handle on one catalog entry.
type Topic[K RoutingKey, P any] struct {
	name Name
}

// Name returns the event name the topic is registered under.
func (t Topic[K, P]) Name() Name { return t.name }

// Descriptor describes one catalog entry.
type Descriptor struct {
	Name    Name
	Key     reflect.Type
	Payload reflect.Type
}

var (
	catalogMu sync.RWMutex
	catalog   = map[Name]Descriptor{}
)

func newTopic[K RoutingKey, P any](name Name) Topic[K, P] {
	catalogMu.Lock()
	defer catalogMu.Unlock()

	if _, dup := catalog[name]; dup {
		panic(fmt.Sprintf("pubsub: event %q registered twice", name))
	}
	catalog[name] = Descriptor{
		Name:    name,
		Key:     reflect.TypeFor[K](),
		Payload: reflect.TypeFor[P](),
	}
	return Topic[K, P]{name: name}
}

// Catalog returns every registered event, sorted by name.
func Catalog() []Descriptor {
	catalogMu.RLock()
	defer catalogMu.RUnlock()

	out := make([]Descriptor, 0, len(catalog))
	for _, d := range catalog {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func lookup(name Name) (Descriptor, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	d, ok := catalog[name]
	return d, ok
}

// RoutingKey is implemented by the closed set of routing key shapes.
type RoutingKey interface {
	routingKey()
}

// NoKey is the routing key of global events; it serializes as null.
type NoKey struct{}

func (NoKey) routingKey() {}

func (NoKey) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

type OrgKey struct {
	OrgID string `json:"orgID"`
}

func (OrgKey) routingKey() {}

type ThreadKey struct {
	ThreadID string `json:"threadID"`
}

func (ThreadKey) routingKey() {}

type UserKey struct {
	UserID string `json:"userID"`
}

func (UserKey) routingKey() {}

type ApplicationKey struct {
	ApplicationID string `json:"applicationID"`
}

func (ApplicationKey) routingKey() {}

type PageKey struct {
	PageContextHash string `json:"pageContextHash"`
	OrgID           string `json:"orgID"`
}

func (PageKey) routingKey() {}

type TierKey struct {
	Tier string `json:"tier"`
}

func (TierKey) routingKey() {}

type CustomerKey struct {
	CustomerID string `json:"customerID"`
}

func (CustomerKey) routingKey() {}

// NoPayload is the payload of events that carry no data; it serializes as
// null.
type NoPayload struct{}

func (NoPayload) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// Location is a flat JSON object identifying a place in a host application.
type Location map[string]any

// Metadata is a flat JSON object of user-defined key/value pairs.
type Metadata map[string]any

type ThreadRef struct {
	ThreadID string `json:"threadID"`
}

type ThreadLocation struct {
	ThreadID string   `json:"threadID"`
	Location Location `json:"location"`
}

type LocationChange struct {
	Old Location `json:"old"`
	New Location `json:"new"`
}

type BoolChange struct {
	Old bool `json:"old"`
	New bool `json:"new"`
}

type MetadataChange struct {
	Old Metadata `json:"old"`
	New Metadata `json:"new"`
}

type StringChange struct {
	Old string `json:"old"`
	New string `json:"new"`
}

type SubscribersChange struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
}

// ThreadChanges lists the filterable properties that changed; unchanged
// properties are nil.
type ThreadChanges struct {
	Location    *LocationChange    `json:"location,omitempty"`
	Resolved    *BoolChange        `json:"resolved,omitempty"`
	Metadata    *MetadataChange    `json:"metadata,omitempty"`
	OrgID       *StringChange      `json:"orgID,omitempty"`
	Subscribers *SubscribersChange `json:"subscribers,omitempty"`
}

type ThreadPropertyChanges struct {
	ThreadID string        `json:"threadID"`
	Changes  ThreadChanges `json:"changes"`
}

type MessageRef struct {
	MessageID string `json:"messageID"`
}

type MessageContentAppended struct {
	MessageID       string `json:"messageID"`
	AppendedContent string `json:"appendedContent"`
}

type UserRef struct {
	UserID string `json:"userID"`
}

type TypingUsers struct {
	Users []string `json:"users"`
}

type SlackMirroredThreadInfo struct {
	Channel  *string `json:"channel"`
	SlackURL *string `json:"slackURL"`
}

// SlackShare carries nil Info when a thread stops being mirrored.
type SlackShare struct {
	Info *SlackMirroredThreadInfo `json:"info"`
}

type PreferenceRef struct {
	Key string `json:"key"`
}

type SlackEvent struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"event"`
}

type NotificationRef struct {
	NotificationID string `json:"notificationID"`
}

type CustomerRef struct {
	CustomerID string `json:"customerID"`
}

// EphemeralPresence reports a user arriving at or leaving a location.
type EphemeralPresence struct {
	Arrived     Location `json:"arrived,omitempty"`
	Departed    Location `json:"departed,omitempty"`
	SequenceNum int64    `json:"sequenceNum"`
}

// DurablePresence reports the last location a user was seen at.
type DurablePresence struct {
	Context   Location `json:"context"`
	Timestamp int64    `json:"timestamp"`
}

// PresenceUpdate carries exactly one of Ephemeral or Durable.
type PresenceUpdate struct {
	ExternalUserID string             `json:"externalUserID"`
	Ephemeral      *EphemeralPresence `json:"ephemeral,omitempty"`
	Durable        *DurablePresence   `json:"durable,omitempty"`
}

// Validate reports whether exactly one presence variant is set. Publish
// refuses updates that fail it.
func (p PresenceUpdate) Validate() error {
	if (p.Ephemeral == nil) == (p.Durable == nil) {
		return fmt.Errorf("presence update for %s must carry exactly one of ephemeral or durable", p.ExternalUserID)
	}
	return nil
}
