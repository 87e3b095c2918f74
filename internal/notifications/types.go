// Package notifications turns a recipient's notification log into the feed
// clients render: rows are filtered in SQL, grouped by aggregation key and
// built into display nodes, one per group.
package notifications

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/darkden-lab/relay/internal/auth"
)

// Type is the kind of a notification row.
type Type string

const (
	TypeReply        Type = "reply"
	TypeReaction     Type = "reaction"
	TypeExternal     Type = "external"
	TypeThreadAction Type = "thread_action"
)

// AllTypes lists every notification type the database can hold.
var AllTypes = []Type{TypeReply, TypeReaction, TypeExternal, TypeThreadAction}

// Aggregatable reports whether several rows of t may be shown as one
// notification.
func (t Type) Aggregatable() bool {
	return t == TypeReaction
}

type ReadStatus string

const (
	ReadStatusUnread ReadStatus = "unread"
	ReadStatusRead   ReadStatus = "read"
)

func (s ReadStatus) Valid() bool {
	return s == ReadStatusUnread || s == ReadStatusRead
}

// Row is one row of the notifications table.
type Row struct {
	ID                    string         `db:"id"`
	PlatformApplicationID *string        `db:"platformApplicationID"`
	ExternalID            *string        `db:"externalID"`
	RecipientID           string         `db:"recipientID"`
	SenderID              *string        `db:"senderID"`
	Type                  Type           `db:"type"`
	AggregationKey        *string        `db:"aggregationKey"`
	ReadStatus            ReadStatus     `db:"readStatus"`
	CreatedTimestamp      time.Time      `db:"createdTimestamp"`
	MessageID             *string        `db:"messageID"`
	ReactionID            *string        `db:"reactionID"`
	ThreadActionType      *string        `db:"threadActionType"`
	ExternalTemplate      *string        `db:"externalTemplate"`
	ExternalURL           *string        `db:"externalURL"`
	ReplyActions          []string       `db:"replyActions"`
	IconURL               *string        `db:"iconUrl"`
	ExtraClassnames       *string        `db:"extraClassnames"`
	Metadata              map[string]any `db:"metadata"`
}

// Group is a run of rows that share an aggregation key, newest first.
type Group struct {
	Key  string
	Rows []Row
}

// HeaderNode is one piece of a notification's header: literal text or a
// reference to a user the client renders by name.
type HeaderNode struct {
	Text   string `json:"text,omitempty"`
	UserID string `json:"userID,omitempty"`
}

func TextNode(text string) HeaderNode   { return HeaderNode{Text: text} }
func UserNode(userID string) HeaderNode { return HeaderNode{UserID: userID} }

// Attachment is what a notification points at. It is one of URLAttachment,
// MessageAttachment or ThreadAttachment.
type Attachment interface {
	attachment()
}

type URLAttachment struct {
	URL string
}

type MessageAttachment struct {
	MessageID string
	ThreadID  string
}

type ThreadAttachment struct {
	ThreadID string
}

func (URLAttachment) attachment()     {}
func (MessageAttachment) attachment() {}
func (ThreadAttachment) attachment()  {}

func (a URLAttachment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	}{"url", a.URL})
}

func (a MessageAttachment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type      string `json:"type"`
		MessageID string `json:"messageID"`
		ThreadID  string `json:"threadID"`
	}{"message", a.MessageID, a.ThreadID})
}

func (a ThreadAttachment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string `json:"type"`
		ThreadID string `json:"threadID"`
	}{"thread", a.ThreadID})
}

// Notification is the built, client-facing form of a group.
type Notification struct {
	ID              string         `json:"id"`
	ExternalID      *string        `json:"externalID"`
	Type            Type           `json:"type"`
	SenderUserIDs   []string       `json:"senderUserIDs"`
	IconURL         *string        `json:"iconUrl"`
	Header          []HeaderNode   `json:"header"`
	Attachment      Attachment     `json:"attachment"`
	ReadStatus      ReadStatus     `json:"readStatus"`
	Timestamp       time.Time      `json:"timestamp"`
	ExtraClassnames *string        `json:"extraClassnames"`
	Metadata        map[string]any `json:"metadata"`
}

// LocationFilter matches notifications whose thread sits on a page with the
// given location. With PartialMatch the page's location only has to contain
// Value.
type LocationFilter struct {
	Value        map[string]any
	PartialMatch bool
}

// Filter narrows the feed. Zero fields do not filter.
type Filter struct {
	Metadata map[string]any
	Location *LocationFilter
	GroupID  string
	// Deprecated: use GroupID.
	OrganizationID string
	ReadStatus     ReadStatus
	Subscribed     *bool
}

func (f Filter) groupID() string {
	if f.GroupID != "" {
		return f.GroupID
	}
	return f.OrganizationID
}

// Params is the input of BuildFilterExpressions.
type Params struct {
	LtCreatedTimestamp    *time.Time
	Limit                 int
	Filter                Filter
	PlatformApplicationID string
	Viewer                *auth.Viewer
}

// FetchParams is the input of Service.FetchAndBuild.
type FetchParams struct {
	LtCreatedTimestamp *time.Time
	Limit              int
	Filter             Filter
}

// Result holds the rows read and the notifications built from them. Entities
// keeps every row, including rows of groups that failed to build.
type Result struct {
	Entities []Row
	Nodes    []*Notification
}

type PageInfo struct {
	EndCursor   *time.Time `json:"endCursor"`
	HasNextPage bool       `json:"hasNextPage"`
}

type Page struct {
	Result
	PageInfo PageInfo
}

// CallerError is a request the caller can fix. It is not logged as an error.
type CallerError struct {
	Code    string
	Message string
}

func (e *CallerError) Error() string {
	return e.Message
}

// Is matches any CallerError with the same code.
func (e *CallerError) Is(target error) bool {
	t, ok := target.(*CallerError)
	return ok && t.Code == e.Code
}

var ErrGroupNotFound = &CallerError{Code: "group_not_found", Message: "group not found"}

// IntegrityError means the stored rows contradict what the server expects of
// them.
type IntegrityError struct {
	NotificationID string
	Msg            string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("notification %s: %s", e.NotificationID, e.Msg)
}

func integrityErrorf(id, format string, args ...any) *IntegrityError {
	return &IntegrityError{NotificationID: id, Msg: fmt.Sprintf(format, args...)}
}
