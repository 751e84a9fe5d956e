// ABOUTME: Store interface and data types for chatdesk live routing state
// ABOUTME: Defines Session, Draft, Notice and the Store interface with its sentinel errors

package state

import (
	"errors"
	"time"
)

// Pickup and queue errors. The router maps these onto operator-facing replies.
var (
	// ErrOperatorBusy means the operator already holds an assignment to a different client
	ErrOperatorBusy = errors.New("operator already in an active chat")

	// ErrAlreadyPicked means the operator re-picked the client they are already assigned to
	ErrAlreadyPicked = errors.New("client already assigned to this operator")

	// ErrNotWaiting means the target client is not in the waiting queue
	ErrNotWaiting = errors.New("client is not waiting")

	// ErrClientTaken means the target client is already assigned to another operator
	ErrClientTaken = errors.New("client is assigned to another operator")

	// ErrStatusRegression means a draft update attempted to move status backwards
	ErrStatusRegression = errors.New("draft status cannot regress")
)

// Mode is a client session's interaction mode. Exactly one mode is active
// per client at any time.
type Mode int

const (
	ModeIdle Mode = iota
	ModeMenu
	ModeAwaitingSearch
	ModeProfileWizard
	ModePromoWizard
	ModeAwaitingHistoryQuery
	ModeInManagerChat
	ModeOrderCollecting
)

// String returns a short label for logging.
func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeMenu:
		return "menu"
	case ModeAwaitingSearch:
		return "awaiting_search"
	case ModeProfileWizard:
		return "profile_wizard"
	case ModePromoWizard:
		return "promo_wizard"
	case ModeAwaitingHistoryQuery:
		return "awaiting_history_query"
	case ModeInManagerChat:
		return "in_manager_chat"
	case ModeOrderCollecting:
		return "order_collecting"
	default:
		return "unknown"
	}
}

// Step identifies the current step of a wizard-mode session.
type Step int

const (
	StepNone Step = iota

	// Profile wizard
	StepProfileName
	StepProfilePhone
	StepProfileBirthday

	// Promotion wizard (operator side)
	StepPromoTitle
	StepPromoDescription
	StepPromoEndDate
)

// Session is a client's (or, for wizard modes, an operator's) transient
// interaction state. Only the fields relevant to the active mode are
// meaningful: Step for the wizard modes, OperatorID for ModeInManagerChat.
type Session struct {
	Mode       Mode
	Step       Step
	OperatorID int64
}

// DraftStatus is the order draft lifecycle stage. It is monotonic:
// Collecting -> Ready -> Sent, never backwards.
type DraftStatus int

const (
	DraftCollecting DraftStatus = iota
	DraftReady
	DraftSent
)

// String returns a short label for logging and summaries.
func (s DraftStatus) String() string {
	switch s {
	case DraftCollecting:
		return "collecting"
	case DraftReady:
		return "ready"
	case DraftSent:
		return "sent"
	default:
		return "unknown"
	}
}

// DraftOrigin distinguishes text-born drafts from photo-born ones.
type DraftOrigin int

const (
	OriginText DraftOrigin = iota
	OriginImage
)

// Draft is the accumulating representation of a customer's purchase
// request prior to operator hand-off. At most one live draft exists per
// client. Primary holds the order text for OriginText, or the transport
// file ID for OriginImage; Caption holds the photo caption when present.
type Draft struct {
	Status         DraftStatus
	Origin         DraftOrigin
	Primary        string
	Caption        string
	Attachment     string // photo file ID attached to a text-born draft
	Clarifications []string
	CreatedAt      time.Time
	Locked         bool
}

// clone returns a deep copy so callers never share the stored slice.
func (d Draft) clone() Draft {
	out := d
	out.Clarifications = append([]string(nil), d.Clarifications...)
	return out
}

// Notice is a handle to a "new client" message previously sent to an
// operator, kept so it can be retracted once somebody picks the client up.
type Notice struct {
	OperatorID int64
	ClientID   int64
	MessageID  int
}

// Store is the injected state abstraction the router and aggregator work
// against. The only implementation is the in-memory one; the interface
// exists so handlers are testable without a live transport and so the
// backing store can later be swapped for a transactional one.
type Store interface {
	// Sessions
	Session(id int64) (Session, bool)
	SetSession(id int64, s Session)
	DeleteSession(id int64)
	ManagerChats() map[int64]int64 // clientID -> operatorID, for the sweep

	// Assignments
	ClientOf(operatorID int64) (int64, bool)
	OperatorOf(clientID int64) (int64, bool)
	Assignments() map[int64]int64 // operatorID -> clientID snapshot
	DropAssignment(operatorID int64) (clientID int64, ok bool)

	// Waiting queue
	Enqueue(clientID int64) error
	Dequeue(clientID int64) bool
	InQueue(clientID int64) bool
	Waiting() []int64

	// Pickup re-validates and commits the operator↔client pairing in one
	// critical section. On success the client leaves the queue and its
	// session becomes InManagerChat(operatorID).
	Pickup(operatorID, clientID int64) error

	// EndChat tears down an operator's assignment: session to Idle,
	// draft lock cleared. Reports the released client.
	EndChat(operatorID int64) (clientID int64, ok bool)

	// ResetClient tears down from the client side: assignment dropped,
	// queue membership removed, session to Idle, draft lock cleared.
	// Reports the operator that was attached, if any.
	ResetClient(clientID int64) (operatorID int64, ok bool)

	// Drafts
	Draft(clientID int64) (Draft, bool)
	PutDraft(clientID int64, d Draft) error
	DeleteDraft(clientID int64)

	// Notice registry
	AddNotice(n Notice)
	TakeNotices(clientID int64) []Notice
	NoticedClients() []int64
}
