package models

import "time"

// BookStatus represents the lifecycle state of a book listing.
type BookStatus string

const (
	BookStatusAvailable BookStatus = "available"
	// BookStatusSold is declared for a future checkout flow; nothing sets it yet.
	BookStatusSold BookStatus = "sold"
)

// RequestStatus represents the lifecycle state of a buy request.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusNotified RequestStatus = "notified"
	// RequestStatusFulfilled is declared for a future checkout flow; nothing sets it yet.
	RequestStatusFulfilled RequestStatus = "fulfilled"
)

// Book is a listing: a schoolbook offered for sale with a seller-set price
// and contact info. The buyer-facing price is always derived as
// SellerPrice + service fee and is never stored.
type Book struct {
	ID          string     `json:"id" firestore:"-"`
	Title       string     `json:"title" firestore:"title"`
	ClassLevel  string     `json:"classLevel" firestore:"classLevel"`
	Publisher   string     `json:"publisher" firestore:"publisher"`
	EditionYear string     `json:"editionYear" firestore:"editionYear"`
	SellerPrice float64    `json:"sellerPrice" firestore:"sellerPrice"`
	SellerName  string     `json:"sellerName" firestore:"sellerName"`
	SellerEmail string     `json:"sellerEmail" firestore:"sellerEmail"`
	SellerPhone string     `json:"sellerPhone" firestore:"sellerPhone"`
	Status      BookStatus `json:"status" firestore:"status"`
	// PhotoDataURI holds the cover photo as an embedded base64 data URI.
	// Empty when no photo was supplied.
	PhotoDataURI string    `json:"photoDataUri,omitempty" firestore:"photoDataUri"`
	CreatedAt    time.Time `json:"createdAt" firestore:"createdAt"`
}

// BuyRequest is a standing request for a book matching a specific
// bibliographic key.
type BuyRequest struct {
	ID          string        `json:"id" firestore:"-"`
	Title       string        `json:"title" firestore:"title"`
	ClassLevel  string        `json:"classLevel" firestore:"classLevel"`
	Publisher   string        `json:"publisher" firestore:"publisher"`
	EditionYear string        `json:"editionYear" firestore:"editionYear"`
	BuyerEmail  string        `json:"buyerEmail" firestore:"buyerEmail"`
	BuyerPhone  string        `json:"buyerPhone" firestore:"buyerPhone"`
	Status      RequestStatus `json:"status" firestore:"status"`
	CreatedAt   time.Time     `json:"createdAt" firestore:"createdAt"`
}

// NotificationType categorizes internal store notifications.
type NotificationType string

const (
	NotificationMatch   NotificationType = "match"
	NotificationInfo    NotificationType = "info"
	NotificationError   NotificationType = "error"
	NotificationSuccess NotificationType = "success"
)

// Notification is an ephemeral store event consumed exactly once, in
// emission order, into the conversation transcript.
type Notification struct {
	ID          string           `json:"id"`
	Type        NotificationType `json:"type"`
	Message     string           `json:"message"`
	BookDetails *Book            `json:"bookDetails,omitempty"`
	TotalPrice  float64          `json:"totalPrice,omitempty"`
	// ContactNumber is the WhatsApp contact channel shown to matched parties.
	ContactNumber string `json:"contactNumber,omitempty"`
	BuyerEmail    string `json:"buyerEmail,omitempty"`
}

// Sender identifies who produced a chat message.
type Sender string

const (
	SenderUser   Sender = "user"
	SenderBot    Sender = "bot"
	SenderSystem Sender = "system"
)

// ActionTag identifies a pending user action a bot message offers. The
// engine resolves tags through an explicit dispatcher instead of embedding
// callbacks in messages.
type ActionTag string

const (
	ActionStartSell    ActionTag = "start-sell"
	ActionStartBuy     ActionTag = "start-buy"
	ActionStartBrowse  ActionTag = "start-browse"
	ActionSkipPhoto    ActionTag = "skip-photo"
	ActionConfirmImage ActionTag = "confirm-image"
	ActionDeclineImage ActionTag = "decline-image"
)

// ChatMessage is one transcript entry. The transcript is append-only.
type ChatMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
	// PhotoDataURI echoes an uploaded photo back on user messages.
	PhotoDataURI string `json:"photoDataUri,omitempty"`
	// Book is attached to bot/system messages that display a listing.
	Book *Book `json:"book,omitempty"`
	// Actions are the tags the client may dispatch in response.
	Actions []ActionTag `json:"actions,omitempty"`
}

// ConversationState is the finite-state-machine state of one chat session.
type ConversationState string

const (
	StateIdle           ConversationState = "IDLE"
	StateAwaitingAction ConversationState = "AWAITING_ACTION"

	StateSellingAwaitingPhoto             ConversationState = "SELLING_AWAITING_PHOTO"
	StateSellingAwaitingImageConfirmation ConversationState = "SELLING_AWAITING_CONFIRMATION_FROM_IMAGE"
	StateSellingAwaitingTitle             ConversationState = "SELLING_AWAITING_TITLE"
	StateSellingAwaitingClassLevel        ConversationState = "SELLING_AWAITING_CLASS_LEVEL"
	StateSellingAwaitingPublisher         ConversationState = "SELLING_AWAITING_PUBLISHER"
	StateSellingAwaitingEditionYear       ConversationState = "SELLING_AWAITING_EDITION_YEAR"
	StateSellingAwaitingPrice             ConversationState = "SELLING_AWAITING_PRICE"
	StateSellingAwaitingSellerName        ConversationState = "SELLING_AWAITING_SELLER_NAME"
	StateSellingAwaitingSellerEmail       ConversationState = "SELLING_AWAITING_SELLER_EMAIL"
	StateSellingAwaitingSellerPhone       ConversationState = "SELLING_AWAITING_SELLER_PHONE"

	StateBuyingAwaitingTitle       ConversationState = "BUYING_AWAITING_TITLE"
	StateBuyingAwaitingClassLevel  ConversationState = "BUYING_AWAITING_CLASS_LEVEL"
	StateBuyingAwaitingPublisher   ConversationState = "BUYING_AWAITING_PUBLISHER"
	StateBuyingAwaitingEditionYear ConversationState = "BUYING_AWAITING_EDITION_YEAR"
	StateBuyingAwaitingBuyerEmail  ConversationState = "BUYING_AWAITING_BUYER_EMAIL"
	StateBuyingAwaitingBuyerPhone  ConversationState = "BUYING_AWAITING_BUYER_PHONE"

	StateBrowsingBooks ConversationState = "BROWSING_BOOKS"
)

// SellingForm accumulates the fields of a book listing turn by turn.
type SellingForm struct {
	Photo        []byte
	PhotoMime    string
	PhotoDataURI string
	Title        string
	ClassLevel   string
	Publisher    string
	EditionYear  string
	SellerPrice  float64
	SellerName   string
	SellerEmail  string
	SellerPhone  string
}

// BuyingForm accumulates the fields of a buy request turn by turn.
type BuyingForm struct {
	Title       string
	ClassLevel  string
	Publisher   string
	EditionYear string
	BuyerEmail  string
	BuyerPhone  string
}

// ExtractedBookInfo is the best-effort result of AI cover analysis. Fields
// the model could not read are empty strings.
type ExtractedBookInfo struct {
	Title       string `json:"title"`
	ClassLevel  string `json:"classLevel"`
	Publisher   string `json:"publisher"`
	EditionYear string `json:"editionYear"`
}

// Empty reports whether no field at all was detected.
func (e *ExtractedBookInfo) Empty() bool {
	return e == nil || (e.Title == "" && e.ClassLevel == "" && e.Publisher == "" && e.EditionYear == "")
}

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

// Request/response types for the chat API.

type PostMessageRequest struct {
	Text string `json:"text" validate:"required,max=4000"`
}

type PostActionRequest struct {
	Action string `json:"action" validate:"required"`
}

type PostPhotoRequest struct {
	ImageData string `json:"imageData" validate:"required,base64"`
	MimeType  string `json:"mimeType" validate:"omitempty,oneof=image/jpeg image/png image/webp"`
}

// SessionResponse is returned on session creation and transcript reads.
type SessionResponse struct {
	SessionID string            `json:"sessionId"`
	State     ConversationState `json:"state"`
	Messages  []ChatMessage     `json:"messages"`
}

// TurnResponse carries the messages appended by one conversation turn.
type TurnResponse struct {
	SessionID string            `json:"sessionId"`
	State     ConversationState `json:"state"`
	Messages  []ChatMessage     `json:"messages"`
}

// BookListing is the buyer-facing view of a book, with the derived price.
type BookListing struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	ClassLevel   string  `json:"classLevel"`
	Publisher    string  `json:"publisher"`
	EditionYear  string  `json:"editionYear"`
	TotalPrice   float64 `json:"totalPrice"`
	PhotoDataURI string  `json:"photoDataUri,omitempty"`
}

// ListBooksResponse is the response for GET /v1/books.
type ListBooksResponse struct {
	Items []BookListing `json:"items"`
	Count int           `json:"count"`
}
