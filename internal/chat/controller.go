// Package chat implements the conversation engine: a per-session finite
// state machine that collects listing and buy-request fields turn by turn,
// submits them to the book store, and drains the store's notification queue
// into the transcript.
package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/AMKLAZ/Bibliotrocs/internal/ai"
	"github.com/AMKLAZ/Bibliotrocs/internal/models"
	"github.com/AMKLAZ/Bibliotrocs/internal/store"
)

// maxFreeTextLength caps free-form input forwarded to the AI collaborator.
const maxFreeTextLength = 1000

// mainActions are the three entry-point actions offered after every
// completed flow.
var mainActions = []models.ActionTag{models.ActionStartSell, models.ActionStartBuy, models.ActionStartBrowse}

// Conversation is one chat session. Exactly one turn is processed at a
// time; the mutex serializes turns, matching the single-writer model of the
// conversation contract.
type Conversation struct {
	mu sync.Mutex

	id          string
	store       *store.BookStore
	assistant   ai.Assistant
	typingDelay time.Duration

	state         models.ConversationState
	selling       models.SellingForm
	buying        models.BuyingForm
	tempExtracted *models.ExtractedBookInfo
	messages      []models.ChatMessage
}

// NewConversation creates a conversation in the initial IDLE state. Call
// Greet to produce the opening message and enter AWAITING_ACTION.
func NewConversation(bookStore *store.BookStore, assistant ai.Assistant, typingDelay time.Duration) *Conversation {
	return &Conversation{
		id:          uuid.NewString(),
		store:       bookStore,
		assistant:   assistant,
		typingDelay: typingDelay,
		state:       models.StateIdle,
	}
}

// ID returns the session id.
func (c *Conversation) ID() string {
	return c.id
}

// State returns the current FSM state.
func (c *Conversation) State() models.ConversationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Messages returns a copy of the full transcript.
func (c *Conversation) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	transcript := make([]models.ChatMessage, len(c.messages))
	copy(transcript, c.messages)
	return transcript
}

// Greet produces the opening bot message and moves to AWAITING_ACTION.
func (c *Conversation) Greet(ctx context.Context) []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	mark := len(c.messages)
	c.greet()
	return c.newSince(mark)
}

// HandleText processes one free-text user turn.
func (c *Conversation) HandleText(ctx context.Context, text string) []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	mark := len(c.messages)
	c.addUser(text, "")
	c.typing()

	switch c.state {
	case models.StateAwaitingAction:
		c.routeFreeText(ctx, text)

	case models.StateSellingAwaitingPhoto:
		c.addBot("Veuillez télécharger une image ou cliquer sur 'Passer l'étape photo'.", nil, models.ActionSkipPhoto)

	case models.StateSellingAwaitingImageConfirmation:
		c.addBot("Veuillez utiliser les boutons 'Oui' ou 'Non' pour confirmer les informations.", nil,
			models.ActionConfirmImage, models.ActionDeclineImage)

	case models.StateSellingAwaitingTitle:
		c.selling.Title = text
		c.addBot("Noté. Quelle est la classe ou le niveau scolaire concerné ? (ex: 4e, Terminale A)", nil)
		c.state = models.StateSellingAwaitingClassLevel

	case models.StateSellingAwaitingClassLevel:
		c.selling.ClassLevel = text
		c.addBot("Quelle est la maison d'édition ?", nil)
		c.state = models.StateSellingAwaitingPublisher

	case models.StateSellingAwaitingPublisher:
		c.selling.Publisher = text
		c.addBot("Quelle est l'année d'édition ? (ex: 2021)", nil)
		c.state = models.StateSellingAwaitingEditionYear

	case models.StateSellingAwaitingEditionYear:
		c.selling.EditionYear = text
		c.askSellingPrice()

	case models.StateSellingAwaitingPrice:
		price, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil || price <= 0 {
			c.addBot("Veuillez entrer un prix valide (nombre positif).", nil)
			break
		}
		c.selling.SellerPrice = price
		c.addBot("Quel est votre nom complet ?", nil)
		c.state = models.StateSellingAwaitingSellerName

	case models.StateSellingAwaitingSellerName:
		c.selling.SellerName = text
		c.addBot("Quelle est votre adresse email ?", nil)
		c.state = models.StateSellingAwaitingSellerEmail

	case models.StateSellingAwaitingSellerEmail:
		if !looksLikeEmail(text) {
			c.addBot("Veuillez entrer une adresse email valide.", nil)
			break
		}
		c.selling.SellerEmail = text
		c.addBot("Quel est votre numéro de téléphone ?", nil)
		c.state = models.StateSellingAwaitingSellerPhone

	case models.StateSellingAwaitingSellerPhone:
		c.selling.SellerPhone = text
		c.submitSale(ctx)

	case models.StateBuyingAwaitingTitle:
		c.buying.Title = text
		c.addBot("Quelle est la classe ou le niveau scolaire ?", nil)
		c.state = models.StateBuyingAwaitingClassLevel

	case models.StateBuyingAwaitingClassLevel:
		c.buying.ClassLevel = text
		c.addBot("Quelle est la maison d'édition souhaitée ?", nil)
		c.state = models.StateBuyingAwaitingPublisher

	case models.StateBuyingAwaitingPublisher:
		c.buying.Publisher = text
		c.addBot("Quelle est l'année d'édition souhaitée ?", nil)
		c.state = models.StateBuyingAwaitingEditionYear

	case models.StateBuyingAwaitingEditionYear:
		c.buying.EditionYear = text
		c.addBot("Quelle est votre adresse email ?", nil)
		c.state = models.StateBuyingAwaitingBuyerEmail

	case models.StateBuyingAwaitingBuyerEmail:
		if !looksLikeEmail(text) {
			c.addBot("Veuillez entrer une adresse email valide.", nil)
			break
		}
		c.buying.BuyerEmail = text
		c.addBot("Quel est votre numéro de téléphone ?", nil)
		c.state = models.StateBuyingAwaitingBuyerPhone

	case models.StateBuyingAwaitingBuyerPhone:
		c.buying.BuyerPhone = text
		c.submitBuyRequest(ctx)

	default:
		c.addBot("Je suis un peu perdu. Essayons autre chose.", nil)
		c.typing()
		c.greet()
	}

	return c.newSince(mark)
}

// HandlePhoto processes a photo upload turn. Only the photo-awaiting state
// accepts it; anywhere else the user is asked for text.
func (c *Conversation) HandlePhoto(ctx context.Context, image []byte, mimeType string) []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	mark := len(c.messages)
	preview := photoDataURI(image, mimeType)
	c.addUser("Photo envoyée", preview)
	c.typing()

	if c.state != models.StateSellingAwaitingPhoto {
		c.addBot("Je n'ai pas compris votre demande. Veuillez utiliser du texte.", nil)
		return c.newSince(mark)
	}

	c.addBot("Photo reçue. Je vais essayer d'analyser l'image pour récupérer les informations du livre...", nil)
	c.selling.Photo = image
	c.selling.PhotoMime = mimeType
	c.selling.PhotoDataURI = preview

	info, err := c.assistant.ExtractBookInfo(ctx, image, mimeType)
	if err != nil || info.Empty() {
		// The AI failure never reaches the state machine's control flow:
		// both paths fall back to manual entry.
		if err != nil && err != ai.ErrNoResult {
			slog.Error("Image analysis failed", "session_id", c.id, "error", err)
			c.addBot("Une erreur est survenue lors de l'analyse de l'image. Quel est le titre complet du livre ?", nil)
		} else {
			c.addBot("Je n'ai pas pu extraire automatiquement les informations de l'image, ou les informations sont incomplètes. Quel est le titre complet du livre ?", nil)
		}
		c.state = models.StateSellingAwaitingTitle
		return c.newSince(mark)
	}

	c.tempExtracted = info
	c.addBot(formatExtractionSummary(info), nil, models.ActionConfirmImage, models.ActionDeclineImage)
	c.state = models.StateSellingAwaitingImageConfirmation

	return c.newSince(mark)
}

// HandleAction dispatches a tagged pending action. Unknown tags return an
// error; known tags arriving in the wrong state re-prompt.
func (c *Conversation) HandleAction(ctx context.Context, tag models.ActionTag) ([]models.ChatMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mark := len(c.messages)

	switch tag {
	case models.ActionStartSell:
		c.addUser("Je veux vendre un livre.", "")
		c.typing()
		c.startSell()

	case models.ActionStartBuy:
		c.addUser("Je veux acheter un livre.", "")
		c.typing()
		c.startBuy()

	case models.ActionStartBrowse:
		c.addUser("Je veux voir les livres disponibles.", "")
		c.typing()
		c.startBrowse()

	case models.ActionSkipPhoto:
		if c.state != models.StateSellingAwaitingPhoto {
			return nil, fmt.Errorf("action %s not available in state %s", tag, c.state)
		}
		c.addUser("Je passe l'étape photo.", "")
		c.typing()
		c.selling.Photo = nil
		c.selling.PhotoMime = ""
		c.selling.PhotoDataURI = ""
		c.addBot("D'accord, passons à la suite. Quel est le titre complet du livre ?", nil)
		c.state = models.StateSellingAwaitingTitle

	case models.ActionConfirmImage, models.ActionDeclineImage:
		if c.state != models.StateSellingAwaitingImageConfirmation {
			return nil, fmt.Errorf("action %s not available in state %s", tag, c.state)
		}
		c.confirmExtractedInfo(tag == models.ActionConfirmImage)

	default:
		return nil, fmt.Errorf("unknown action %q", tag)
	}

	return c.newSince(mark), nil
}

// routeFreeText implements the AWAITING_ACTION keyword routing: "vendre"
// starts the sell flow, "acheter" the buy flow, "parcourir"/"voir"/"liste"
// the browse flow, anything else goes to the AI collaborator.
func (c *Conversation) routeFreeText(ctx context.Context, text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		c.addBot("Veuillez taper une action ou une question.", nil)
		c.typing()
		c.greet()
		return
	}

	lowered := strings.ToLower(trimmed)
	switch {
	case strings.Contains(lowered, "vendre"):
		c.startSell()
	case strings.Contains(lowered, "acheter"):
		c.startBuy()
	case strings.Contains(lowered, "parcourir"), strings.Contains(lowered, "voir"), strings.Contains(lowered, "liste"):
		c.startBrowse()
	default:
		prompt := truncateText(trimmed, maxFreeTextLength)
		reply := c.assistant.GenerateText(ctx, prompt)
		c.addBot(reply, nil)
		c.typing()
		c.addBot("Que souhaitez-vous faire maintenant ?", nil, mainActions...)
		// State remains AWAITING_ACTION.
	}
}

// greet sends the opening message and enters AWAITING_ACTION.
func (c *Conversation) greet() {
	c.addBot("Bonjour ! Je suis BiblioTroc, votre assistant pour l'échange et la vente de livres scolaires. Que souhaitez-vous faire aujourd'hui ?", nil, mainActions...)
	c.state = models.StateAwaitingAction
}

// startSell resets the selling accumulator and asks for the cover photo.
func (c *Conversation) startSell() {
	c.selling = models.SellingForm{}
	c.tempExtracted = nil
	c.addBot("Super ! Pour commencer, veuillez envoyer une photo de la couverture du livre.", nil, models.ActionSkipPhoto)
	c.state = models.StateSellingAwaitingPhoto
}

// startBuy resets the buying accumulator and asks for the title.
func (c *Conversation) startBuy() {
	c.buying = models.BuyingForm{}
	c.addBot("Entendu. Quel est le titre complet du livre que vous recherchez ?", nil)
	c.state = models.StateBuyingAwaitingTitle
}

// startBrowse renders the available-listings snapshot and returns to
// AWAITING_ACTION. BROWSING_BOOKS is transient.
func (c *Conversation) startBrowse() {
	c.state = models.StateBrowsingBooks

	available := c.store.ListAvailableBooks()
	if len(available) > 0 {
		c.addBot(fmt.Sprintf("Voici les livres actuellement disponibles (%d) :", len(available)), nil)
		for i := range available {
			book := available[i]
			c.addBot(fmt.Sprintf("%s - Prix total: %.0fF CFA", book.Title, c.store.TotalPrice(&book)), &book)
		}
	} else {
		c.addBot("Il n'y a aucun livre disponible pour le moment. Revenez plus tard !", nil)
	}

	c.typing()
	c.state = models.StateAwaitingAction
	c.addBot("Que souhaitez-vous faire d'autre ?", nil, mainActions...)
}

// askSellingPrice asks for the price, quoting the service fee.
func (c *Conversation) askSellingPrice() {
	c.addBot(fmt.Sprintf("Quel est le prix que vous souhaitez pour ce livre (en F CFA) ?\nUn complément de %.0fF CFA sera ajouté à ce prix comme frais de service pour l'acheteur.", c.store.ServiceFee()), nil)
	c.state = models.StateSellingAwaitingPrice
}

// confirmExtractedInfo resolves the AI extraction confirmation. Confirming
// copies all candidate fields, including empty ones, into the selling
// accumulator and skips to the price question; declining discards them and
// resumes manual entry at the title question.
func (c *Conversation) confirmExtractedInfo(confirmed bool) {
	if confirmed {
		c.addUser("Oui, c'est correct.", "")
	} else {
		c.addUser("Non, je vais les saisir manuellement.", "")
	}
	c.typing()

	if confirmed && c.tempExtracted != nil {
		c.selling.Title = c.tempExtracted.Title
		c.selling.ClassLevel = c.tempExtracted.ClassLevel
		c.selling.Publisher = c.tempExtracted.Publisher
		c.selling.EditionYear = c.tempExtracted.EditionYear
		c.tempExtracted = nil
		c.addBot(fmt.Sprintf("Parfait ! Quel est le prix que vous souhaitez pour ce livre (en F CFA) ?\nUn complément de %.0fF CFA sera ajouté comme frais de service.", c.store.ServiceFee()), nil)
		c.state = models.StateSellingAwaitingPrice
		return
	}

	c.tempExtracted = nil
	c.selling.Title = ""
	c.selling.ClassLevel = ""
	c.selling.Publisher = ""
	c.selling.EditionYear = ""
	c.addBot("D'accord. Quel est le titre complet du livre ?", nil)
	c.state = models.StateSellingAwaitingTitle
}

// submitSale validates the accumulated selling form and hands it to the
// store, then drains the resulting notifications into the transcript.
func (c *Conversation) submitSale(ctx context.Context) {
	form := c.selling

	if form.Title == "" || form.ClassLevel == "" || form.Publisher == "" || form.EditionYear == "" ||
		form.SellerPrice <= 0 || form.SellerName == "" || form.SellerEmail == "" || form.SellerPhone == "" {
		c.addBot("Il semble que des informations soient manquantes. Veuillez vérifier et recommencer le processus de vente si besoin.", nil)
		c.selling = models.SellingForm{}
		c.typing()
		c.greet()
		return
	}

	book, err := c.store.AddBookForSale(ctx, form)
	if err != nil {
		slog.Error("Failed to submit sale", "session_id", c.id, "error", err)
		c.store.AddNotification(models.Notification{
			Type:    models.NotificationError,
			Message: "Une erreur s'est produite lors de la mise en vente.",
		})
	} else {
		c.addBot(fmt.Sprintf("Merci ! Votre livre \"%s\" a été mis en vente. Le prix demandé est de %.0fF CFA. L'acheteur verra un prix de %.0fF CFA.",
			book.Title, book.SellerPrice, c.store.TotalPrice(book)), nil)
	}

	c.drainNotifications()

	c.selling = models.SellingForm{}
	c.state = models.StateAwaitingAction
	c.typing()
	c.addBot("Que souhaitez-vous faire maintenant ?", nil, mainActions...)
}

// submitBuyRequest hands the accumulated buying form to the store and
// drains the resulting notifications into the transcript.
func (c *Conversation) submitBuyRequest(ctx context.Context) {
	form := c.buying

	if _, _, err := c.store.AddBuyRequest(ctx, form); err != nil {
		slog.Error("Failed to submit buy request", "session_id", c.id, "error", err)
		c.store.AddNotification(models.Notification{
			Type:    models.NotificationError,
			Message: "Une erreur s'est produite lors de la soumission de votre demande.",
		})
	}

	c.drainNotifications()

	c.buying = models.BuyingForm{}
	c.state = models.StateAwaitingAction
	c.typing()
	c.addBot("Que souhaitez-vous faire maintenant ?", nil, mainActions...)
}

// drainNotifications pops the store's queue in FIFO order, turning each
// notification into exactly one system transcript entry. The queue is taken
// atomically, so a concurrent session can never render the same notification.
func (c *Conversation) drainNotifications() {
	for _, notif := range c.store.DrainNotifications() {
		c.typing()

		text := notif.Message
		var book *models.Book

		switch notif.Type {
		case models.NotificationMatch:
			if notif.BookDetails != nil {
				text += fmt.Sprintf("\nLivre: %s\nPrix Total: %.0fF CFA.", notif.BookDetails.Title, notif.TotalPrice)
				text += fmt.Sprintf("\nContactez le vendeur/acheteur via WhatsApp: %s", notif.ContactNumber)
				if notif.BuyerEmail != "" {
					text += fmt.Sprintf("\n(Notification également envoyée à %s)", notif.BuyerEmail)
				}
				book = notif.BookDetails
			}
		case models.NotificationSuccess:
			book = notif.BookDetails
		}

		c.addSystem(text, book)
	}
}

// typing applies the cosmetic bot-typing pause. Zero duration disables it;
// it carries no correctness semantics.
func (c *Conversation) typing() {
	if c.typingDelay > 0 {
		time.Sleep(c.typingDelay)
	}
}

func (c *Conversation) addUser(text, photoURI string) {
	c.append(models.ChatMessage{Text: text, Sender: models.SenderUser, PhotoDataURI: photoURI})
}

func (c *Conversation) addBot(text string, book *models.Book, actions ...models.ActionTag) {
	c.append(models.ChatMessage{Text: text, Sender: models.SenderBot, Book: book, Actions: actions})
}

func (c *Conversation) addSystem(text string, book *models.Book) {
	c.append(models.ChatMessage{Text: text, Sender: models.SenderSystem, Book: book})
}

func (c *Conversation) append(msg models.ChatMessage) {
	msg.ID = uuid.NewString()
	msg.Timestamp = time.Now()
	c.messages = append(c.messages, msg)
}

// newSince returns a copy of the messages appended after mark.
func (c *Conversation) newSince(mark int) []models.ChatMessage {
	appended := make([]models.ChatMessage, len(c.messages)-mark)
	copy(appended, c.messages[mark:])
	return appended
}

// truncateText caps s at maxBytes without splitting a UTF-8 sequence.
func truncateText(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// looksLikeEmail is the deliberately minimal syntactic check used by the
// form: the address must contain both '@' and '.'.
func looksLikeEmail(s string) bool {
	return strings.Contains(s, "@") && strings.Contains(s, ".")
}

// photoDataURI builds the embedded preview URI for an uploaded photo.
func photoDataURI(image []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
}

// formatExtractionSummary renders the AI extraction candidates for user
// confirmation, substituting "(non détecté)" for empty fields.
func formatExtractionSummary(info *models.ExtractedBookInfo) string {
	var b strings.Builder
	b.WriteString("J'ai analysé l'image et voici ce que j'ai pu lire :\n")
	b.WriteString(fmt.Sprintf("Titre: %s\n", orNotDetected(info.Title, "(non détecté)")))
	b.WriteString(fmt.Sprintf("Classe: %s\n", orNotDetected(info.ClassLevel, "(non détectée)")))
	b.WriteString(fmt.Sprintf("Maison d'édition: %s\n", orNotDetected(info.Publisher, "(non détectée)")))
	b.WriteString(fmt.Sprintf("Année d'édition: %s\n", orNotDetected(info.EditionYear, "(non détectée)")))
	b.WriteString("\nCes informations sont-elles correctes ?")
	return b.String()
}

func orNotDetected(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
