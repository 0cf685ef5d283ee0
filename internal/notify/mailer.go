// Package notify delivers administrative notifications about marketplace
// activity. Delivery is currently simulated: the formatted email is written
// to the structured log, matching the behavior of the platform this service
// replaces. A real SMTP or provider-backed Mailer can be dropped in behind
// the same interface.
package notify

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/AMKLAZ/Bibliotrocs/internal/models"
)

// adminRecipients is the fixed distribution list for admin notifications.
var adminRecipients = []string{
	"contacts@leslapinsbleus.site",
	"leslapinsbleus20212022@gmail.com",
	"danxome.production@gmail.com",
}

// Mailer sends an admin notification. Failures are reported to the caller
// but must never block the submission that triggered them.
type Mailer interface {
	SendAdminNotification(subject, body string) error
}

// LogMailer simulates email delivery by logging the full message.
type LogMailer struct{}

// NewLogMailer creates a LogMailer.
func NewLogMailer() *LogMailer {
	return &LogMailer{}
}

// SendAdminNotification logs the formatted admin email.
func (m *LogMailer) SendAdminNotification(subject, body string) error {
	slog.Info("Admin email (simulated)",
		"recipients", strings.Join(adminRecipients, ", "),
		"subject", subject,
		"body", body)
	return nil
}

// NewBookSubject returns the admin email subject for a new listing.
func NewBookSubject(book *models.Book) string {
	return fmt.Sprintf("Nouveau livre en vente: %s", book.Title)
}

// NewBookBody formats the admin email body for a new listing. totalPrice is
// the buyer-facing price with the service fee included.
func NewBookBody(book *models.Book, totalPrice float64) string {
	photoLine := "Aucune photo fournie."
	if book.PhotoDataURI != "" {
		photoLine = "Une photo du livre a été fournie."
	}

	return fmt.Sprintf(`Un nouveau livre a été mis en vente sur BiblioTroc:

Titre: %s
Classe/Niveau: %s
Maison d'édition: %s
Année d'édition: %s
Prix vendeur: %.0f F CFA
Prix affiché à l'acheteur (avec frais): %.0f F CFA

Informations du vendeur:
Nom: %s
Email: %s
Téléphone: %s
%s

Cordialement,
L'équipe BiblioTroc`,
		book.Title, book.ClassLevel, book.Publisher, book.EditionYear,
		book.SellerPrice, totalPrice,
		book.SellerName, book.SellerEmail, book.SellerPhone,
		photoLine)
}

// NewRequestSubject returns the admin email subject for a new buy request.
func NewRequestSubject(request *models.BuyRequest) string {
	return fmt.Sprintf("Nouvelle demande d'achat: %s", request.Title)
}

// NewRequestBody formats the admin email body for a new buy request.
func NewRequestBody(request *models.BuyRequest) string {
	return fmt.Sprintf(`Une nouvelle demande d'achat a été enregistrée sur BiblioTroc:

Titre recherché: %s
Classe/Niveau: %s
Maison d'édition: %s
Année d'édition souhaitée: %s

Informations de l'acheteur:
Email: %s
Téléphone: %s

Cordialement,
L'équipe BiblioTroc`,
		request.Title, request.ClassLevel, request.Publisher, request.EditionYear,
		request.BuyerEmail, request.BuyerPhone)
}
