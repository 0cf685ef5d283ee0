package chat

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AMKLAZ/Bibliotrocs/internal/ai"
	"github.com/AMKLAZ/Bibliotrocs/internal/models"
	"github.com/AMKLAZ/Bibliotrocs/internal/notify"
	"github.com/AMKLAZ/Bibliotrocs/internal/storage"
	"github.com/AMKLAZ/Bibliotrocs/internal/store"
)

// stubAssistant is a canned AI collaborator for conversation tests.
type stubAssistant struct {
	info       *models.ExtractedBookInfo
	extractErr error
	reply      string
	prompts    []string
}

func (s *stubAssistant) ExtractBookInfo(ctx context.Context, image []byte, mimeType string) (*models.ExtractedBookInfo, error) {
	return s.info, s.extractErr
}

func (s *stubAssistant) GenerateText(ctx context.Context, prompt string) string {
	s.prompts = append(s.prompts, prompt)
	if s.reply == "" {
		return "Réponse générée."
	}
	return s.reply
}

func newTestConversation(t *testing.T, assistant ai.Assistant) (*Conversation, *store.BookStore) {
	t.Helper()

	st, err := store.NewBookStore(context.Background(), storage.NewMemoryStorage(t.TempDir()), notify.NewLogMailer(), 500, "+22912345678")
	require.NoError(t, err)

	conv := NewConversation(st, assistant, 0)
	conv.Greet(context.Background())
	return conv, st
}

// lastBot returns the most recent bot message in a turn's output.
func lastBot(t *testing.T, msgs []models.ChatMessage) models.ChatMessage {
	t.Helper()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender == models.SenderBot {
			return msgs[i]
		}
	}
	t.Fatal("no bot message in turn output")
	return models.ChatMessage{}
}

// TestConversation_Greet tests the opening message and entry actions
func TestConversation_Greet(t *testing.T) {
	// Arrange
	st, err := store.NewBookStore(context.Background(), storage.NewMemoryStorage(t.TempDir()), notify.NewLogMailer(), 500, "+22912345678")
	require.NoError(t, err)
	conv := NewConversation(st, &stubAssistant{}, 0)
	assert.Equal(t, models.StateIdle, conv.State())

	// Act
	msgs := conv.Greet(context.Background())

	// Assert
	require.Len(t, msgs, 1)
	assert.Equal(t, models.SenderBot, msgs[0].Sender)
	assert.Contains(t, msgs[0].Text, "BiblioTroc")
	assert.Equal(t, []models.ActionTag{models.ActionStartSell, models.ActionStartBuy, models.ActionStartBrowse}, msgs[0].Actions)
	assert.Equal(t, models.StateAwaitingAction, conv.State())
}

// TestConversation_KeywordRouting tests free-text intent routing in AWAITING_ACTION
func TestConversation_KeywordRouting(t *testing.T) {
	testCases := []struct {
		name          string
		text          string
		expectedState models.ConversationState
	}{
		{"Sell Keyword", "je veux vendre mon livre", models.StateSellingAwaitingPhoto},
		{"Buy Keyword", "J'aimerais ACHETER un manuel", models.StateBuyingAwaitingTitle},
		{"Browse Keyword", "voir la liste", models.StateAwaitingAction},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			conv, _ := newTestConversation(t, &stubAssistant{})

			// Act
			conv.HandleText(context.Background(), tc.text)

			// Assert
			assert.Equal(t, tc.expectedState, conv.State())
		})
	}
}

// TestConversation_EmptyInputReprompts tests the empty free-text turn
func TestConversation_EmptyInputReprompts(t *testing.T) {
	// Arrange
	conv, _ := newTestConversation(t, &stubAssistant{})

	// Act
	msgs := conv.HandleText(context.Background(), "   ")

	// Assert - re-prompt then greeting, state unchanged
	require.Len(t, msgs, 3)
	assert.Equal(t, "Veuillez taper une action ou une question.", msgs[1].Text)
	assert.Contains(t, msgs[2].Text, "BiblioTroc")
	assert.Equal(t, models.StateAwaitingAction, conv.State())
}

// TestConversation_FreeTextGoesToAssistant tests the AI fallback in AWAITING_ACTION
func TestConversation_FreeTextGoesToAssistant(t *testing.T) {
	// Arrange
	conv, _ := newTestConversation(t, &stubAssistant{reply: "Les inscriptions ouvrent en septembre."})

	// Act
	msgs := conv.HandleText(context.Background(), "Quand ouvrent les inscriptions ?")

	// Assert - AI answer, then the main menu again
	require.Len(t, msgs, 3)
	assert.Equal(t, "Les inscriptions ouvrent en septembre.", msgs[1].Text)
	assert.Contains(t, msgs[2].Text, "Que souhaitez-vous faire maintenant ?")
	assert.Equal(t, models.StateAwaitingAction, conv.State())
}

// TestConversation_FreeTextTruncation tests the length cap on prompts
// forwarded to the assistant
func TestConversation_FreeTextTruncation(t *testing.T) {
	// Arrange - input over the cap whose byte boundary falls inside an
	// accented character
	assistant := &stubAssistant{}
	conv, _ := newTestConversation(t, assistant)
	long := strings.Repeat("x", 999) + "ééé"

	// Act
	conv.HandleText(context.Background(), long)

	// Assert - capped, and never cut mid-character
	require.Len(t, assistant.prompts, 1)
	prompt := assistant.prompts[0]
	assert.LessOrEqual(t, len(prompt), 1000)
	assert.True(t, utf8.ValidString(prompt), "Truncation must not split a UTF-8 sequence")
	assert.Equal(t, strings.Repeat("x", 999), prompt)
}

// TestConversation_PriceValidation tests the price turn of the selling chain
func TestConversation_PriceValidation(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		accepted bool
	}{
		{"Negative", "-5", false},
		{"Zero", "0", false},
		{"Not A Number", "abc", false},
		{"Valid", "1500", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange - walk the manual chain up to the price question
			conv, _ := newTestConversation(t, &stubAssistant{})
			_, err := conv.HandleAction(context.Background(), models.ActionStartSell)
			require.NoError(t, err)
			_, err = conv.HandleAction(context.Background(), models.ActionSkipPhoto)
			require.NoError(t, err)
			conv.HandleText(context.Background(), "Physique 3e")
			conv.HandleText(context.Background(), "3e")
			conv.HandleText(context.Background(), "Nathan")
			conv.HandleText(context.Background(), "2022")
			require.Equal(t, models.StateSellingAwaitingPrice, conv.State())

			// Act
			msgs := conv.HandleText(context.Background(), tc.input)

			// Assert
			if tc.accepted {
				assert.Equal(t, models.StateSellingAwaitingSellerName, conv.State())
				assert.Equal(t, 1500.0, conv.selling.SellerPrice)
			} else {
				assert.Equal(t, models.StateSellingAwaitingPrice, conv.State(), "Invalid price keeps the same question")
				assert.Equal(t, "Veuillez entrer un prix valide (nombre positif).", lastBot(t, msgs).Text)
			}
		})
	}
}

// TestConversation_EmailValidation tests the syntactic email check
func TestConversation_EmailValidation(t *testing.T) {
	// Arrange - buying chain up to the email question
	conv, _ := newTestConversation(t, &stubAssistant{})
	_, err := conv.HandleAction(context.Background(), models.ActionStartBuy)
	require.NoError(t, err)
	conv.HandleText(context.Background(), "Maths 5e")
	conv.HandleText(context.Background(), "5e")
	conv.HandleText(context.Background(), "Hachette")
	conv.HandleText(context.Background(), "2020")
	require.Equal(t, models.StateBuyingAwaitingBuyerEmail, conv.State())

	// Act - invalid address
	msgs := conv.HandleText(context.Background(), "not-an-email")

	// Assert
	assert.Equal(t, models.StateBuyingAwaitingBuyerEmail, conv.State())
	assert.Equal(t, "Veuillez entrer une adresse email valide.", lastBot(t, msgs).Text)

	// Act - valid address
	conv.HandleText(context.Background(), "a@b.com")

	// Assert
	assert.Equal(t, models.StateBuyingAwaitingBuyerPhone, conv.State())
}

// TestConversation_SellFlowEndToEnd tests a full manual sale through the chat
func TestConversation_SellFlowEndToEnd(t *testing.T) {
	// Arrange
	conv, st := newTestConversation(t, &stubAssistant{})

	// Act - keyword entry, skip the photo, answer every question
	conv.HandleText(context.Background(), "vendre")
	_, err := conv.HandleAction(context.Background(), models.ActionSkipPhoto)
	require.NoError(t, err)
	conv.HandleText(context.Background(), "Physique 3e")
	conv.HandleText(context.Background(), "3e")
	conv.HandleText(context.Background(), "Nathan")
	conv.HandleText(context.Background(), "2022")
	conv.HandleText(context.Background(), "2000")
	conv.HandleText(context.Background(), "Jean")
	conv.HandleText(context.Background(), "jean@test.com")
	msgs := conv.HandleText(context.Background(), "0700000000")

	// Assert - listing stored with the seller price, available
	available := st.ListAvailableBooks()
	require.Len(t, available, 1)
	assert.Equal(t, "Physique 3e", available[0].Title)
	assert.Equal(t, 2000.0, available[0].SellerPrice)
	assert.Equal(t, models.BookStatusAvailable, available[0].Status)

	// Transcript confirms the sale and quotes the derived price.
	found := false
	for _, m := range msgs {
		if m.Sender == models.SenderBot && m.Text == "Merci ! Votre livre \"Physique 3e\" a été mis en vente. Le prix demandé est de 2000F CFA. L'acheteur verra un prix de 2500F CFA." {
			found = true
		}
	}
	assert.True(t, found, "Confirmation message should quote both prices")

	// The store's success notification was drained into the transcript.
	assert.Empty(t, st.Notifications(), "Queue is empty after the drain")
	assert.Equal(t, models.StateAwaitingAction, conv.State())
}

// TestConversation_BuyFlowDrainsMatch tests that an immediate match reaches the transcript
func TestConversation_BuyFlowDrainsMatch(t *testing.T) {
	// Arrange - a matching book already listed
	conv, st := newTestConversation(t, &stubAssistant{})
	_, err := st.AddBookForSale(context.Background(), models.SellingForm{
		Title: "Maths 5e", ClassLevel: "5e", Publisher: "Hachette", EditionYear: "2020",
		SellerPrice: 1500, SellerName: "Awa", SellerEmail: "awa@test.com", SellerPhone: "0790000000",
	})
	require.NoError(t, err)
	for _, n := range st.Notifications() {
		st.ClearNotification(n.ID)
	}

	// Act
	_, err = conv.HandleAction(context.Background(), models.ActionStartBuy)
	require.NoError(t, err)
	conv.HandleText(context.Background(), "maths 5E")
	conv.HandleText(context.Background(), "5e")
	conv.HandleText(context.Background(), "HACHETTE")
	conv.HandleText(context.Background(), "2020")
	conv.HandleText(context.Background(), "acheteur@test.com")
	msgs := conv.HandleText(context.Background(), "0711111111")

	// Assert - exactly one system message rendering the match
	var system []models.ChatMessage
	for _, m := range msgs {
		if m.Sender == models.SenderSystem {
			system = append(system, m)
		}
	}
	require.Len(t, system, 1)
	assert.Contains(t, system[0].Text, "Bonne nouvelle !")
	assert.Contains(t, system[0].Text, "Prix Total: 2000F CFA.")
	assert.Contains(t, system[0].Text, "WhatsApp: +22912345678")
	assert.Contains(t, system[0].Text, "(Notification également envoyée à acheteur@test.com)")
	require.NotNil(t, system[0].Book)

	assert.Empty(t, st.Notifications())
	assert.Equal(t, models.StateAwaitingAction, conv.State())
}

// TestConversation_BrowseEmpty tests browsing with no available listings
func TestConversation_BrowseEmpty(t *testing.T) {
	// Arrange
	conv, _ := newTestConversation(t, &stubAssistant{})

	// Act
	msgs, err := conv.HandleAction(context.Background(), models.ActionStartBrowse)

	// Assert - exactly one empty-catalog message, then back to the menu
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "Il n'y a aucun livre disponible pour le moment. Revenez plus tard !", msgs[1].Text)
	assert.Contains(t, msgs[2].Text, "Que souhaitez-vous faire d'autre ?")
	assert.Equal(t, models.StateAwaitingAction, conv.State())
}

// TestConversation_BrowseListsBooks tests the per-book browse rendering
func TestConversation_BrowseListsBooks(t *testing.T) {
	// Arrange
	conv, st := newTestConversation(t, &stubAssistant{})
	_, err := st.AddBookForSale(context.Background(), models.SellingForm{
		Title: "SVT 4e", ClassLevel: "4e", Publisher: "Bordas", EditionYear: "2021",
		SellerPrice: 1000, SellerName: "Awa", SellerEmail: "awa@test.com", SellerPhone: "0790000000",
	})
	require.NoError(t, err)

	// Act
	msgs, err := conv.HandleAction(context.Background(), models.ActionStartBrowse)

	// Assert
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "Voici les livres actuellement disponibles (1) :", msgs[1].Text)
	assert.Equal(t, "SVT 4e - Prix total: 1500F CFA", msgs[2].Text)
	require.NotNil(t, msgs[2].Book)
	assert.Equal(t, "SVT 4e", msgs[2].Book.Title)
}

// TestConversation_PhotoExtractionConfirmed tests the confirm path of AI extraction
func TestConversation_PhotoExtractionConfirmed(t *testing.T) {
	// Arrange - extraction with one undetected field
	assistant := &stubAssistant{info: &models.ExtractedBookInfo{
		Title:       "Maths 5e",
		ClassLevel:  "",
		Publisher:   "Hachette",
		EditionYear: "2020",
	}}
	conv, _ := newTestConversation(t, assistant)
	_, err := conv.HandleAction(context.Background(), models.ActionStartSell)
	require.NoError(t, err)

	// Act - upload, then confirm
	msgs := conv.HandlePhoto(context.Background(), []byte("jpeg"), "image/jpeg")

	// Assert - summary shows the undetected marker and asks for confirmation
	summary := lastBot(t, msgs)
	assert.Contains(t, summary.Text, "Titre: Maths 5e")
	assert.Contains(t, summary.Text, "Classe: (non détectée)")
	assert.Equal(t, []models.ActionTag{models.ActionConfirmImage, models.ActionDeclineImage}, summary.Actions)
	assert.Equal(t, models.StateSellingAwaitingImageConfirmation, conv.State())

	confirmMsgs, err := conv.HandleAction(context.Background(), models.ActionConfirmImage)
	require.NoError(t, err)

	// Confirming copies every candidate field, empty ones included, and skips
	// straight to the price question with the shorter prompt variant.
	assert.True(t, strings.HasPrefix(lastBot(t, confirmMsgs).Text, "Parfait ! Quel est le prix"))
	assert.Contains(t, lastBot(t, confirmMsgs).Text, "Un complément de 500F CFA sera ajouté comme frais de service.")
	assert.Equal(t, "Maths 5e", conv.selling.Title)
	assert.Equal(t, "", conv.selling.ClassLevel)
	assert.Equal(t, "Hachette", conv.selling.Publisher)
	assert.Equal(t, "2020", conv.selling.EditionYear)
	assert.Equal(t, models.StateSellingAwaitingPrice, conv.State())
}

// TestConversation_PhotoExtractionDeclined tests the decline path of AI extraction
func TestConversation_PhotoExtractionDeclined(t *testing.T) {
	// Arrange
	assistant := &stubAssistant{info: &models.ExtractedBookInfo{Title: "Maths 5e", ClassLevel: "5e", Publisher: "Hachette", EditionYear: "2020"}}
	conv, _ := newTestConversation(t, assistant)
	_, err := conv.HandleAction(context.Background(), models.ActionStartSell)
	require.NoError(t, err)
	conv.HandlePhoto(context.Background(), []byte("jpeg"), "image/jpeg")

	// Act
	msgs, err := conv.HandleAction(context.Background(), models.ActionDeclineImage)

	// Assert - candidates discarded, manual entry resumes at the title
	require.NoError(t, err)
	assert.Equal(t, "", conv.selling.Title)
	assert.Equal(t, "", conv.selling.ClassLevel)
	assert.Equal(t, "D'accord. Quel est le titre complet du livre ?", lastBot(t, msgs).Text)
	assert.Equal(t, models.StateSellingAwaitingTitle, conv.State())
}

// TestConversation_MissingFieldGuard tests the submission guard when a confirmed
// extraction left a field empty
func TestConversation_MissingFieldGuard(t *testing.T) {
	// Arrange - confirm an extraction whose class level was not detected
	assistant := &stubAssistant{info: &models.ExtractedBookInfo{Title: "Maths 5e", Publisher: "Hachette", EditionYear: "2020"}}
	conv, st := newTestConversation(t, assistant)
	_, err := conv.HandleAction(context.Background(), models.ActionStartSell)
	require.NoError(t, err)
	conv.HandlePhoto(context.Background(), []byte("jpeg"), "image/jpeg")
	_, err = conv.HandleAction(context.Background(), models.ActionConfirmImage)
	require.NoError(t, err)

	// Act - answer the remaining questions and submit
	conv.HandleText(context.Background(), "1500")
	conv.HandleText(context.Background(), "Jean")
	conv.HandleText(context.Background(), "jean@test.com")
	msgs := conv.HandleText(context.Background(), "0700000000")

	// Assert - nothing stored, apology plus a fresh greeting
	assert.Empty(t, st.ListAvailableBooks())
	assert.Contains(t, lastBot(t, msgs).Text, "BiblioTroc")
	found := false
	for _, m := range msgs {
		if m.Text == "Il semble que des informations soient manquantes. Veuillez vérifier et recommencer le processus de vente si besoin." {
			found = true
		}
	}
	assert.True(t, found)
	assert.Equal(t, models.StateAwaitingAction, conv.State())
}

// TestConversation_PhotoExtractionFallbacks tests AI failure and empty-result handling
func TestConversation_PhotoExtractionFallbacks(t *testing.T) {
	testCases := []struct {
		name      string
		assistant *stubAssistant
		expected  string
	}{
		{
			name:      "Collaborator Error",
			assistant: &stubAssistant{extractErr: context.DeadlineExceeded},
			expected:  "Une erreur est survenue lors de l'analyse de l'image. Quel est le titre complet du livre ?",
		},
		{
			name:      "No Result",
			assistant: &stubAssistant{extractErr: ai.ErrNoResult},
			expected:  "Je n'ai pas pu extraire automatiquement les informations de l'image, ou les informations sont incomplètes. Quel est le titre complet du livre ?",
		},
		{
			name:      "All Fields Empty",
			assistant: &stubAssistant{info: &models.ExtractedBookInfo{}},
			expected:  "Je n'ai pas pu extraire automatiquement les informations de l'image, ou les informations sont incomplètes. Quel est le titre complet du livre ?",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			conv, _ := newTestConversation(t, tc.assistant)
			_, err := conv.HandleAction(context.Background(), models.ActionStartSell)
			require.NoError(t, err)

			// Act
			msgs := conv.HandlePhoto(context.Background(), []byte("jpeg"), "image/jpeg")

			// Assert - both paths fall back to manual title entry
			assert.Equal(t, tc.expected, lastBot(t, msgs).Text)
			assert.Equal(t, models.StateSellingAwaitingTitle, conv.State())
		})
	}
}

// TestConversation_PhotoOutsidePhotoState tests photo uploads arriving in the wrong state
func TestConversation_PhotoOutsidePhotoState(t *testing.T) {
	// Arrange
	conv, _ := newTestConversation(t, &stubAssistant{})

	// Act
	msgs := conv.HandlePhoto(context.Background(), []byte("jpeg"), "image/jpeg")

	// Assert
	assert.Equal(t, "Je n'ai pas compris votre demande. Veuillez utiliser du texte.", lastBot(t, msgs).Text)
	assert.Equal(t, models.StateAwaitingAction, conv.State())
}

// TestConversation_TextDuringPhotoState tests the re-prompt when text arrives instead of a photo
func TestConversation_TextDuringPhotoState(t *testing.T) {
	// Arrange
	conv, _ := newTestConversation(t, &stubAssistant{})
	_, err := conv.HandleAction(context.Background(), models.ActionStartSell)
	require.NoError(t, err)

	// Act
	msgs := conv.HandleText(context.Background(), "voici mon livre")

	// Assert - still waiting for the photo, skip action offered again
	reply := lastBot(t, msgs)
	assert.Equal(t, "Veuillez télécharger une image ou cliquer sur 'Passer l'étape photo'.", reply.Text)
	assert.Equal(t, []models.ActionTag{models.ActionSkipPhoto}, reply.Actions)
	assert.Equal(t, models.StateSellingAwaitingPhoto, conv.State())
}

// TestConversation_ActionValidation tests action dispatch outside its state
func TestConversation_ActionValidation(t *testing.T) {
	// Arrange
	conv, _ := newTestConversation(t, &stubAssistant{})

	// Act - skip-photo outside the photo state
	_, err := conv.HandleAction(context.Background(), models.ActionSkipPhoto)

	// Assert
	assert.Error(t, err)

	// Act - confirm-image outside the confirmation state
	_, err = conv.HandleAction(context.Background(), models.ActionConfirmImage)
	assert.Error(t, err)

	// Act - unknown tag
	_, err = conv.HandleAction(context.Background(), models.ActionTag("jump"))
	assert.Error(t, err)

	// Act - the entry actions are accepted from any state
	_, err = conv.HandleAction(context.Background(), models.ActionStartSell)
	assert.NoError(t, err)
	_, err = conv.HandleAction(context.Background(), models.ActionStartBuy)
	assert.NoError(t, err)
	assert.Equal(t, models.StateBuyingAwaitingTitle, conv.State())
}

// TestLooksLikeEmail tests the minimal address check
func TestLooksLikeEmail(t *testing.T) {
	assert.True(t, looksLikeEmail("a@b.com"))
	assert.True(t, looksLikeEmail("jean.dupont@ecole.bj"))
	assert.False(t, looksLikeEmail("not-an-email"))
	assert.False(t, looksLikeEmail("missing-dot@domain"))
	assert.False(t, looksLikeEmail("missing.at.sign"))
}
