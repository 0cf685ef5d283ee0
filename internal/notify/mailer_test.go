package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AMKLAZ/Bibliotrocs/internal/models"
)

// TestNewBookBody tests the admin email for a new listing
func TestNewBookBody(t *testing.T) {
	// Arrange
	book := &models.Book{
		Title:       "Physique 3e",
		ClassLevel:  "3e",
		Publisher:   "Nathan",
		EditionYear: "2022",
		SellerPrice: 2000,
		SellerName:  "Jean Dupont",
		SellerEmail: "jean@test.com",
		SellerPhone: "0700000000",
	}

	// Act
	subject := NewBookSubject(book)
	body := NewBookBody(book, 2500)

	// Assert
	assert.Equal(t, "Nouveau livre en vente: Physique 3e", subject)
	assert.Contains(t, body, "Prix vendeur: 2000 F CFA")
	assert.Contains(t, body, "Prix affiché à l'acheteur (avec frais): 2500 F CFA")
	assert.Contains(t, body, "Aucune photo fournie.")

	// Act - with a photo attached
	book.PhotoDataURI = "data:image/jpeg;base64,abcd"
	body = NewBookBody(book, 2500)

	// Assert
	assert.Contains(t, body, "Une photo du livre a été fournie.")
}

// TestNewRequestBody tests the admin email for a new buy request
func TestNewRequestBody(t *testing.T) {
	// Arrange
	request := &models.BuyRequest{
		Title:       "Maths 5e",
		ClassLevel:  "5e",
		Publisher:   "Hachette",
		EditionYear: "2020",
		BuyerEmail:  "acheteur@test.com",
		BuyerPhone:  "0711111111",
	}

	// Act
	subject := NewRequestSubject(request)
	body := NewRequestBody(request)

	// Assert
	assert.Equal(t, "Nouvelle demande d'achat: Maths 5e", subject)
	assert.Contains(t, body, "Titre recherché: Maths 5e")
	assert.Contains(t, body, "Email: acheteur@test.com")
}
