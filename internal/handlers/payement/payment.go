package pa

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"myshop_back_end/internal/cache"
	"myshop_back_end/internal/models"
	"myshop_back_end/internal/orders"
	"myshop_back_end/internal/utils"

	"github.com/gin-gonic/gin"
)

var svc *orders.Service

// Init injecte le service de commandes partagé
func Init(s *orders.Service) {
	svc = s
}

// ✅ Crée une commande eSewa (unpaid) et prépare le formulaire de paiement signé
func InitiateEsewa(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Utilisateur non authentifié"})
		return
	}

	var req struct {
		Items         []models.OrderItem `json:"items" binding:"required"`
		FullName      string             `json:"full_name"`
		PhoneNumber   string             `json:"phone_number"`
		Address       string             `json:"address"`
		ShippingPrice float64            `json:"shipping_price"`
		UsePoints     bool               `json:"use_points"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	initiation, err := svc.InitiatePayment(ctx, orders.InitiatePaymentInput{
		UserID: userID,
		Items:  req.Items,
		Shipping: orders.ShippingInfo{
			FullName:    req.FullName,
			PhoneNumber: req.PhoneNumber,
			Address:     req.Address,
		},
		ShippingPrice: req.ShippingPrice,
		UsePoints:     req.UsePoints,
	})

	if err != nil {
		switch {
		case errors.Is(err, orders.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Utilisateur introuvable"})
		case errors.Is(err, orders.ErrInsufficientPoints):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Minimum 10 points requis pour une utilisation"})
		case errors.Is(err, orders.ErrProductNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Produit introuvable"})
		case errors.Is(err, orders.ErrEmptyOrder), errors.Is(err, orders.ErrInvalidQuantity), errors.Is(err, orders.ErrMissingShipping):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Println("❌ Erreur initiation eSewa:", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur initiation paiement"})
		}
		return
	}

	log.Printf("💳 Paiement eSewa initié : commande %s (%.2f Rs) pour %s",
		initiation.Order.ID, initiation.Order.TotalAmount, userID)

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"order":        initiation.Order,
		"payment_data": initiation.PaymentData,
		"qr_code":      initiation.QRCode,
	})
}

// ✅ Callback de vérification eSewa (redirection navigateur, pas d'auth)
func VerifyEsewa(c *gin.Context) {
	data := c.Query("data")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	result, err := svc.VerifyPayment(ctx, data)
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrMissingPayload):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Données de transaction manquantes ou illisibles"})
		case errors.Is(err, orders.ErrTransactionIncomplete):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Transaction non complétée"})
		case errors.Is(err, orders.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		default:
			log.Println("❌ Erreur vérification eSewa:", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur vérification paiement"})
		}
		return
	}

	if result.AlreadyPaid {
		log.Printf("ℹ️ Callback eSewa rejoué pour la commande %s, déjà payée", result.OrderID)
	} else {
		log.Printf("✅ Paiement eSewa confirmé : commande %s (+%d points)", result.OrderID, result.PointsEarned)
		sendConfirmationEmail(result.Order)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Paiement vérifié avec succès",
		"order_id":      result.OrderID,
		"points_earned": result.PointsEarned,
	})
}

// sendConfirmationEmail envoie la confirmation de paiement (async)
func sendConfirmationEmail(order *models.Order) {
	if order == nil {
		return
	}

	user, err := cache.GetUserFromCache(order.UserID)
	if err != nil || user.Email == "" {
		return
	}

	email := user.Email
	go func() {
		if err := utils.SendPaymentConfirmationEmail(order, email); err != nil {
			log.Printf("⚠️ Erreur envoi email confirmation paiement: %v", err)
		}
	}()
}

// ❌ Annule une commande tant qu'elle n'est pas payée
func CancelOrder(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Utilisateur non authentifié"})
		return
	}

	orderID := c.Param("orderId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := svc.CancelOrder(ctx, orderID); err != nil {
		switch {
		case errors.Is(err, orders.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		case errors.Is(err, orders.ErrNotCancelable):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Commande déjà payée, annulation impossible"})
		default:
			log.Println("❌ Erreur annulation commande:", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur annulation commande"})
		}
		return
	}

	log.Printf("🗑️ Commande %s annulée par %s", orderID, userID)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Commande annulée",
	})
}
