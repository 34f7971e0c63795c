package user

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"myshop_back_end/internal/cache"
	"myshop_back_end/internal/middleware"
	"myshop_back_end/internal/models"
	"myshop_back_end/internal/orders"

	"github.com/gin-gonic/gin"
)

var svc *orders.Service

// Init injecte le service de commandes partagé
func Init(s *orders.Service) {
	svc = s
}

// PlaceOrder crée une commande (COD par défaut)
func PlaceOrder(c *gin.Context) {
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
		PaymentMethod string             `json:"payment_method"`
		UsePoints     bool               `json:"use_points"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	order, err := svc.PlaceOrder(ctx, orders.PlaceOrderInput{
		UserID: userID,
		Items:  req.Items,
		Shipping: orders.ShippingInfo{
			FullName:    req.FullName,
			PhoneNumber: req.PhoneNumber,
			Address:     req.Address,
		},
		ShippingPrice: req.ShippingPrice,
		PaymentMethod: req.PaymentMethod,
		UsePoints:     req.UsePoints,
	})

	if err != nil {
		var stockErr *orders.InsufficientStockError
		switch {
		case errors.Is(err, orders.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Utilisateur introuvable"})
		case errors.Is(err, orders.ErrInsufficientPoints):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Minimum 10 points requis pour une utilisation"})
		case errors.Is(err, orders.ErrProductNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Produit introuvable"})
		case errors.As(err, &stockErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Stock insuffisant", "product": stockErr.ProductName})
		case errors.Is(err, orders.ErrEmptyOrder), errors.Is(err, orders.ErrInvalidQuantity), errors.Is(err, orders.ErrMissingShipping):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			log.Printf("❌ Erreur création commande: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur création commande"})
		}
		return
	}

	log.Printf("✅ Commande %s créée (%s, %.2f Rs) pour %s", order.ID, order.PaymentMethod, order.TotalAmount, userID)

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Commande créée avec succès",
		"order":   order,
	})
}

// GetMyOrders récupère toutes les commandes de l'utilisateur connecté
func GetMyOrders(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Utilisateur non authentifié"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	userOrders, err := svc.ListUserOrders(ctx, userID)
	if err != nil {
		log.Println("❌ Erreur récupération commandes:", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur récupération commandes"})
		return
	}

	// ✅ Enrichir avec les noms de produits (cache Redis)
	productIDs := []string{}
	for _, order := range userOrders {
		for _, item := range order.Items {
			if item.Name == "" {
				productIDs = append(productIDs, item.ProductID)
			}
		}
	}

	if len(productIDs) > 0 {
		names := cache.GetProductNamesFromCache(productIDs)
		for i := range userOrders {
			for j := range userOrders[i].Items {
				if userOrders[i].Items[j].Name == "" {
					userOrders[i].Items[j].Name = names[userOrders[i].Items[j].ProductID]
				}
			}
		}
	}

	log.Printf("✅ %d commandes trouvées pour user %s", len(userOrders), userID)

	c.JSON(http.StatusOK, gin.H{
		"orders": userOrders,
	})
}

// GetOrderByID récupère une commande spécifique par ID
func GetOrderByID(c *gin.Context) {
	userID := c.GetString("user_id")
	orderID := c.Param("id")

	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Utilisateur non authentifié"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	// ✅ Sécurité : on vérifie que la commande appartient bien à l'utilisateur
	order, err := svc.GetOrder(ctx, userID, orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		return
	}

	c.JSON(http.StatusOK, order)
}

// CheckReviewEligibility répond si l'utilisateur peut laisser un avis sur un
// produit. Tolérant : toute absence ou invalidité de token répond
// eligible=false plutôt qu'une erreur.
func CheckReviewEligibility(c *gin.Context) {
	productID := c.Param("productId")

	userID, ok := middleware.UserIDFromToken(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"eligible": false})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	eligible, err := svc.CheckReviewEligibility(ctx, userID, productID)
	if err != nil {
		// Fail-closed : jamais d'erreur exposée sur ce endpoint
		c.JSON(http.StatusOK, gin.H{"eligible": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"eligible": eligible})
}
