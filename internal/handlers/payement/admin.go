package pa

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"myshop_back_end/internal/cache"
	"myshop_back_end/internal/database"
	"myshop_back_end/internal/models"
	"myshop_back_end/internal/orders"
	"myshop_back_end/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gocql/gocql"
)

// UpdateOrderStatus permet à un admin de faire avancer une commande dans son
// cycle de vie (pending → processing → shipped → delivered, ou cancelled)
func UpdateOrderStatus(c *gin.Context) {
	orderID := c.Param("id")

	var req struct {
		Status string `json:"status" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Données invalides", "details": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	order, err := svc.UpdateStatus(ctx, orderID, req.Status)
	if err != nil {
		var stockErr *orders.InsufficientStockError
		switch {
		case errors.Is(err, orders.ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":          "Statut invalide",
				"valid_statuses": []string{"processing", "shipped", "delivered", "cancelled"},
			})
		case errors.Is(err, orders.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Commande introuvable"})
		case errors.Is(err, orders.ErrAlreadyDelivered):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Commande déjà livrée, statut définitif"})
		case errors.Is(err, orders.ErrInvalidTransition):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Transition de statut non autorisée"})
		case errors.As(err, &stockErr):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Stock insuffisant", "product": stockErr.ProductName})
		default:
			log.Printf("❌ Erreur mise à jour commande %s: %v", orderID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur mise à jour commande"})
		}
		return
	}

	log.Printf("✅ Commande %s mise à jour: %s", orderID, req.Status)

	// Envoyer une notification email à l'utilisateur (async)
	if user, err := cache.GetUserFromCache(order.UserID); err == nil && user.Email != "" {
		notified := *order
		email := user.Email
		go func() {
			if err := utils.SendOrderStatusEmail(&notified, email, notified.Status); err != nil {
				log.Printf("⚠️ Erreur envoi email notification: %v", err)
			}
		}()
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"order":      order,
		"status":     order.Status,
		"updated_at": order.UpdatedAt,
	})
}

// GetAllOrders permet à un admin de récupérer toutes les commandes
func GetAllOrders(c *gin.Context) {
	session, err := database.GetOrdersSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur connexion base de données"})
		return
	}

	// Récupérer toutes les commandes (attention: peut être lourd en production)
	iter := session.Query(`SELECT order_id, user_id, total_amount, payment_method, payment_status, status, created_at, updated_at
	                       FROM orders`).Iter()

	type OrderResponse struct {
		ID            string     `json:"id"`
		UserID        string     `json:"user_id"`
		TotalAmount   float64    `json:"total_amount"`
		PaymentMethod string     `json:"payment_method"`
		PaymentStatus string     `json:"payment_status"`
		Status        string     `json:"status"`
		CreatedAt     time.Time  `json:"created_at"`
		UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	}

	var all []OrderResponse
	var row OrderResponse
	var orderID gocql.UUID

	for iter.Scan(&orderID, &row.UserID, &row.TotalAmount, &row.PaymentMethod, &row.PaymentStatus, &row.Status, &row.CreatedAt, &row.UpdatedAt) {
		row.ID = orderID.String()
		all = append(all, row)
	}

	if err := iter.Close(); err != nil {
		log.Printf("❌ Erreur lecture commandes: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture commandes"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": all,
		"count":  len(all),
	})
}

// GetOrderStats retourne des statistiques sur les commandes
func GetOrderStats(c *gin.Context) {
	session, err := database.GetOrdersSession()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur connexion base de données"})
		return
	}

	// Compter les commandes par statut; le chiffre d'affaires ne compte que le payé
	byStatus := make(map[string]int)
	byMethod := make(map[string]int)
	var totalRevenue float64
	var totalOrders int

	iter := session.Query("SELECT status, payment_method, payment_status, total_amount FROM orders").Iter()

	var status, method, payStatus string
	var amount float64

	for iter.Scan(&status, &method, &payStatus, &amount) {
		byStatus[status]++
		byMethod[method]++
		if payStatus == models.PaymentStatusPaid {
			totalRevenue += amount
		}
		totalOrders++
	}

	if err := iter.Close(); err != nil {
		log.Printf("❌ Erreur lecture stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Erreur lecture statistiques"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_orders":  totalOrders,
		"total_revenue": totalRevenue,
		"by_status":     byStatus,
		"by_method":     byMethod,
	})
}
