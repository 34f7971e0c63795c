package models

import (
	"time"

	"github.com/gocql/gocql"
)

// Méthodes de paiement acceptées
const (
	PaymentMethodCOD   = "COD"
	PaymentMethodEsewa = "eSewa"
)

// États de paiement (monotone : unpaid → paid, jamais l'inverse)
const (
	PaymentStatusUnpaid = "unpaid"
	PaymentStatusPaid   = "paid"
)

// États de livraison
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

type OrderItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name,omitempty"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"` // prix verrouillé au moment de l'achat
}

// StatusTimeline trace les horodatages de chaque transition
type StatusTimeline struct {
	ProcessingAt *time.Time `json:"processing_at,omitempty"`
	ShippedAt    *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt  *time.Time `json:"delivered_at,omitempty"`
}

type Order struct {
	ID     gocql.UUID  `json:"id"`
	UserID string      `json:"user_id"`
	Items  []OrderItem `json:"items"`

	// --- Calculs financiers ---
	SubTotal      float64 `json:"sub_total"`
	Discount      float64 `json:"discount"` // valeur en Rs des points utilisés
	ShippingPrice float64 `json:"shipping_price"`
	TotalAmount   float64 `json:"total_amount"` // subTotal - discount + shipping

	// --- Suivi Style Perks ---
	PointsUsed    int  `json:"points_used"`
	PointsEarned  int  `json:"points_earned"`
	PointsAccrued bool `json:"points_accrued"` // garde-fou : crédité une seule fois

	// Garde-fou symétrique côté stock : le stock d'une commande part une
	// seule fois, quel que soit le chemin qui l'engage (placement COD,
	// vérification eSewa ou passage en préparation par un admin).
	StockEngaged bool `json:"stock_engaged"`

	// --- Snapshot livraison (indépendant du profil utilisateur) ---
	FullName    string `json:"full_name"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`

	PaymentMethod string `json:"payment_method"`
	PaymentStatus string `json:"payment_status"`
	Status        string `json:"status"`

	Timeline  StatusTimeline `json:"status_timeline"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt *time.Time     `json:"updated_at,omitempty"`
}
