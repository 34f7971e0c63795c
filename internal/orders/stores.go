package orders

import (
	"context"
	"time"

	"myshop_back_end/internal/models"
)

// Les stores sont les seuls points de mutation partagée (solde de points,
// stock produit). Toutes les écritures concurrentes passent par des
// opérations conditionnelles atomiques côté implémentation, jamais par des
// séquences lecture-modification-écriture traversant le réseau.

// UserStore expose la projection "rewards" d'un utilisateur.
type UserStore interface {
	FindByID(ctx context.Context, userID string) (*models.User, error)
	// IncrementPoints applique un delta atomique (positif ou négatif) au
	// solde. Le solde ne descend jamais sous zéro.
	IncrementPoints(ctx context.Context, userID string, delta int) error
}

// ProductStore expose le catalogue réduit aux besoins du cycle de commande.
type ProductStore interface {
	FindByID(ctx context.Context, productID string) (*models.Product, error)
	// DecrementStock décrémente conditionnellement le stock d'un produit.
	// Retourne *InsufficientStockError si le stock restant est insuffisant :
	// le stock ne devient jamais négatif.
	DecrementStock(ctx context.Context, productID string, qty int) error
}

// CartStore est le collaborateur panier : la commande le remplace.
type CartStore interface {
	DeleteByUser(ctx context.Context, userID string) error
}

// OrderStore persiste les commandes.
type OrderStore interface {
	Insert(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, orderID string) (*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)

	// MarkPaid bascule unpaid → paid en une seule écriture conditionnelle
	// (garde d'idempotence : deux appels concurrents ne peuvent pas gagner
	// tous les deux). Positionne aussi status=processing, points_earned et
	// le drapeau points_accrued. Retourne applied=false si la commande
	// était déjà payée.
	MarkPaid(ctx context.Context, orderID string, pointsEarned int, now time.Time) (applied bool, err error)

	// MarkAccrued positionne le drapeau one-shot points_accrued.
	// Retourne applied=false s'il était déjà levé.
	MarkAccrued(ctx context.Context, orderID string) (applied bool, err error)

	// MarkStockEngaged positionne le drapeau one-shot stock_engaged.
	// Le gagnant de cette écriture conditionnelle est le seul chemin
	// autorisé à décrémenter le stock de la commande. Retourne
	// applied=false s'il était déjà levé.
	MarkStockEngaged(ctx context.Context, orderID string) (applied bool, err error)

	// UpdateStatus ne persiste que le statut, la timeline et updated_at.
	// Les drapeaux one-shot appartiennent à MarkPaid / MarkAccrued /
	// MarkStockEngaged : les réécrire ici depuis une lecture antérieure
	// écraserait une bascule concurrente.
	UpdateStatus(ctx context.Context, order *models.Order) error

	// DeleteIfUnpaid supprime la commande seulement si elle est impayée
	// (suppression conditionnelle, une seule étape).
	DeleteIfUnpaid(ctx context.Context, orderID string) (applied bool, err error)

	// DeleteStaleUnpaidGateway purge les commandes eSewa impayées créées
	// avant `olderThan`. Idempotent.
	DeleteStaleUnpaidGateway(ctx context.Context, olderThan time.Time) (int, error)

	// HasPaidOrDelivered indique si l'utilisateur possède une commande
	// payée ou livrée contenant le produit.
	HasPaidOrDelivered(ctx context.Context, userID, productID string) (bool, error)
}
