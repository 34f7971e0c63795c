package orders

import (
	"errors"
	"fmt"
)

// Taxonomie des échecs du cycle de commande. Chaque erreur est locale à
// l'opération invoquée : aucune ne déclenche de retry automatique.
var (
	ErrEmptyOrder            = errors.New("aucun article dans la commande")
	ErrInvalidQuantity       = errors.New("quantité d'article invalide")
	ErrMissingShipping       = errors.New("informations de livraison incomplètes")
	ErrInsufficientPoints    = errors.New("solde de points insuffisant pour une utilisation (minimum 10)")
	ErrUserNotFound          = errors.New("utilisateur introuvable")
	ErrProductNotFound       = errors.New("produit introuvable")
	ErrOrderNotFound         = errors.New("commande introuvable")
	ErrMissingPayload        = errors.New("aucune donnée reçue de la passerelle")
	ErrTransactionIncomplete = errors.New("transaction non complétée")
	ErrNotCancelable         = errors.New("commande introuvable ou déjà payée")
	ErrAlreadyDelivered      = errors.New("commande déjà livrée")
	ErrInvalidStatus         = errors.New("statut invalide")
	ErrInvalidTransition     = errors.New("transition de statut interdite")
)

// InsufficientStockError identifie le produit en rupture lors d'un
// décrément de stock conditionnel.
type InsufficientStockError struct {
	ProductName string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("stock insuffisant pour %s", e.ProductName)
}
