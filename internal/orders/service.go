// Package orders porte tout le cycle de vie d'une commande : calcul du prix,
// points Style Perks, réservation de stock, branchement COD / eSewa,
// vérification asynchrone du paiement et transitions de livraison.
package orders

import (
	"context"
	"log"
	"time"

	"myshop_back_end/internal/esewa"
	"myshop_back_end/internal/models"

	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// Constantes Style Perks. Un seul diviseur d'accumulation partout :
// l'ancien comportement qui recalculait totalAmount/100 à la vérification
// était un bug, pas une règle métier.
const (
	MinRedeemPoints      = 10   // solde minimum pour utiliser ses points
	PointValue           = 10   // 1 point = 10 Rs de réduction
	PointsAccrualDivisor = 1000 // 1000 Rs dépensés = 1 point gagné
)

type Service struct {
	users    UserStore
	products ProductStore
	orders   OrderStore
	carts    CartStore
	gateway  *esewa.Client
}

func NewService(users UserStore, products ProductStore, orderStore OrderStore, carts CartStore, gateway *esewa.Client) *Service {
	return &Service{
		users:    users,
		products: products,
		orders:   orderStore,
		carts:    carts,
		gateway:  gateway,
	}
}

// ShippingInfo est le snapshot de livraison capturé à la commande,
// indépendant des modifications ultérieures du profil.
type ShippingInfo struct {
	FullName    string
	PhoneNumber string
	Address     string
}

type PlaceOrderInput struct {
	UserID        string
	Items         []models.OrderItem
	Shipping      ShippingInfo
	ShippingPrice float64
	PaymentMethod string
	UsePoints     bool
}

// PlaceOrder crée une commande COD (ou gateway hors initiation eSewa) :
// calcul des montants, utilisation éventuelle des points, décrément de
// stock immédiat pour le COD, vidage du panier.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*models.Order, error) {
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}
	if err := validateShipping(in.Shipping); err != nil {
		return nil, err
	}
	if in.ShippingPrice < 0 {
		in.ShippingPrice = 0
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = models.PaymentMethodCOD
	}

	user, err := s.users.FindByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	subTotal := calcSubTotal(in.Items)

	discount, pointsToDebit, err := applyRewards(user, subTotal, in.UsePoints)
	if err != nil {
		return nil, err
	}

	totalAmount := subTotal - discount + in.ShippingPrice

	// Vérification de suffisance AVANT toute mutation : le stock COD est
	// décrémenté conditionnellement, jamais en négatif (pas de backorder).
	if in.PaymentMethod != models.PaymentMethodEsewa {
		if err := s.checkStock(ctx, in.Items); err != nil {
			return nil, err
		}
	}

	order := &models.Order{
		ID:            gocql.UUID(uuid.New()),
		UserID:        in.UserID,
		Items:         in.Items,
		SubTotal:      subTotal,
		Discount:      discount,
		ShippingPrice: in.ShippingPrice,
		TotalAmount:   totalAmount,
		PointsUsed:    pointsToDebit,
		PointsEarned:  earnedPoints(totalAmount),
		FullName:      in.Shipping.FullName,
		PhoneNumber:   in.Shipping.PhoneNumber,
		Address:       in.Shipping.Address,
		PaymentMethod: in.PaymentMethod,
		PaymentStatus: models.PaymentStatusUnpaid,
		Status:        models.StatusPending,
		StockEngaged:  in.PaymentMethod != models.PaymentMethodEsewa,
		CreatedAt:     time.Now(),
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return nil, err
	}

	// Les points utilisés sont débités immédiatement : l'utilisation est
	// définitive à la commande, même si elle est annulée ensuite.
	if pointsToDebit > 0 {
		if err := s.users.IncrementPoints(ctx, in.UserID, -pointsToDebit); err != nil {
			return nil, err
		}
	}

	// COD : le stock part tout de suite. eSewa attend la vérification.
	if in.PaymentMethod != models.PaymentMethodEsewa {
		for _, item := range in.Items {
			if err := s.products.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				return nil, err
			}
		}
	}

	if err := s.carts.DeleteByUser(ctx, in.UserID); err != nil {
		log.Printf("⚠️ Erreur vidage panier pour %s: %v", in.UserID, err)
	}

	return order, nil
}

type InitiatePaymentInput struct {
	UserID        string
	Items         []models.OrderItem
	Shipping      ShippingInfo
	ShippingPrice float64
	UsePoints     bool
}

// PaymentInitiation est le payload structuré que le client soumet à eSewa.
type PaymentInitiation struct {
	Order       *models.Order
	PaymentData esewa.PaymentData
	QRCode      string // PNG base64, scan-to-pay
}

// InitiatePayment crée la commande eSewa impayée AVANT tout échange avec la
// passerelle, pour avoir un enregistrement durable à réconcilier, puis
// construit le formulaire signé. Le stock n'est pas touché ici : il est
// réservé à la vérification. L'utilisation de points suit la même règle que
// PlaceOrder (plancher de 10 points, remise plafonnée au sous-total).
func (s *Service) InitiatePayment(ctx context.Context, in InitiatePaymentInput) (*PaymentInitiation, error) {
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}
	if err := validateShipping(in.Shipping); err != nil {
		return nil, err
	}
	if in.ShippingPrice < 0 {
		in.ShippingPrice = 0
	}

	user, err := s.users.FindByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	subTotal := calcSubTotal(in.Items)

	discount, pointsToDebit, err := applyRewards(user, subTotal, in.UsePoints)
	if err != nil {
		return nil, err
	}

	totalAmount := subTotal - discount + in.ShippingPrice

	order := &models.Order{
		ID:            gocql.UUID(uuid.New()),
		UserID:        in.UserID,
		Items:         in.Items,
		SubTotal:      subTotal,
		Discount:      discount,
		ShippingPrice: in.ShippingPrice,
		TotalAmount:   totalAmount,
		PointsUsed:    pointsToDebit,
		PointsEarned:  earnedPoints(totalAmount),
		FullName:      in.Shipping.FullName,
		PhoneNumber:   in.Shipping.PhoneNumber,
		Address:       in.Shipping.Address,
		PaymentMethod: models.PaymentMethodEsewa,
		PaymentStatus: models.PaymentStatusUnpaid,
		Status:        models.StatusPending,
		CreatedAt:     time.Now(),
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		return nil, err
	}

	if pointsToDebit > 0 {
		if err := s.users.IncrementPoints(ctx, in.UserID, -pointsToDebit); err != nil {
			return nil, err
		}
	}

	paymentData := s.gateway.BuildPaymentData(order.ID.String(), totalAmount, time.Now())

	qr, err := esewa.PaymentQR(paymentData)
	if err != nil {
		// Le QR est un confort, pas une condition du paiement
		log.Printf("⚠️ Erreur génération QR eSewa pour %s: %v", order.ID, err)
		qr = ""
	}

	return &PaymentInitiation{
		Order:       order,
		PaymentData: paymentData,
		QRCode:      qr,
	}, nil
}

// VerifyResult est renvoyé au porteur de la redirection eSewa.
type VerifyResult struct {
	OrderID      string
	PointsEarned int
	AlreadyPaid  bool
	Order        *models.Order
}

// VerifyPayment traite la redirection de la passerelle. Idempotent par
// construction : la bascule unpaid → paid est une écriture conditionnelle
// unique, donc un callback dupliqué ne décrémente jamais le stock ni ne
// crédite les points une deuxième fois.
func (s *Service) VerifyPayment(ctx context.Context, data string) (*VerifyResult, error) {
	payload, err := esewa.DecodeCallback(data)
	if err != nil {
		return nil, ErrMissingPayload
	}

	if payload.Status != "COMPLETE" {
		return nil, ErrTransactionIncomplete
	}

	orderID, err := esewa.OrderIDFromTransactionUUID(payload.TransactionUUID)
	if err != nil {
		return nil, ErrOrderNotFound
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	points := earnedPoints(order.TotalAmount)

	applied, err := s.orders.MarkPaid(ctx, orderID, points, time.Now())
	if err != nil {
		return nil, err
	}

	if !applied {
		// Déjà payée : on renvoie les points calculés lors du premier
		// passage, sans aucune mutation.
		paid, err := s.orders.FindByID(ctx, orderID)
		if err != nil || paid == nil {
			return &VerifyResult{OrderID: orderID, PointsEarned: points, AlreadyPaid: true, Order: order}, nil
		}
		return &VerifyResult{OrderID: orderID, PointsEarned: paid.PointsEarned, AlreadyPaid: true, Order: paid}, nil
	}

	// Décrément de stock différé depuis l'initiation, gardé par le drapeau
	// one-shot stock_engaged : si un admin a engagé le stock en passant la
	// commande en préparation pendant ce callback, il ne part pas une
	// deuxième fois. Le paiement est déjà encaissé : une rupture survenue
	// entre-temps se règle côté admin, on ne fait pas échouer la
	// vérification.
	engaged, err := s.orders.MarkStockEngaged(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if engaged {
		for _, item := range order.Items {
			if err := s.products.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
				log.Printf("⚠️ Stock non décrémenté pour %s (commande %s): %v", item.ProductID, orderID, err)
			}
		}
	}

	if points > 0 {
		if err := s.users.IncrementPoints(ctx, order.UserID, points); err != nil {
			return nil, err
		}
	}

	if err := s.carts.DeleteByUser(ctx, order.UserID); err != nil {
		log.Printf("⚠️ Erreur vidage panier pour %s: %v", order.UserID, err)
	}

	return &VerifyResult{OrderID: orderID, PointsEarned: points, Order: order}, nil
}

// CancelOrder supprime une commande tant qu'elle est impayée. Le stock n'a
// pas été engagé, et l'utilisation de points est définitive : rien à rendre.
func (s *Service) CancelOrder(ctx context.Context, orderID string) error {
	applied, err := s.orders.DeleteIfUnpaid(ctx, orderID)
	if err != nil {
		return err
	}
	if !applied {
		return ErrNotCancelable
	}
	return nil
}

// transitions autorisées de la machine d'états de livraison
var allowedTransitions = map[string][]string{
	models.StatusPending:    {models.StatusProcessing, models.StatusCancelled},
	models.StatusProcessing: {models.StatusShipped, models.StatusCancelled},
	models.StatusShipped:    {models.StatusDelivered, models.StatusCancelled},
}

// UpdateStatus applique une transition de livraison (opération admin).
// pending → processing → shipped → delivered, cancelled accessible depuis
// tout état non terminal. delivered est terminal.
func (s *Service) UpdateStatus(ctx context.Context, orderID, newStatus string) (*models.Order, error) {
	switch newStatus {
	case models.StatusProcessing, models.StatusShipped, models.StatusDelivered, models.StatusCancelled:
	default:
		return nil, ErrInvalidStatus
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if order.Status == models.StatusDelivered {
		return nil, ErrAlreadyDelivered
	}

	if !transitionAllowed(order.Status, newStatus) {
		return nil, ErrInvalidTransition
	}

	// Une commande eSewa encore impayée qui passe en préparation engage le
	// stock ici. Vérification de suffisance sur TOUS les articles avant le
	// moindre décrément : tout ou rien. Le décrément lui-même est gardé par
	// le drapeau one-shot stock_engaged : si le callback de vérification
	// aboutit pendant cette transition, un seul des deux chemins engage le
	// stock.
	if newStatus == models.StatusProcessing && order.Status == models.StatusPending &&
		order.PaymentMethod == models.PaymentMethodEsewa && order.PaymentStatus != models.PaymentStatusPaid {
		if err := s.checkStock(ctx, order.Items); err != nil {
			return nil, err
		}
		engaged, err := s.orders.MarkStockEngaged(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if engaged {
			for _, item := range order.Items {
				if err := s.products.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
					return nil, err
				}
			}
		}
	}

	now := time.Now()
	switch newStatus {
	case models.StatusProcessing:
		order.Timeline.ProcessingAt = &now
	case models.StatusShipped:
		order.Timeline.ShippedAt = &now
	case models.StatusDelivered:
		order.Timeline.DeliveredAt = &now

		// Deuxième chemin d'accumulation possible (le premier étant la
		// vérification de paiement). Le drapeau one-shot garantit qu'une
		// commande ne crédite jamais deux fois.
		if order.PointsEarned > 0 && !order.PointsAccrued {
			accrued, err := s.orders.MarkAccrued(ctx, orderID)
			if err != nil {
				return nil, err
			}
			if accrued {
				order.PointsAccrued = true
				if err := s.users.IncrementPoints(ctx, order.UserID, order.PointsEarned); err != nil {
					return nil, err
				}
			}
		}
	}

	order.Status = newStatus
	order.UpdatedAt = &now

	if err := s.orders.UpdateStatus(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

// ListUserOrders retourne l'historique de commandes, la plus récente d'abord.
func (s *Service) ListUserOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// GetOrder retourne une commande appartenant à l'utilisateur.
func (s *Service) GetOrder(ctx context.Context, userID, orderID string) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// CheckReviewEligibility répond vrai ssi l'utilisateur a une commande payée
// ou livrée contenant le produit. Lecture seule, fail-closed.
func (s *Service) CheckReviewEligibility(ctx context.Context, userID, productID string) (bool, error) {
	return s.orders.HasPaidOrDelivered(ctx, userID, productID)
}

// --- Helpers ---

func calcSubTotal(items []models.OrderItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Price * float64(item.Quantity)
	}
	return total
}

// applyRewards calcule la remise issue des points. Sous le plancher de 10
// points, l'utilisation est refusée en bloc (jamais honorée partiellement).
func applyRewards(user *models.User, subTotal float64, usePoints bool) (discount float64, pointsToDebit int, err error) {
	if !usePoints {
		return 0, 0, nil
	}

	if user.Points < MinRedeemPoints {
		return 0, 0, ErrInsufficientPoints
	}

	discount = float64(user.Points * PointValue)
	if discount > subTotal {
		discount = subTotal
	}
	pointsToDebit = int(discount) / PointValue

	return discount, pointsToDebit, nil
}

func earnedPoints(totalAmount float64) int {
	if totalAmount <= 0 {
		return 0
	}
	return int(totalAmount) / PointsAccrualDivisor
}

func validateItems(items []models.OrderItem) error {
	if len(items) == 0 {
		return ErrEmptyOrder
	}
	for _, item := range items {
		if item.ProductID == "" || item.Quantity < 1 {
			return ErrInvalidQuantity
		}
	}
	return nil
}

func validateShipping(s ShippingInfo) error {
	if s.FullName == "" || s.PhoneNumber == "" || s.Address == "" {
		return ErrMissingShipping
	}
	return nil
}

// checkStock vérifie la suffisance de stock de tous les articles sans rien
// muter. Échoue sur le premier produit insuffisant ou introuvable.
func (s *Service) checkStock(ctx context.Context, items []models.OrderItem) error {
	for _, item := range items {
		product, err := s.products.FindByID(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			return ErrProductNotFound
		}
		if product.Stock < item.Quantity {
			return &InsufficientStockError{ProductName: product.Name}
		}
	}
	return nil
}

func transitionAllowed(from, to string) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
