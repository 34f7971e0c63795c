package orders

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"myshop_back_end/internal/config"
	"myshop_back_end/internal/esewa"
	"myshop_back_end/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes en mémoire, mêmes garanties conditionnelles que les vrais stores ---

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func (f *fakeUserStore) FindByID(_ context.Context, userID string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) IncrementPoints(_ context.Context, userID string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Points += delta
	if u.Points < 0 {
		u.Points = 0
	}
	return nil
}

func (f *fakeUserStore) points(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[userID].Points
}

type fakeProductStore struct {
	mu       sync.Mutex
	products map[string]*models.Product
}

func (f *fakeProductStore) FindByID(_ context.Context, productID string) (*models.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProductStore) DecrementStock(_ context.Context, productID string, qty int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[productID]
	if !ok {
		return ErrProductNotFound
	}
	if p.Stock < qty {
		return &InsufficientStockError{ProductName: p.Name}
	}
	p.Stock -= qty
	return nil
}

func (f *fakeProductStore) stock(productID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.products[productID].Stock
}

type fakeCartStore struct {
	mu      sync.Mutex
	cleared []string
}

func (f *fakeCartStore) DeleteByUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, userID)
	return nil
}

func (f *fakeCartStore) clearCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cleared)
}

type fakeOrderStore struct {
	mu     sync.Mutex
	orders map[string]*models.Order
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{orders: make(map[string]*models.Order)}
}

func (f *fakeOrderStore) Insert(_ context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *order
	f.orders[order.ID.String()] = &cp
	return nil
}

func (f *fakeOrderStore) FindByID(_ context.Context, orderID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrderStore) ListByUser(_ context.Context, userID string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrderStore) MarkPaid(_ context.Context, orderID string, pointsEarned int, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if o.PaymentStatus != models.PaymentStatusUnpaid {
		return false, nil
	}
	o.PaymentStatus = models.PaymentStatusPaid
	o.Status = models.StatusProcessing
	o.PointsEarned = pointsEarned
	o.PointsAccrued = true
	o.Timeline.ProcessingAt = &now
	o.UpdatedAt = &now
	return true, nil
}

func (f *fakeOrderStore) MarkAccrued(_ context.Context, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if o.PointsAccrued {
		return false, nil
	}
	o.PointsAccrued = true
	return true, nil
}

func (f *fakeOrderStore) MarkStockEngaged(_ context.Context, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if o.StockEngaged {
		return false, nil
	}
	o.StockEngaged = true
	return true, nil
}

// Comme le vrai store : seuls le statut et la timeline sont réécrits, les
// drapeaux one-shot restent la propriété de MarkPaid / MarkAccrued /
// MarkStockEngaged.
func (f *fakeOrderStore) UpdateStatus(_ context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[order.ID.String()]
	if !ok {
		return ErrOrderNotFound
	}
	o.Status = order.Status
	o.Timeline = order.Timeline
	o.UpdatedAt = order.UpdatedAt
	return nil
}

func (f *fakeOrderStore) DeleteIfUnpaid(_ context.Context, orderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok || o.PaymentStatus != models.PaymentStatusUnpaid {
		return false, nil
	}
	delete(f.orders, orderID)
	return true, nil
}

func (f *fakeOrderStore) DeleteStaleUnpaidGateway(_ context.Context, olderThan time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	purged := 0
	for id, o := range f.orders {
		if o.PaymentMethod == models.PaymentMethodEsewa &&
			o.PaymentStatus == models.PaymentStatusUnpaid &&
			o.CreatedAt.Before(olderThan) {
			delete(f.orders, id)
			purged++
		}
	}
	return purged, nil
}

func (f *fakeOrderStore) HasPaidOrDelivered(_ context.Context, userID, productID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range f.orders {
		if o.UserID != userID {
			continue
		}
		if o.PaymentStatus != models.PaymentStatusPaid && o.Status != models.StatusDelivered {
			continue
		}
		for _, item := range o.Items {
			if item.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (f *fakeOrderStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

// --- Montage ---

type fixture struct {
	svc      *Service
	users    *fakeUserStore
	products *fakeProductStore
	orders   *fakeOrderStore
	carts    *fakeCartStore
	gateway  *esewa.Client
}

func newFixture() *fixture {
	users := &fakeUserStore{users: map[string]*models.User{
		"u1": {ID: "u1", Name: "Asha", Email: "asha@example.com", Points: 50},
		"u2": {ID: "u2", Name: "Bibek", Email: "bibek@example.com", Points: 9},
	}}
	products := &fakeProductStore{products: map[string]*models.Product{
		"p1": {Name: "T-shirt", Price: 300, Stock: 10, IsActive: true},
		"p2": {Name: "Veste", Price: 500, Stock: 5, IsActive: true},
	}}
	orderStore := newFakeOrderStore()
	carts := &fakeCartStore{}

	gateway := esewa.NewClient(config.EsewaConfig{
		ProductCode: "EPAYTEST",
		SecretKey:   "8gBm/:&EnhH.1/q",
		SuccessURL:  "http://localhost:5173/payment-success",
		FailureURL:  "http://localhost:5173/cart?status=cancel",
	})

	return &fixture{
		svc:      NewService(users, products, orderStore, carts, gateway),
		users:    users,
		products: products,
		orders:   orderStore,
		carts:    carts,
		gateway:  gateway,
	}
}

func shipping() ShippingInfo {
	return ShippingInfo{FullName: "Asha Shrestha", PhoneNumber: "9841000000", Address: "Lazimpat, Kathmandu"}
}

func items() []models.OrderItem {
	return []models.OrderItem{
		{ProductID: "p1", Name: "T-shirt", Price: 300, Quantity: 2},
		{ProductID: "p2", Name: "Veste", Price: 500, Quantity: 1},
	}
}

// callbackData encode un payload de redirection eSewa comme la passerelle.
func callbackData(t *testing.T, status, orderID string) string {
	t.Helper()
	raw, err := json.Marshal(esewa.CallbackPayload{
		Status:          status,
		TransactionUUID: fmt.Sprintf("%s-%d", orderID, time.Now().UnixMilli()),
		TransactionCode: "000ABC",
		RefID:           "0001TX",
	})
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

// --- PlaceOrder ---

func TestPlaceOrderCOD(t *testing.T) {
	fx := newFixture()

	order, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:        "u1",
		Items:         items(),
		Shipping:      shipping(),
		ShippingPrice: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, 1100.0, order.SubTotal) // 2×300 + 500
	assert.Equal(t, 0.0, order.Discount)
	assert.Equal(t, 1200.0, order.TotalAmount)
	assert.Equal(t, 1, order.PointsEarned) // 1200 / 1000
	assert.False(t, order.PointsAccrued)
	assert.True(t, order.StockEngaged)
	assert.Equal(t, models.PaymentMethodCOD, order.PaymentMethod)
	assert.Equal(t, models.PaymentStatusUnpaid, order.PaymentStatus)
	assert.Equal(t, models.StatusPending, order.Status)

	// Le stock COD part immédiatement
	assert.Equal(t, 8, fx.products.stock("p1"))
	assert.Equal(t, 4, fx.products.stock("p2"))

	// Les points gagnés attendent la livraison, le solde ne bouge pas
	assert.Equal(t, 50, fx.users.points("u1"))

	assert.Equal(t, 1, fx.carts.clearCount())
	assert.Equal(t, 1, fx.orders.count())
}

func TestPlaceOrderWithPoints(t *testing.T) {
	fx := newFixture()

	order, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:        "u1",
		Items:         []models.OrderItem{{ProductID: "p1", Price: 300, Quantity: 1}},
		Shipping:      shipping(),
		ShippingPrice: 50,
		UsePoints:     true,
	})
	require.NoError(t, err)

	// 50 points valent 500 Rs mais la remise est plafonnée au sous-total
	assert.Equal(t, 300.0, order.SubTotal)
	assert.Equal(t, 300.0, order.Discount)
	assert.Equal(t, 30, order.PointsUsed) // seuls les points réellement consommés sont débités
	assert.Equal(t, 50.0, order.TotalAmount)
	assert.Equal(t, 0, order.PointsEarned)

	assert.Equal(t, 20, fx.users.points("u1"))
}

func TestPlaceOrderPointsBelowMinimum(t *testing.T) {
	fx := newFixture()

	// u2 n'a que 9 points : refus en bloc, aucune mutation
	_, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:    "u2",
		Items:     items(),
		Shipping:  shipping(),
		UsePoints: true,
	})
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	assert.Equal(t, 9, fx.users.points("u2"))
	assert.Equal(t, 10, fx.products.stock("p1"))
	assert.Equal(t, 0, fx.orders.count())
	assert.Equal(t, 0, fx.carts.clearCount())
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	fx := newFixture()

	_, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID: "u1",
		Items: []models.OrderItem{
			{ProductID: "p1", Price: 300, Quantity: 2},
			{ProductID: "p2", Price: 500, Quantity: 6}, // stock = 5
		},
		Shipping: shipping(),
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Veste", stockErr.ProductName)

	// Tout ou rien : le premier article n'a pas été décrémenté non plus
	assert.Equal(t, 10, fx.products.stock("p1"))
	assert.Equal(t, 5, fx.products.stock("p2"))
	assert.Equal(t, 0, fx.orders.count())
}

func TestPlaceOrderValidation(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	_, err := fx.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "u1", Shipping: shipping()})
	assert.ErrorIs(t, err, ErrEmptyOrder)

	_, err = fx.svc.PlaceOrder(ctx, PlaceOrderInput{
		UserID:   "u1",
		Items:    []models.OrderItem{{ProductID: "p1", Price: 300, Quantity: 0}},
		Shipping: shipping(),
	})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = fx.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "u1", Items: items()})
	assert.ErrorIs(t, err, ErrMissingShipping)

	_, err = fx.svc.PlaceOrder(ctx, PlaceOrderInput{UserID: "inconnu", Items: items(), Shipping: shipping()})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

// --- InitiatePayment ---

func TestInitiatePayment(t *testing.T) {
	fx := newFixture()

	initiation, err := fx.svc.InitiatePayment(context.Background(), InitiatePaymentInput{
		UserID:        "u1",
		Items:         items(),
		Shipping:      shipping(),
		ShippingPrice: 100,
	})
	require.NoError(t, err)

	order := initiation.Order
	assert.Equal(t, models.PaymentMethodEsewa, order.PaymentMethod)
	assert.Equal(t, models.PaymentStatusUnpaid, order.PaymentStatus)
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, 1200.0, order.TotalAmount)

	// eSewa : rien n'est engagé avant la vérification
	assert.Equal(t, 10, fx.products.stock("p1"))
	assert.Equal(t, 5, fx.products.stock("p2"))
	assert.Equal(t, 0, fx.carts.clearCount())

	// La commande impayée existe déjà : il y a un enregistrement à réconcilier
	stored, err := fx.orders.FindByID(context.Background(), order.ID.String())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.StockEngaged)

	// Formulaire signé : champ canonique et uuid de transaction préfixé
	pd := initiation.PaymentData
	assert.Equal(t, "1200", pd.TotalAmount)
	assert.Equal(t, "EPAYTEST", pd.ProductCode)
	assert.Equal(t, "total_amount,transaction_uuid,product_code", pd.SignedFieldNames)
	assert.NotEmpty(t, pd.Signature)
	gotOrderID, err := esewa.OrderIDFromTransactionUUID(pd.TransactionUUID)
	require.NoError(t, err)
	assert.Equal(t, order.ID.String(), gotOrderID)

	assert.NotEmpty(t, initiation.QRCode)
}

func TestInitiatePaymentDebitsPointsImmediately(t *testing.T) {
	fx := newFixture()

	_, err := fx.svc.InitiatePayment(context.Background(), InitiatePaymentInput{
		UserID:    "u1",
		Items:     []models.OrderItem{{ProductID: "p1", Price: 300, Quantity: 1}},
		Shipping:  shipping(),
		UsePoints: true,
	})
	require.NoError(t, err)

	// L'utilisation est définitive dès l'initiation, même si le paiement
	// n'aboutit jamais
	assert.Equal(t, 20, fx.users.points("u1"))
}

// --- VerifyPayment ---

func TestVerifyPayment(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	initiation, err := fx.svc.InitiatePayment(ctx, InitiatePaymentInput{
		UserID:        "u1",
		Items:         items(),
		Shipping:      shipping(),
		ShippingPrice: 100,
	})
	require.NoError(t, err)
	orderID := initiation.Order.ID.String()

	result, err := fx.svc.VerifyPayment(ctx, callbackData(t, "COMPLETE", orderID))
	require.NoError(t, err)

	assert.Equal(t, orderID, result.OrderID)
	assert.Equal(t, 1, result.PointsEarned)
	assert.False(t, result.AlreadyPaid)

	order, err := fx.orders.FindByID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, order.PaymentStatus)
	assert.Equal(t, models.StatusProcessing, order.Status)
	assert.True(t, order.PointsAccrued)
	assert.NotNil(t, order.Timeline.ProcessingAt)

	// Le stock part à la vérification, les points sont crédités tout de suite
	assert.Equal(t, 8, fx.products.stock("p1"))
	assert.Equal(t, 4, fx.products.stock("p2"))
	assert.Equal(t, 51, fx.users.points("u1"))
	assert.Equal(t, 1, fx.carts.clearCount())
}

func TestVerifyPaymentIdempotent(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	initiation, err := fx.svc.InitiatePayment(ctx, InitiatePaymentInput{
		UserID:        "u1",
		Items:         items(),
		Shipping:      shipping(),
		ShippingPrice: 100,
	})
	require.NoError(t, err)
	orderID := initiation.Order.ID.String()

	first, err := fx.svc.VerifyPayment(ctx, callbackData(t, "COMPLETE", orderID))
	require.NoError(t, err)
	require.False(t, first.AlreadyPaid)

	// La passerelle rejoue le callback : aucune nouvelle mutation
	second, err := fx.svc.VerifyPayment(ctx, callbackData(t, "COMPLETE", orderID))
	require.NoError(t, err)
	assert.True(t, second.AlreadyPaid)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.PointsEarned, second.PointsEarned)

	assert.Equal(t, 8, fx.products.stock("p1"), "stock décrémenté une seule fois")
	assert.Equal(t, 51, fx.users.points("u1"), "points crédités une seule fois")
}

func TestVerifyPaymentErrors(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	_, err := fx.svc.VerifyPayment(ctx, "")
	assert.ErrorIs(t, err, ErrMissingPayload)

	_, err = fx.svc.VerifyPayment(ctx, "pas-du-base64!!!")
	assert.ErrorIs(t, err, ErrMissingPayload)

	_, err = fx.svc.VerifyPayment(ctx, callbackData(t, "PENDING", "x"))
	assert.ErrorIs(t, err, ErrTransactionIncomplete)

	_, err = fx.svc.VerifyPayment(ctx, callbackData(t, "COMPLETE", "inconnu"))
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

// --- CancelOrder ---

func TestCancelOrder(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	initiation, err := fx.svc.InitiatePayment(ctx, InitiatePaymentInput{
		UserID:   "u1",
		Items:    items(),
		Shipping: shipping(),
	})
	require.NoError(t, err)
	orderID := initiation.Order.ID.String()

	require.NoError(t, fx.svc.CancelOrder(ctx, orderID))
	assert.Equal(t, 0, fx.orders.count())

	// Déjà supprimée : plus annulable
	assert.ErrorIs(t, fx.svc.CancelOrder(ctx, orderID), ErrNotCancelable)
}

func TestCancelOrderPaidIsFinal(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	initiation, err := fx.svc.InitiatePayment(ctx, InitiatePaymentInput{
		UserID:   "u1",
		Items:    items(),
		Shipping: shipping(),
	})
	require.NoError(t, err)
	orderID := initiation.Order.ID.String()

	_, err = fx.svc.VerifyPayment(ctx, callbackData(t, "COMPLETE", orderID))
	require.NoError(t, err)

	assert.ErrorIs(t, fx.svc.CancelOrder(ctx, orderID), ErrNotCancelable)
	assert.Equal(t, 1, fx.orders.count())
}

// --- UpdateStatus ---

func placeCOD(t *testing.T, fx *fixture) *models.Order {
	t.Helper()
	order, err := fx.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		UserID:        "u1",
		Items:         items(),
		Shipping:      shipping(),
		ShippingPrice: 100,
	})
	require.NoError(t, err)
	return order
}

func TestUpdateStatusHappyPath(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	order := placeCOD(t, fx)
	id := order.ID.String()

	updated, err := fx.svc.UpdateStatus(ctx, id, models.StatusProcessing)
	require.NoError(t, err)
	assert.NotNil(t, updated.Timeline.ProcessingAt)

	updated, err = fx.svc.UpdateStatus(ctx, id, models.StatusShipped)
	require.NoError(t, err)
	assert.NotNil(t, updated.Timeline.ShippedAt)

	updated, err = fx.svc.UpdateStatus(ctx, id, models.StatusDelivered)
	require.NoError(t, err)
	assert.NotNil(t, updated.Timeline.DeliveredAt)
	assert.True(t, updated.PointsAccrued)

	// Les points gagnés sont crédités à la livraison
	assert.Equal(t, 51, fx.users.points("u1"))
}

func TestUpdateStatusRejectsBadTransitions(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	order := placeCOD(t, fx)
	id := order.ID.String()

	tests := []struct {
		name    string
		status  string
		wantErr error
	}{
		{"statut inconnu", "paid", ErrInvalidStatus},
		{"pending vers shipped", models.StatusShipped, ErrInvalidTransition},
		{"pending vers delivered", models.StatusDelivered, ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.UpdateStatus(ctx, id, tt.status)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := fx.svc.UpdateStatus(ctx, "inexistante", models.StatusProcessing)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdateStatusDeliveredIsTerminal(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	order := placeCOD(t, fx)
	id := order.ID.String()

	for _, st := range []string{models.StatusProcessing, models.StatusShipped, models.StatusDelivered} {
		_, err := fx.svc.UpdateStatus(ctx, id, st)
		require.NoError(t, err)
	}

	_, err := fx.svc.UpdateStatus(ctx, id, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrAlreadyDelivered)
}

func TestUpdateStatusReservesStockForUnpaidEsewa(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	initiation, err := fx.svc.InitiatePayment(ctx, InitiatePaymentInput{
		UserID:   "u1",
		Items:    items(),
		Shipping: shipping(),
	})
	require.NoError(t, err)
	id := initiation.Order.ID.String()

	// Rien n'était engagé : le passage en préparation réserve le stock
	_, err = fx.svc.UpdateStatus(ctx, id, models.StatusProcessing)
	require.NoError(t, err)
	assert.Equal(t, 8, fx.products.stock("p1"))
	assert.Equal(t, 4, fx.products.stock("p2"))
}

func TestUpdateStatusUnpaidEsewaStockAllOrNothing(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	initiation, err := fx.svc.InitiatePayment(ctx, InitiatePaymentInput{
		UserID: "u1",
		Items: []models.OrderItem{
			{ProductID: "p1", Price: 300, Quantity: 2},
			{ProductID: "p2", Price: 500, Quantity: 6}, // stock = 5
		},
		Shipping: shipping(),
	})
	require.NoError(t, err)

	_, err = fx.svc.UpdateStatus(ctx, initiation.Order.ID.String(), models.StatusProcessing)
	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)

	// Aucun décrément partiel
	assert.Equal(t, 10, fx.products.stock("p1"))
	assert.Equal(t, 5, fx.products.stock("p2"))
}

func TestDeliveredNeverAccruesTwice(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	initiation, err := fx.svc.InitiatePayment(ctx, InitiatePaymentInput{
		UserID:        "u1",
		Items:         items(),
		Shipping:      shipping(),
		ShippingPrice: 100,
	})
	require.NoError(t, err)
	id := initiation.Order.ID.String()

	// La vérification crédite les points et lève le drapeau
	_, err = fx.svc.VerifyPayment(ctx, callbackData(t, "COMPLETE", id))
	require.NoError(t, err)
	require.Equal(t, 51, fx.users.points("u1"))

	// La livraison ne repasse jamais par l'accumulation
	_, err = fx.svc.UpdateStatus(ctx, id, models.StatusShipped)
	require.NoError(t, err)
	_, err = fx.svc.UpdateStatus(ctx, id, models.StatusDelivered)
	require.NoError(t, err)

	assert.Equal(t, 51, fx.users.points("u1"))
}

// hookedProductStore déclenche hook (une seule fois) au premier FindByID :
// permet d'intercaler un callback de paiement au milieu d'un UpdateStatus,
// entre la lecture de la commande et l'engagement du stock.
type hookedProductStore struct {
	*fakeProductStore
	once sync.Once
	hook func()
}

func (h *hookedProductStore) FindByID(ctx context.Context, productID string) (*models.Product, error) {
	if h.hook != nil {
		h.once.Do(h.hook)
	}
	return h.fakeProductStore.FindByID(ctx, productID)
}

func TestUpdateStatusConcurrentVerifyEngagesOnce(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()

	hooked := &hookedProductStore{fakeProductStore: fx.products}
	svc := NewService(fx.users, hooked, fx.orders, fx.carts, fx.gateway)

	initiation, err := svc.InitiatePayment(ctx, InitiatePaymentInput{
		UserID:        "u1",
		Items:         items(),
		Shipping:      shipping(),
		ShippingPrice: 100,
	})
	require.NoError(t, err)
	id := initiation.Order.ID.String()

	// Le callback eSewa aboutit pendant que l'admin passe la commande en
	// préparation : la vérification s'exécute après la lecture de la commande
	// (encore impayée) mais avant l'engagement du stock.
	hooked.hook = func() {
		_, err := svc.VerifyPayment(ctx, callbackData(t, "COMPLETE", id))
		require.NoError(t, err)
	}

	_, err = svc.UpdateStatus(ctx, id, models.StatusProcessing)
	require.NoError(t, err)

	// Un seul des deux chemins a engagé le stock
	assert.Equal(t, 8, fx.products.stock("p1"))
	assert.Equal(t, 4, fx.products.stock("p2"))
	assert.Equal(t, 51, fx.users.points("u1"))

	// La transition n'a pas écrasé les drapeaux levés par la vérification
	stored, err := fx.orders.FindByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.PointsAccrued)
	assert.True(t, stored.StockEngaged)
	assert.Equal(t, models.PaymentStatusPaid, stored.PaymentStatus)

	// Jusqu'à la livraison : aucun second crédit, aucun second décrément
	_, err = svc.UpdateStatus(ctx, id, models.StatusShipped)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, id, models.StatusDelivered)
	require.NoError(t, err)

	assert.Equal(t, 51, fx.users.points("u1"), "points crédités une seule fois")
	assert.Equal(t, 8, fx.products.stock("p1"), "stock décrémenté une seule fois")
	assert.Equal(t, 4, fx.products.stock("p2"))
}

// --- Lectures ---

func TestGetOrderIsOwnerScoped(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	order := placeCOD(t, fx)

	got, err := fx.svc.GetOrder(ctx, "u1", order.ID.String())
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = fx.svc.GetOrder(ctx, "u2", order.ID.String())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCheckReviewEligibility(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	order := placeCOD(t, fx)
	id := order.ID.String()

	// Commande COD encore impayée et non livrée : pas d'avis
	eligible, err := fx.svc.CheckReviewEligibility(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.False(t, eligible)

	for _, st := range []string{models.StatusProcessing, models.StatusShipped, models.StatusDelivered} {
		_, err := fx.svc.UpdateStatus(ctx, id, st)
		require.NoError(t, err)
	}

	eligible, err = fx.svc.CheckReviewEligibility(ctx, "u1", "p1")
	require.NoError(t, err)
	assert.True(t, eligible)

	// Produit jamais commandé
	eligible, err = fx.svc.CheckReviewEligibility(ctx, "u1", "p999")
	require.NoError(t, err)
	assert.False(t, eligible)

	// Autre utilisateur
	eligible, err = fx.svc.CheckReviewEligibility(ctx, "u2", "p1")
	require.NoError(t, err)
	assert.False(t, eligible)
}
