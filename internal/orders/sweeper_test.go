package orders

import (
	"context"
	"testing"
	"time"

	"myshop_back_end/internal/models"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrder(t *testing.T, store *fakeOrderStore, method, payStatus string, age time.Duration) string {
	t.Helper()
	id := gocql.TimeUUID()
	require.NoError(t, store.Insert(context.Background(), &models.Order{
		ID:            id,
		UserID:        "u1",
		PaymentMethod: method,
		PaymentStatus: payStatus,
		Status:        models.StatusPending,
		CreatedAt:     time.Now().Add(-age),
	}))
	return id.String()
}

func TestSweepPurgesOnlyStaleUnpaidGateway(t *testing.T) {
	store := newFakeOrderStore()

	stale := seedOrder(t, store, models.PaymentMethodEsewa, models.PaymentStatusUnpaid, 10*time.Minute)
	fresh := seedOrder(t, store, models.PaymentMethodEsewa, models.PaymentStatusUnpaid, time.Minute)
	paid := seedOrder(t, store, models.PaymentMethodEsewa, models.PaymentStatusPaid, time.Hour)
	cod := seedOrder(t, store, models.PaymentMethodCOD, models.PaymentStatusUnpaid, time.Hour)

	sw := NewSweeper(store, DefaultSweepInterval, DefaultStaleRetention)
	sw.sweep(context.Background())

	ctx := context.Background()
	gone, err := store.FindByID(ctx, stale)
	require.NoError(t, err)
	assert.Nil(t, gone, "commande eSewa impayée au-delà de la rétention purgée")

	for _, id := range []string{fresh, paid, cod} {
		kept, err := store.FindByID(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, kept)
	}
}

func TestSweeperRunStopsOnContextCancel(t *testing.T) {
	store := newFakeOrderStore()
	seedOrder(t, store, models.PaymentMethodEsewa, models.PaymentStatusUnpaid, time.Hour)

	sw := NewSweeper(store, 5*time.Millisecond, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	// Laisser passer au moins une passe
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("le sweeper ne s'est pas arrêté à l'annulation du context")
	}

	gone, err := store.FindByID(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Equal(t, 0, store.count(), "la commande périmée a été purgée par la boucle")
}

func TestNewSweeperDefaults(t *testing.T) {
	sw := NewSweeper(newFakeOrderStore(), 0, 0)
	assert.Equal(t, DefaultSweepInterval, sw.interval)
	assert.Equal(t, DefaultStaleRetention, sw.retention)
}
