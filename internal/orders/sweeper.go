package orders

import (
	"context"
	"log"
	"time"
)

const (
	// Fenêtre de rétention d'une commande eSewa impayée : au-delà,
	// l'utilisateur a abandonné le paiement et la commande est purgée.
	DefaultStaleRetention = 5 * time.Minute

	DefaultSweepInterval = time.Minute
)

// Sweeper purge périodiquement les commandes eSewa restées impayées au-delà
// de la fenêtre de rétention. Le stock n'a pas été engagé pour ces commandes,
// et l'utilisation de points est définitive : la purge n'a rien à compenser.
type Sweeper struct {
	orders    OrderStore
	interval  time.Duration
	retention time.Duration
}

func NewSweeper(orderStore OrderStore, interval, retention time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if retention <= 0 {
		retention = DefaultStaleRetention
	}
	return &Sweeper{orders: orderStore, interval: interval, retention: retention}
}

// Run boucle jusqu'à annulation du context. Chaque passe est idempotente :
// une suppression déjà effectuée par une passe concurrente est sans effet.
func (sw *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	log.Printf("🧹 Sweeper démarré (intervalle %s, rétention %s)", sw.interval, sw.retention)

	for {
		select {
		case <-ctx.Done():
			log.Println("🧹 Sweeper arrêté")
			return
		case <-ticker.C:
			sw.sweep(ctx)
		}
	}
}

func (sw *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-sw.retention)

	purged, err := sw.orders.DeleteStaleUnpaidGateway(ctx, cutoff)
	if err != nil {
		log.Printf("⚠️ Erreur purge commandes impayées: %v", err)
		return
	}

	if purged > 0 {
		log.Printf("🧹 %d commande(s) eSewa impayée(s) purgée(s)", purged)
	}
}
