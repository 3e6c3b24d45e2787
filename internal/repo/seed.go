package repo

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
)

var (
	seedUsers = []string{"Alice", "Bob", "Charlie", "Diana", "Eve"}

	seedUserMessages = []string{
		"Hello, I need help with my order",
		"What is the status of my payment?",
		"I want to cancel my order",
		"Can you help me with a refund?",
		"I have a question about my account",
		"How do I track my shipment?",
		"I need to update my payment method",
		"What are your return policies?",
	}

	seedOrderStatuses = []domain.OrderStatus{
		domain.OrderPending, domain.OrderShipped, domain.OrderDelivered, domain.OrderCancelled, domain.OrderReturned,
	}
	seedPaymentStatuses = []domain.PaymentStatus{
		domain.PaymentPending, domain.PaymentSuccess, domain.PaymentFailed, domain.PaymentRefunded,
	}
	seedModes = []domain.PaymentMode{domain.ModeCard, domain.ModeUPI, domain.ModeNetBanking}
)

// SeedReport counts the rows written by SeedDemo.
type SeedReport struct {
	Orders        int
	Payments      int
	Conversations int
	Messages      int
	Skipped       bool
}

// SeedDemo fills an empty database with demo users' orders, payments, and
// conversations. It does nothing when any conversation or order already
// exists. rnd drives every random choice so tests can pin the outcome.
func SeedDemo(ctx context.Context, db *gorm.DB, rnd *rand.Rand) (SeedReport, error) {
	var rep SeedReport

	var existing int64
	if err := db.WithContext(ctx).Model(&domain.Order{}).Count(&existing).Error; err != nil {
		return rep, err
	}
	if existing == 0 {
		if err := db.WithContext(ctx).Model(&domain.Conversation{}).Count(&existing).Error; err != nil {
			return rep, err
		}
	}
	if existing > 0 {
		rep.Skipped = true
		return rep, nil
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		base := time.Now().UTC().Add(-time.Hour)
		tick := func(n int) time.Time { return base.Add(time.Duration(n) * time.Second) }
		seq := 0

		orders := make([]domain.Order, 0, 10)
		for i := 0; i < 10; i++ {
			seq++
			o := domain.Order{
				ID:       uuid.NewString(),
				PlacedBy: seedUsers[i%len(seedUsers)],
				Items: []domain.OrderItem{
					{Name: fmt.Sprintf("Product %d", i+1), Qty: rnd.IntN(5) + 1},
					{Name: fmt.Sprintf("Product %d", i+2), Qty: rnd.IntN(3) + 1},
				},
				Status:    seedOrderStatuses[rnd.IntN(len(seedOrderStatuses))],
				CreatedAt: tick(seq),
				UpdatedAt: tick(seq),
			}
			if err := tx.Omit("Payments").Create(&o).Error; err != nil {
				return err
			}
			orders = append(orders, o)
		}
		rep.Orders = len(orders)

		for i := 0; i < 8; i++ {
			seq++
			p := domain.Payment{
				ID:        uuid.NewString(),
				OrderID:   orders[i%len(orders)].ID,
				Amount:    decimal.NewFromInt(int64(rnd.IntN(10000) + 100)),
				Currency:  domain.DefaultCurrency,
				Mode:      seedModes[rnd.IntN(len(seedModes))],
				Status:    seedPaymentStatuses[rnd.IntN(len(seedPaymentStatuses))],
				CreatedAt: tick(seq),
				UpdatedAt: tick(seq),
			}
			if err := tx.Omit("Order").Create(&p).Error; err != nil {
				return err
			}
			rep.Payments++
		}

		agents := domain.AgentTypes()
		for i := 0; i < 12; i++ {
			seq++
			c := domain.Conversation{
				ID:        uuid.NewString(),
				Name:      seedUsers[i%len(seedUsers)],
				CreatedAt: tick(seq),
			}
			n := rnd.IntN(5) + 2
			msgs := make([]domain.Message, 0, n)
			for j := 0; j < n; j++ {
				seq++
				m := domain.Message{
					ID:             uuid.NewString(),
					ConversationID: c.ID,
					CreatedAt:      tick(seq),
				}
				if j%2 == 0 {
					m.Role = domain.RoleUser
					m.Content = seedUserMessages[rnd.IntN(len(seedUserMessages))]
				} else {
					at := agents[rnd.IntN(len(agents))]
					m.Role = domain.RoleAgent
					m.AgentType = &at
					m.Content = fmt.Sprintf("Agent response %d for chat %d", j+1, i+1)
				}
				msgs = append(msgs, m)
			}
			c.UpdatedAt = msgs[len(msgs)-1].CreatedAt
			if err := tx.Omit("Messages").Create(&c).Error; err != nil {
				return err
			}
			if err := tx.Create(&msgs).Error; err != nil {
				return err
			}
			action := domain.AgentAction{
				ID:             uuid.NewString(),
				ConversationID: c.ID,
				AgentType:      agents[rnd.IntN(len(agents))],
				Action:         fmt.Sprintf("Action performed in chat %d", i+1),
				Metadata:       map[string]any{"timestamp": c.UpdatedAt.Format(time.RFC3339)},
				CreatedAt:      c.UpdatedAt,
			}
			if err := tx.Omit("Conversation").Create(&action).Error; err != nil {
				return err
			}
			rep.Conversations++
			rep.Messages += len(msgs)
		}
		return nil
	})
	if err != nil {
		return SeedReport{}, err
	}
	return rep, nil
}
