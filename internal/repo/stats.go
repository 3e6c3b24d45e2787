package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-support-chat/internal/domain"
)

// ConversationsStats feeds the conversation list ETag: how many
// conversations exist and when the newest change happened (nil when none).
// Appending a message bumps its conversation, so transcripts count too.
func ConversationsStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error) {
	conv := func() *gorm.DB { return db.WithContext(ctx).Model(&domain.Conversation{}) }

	var n int64
	if err := conv().Count(&n).Error; err != nil || n == 0 {
		return 0, nil, err
	}

	// Ordering instead of MAX(): SQLite hands MAX(updated_at) back as TEXT.
	var latest struct{ UpdatedAt time.Time }
	if err := conv().Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&latest).Error; err != nil {
		return 0, nil, err
	}
	return n, &latest.UpdatedAt, nil
}
