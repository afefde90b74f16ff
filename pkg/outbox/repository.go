package outbox

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/teamprint-backend/pkg/db/models"
)

const maxErrorLen = 1024

// Pending rows are neither published nor parked.
const (
	pendingFilter  = "published_at IS NULL AND terminal_at IS NULL"
	terminalFilter = "terminal_at IS NOT NULL"
)

type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Create(&event).Error
}

// FetchUnpublishedForPublish locks up to limit pending rows, oldest first,
// for the caller's transaction. Rows another publisher holds are skipped.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errNoTx
	}
	query := tx.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked}).
		Where(pendingFilter)
	if maxAttempts > 0 {
		query = query.Where("attempt_count < ?", maxAttempts)
	}
	var rows []models.OutboxEvent
	err := query.Order("created_at, id").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	return r.update(tx, id, map[string]any{
		"published_at": r.now(),
		"last_error":   nil,
	})
}

func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	return r.update(tx, id, failure(err))
}

// MarkTerminalTx parks a row that will never be published. Parked rows stay
// in the table as the dead letter record.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error) error {
	changes := failure(err)
	changes["terminal_at"] = r.now()
	return r.update(tx, id, changes)
}

func (r *Repository) update(tx *gorm.DB, id uuid.UUID, changes map[string]any) error {
	if tx == nil {
		return errNoTx
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(changes).Error
}

func failure(err error) map[string]any {
	return map[string]any{
		"last_error":    clipError(err),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	}
}

// DeletePublishedBefore removes published rows older than cutoff.
func (r *Repository) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	var row models.OutboxEvent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// Backlog summarizes rows still waiting to go out and rows parked for good.
type Backlog struct {
	Pending       int64
	Terminal      int64
	OldestPending *time.Time
}

func (r *Repository) Backlog(ctx context.Context) (Backlog, error) {
	var b Backlog
	base := r.db.WithContext(ctx).Model(&models.OutboxEvent{})
	if err := base.Session(&gorm.Session{}).Where(pendingFilter).Count(&b.Pending).Error; err != nil {
		return b, err
	}
	if err := base.Session(&gorm.Session{}).Where(terminalFilter).Count(&b.Terminal).Error; err != nil {
		return b, err
	}
	if b.Pending == 0 {
		return b, nil
	}
	var oldest []models.OutboxEvent
	err := base.Session(&gorm.Session{}).Select("created_at").Where(pendingFilter).
		Order("created_at").Limit(1).Find(&oldest).Error
	if err != nil {
		return b, err
	}
	if len(oldest) == 1 {
		created := oldest[0].CreatedAt
		b.OldestPending = &created
	}
	return b, nil
}

// clipError keeps last_error bounded without splitting a UTF-8 sequence.
func clipError(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxErrorLen {
		cut := maxErrorLen
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return &msg
}
