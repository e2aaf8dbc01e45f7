package credential

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Mizroch-Management/ocma-sub004/internal/common"
)

var ErrNotFound = errors.New("credential not found")

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, tenantID, platform string) (*Credential, error) {
	var c Credential
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND platform = ?", tenantID, platform).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Put upserts the credential for (tenant, platform). The single-statement
// upsert keeps concurrent writes to the same key atomic at the database.
func (s *Store) Put(ctx context.Context, c *Credential) error {
	if c.ID == "" {
		id, err := common.NewULID()
		if err != nil {
			return err
		}
		c.ID = id
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}, {Name: "platform"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"access_token", "refresh_token", "expires_at", "updated_at",
			}),
		}).
		Create(c).Error
}
