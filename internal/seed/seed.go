// Package seed loads a small demo stable so a fresh install has something to
// bill against. It is idempotent and only runs when explicitly enabled.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ownerdomain "github.com/paddockhq/stablebill/internal/owner/domain"
	"gorm.io/gorm"
)

type demoOwner struct {
	accountNumber string
	name          string
	email         string
}

type demoShare struct {
	accountNumber string
	shareBps      int64
}

type demoHorse struct {
	name   string
	shares []demoShare
}

var demoOwners = []demoOwner{
	{accountNumber: "SMITH01", name: "Jordan Smith", email: "jordan@example.com"},
	{accountNumber: "DOE02", name: "Alex Doe", email: "alex@example.com"},
	{accountNumber: "LEE03", name: "Sam Lee", email: "sam@example.com"},
}

var demoHorses = []demoHorse{
	{name: "Northern Star", shares: []demoShare{
		{accountNumber: "SMITH01", shareBps: 6000},
		{accountNumber: "DOE02", shareBps: 4000},
	}},
	{name: "Quiet Harbor", shares: []demoShare{
		{accountNumber: "LEE03", shareBps: 10000},
	}},
}

// EnsureDemoStable seeds demo owners, horses, and ownership shares. Existing
// rows are left untouched, so it is safe to run on every startup.
func EnsureDemoStable(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owners := make(map[string]ownerdomain.Owner, len(demoOwners))
		for _, o := range demoOwners {
			owner, err := ensureOwnerTx(ctx, tx, node, o)
			if err != nil {
				return err
			}
			owners[o.accountNumber] = owner
		}

		for _, h := range demoHorses {
			if err := ensureHorseTx(ctx, tx, node, h, owners); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureOwnerTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, o demoOwner) (ownerdomain.Owner, error) {
	var existing ownerdomain.Owner
	err := tx.WithContext(ctx).
		Where("account_number = ?", o.accountNumber).
		First(&existing).Error
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ownerdomain.Owner{}, err
	}

	now := time.Now().UTC()
	owner := ownerdomain.Owner{
		ID:            node.Generate(),
		AccountNumber: o.accountNumber,
		Name:          o.name,
		Email:         o.email,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := tx.WithContext(ctx).Create(&owner).Error; err != nil {
		return ownerdomain.Owner{}, err
	}
	return owner, nil
}

func ensureHorseTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, h demoHorse, owners map[string]ownerdomain.Owner) error {
	var horse ownerdomain.Horse
	err := tx.WithContext(ctx).Where("name = ?", h.name).First(&horse).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		horse = ownerdomain.Horse{
			ID:        node.Generate(),
			Name:      h.name,
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.WithContext(ctx).Create(&horse).Error; err != nil {
			return err
		}
	}

	for _, share := range h.shares {
		owner, ok := owners[share.accountNumber]
		if !ok {
			continue
		}

		var existing ownerdomain.HorseOwner
		err := tx.WithContext(ctx).
			Where("horse_id = ? AND owner_id = ?", horse.ID, owner.ID).
			First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		record := ownerdomain.HorseOwner{
			ID:        node.Generate(),
			HorseID:   horse.ID,
			OwnerID:   owner.ID,
			ShareBps:  share.shareBps,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
			return err
		}
	}
	return nil
}
