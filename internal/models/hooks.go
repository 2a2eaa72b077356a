package models

import (
	"time"

	"authgate/internal/events"

	"gorm.io/gorm"
)

func (g *AccountAccessGroup) BeforeCreate(tx *gorm.DB) error {
	if err := g.Base.BeforeCreate(tx); err != nil {
		return err
	}
	if g.GrantedAt.IsZero() {
		g.GrantedAt = time.Now()
	}
	return nil
}

func (g *AccountAccessGroup) AfterCreate(tx *gorm.DB) error {
	log.Info("access group granted user=%s group=%s", g.UserAccountID, g.AccessGroupID)
	events.Emit("grant.created", g)
	return nil
}
