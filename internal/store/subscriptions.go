package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-access-backend/internal/model"
)

// SubscriptionStore persists browser push subscriptions and the vehicles
// each one follows.
type SubscriptionStore interface {
	PutSubscription(ctx context.Context, sub *model.PushSubscription, vehicleIDs []int64) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForVehicle(ctx context.Context, vehicleID int64) ([]model.PushSubscription, error)
}

// PutSubscription creates or replaces a subscription and its vehicle list.
// Unknown vehicle ids are ignored.
func (s *gormStore) PutSubscription(ctx context.Context, sub *model.PushSubscription, vehicleIDs []int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Omit("Vehicles").Create(sub).Error; err != nil {
			return err
		}

		vehicles := []*model.Vehicle{}
		if len(vehicleIDs) > 0 {
			if err := tx.Find(&vehicles, vehicleIDs).Error; err != nil {
				return err
			}
		}
		return tx.Model(sub).Association("Vehicles").Replace(vehicles)
	})
}

// GetSubscription returns the subscription with its vehicles, or nil.
func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).Preload("Vehicles").First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := &model.PushSubscription{Endpoint: endpoint}
		if err := tx.Model(sub).Association("Vehicles").Clear(); err != nil {
			return err
		}
		return tx.Delete(sub).Error
	})
}

func (s *gormStore) SubscriptionsForVehicle(ctx context.Context, vehicleID int64) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	err := s.db.WithContext(ctx).
		Joins("JOIN subscription_vehicle_mapping svm ON svm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("svm.vehicle_id = ?", vehicleID).
		Find(&subs).Error
	return subs, err
}
