// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Content
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions. They follow the thin repository approach:
// no business rules, only persistence and query composition. Ownership is
// enforced in the WHERE clause so a non-owner update reads as ErrNotFound.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/monitizeclub/monitize-backend/internal/domain"
)

// CreateContent inserts c. ID and timestamps must already be set.
func CreateContent(ctx context.Context, db *gorm.DB, c *domain.Content) error {
	return db.WithContext(ctx).Create(c).Error
}

// GetContent fetches a single content row by ID regardless of status.
func GetContent(ctx context.Context, db *gorm.DB, id string) (*domain.Content, error) {
	var c domain.Content
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateContent applies the given column updates to the content owned by
// creatorID. It returns ErrNotFound when no row matches.
func UpdateContent(ctx context.Context, db *gorm.DB, id, creatorID string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Content{}).
		Where("id = ? AND creator_id = ?", id, creatorID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteContent soft-deletes the content owned by creatorID.
func DeleteContent(ctx context.Context, db *gorm.DB, id, creatorID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND creator_id = ?", id, creatorID).
		Delete(&domain.Content{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountPublished returns the number of published contents.
func CountPublished(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Content{}).
		Where("status = ?", domain.StatusPublished).
		Count(&total).Error
	return total, err
}

// ListPublishedPage returns published contents, newest first.
func ListPublishedPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Content, error) {
	var out []domain.Content
	err := db.WithContext(ctx).
		Where("status = ?", domain.StatusPublished).
		Order("created_at desc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListPublished returns up to limit published contents, newest first. A
// non-positive limit returns all of them.
func ListPublished(ctx context.Context, db *gorm.DB, limit int) ([]domain.Content, error) {
	var out []domain.Content
	q := db.WithContext(ctx).
		Where("status = ?", domain.StatusPublished).
		Order("created_at desc, id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListByCreator returns every content owned by creatorID in any status.
func ListByCreator(ctx context.Context, db *gorm.DB, creatorID string) ([]domain.Content, error) {
	var out []domain.Content
	err := db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at desc, id asc").
		Find(&out).Error
	return out, err
}

// PublishDue promotes scheduled contents whose scheduled_at is at or before
// now to published and returns the IDs it changed.
func PublishDue(ctx context.Context, db *gorm.DB, now time.Time) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.Content{}).
			Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", domain.StatusScheduled, now).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&domain.Content{}).
			Where("id IN ? AND status = ?", ids, domain.StatusScheduled).
			Updates(map[string]any{"status": domain.StatusPublished, "updated_at": now}).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
