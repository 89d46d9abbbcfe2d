package repository

import (
	"context"
	"errors"
	"fmt"

	"salonpro-reminders/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BookingRepository reads the booking-side data the dispatcher decorates
// messages with: location templates and client loyalty balances.
type BookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// ActiveTemplate returns the location's active template for kind. ok is
// false when the location has none.
func (r *BookingRepository) ActiveTemplate(ctx context.Context, locationID uuid.UUID, kind string) (message string, ok bool, err error) {
	var template models.ReminderTemplate
	res := r.db.WithContext(ctx).
		Where("location_id = ? AND kind = ? AND is_active = ?", locationID, kind, true).
		Order("updated_at DESC").
		Limit(1).
		Find(&template)
	if res.Error != nil {
		return "", false, fmt.Errorf("loading %s template for location %s: %w", kind, locationID, res.Error)
	}
	if res.RowsAffected == 0 {
		return "", false, nil
	}
	return template.Message, true, nil
}

// LoyaltyPoints returns the client's current points balance.
func (r *BookingRepository) LoyaltyPoints(ctx context.Context, clientID uuid.UUID) (int, error) {
	var client models.Client
	err := r.db.WithContext(ctx).Select("loyalty_points").Where("id = ?", clientID).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading loyalty points for client %s: %w", clientID, err)
	}
	return client.LoyaltyPoints, nil
}

// FindAppointment loads one appointment snapshot.
func (r *BookingRepository) FindAppointment(ctx context.Context, id uuid.UUID) (*models.AppointmentSnapshot, error) {
	var appt models.Appointment
	err := r.db.WithContext(ctx).
		Preload("Client").
		Preload("Agent").
		Preload("Location").
		Preload("Services").
		Where("appointments.id = ?", id).
		First(&appt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, err
	}
	snap := appt.Snapshot()
	return &snap, nil
}

// SaveTemplate creates or replaces the location's template for kind.
func (r *BookingRepository) SaveTemplate(ctx context.Context, locationID uuid.UUID, kind, message string, active bool) (*models.ReminderTemplate, error) {
	var template models.ReminderTemplate
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var location models.Location
		if err := tx.Select("id").Where("id = ?", locationID).First(&location).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrLocationNotFound
			}
			return err
		}

		err := tx.Where("location_id = ? AND kind = ?", locationID, kind).First(&template).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			template = models.ReminderTemplate{LocationID: locationID, Kind: kind, Message: message, IsActive: active}
			return tx.Create(&template).Error
		case err != nil:
			return err
		}

		template.Message = message
		template.IsActive = active
		return tx.Save(&template).Error
	})
	if err != nil {
		return nil, err
	}
	return &template, nil
}
