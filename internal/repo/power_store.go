package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"roost/internal/models"
)

type PowerStore struct{ db *gorm.DB }

func NewPowerStore(db *gorm.DB) *PowerStore { return &PowerStore{db: db} }

func (s *PowerStore) WithTx(tx *gorm.DB) *PowerStore { return &PowerStore{db: tx} }

// LastReadingBefore — непосредственно предыдущее показание устройства
// (максимум record_datetime строго раньше t), nil если истории нет.
func (s *PowerStore) LastReadingBefore(ctx context.Context, deviceID uint, t time.Time) (*models.DevicePower, error) {
	var r models.DevicePower
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND record_datetime < ?", deviceID, t).
		Order("record_datetime DESC").First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PowerStore) SaveReading(ctx context.Context, r *models.DevicePower) error {
	return s.db.WithContext(ctx).Create(r).Error
}

// PolicyByCode возвращает политику аномалий (nil, если не настроена).
func (s *PowerStore) PolicyByCode(ctx context.Context, code int) (*models.AbnormityPolicy, error) {
	var p models.AbnormityPolicy
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// OpenAbnormity — открытое окно (is_end=false) пары (device, type);
// по инварианту оно максимум одно.
func (s *PowerStore) OpenAbnormity(ctx context.Context, deviceID uint, typ string) (*models.Abnormity, error) {
	var a models.Abnormity
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND type = ? AND is_end = ?", deviceID, typ, false).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PowerStore) CreateAbnormity(ctx context.Context, a *models.Abnormity) error {
	return s.db.WithContext(ctx).Create(a).Error
}

func (s *PowerStore) AddDetail(ctx context.Context, d *models.AbnormityDetail) error {
	return s.db.WithContext(ctx).Create(d).Error
}

// ExtendAbnormity продлевает окно до t новым показанием.
func (s *PowerStore) ExtendAbnormity(ctx context.Context, id uint, t time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Abnormity{}).
		Where("id = ?", id).Update("end_time", t).Error
}

// CloseAbnormity закрывает окно: только флаг, end_time не трогается.
func (s *PowerStore) CloseAbnormity(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Model(&models.Abnormity{}).
		Where("id = ?", id).Update("is_end", true).Error
}

func (s *PowerStore) DetailsOf(ctx context.Context, abnormityID uint) ([]models.AbnormityDetail, error) {
	var details []models.AbnormityDetail
	err := s.db.WithContext(ctx).
		Where("abnormity_id = ?", abnormityID).Order("record_time").Find(&details).Error
	return details, err
}
