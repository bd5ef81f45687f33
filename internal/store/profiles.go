package store

import (
	"context"

	"github.com/unimart/unimart/internal/domain"
)

// ProfileStore accesses the profiles table.
type ProfileStore struct {
	store *Store
}

// Get returns the profile for the given user id.
func (ps *ProfileStore) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	var profile domain.Profile
	err := ps.store.client.From(TableProfiles).
		Select("*").
		Eq("id", userID).
		Single().
		Get(ctx, &profile)
	if err != nil {
		ps.store.logger.WithContext(ctx).WithError(err).
			WithField("user_id", userID).Error("profile fetch failed")
		return nil, err
	}
	return &profile, nil
}

// Update applies a partial profile update and returns the fresh profile.
func (ps *ProfileStore) Update(ctx context.Context, userID string, fields map[string]any) (*domain.Profile, error) {
	var updated domain.Profile
	err := ps.store.client.From(TableProfiles).
		Eq("id", userID).
		Single().
		Update(ctx, fields, &updated)
	if err != nil {
		ps.store.logger.WithContext(ctx).WithError(err).
			WithField("user_id", userID).Error("profile update failed")
		return nil, err
	}
	return &updated, nil
}

// FindByPhoneSuffix returns profiles whose stored phone number ends with
// the given digits. Both phone columns are checked because older profiles
// stored the number under phone.
func (ps *ProfileStore) FindByPhoneSuffix(ctx context.Context, last10 string) ([]domain.Profile, error) {
	var profiles []domain.Profile
	err := ps.store.client.From(TableProfiles).
		Select("*").
		Or("phone_number.like.*"+last10+",phone.like.*"+last10).
		Get(ctx, &profiles)
	if err != nil {
		ps.store.logger.WithContext(ctx).WithError(err).Error("phone lookup failed")
		return nil, err
	}
	return profiles, nil
}
