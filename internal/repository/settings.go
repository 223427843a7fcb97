package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/debemdeboas/atelier/internal/db"
	"github.com/debemdeboas/atelier/internal/model"
)

type DBSettingsRepository struct { // implements SettingsRepository
	db db.DB

	// Serialises read-modify-write in UpsertSettings.
	mu  sync.Mutex
	now func() time.Time
}

func NewDBSettingsRepository(db db.DB) *DBSettingsRepository {
	return &DBSettingsRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (r *DBSettingsRepository) GetSettings(ctx context.Context) (*model.SiteSettings, error) {
	var s model.SiteSettings
	var links string
	var updatedAt sql.NullTime
	var updatedBy sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, header_brand, header_subtitle, sidebar_title, sidebar_description, social_links, avatar_url, updated_at, updated_by
		FROM site_settings ORDER BY id LIMIT 1`,
	).Scan(&s.ID, &s.HeaderBrand, &s.HeaderSubtitle, &s.SidebarTitle, &s.SidebarDescription, &links, &s.AvatarURL, &updatedAt, &updatedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: error reading settings: %w", ErrFetch, err)
	}

	if err := json.Unmarshal([]byte(links), &s.SocialLinks); err != nil || s.SocialLinks == nil {
		s.SocialLinks = []model.SocialLink{}
	}
	if updatedAt.Valid {
		s.UpdatedAt = updatedAt.Time
	}
	s.UpdatedBy = model.UserID(updatedBy.String)

	return &s, nil
}

// EnsureSettings returns the settings row, creating it with the default
// values the first time.
func (r *DBSettingsRepository) EnsureSettings(ctx context.Context) (*model.SiteSettings, error) {
	s, err := r.GetSettings(ctx)
	if err != nil || s != nil {
		return s, err
	}

	repoLogger.Info().Msg("No site settings found, seeding defaults")
	return r.UpsertSettings(ctx, model.SettingsPatch{}, "")
}

func (r *DBSettingsRepository) UpsertSettings(ctx context.Context, patch model.SettingsPatch, by model.UserID) (*model.SiteSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	var s model.SiteSettings
	if current != nil {
		s = *current
	} else {
		s = model.DefaultSiteSettings()
	}
	patch.Apply(&s)
	s.UpdatedAt = r.now()
	s.UpdatedBy = by

	if s.SocialLinks == nil {
		s.SocialLinks = []model.SocialLink{}
	}
	links, err := json.Marshal(s.SocialLinks)
	if err != nil {
		return nil, fmt.Errorf("error encoding social links: %w", err)
	}

	if current == nil {
		res, err := r.db.ExecContext(ctx,
			`INSERT INTO site_settings (header_brand, header_subtitle, sidebar_title, sidebar_description, social_links, avatar_url, updated_at, updated_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.HeaderBrand, s.HeaderSubtitle, s.SidebarTitle, s.SidebarDescription, string(links), s.AvatarURL, s.UpdatedAt, string(by),
		)
		if err != nil {
			return nil, fmt.Errorf("error creating settings: %w", err)
		}
		if s.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("error creating settings: %w", err)
		}
	} else {
		_, err := r.db.ExecContext(ctx,
			`UPDATE site_settings SET header_brand = ?, header_subtitle = ?, sidebar_title = ?, sidebar_description = ?,
			social_links = ?, avatar_url = ?, updated_at = ?, updated_by = ? WHERE id = ?`,
			s.HeaderBrand, s.HeaderSubtitle, s.SidebarTitle, s.SidebarDescription, string(links), s.AvatarURL, s.UpdatedAt, string(by), s.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("error updating settings: %w", err)
		}
	}

	repoLogger.Debug().Int64("settings_id", s.ID).Msg("Settings saved")
	return &s, nil
}
