package model

import "time"

type SocialLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// SiteSettings is the single row of site-wide configuration edited from the
// admin surface.
type SiteSettings struct {
	ID int64 `json:"id"`

	HeaderBrand        string       `json:"header_brand"`
	HeaderSubtitle     string       `json:"header_subtitle"`
	SidebarTitle       string       `json:"sidebar_title"`
	SidebarDescription string       `json:"sidebar_description"`
	SocialLinks        []SocialLink `json:"social_links"`
	AvatarURL          string       `json:"avatar_url,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy UserID    `json:"updated_by,omitempty"`
}

// SettingsPatch holds the fields to change; nil fields are left as they are.
type SettingsPatch struct {
	HeaderBrand        *string       `json:"header_brand,omitempty"`
	HeaderSubtitle     *string       `json:"header_subtitle,omitempty"`
	SidebarTitle       *string       `json:"sidebar_title,omitempty"`
	SidebarDescription *string       `json:"sidebar_description,omitempty"`
	SocialLinks        *[]SocialLink `json:"social_links,omitempty"`
	AvatarURL          *string       `json:"avatar_url,omitempty"`
}

// Apply copies the set fields of patch onto s.
func (patch SettingsPatch) Apply(s *SiteSettings) {
	if patch.HeaderBrand != nil {
		s.HeaderBrand = *patch.HeaderBrand
	}
	if patch.HeaderSubtitle != nil {
		s.HeaderSubtitle = *patch.HeaderSubtitle
	}
	if patch.SidebarTitle != nil {
		s.SidebarTitle = *patch.SidebarTitle
	}
	if patch.SidebarDescription != nil {
		s.SidebarDescription = *patch.SidebarDescription
	}
	if patch.SocialLinks != nil {
		s.SocialLinks = *patch.SocialLinks
	}
	if patch.AvatarURL != nil {
		s.AvatarURL = *patch.AvatarURL
	}
}

// DefaultSiteSettings is the row created the first time settings are read.
func DefaultSiteSettings() SiteSettings {
	return SiteSettings{
		HeaderBrand:        "Digital Atelier",
		SidebarTitle:       "Digital Atelier",
		SidebarDescription: "A personal blog about building things end to end: design notes and write-ups of experiments.",
		SocialLinks:        []SocialLink{},
	}
}
