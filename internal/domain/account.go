package domain

import "time"

// Account es el registro de identidad. Email y username son únicos y se
// guardan normalizados a minúsculas. PasswordHash queda vacío de sentido
// utilizable para cuentas creadas solo por OAuth (se guarda un hash de una
// contraseña aleatoria que nadie conoce).
type Account struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`

	FirstName         string `json:"first_name,omitempty"`
	LastName          string `json:"last_name,omitempty"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
	PhoneNumber       string `json:"phone_number,omitempty"`
	Bio               string `json:"bio,omitempty"`
	Location          string `json:"location,omitempty"`
	GithubURL         string `json:"github_url,omitempty"`
	LinkedinURL       string `json:"linkedin_url,omitempty"`
	PortfolioURL      string `json:"portfolio_url,omitempty"`

	IsActive bool   `json:"is_active"`
	IsAdmin  bool   `json:"is_admin"`
	Language string `json:"language,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// AccountPatch lista los campos mutables de perfil. Un puntero nil significa
// "sin cambio"; los campos de identidad y credenciales quedan fuera a propósito.
type AccountPatch struct {
	FirstName         *string `json:"first_name"`
	LastName          *string `json:"last_name"`
	ProfilePictureURL *string `json:"profile_picture_url"`
	PhoneNumber       *string `json:"phone_number"`
	Bio               *string `json:"bio"`
	Location          *string `json:"location"`
	GithubURL         *string `json:"github_url"`
	LinkedinURL       *string `json:"linkedin_url"`
	PortfolioURL      *string `json:"portfolio_url"`
	Language          *string `json:"language"`
	Timezone          *string `json:"timezone"`
}

// Apply mezcla los campos presentes del patch sobre la cuenta.
func (p AccountPatch) Apply(a *Account) {
	if p.FirstName != nil {
		a.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		a.LastName = *p.LastName
	}
	if p.ProfilePictureURL != nil {
		a.ProfilePictureURL = *p.ProfilePictureURL
	}
	if p.PhoneNumber != nil {
		a.PhoneNumber = *p.PhoneNumber
	}
	if p.Bio != nil {
		a.Bio = *p.Bio
	}
	if p.Location != nil {
		a.Location = *p.Location
	}
	if p.GithubURL != nil {
		a.GithubURL = *p.GithubURL
	}
	if p.LinkedinURL != nil {
		a.LinkedinURL = *p.LinkedinURL
	}
	if p.PortfolioURL != nil {
		a.PortfolioURL = *p.PortfolioURL
	}
	if p.Language != nil {
		a.Language = *p.Language
	}
	if p.Timezone != nil {
		a.Timezone = *p.Timezone
	}
}
