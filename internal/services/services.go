// package services talks to the imgx backend over HTTP
//
// Auth, images, health, stats
package services

import (
	"net/http"

	"github.com/desertthunder/imgx/internal/shared"
)

// Services groups every backend client over one [APIService].
type Services struct {
	API    *APIService
	Auth   *AuthService
	Images *ImageService
	Health *HealthService
	Stats  *StatsService
}

// New builds all services from config. Options apply to the shared [APIService].
func New(c *shared.Config, client *http.Client, opts ...Option) *Services {
	api := NewAPIServiceFromConfig(c, client, opts...)
	return &Services{
		API:    api,
		Auth:   NewAuthService(api),
		Images: NewImageService(api),
		Health: NewHealthService(api),
		Stats:  NewStatsService(api),
	}
}
