package domain

import (
	"time"

	"github.com/google/uuid"
)

// Mission is a task definition with a fixed reward in cents.
type Mission struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Reward           int64      `json:"reward"`
	URL              *string    `json:"url,omitempty"`
	FixedForNewUsers bool       `json:"fixed_for_new_users"`
	CreatedAt        time.Time  `json:"created_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
}

// CreateMissionRequest is the admin payload for a new mission.
type CreateMissionRequest struct {
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	Reward           int64   `json:"reward"`
	URL              *string `json:"url,omitempty"`
	FixedForNewUsers bool    `json:"fixed_for_new_users"`
}

// DefaultMissions is the starter catalogue seeded into an empty store.
func DefaultMissions() []CreateMissionRequest {
	return []CreateMissionRequest{
		{
			Title:            "Instale o aplicativo DinCash",
			Description:      "Faça o download do aplicativo DinCash na loja de aplicativos e complete o cadastro.",
			Reward:           500,
			FixedForNewUsers: true,
		},
		{
			Title:       "Compartilhe nas redes sociais",
			Description: "Compartilhe o DinCash em suas redes sociais e envie um print da postagem.",
			Reward:      1000,
		},
		{
			Title:       "Assista um vídeo tutorial",
			Description: "Assista ao vídeo completo sobre como maximizar seus ganhos no DinCash.",
			Reward:      300,
		},
		{
			Title:       "Complete seu perfil",
			Description: "Preencha todas as informações do seu perfil para desbloquear mais missões.",
			Reward:      500,
		},
		{
			Title:       "Faça uma avaliação do serviço",
			Description: "Avalie nosso serviço com 5 estrelas e comente sua experiência.",
			Reward:      700,
		},
	}
}
