package handler

import (
	"time"

	"roster/internal/identity/models"
)

type DomainResponse struct {
	HasData      bool `json:"has_data"`
	SessionCount int  `json:"session_count"`
}

type AthleteResponse struct {
	ID              string                    `json:"athlete_uuid"`
	DisplayName     string                    `json:"name"`
	NormalizedName  string                    `json:"normalized_name"`
	DateOfBirth     string                    `json:"date_of_birth,omitempty"`
	Age             *float64                  `json:"age,omitempty"`
	AgeAtCollection *float64                  `json:"age_at_collection,omitempty"`
	Gender          *string                   `json:"gender,omitempty"`
	Height          *float64                  `json:"height,omitempty"`
	Weight          *float64                  `json:"weight,omitempty"`
	Notes           *string                   `json:"notes,omitempty"`
	SourceSystem    string                    `json:"source_system"`
	SourceAthleteID string                    `json:"source_athlete_id,omitempty"`
	Domains         map[string]DomainResponse `json:"domains"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

type MatchResponse struct {
	Athlete AthleteResponse `json:"athlete"`
	Method  string          `json:"method"`
	Score   float64         `json:"score"`
}

func FromAthlete(a *models.Athlete) AthleteResponse {
	resp := AthleteResponse{
		ID:              a.ID.String(),
		DisplayName:     a.DisplayName,
		NormalizedName:  a.NormalizedName,
		Age:             a.Age,
		AgeAtCollection: a.AgeAtCollection,
		Gender:          a.Gender,
		Height:          a.Height,
		Weight:          a.Weight,
		Notes:           a.Notes,
		SourceSystem:    string(a.SourceSystem),
		SourceAthleteID: a.SourceAthleteID,
		Domains:         make(map[string]DomainResponse, len(a.Domains)),
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if a.DateOfBirth != nil {
		resp.DateOfBirth = a.DateOfBirth.Format(time.DateOnly)
	}
	for system, stats := range a.Domains {
		resp.Domains[string(system)] = DomainResponse{HasData: stats.HasData, SessionCount: stats.SessionCount}
	}
	return resp
}
