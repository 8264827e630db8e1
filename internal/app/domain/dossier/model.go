package dossier

import "time"

// Statut is the lifecycle state of a loan file.
type Statut string

const (
	StatutEnAttente Statut = "en_attente"
	StatutEnCours   Statut = "en_cours"
	StatutAccorde   Statut = "accorde"
	StatutRefuse    Statut = "refuse"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Statut) Valid() bool {
	switch s {
	case StatutEnAttente, StatutEnCours, StatutAccorde, StatutRefuse:
		return true
	}
	return false
}

// Dossier is a loan application file. It belongs to one client and one broker.
type Dossier struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	BrokerID  string    `json:"broker_id"`
	Titre     string    `json:"titre"`
	Statut    Statut    `json:"statut"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
