// Package seed holds the demo merchants, markets, agents and social answers used for local
// development, and loads them into either the in-memory stores or Postgres.
package seed

import (
	"context"
	"fmt"

	agentdomain "merchant-voice-auth/internal/agent/domain"
	"merchant-voice-auth/internal/db"
	merchantdomain "merchant-voice-auth/internal/merchant/domain"
	merchantrepo "merchant-voice-auth/internal/merchant/repository"
	"merchant-voice-auth/internal/security"
	socialdomain "merchant-voice-auth/internal/socialanswer/domain"
	socialrepo "merchant-voice-auth/internal/socialanswer/repository"
	"merchant-voice-auth/internal/textnorm"
)

// Answer is a plaintext social answer before hashing. Bcrypt selects the bcrypt form over SHA-256.
type Answer struct {
	MerchantID   string
	ChallengeKey string
	Salt         string
	Plain        string
	Bcrypt       bool
}

// Dataset is a set of demo records.
type Dataset struct {
	Locations []*merchantdomain.Location
	Merchants []*merchantdomain.Merchant
	Agents    []*agentdomain.Agent
	Answers   []Answer
}

func ptr(f float64) *float64 { return &f }

// Demo returns the development dataset: three merchants in two Abidjan markets and two agents.
func Demo() *Dataset {
	return &Dataset{
		Locations: []*merchantdomain.Location{
			{ID: "loc-adjame", Name: "Marché d'Adjamé", Latitude: ptr(5.3599), Longitude: ptr(-4.0197)},
			{ID: "loc-treichville", Name: "Marché de Treichville", Latitude: ptr(5.2923), Longitude: ptr(-4.0083)},
		},
		Merchants: []*merchantdomain.Merchant{
			{ID: "m-awa", DisplayName: "Awa Koné", Phone: "+2250701000001", Persona: "awa", PreferredLanguage: "fr", LocationID: "loc-adjame"},
			{ID: "m-koffi", DisplayName: "Koffi Yao", Phone: "+2250701000002", Persona: "koffi", PreferredLanguage: "en", LocationID: "loc-treichville"},
			{ID: "m-adjoua", DisplayName: "Adjoua Kouassi", Phone: "+2250701000003", Persona: "tantie", PreferredLanguage: "bci"},
		},
		Agents: []*agentdomain.Agent{
			{ID: "agent-mariam", Name: "Mariam", Phone: "+2250707000001", Active: true},
			{ID: "agent-serge", Name: "Serge", Phone: "+2250707000002", Active: true},
		},
		Answers: []Answer{
			{MerchantID: "m-awa", ChallengeKey: "market_name", Salt: "awa-s1", Plain: "Adjamé"},
			{MerchantID: "m-awa", ChallengeKey: "first_child", Salt: "awa-s2", Plain: "Fatou", Bcrypt: true},
			{MerchantID: "m-koffi", ChallengeKey: "home_village", Salt: "koffi-s1", Plain: "Bouaké"},
			{MerchantID: "m-adjoua", ChallengeKey: "mother_name", Salt: "adjoua-s1", Plain: "Amenan", Bcrypt: true},
		},
	}
}

// Records hashes the answers. bcrypt answers use hasher; a nil hasher uses the default cost.
func (d *Dataset) Records(hasher *security.Hasher) ([]*socialdomain.Record, error) {
	if hasher == nil {
		hasher = security.NewHasher(0)
	}
	out := make([]*socialdomain.Record, 0, len(d.Answers))
	for _, a := range d.Answers {
		normalized := textnorm.Normalize(a.Plain)
		rec := &socialdomain.Record{MerchantID: a.MerchantID, ChallengeKey: a.ChallengeKey, Salt: a.Salt}
		if a.Bcrypt {
			h, err := hasher.Hash(a.Salt, normalized)
			if err != nil {
				return nil, fmt.Errorf("seed: hash %s/%s: %w", a.MerchantID, a.ChallengeKey, err)
			}
			rec.AnswerHash = h
		} else {
			rec.AnswerHash = security.HashAnswer(a.Salt, normalized)
		}
		out = append(out, rec)
	}
	return out, nil
}

// LoadMemory fills the in-memory merchant and answer stores. Agents are passed to the agent
// repository constructor by the caller.
func (d *Dataset) LoadMemory(merchants *merchantrepo.MemoryRepository, answers *socialrepo.MemoryRepository, hasher *security.Hasher) error {
	for _, l := range d.Locations {
		merchants.PutLocation(l)
	}
	for _, m := range d.Merchants {
		merchants.PutMerchant(m)
	}
	recs, err := d.Records(hasher)
	if err != nil {
		return err
	}
	for _, r := range recs {
		answers.Put(r)
	}
	return nil
}

const (
	upsertLocation = `INSERT INTO locations (id, name, latitude, longitude) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude`
	upsertMerchant = `INSERT INTO merchants (id, display_name, phone, persona, preferred_language, location_id)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, phone = EXCLUDED.phone,
persona = EXCLUDED.persona, preferred_language = EXCLUDED.preferred_language, location_id = EXCLUDED.location_id`
	upsertAgent = `INSERT INTO agents (id, name, phone, active) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone, active = EXCLUDED.active`
	upsertAnswer = `INSERT INTO social_answers (merchant_id, challenge_key, salt, answer_hash) VALUES ($1, $2, $3, $4)
ON CONFLICT (merchant_id, challenge_key) DO UPDATE SET salt = EXCLUDED.salt, answer_hash = EXCLUDED.answer_hash`
)

// Postgres upserts the dataset. Running it twice leaves the same rows.
func (d *Dataset) Postgres(ctx context.Context, conn db.DBTX, hasher *security.Hasher) error {
	for _, l := range d.Locations {
		if _, err := conn.Exec(ctx, upsertLocation, l.ID, l.Name, l.Latitude, l.Longitude); err != nil {
			return fmt.Errorf("seed: location %s: %w", l.ID, err)
		}
	}
	for _, m := range d.Merchants {
		var loc *string
		if m.LocationID != "" {
			loc = &m.LocationID
		}
		if _, err := conn.Exec(ctx, upsertMerchant, m.ID, m.DisplayName, m.Phone, m.Persona, m.PreferredLanguage, loc); err != nil {
			return fmt.Errorf("seed: merchant %s: %w", m.ID, err)
		}
	}
	for _, a := range d.Agents {
		if _, err := conn.Exec(ctx, upsertAgent, a.ID, a.Name, a.Phone, a.Active); err != nil {
			return fmt.Errorf("seed: agent %s: %w", a.ID, err)
		}
	}
	recs, err := d.Records(hasher)
	if err != nil {
		return err
	}
	for _, r := range recs {
		if _, err := conn.Exec(ctx, upsertAnswer, r.MerchantID, r.ChallengeKey, r.Salt, r.AnswerHash); err != nil {
			return fmt.Errorf("seed: answer %s/%s: %w", r.MerchantID, r.ChallengeKey, err)
		}
	}
	return nil
}
