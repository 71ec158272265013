// Package access evaluates the Cedar policies guarding clinic documents.
package access

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/cedar-policy/cedar-go"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
)

//go:embed policies/policy.cedar
var policyContent string

// Action names as they appear in the policy.
type Action string

const (
	ActionList      Action = "list"
	ActionRead      Action = "read"
	ActionCreate    Action = "create"
	ActionUpdate    Action = "update"
	ActionDelete    Action = "delete"
	ActionDuplicate Action = "duplicate"
	ActionShare     Action = "share"
	ActionPreview   Action = "preview"
	ActionHandout   Action = "handout"
)

const (
	typeUser     = "DentalHub::User"
	typeAction   = "DentalHub::Action"
	typeDocument = "DentalHub::Document"
	typeClinic   = "DentalHub::Clinic"
)

// Principal is the caller as seen by the policy.
type Principal struct {
	UserID   string
	Role     string
	ClinicID string
}

// Resource is either a document or, for list/create, the clinic itself.
type Resource struct {
	Type     string
	ID       string
	ClinicID string
	Shared   bool
}

// DocumentResource describes an existing document.
func DocumentResource(d *document.Document) Resource {
	return Resource{Type: typeDocument, ID: d.ID, ClinicID: d.ClinicID, Shared: d.IsSharedWithPatients}
}

// ClinicResource describes the document collection of a clinic.
func ClinicResource(clinicID string) Resource {
	return Resource{Type: typeClinic, ID: clinicID, ClinicID: clinicID}
}

// Authorizer handles Cedar authorization
type Authorizer struct {
	policySet *cedar.PolicySet
}

func NewAuthorizer() (*Authorizer, error) {
	policySet, err := cedar.NewPolicySetFromBytes("policy.cedar", []byte(policyContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse policies: %w", err)
	}
	return &Authorizer{policySet: policySet}, nil
}

func (a *Authorizer) entities(p Principal, r Resource) (cedar.EntityMap, error) {
	resAttrs := map[string]interface{}{"clinic": r.ClinicID}
	if r.Type == typeDocument {
		resAttrs["shared"] = r.Shared
	}
	entitiesJSON := []map[string]interface{}{
		{
			"uid":     map[string]string{"type": typeUser, "id": p.UserID},
			"attrs":   map[string]interface{}{"role": p.Role, "clinic": p.ClinicID},
			"parents": []interface{}{},
		},
		{
			"uid":     map[string]string{"type": r.Type, "id": r.ID},
			"attrs":   resAttrs,
			"parents": []interface{}{},
		},
	}
	b, err := json.Marshal(entitiesJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal entities: %w", err)
	}
	var entities cedar.EntityMap
	if err := json.Unmarshal(b, &entities); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entities: %w", err)
	}
	return entities, nil
}

// Authorize reports whether p may perform action on r.
func (a *Authorizer) Authorize(p Principal, action Action, r Resource) (bool, error) {
	entities, err := a.entities(p, r)
	if err != nil {
		return false, err
	}
	req := cedar.Request{
		Principal: cedar.NewEntityUID(cedar.EntityType(typeUser), cedar.String(p.UserID)),
		Action:    cedar.NewEntityUID(cedar.EntityType(typeAction), cedar.String(string(action))),
		Resource:  cedar.NewEntityUID(cedar.EntityType(r.Type), cedar.String(r.ID)),
		Context:   cedar.NewRecord(cedar.RecordMap{}),
	}
	decision, _ := a.policySet.IsAuthorized(entities, req)
	return decision == cedar.Allow, nil
}
