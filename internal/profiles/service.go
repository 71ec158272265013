// Package profiles resolves identities to their doctor or patient profile
// and doctors to their clinic.
package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/models"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/sessions"
)

// ErrNoClinic is returned when the acting user has no clinic affiliation.
var ErrNoClinic = errors.New("No clinic associated with account")

// ErrNoProfile is returned when no profile exists for a user id.
var ErrNoProfile = errors.New("profile not found")

// Service encapsulates profile lookups.
type Service struct {
	repo Repository
}

func NewService(r Repository) *Service {
	return &Service{repo: r}
}

// Lookup returns the DoctorProfile (joined with its clinic) or PatientProfile
// of userID.
func (s *Service) Lookup(ctx context.Context, userID string) (models.Profile, error) {
	rec, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNoProfile
	}
	switch rec.Role {
	case sessions.RoleDoctor:
		p := &models.DoctorProfile{ID: rec.ID, Email: rec.Email, FullName: rec.FullName, Phone: rec.Phone}
		if rec.Doctor != nil {
			p.LicenseNumber = rec.Doctor.LicenseNumber
			p.Specialty = rec.Doctor.Specialty
			p.ClinicID = rec.Doctor.ClinicID
		}
		if p.ClinicID != "" {
			c, err := s.repo.GetClinic(ctx, p.ClinicID)
			if err != nil {
				return nil, err
			}
			p.Clinic = c
		}
		return p, nil
	case sessions.RolePatient:
		p := &models.PatientProfile{ID: rec.ID, Email: rec.Email, FullName: rec.FullName, Phone: rec.Phone}
		if rec.Patient != nil {
			p.DateOfBirth = rec.Patient.DateOfBirth
			p.InsuranceProvider = rec.Patient.InsuranceProvider
		}
		return p, nil
	default:
		return nil, fmt.Errorf("profile %s has unknown role %q", rec.ID, rec.Role)
	}
}

// ClinicFor resolves the clinic of the session's doctor.
func (s *Service) ClinicFor(ctx context.Context, sess *sessions.Session) (string, error) {
	if sess == nil || sess.UserID == "" {
		return "", &document.AuthError{Message: document.MsgNotAuthenticated}
	}
	p, err := s.Lookup(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, ErrNoProfile) {
			return "", ErrNoClinic
		}
		return "", err
	}
	doc, ok := p.(*models.DoctorProfile)
	if !ok || doc.ClinicID == "" {
		return "", ErrNoClinic
	}
	return doc.ClinicID, nil
}

// UpsertFromClaims creates or refreshes the profile of the token subject.
func (s *Service) UpsertFromClaims(ctx context.Context, sess *sessions.Session, claims map[string]interface{}) (models.Profile, error) {
	if sess == nil || sess.UserID == "" {
		return nil, &document.AuthError{Message: document.MsgNotAuthenticated}
	}
	name, _ := claims["name"].(string)
	rec := &models.ProfileRecord{ID: sess.UserID, Role: sess.Role, Email: sess.Email, FullName: name}
	switch sess.Role {
	case sessions.RoleDoctor:
		rec.Doctor = &models.DoctorDetails{}
	case sessions.RolePatient:
		rec.Patient = &models.PatientDetails{}
	default:
		return nil, fmt.Errorf("token for %s carries no usable role", sess.UserID)
	}
	if _, err := s.repo.UpsertProfile(ctx, rec); err != nil {
		return nil, err
	}
	return s.Lookup(ctx, sess.UserID)
}
