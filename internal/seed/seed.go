// Package seed loads the development clinic: one doctor, one patient and a
// handful of starter documents. It also backs the mock sign-in used when no
// identity provider is available.
package seed

import (
	"context"
	"fmt"

	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/service"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/models"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/profiles"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/sessions"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/logger"
)

const (
	ClinicID  = "mock-clinic-id"
	DoctorID  = "mock-doctor-id"
	PatientID = "mock-patient-id"
)

// MockUser is a development account with a fixed password.
type MockUser struct {
	Record   models.ProfileRecord
	Password string
}

// Clinic is the development clinic.
var Clinic = models.Clinic{
	ID:           ClinicID,
	Name:         "Bright Smiles Dental",
	Address:      "123 Main St, Portland, OR 97201",
	Phone:        "(555) 987-6543",
	Email:        "info@brightsmiles.com",
	PrimaryColor: "#0ea5e9",
}

// MockUsers are keyed by email.
var MockUsers = map[string]MockUser{
	"doctor@test.com": {
		Password: "doctor123",
		Record: models.ProfileRecord{
			ID:       DoctorID,
			Role:     sessions.RoleDoctor,
			Email:    "doctor@test.com",
			FullName: "Dr. Sarah Johnson",
			Phone:    "(555) 123-4567",
			Doctor: &models.DoctorDetails{
				ClinicID:      ClinicID,
				LicenseNumber: "DDS-12345",
				Specialty:     "General Dentistry",
			},
		},
	},
	"patient@test.com": {
		Password: "patient123",
		Record: models.ProfileRecord{
			ID:       PatientID,
			Role:     sessions.RolePatient,
			Email:    "patient@test.com",
			FullName: "John Smith",
			Phone:    "(555) 555-5555",
			Patient: &models.PatientDetails{
				DateOfBirth:       "1990-05-15",
				InsuranceProvider: "Blue Cross",
			},
		},
	},
}

// MockLogin returns the session of the matching development account.
func MockLogin(email, password string) (*sessions.Session, bool) {
	u, ok := MockUsers[email]
	if !ok || u.Password != password {
		return nil, false
	}
	return &sessions.Session{UserID: u.Record.ID, Role: u.Record.Role, Email: u.Record.Email}, true
}

func boolPtr(b bool) *bool { return &b }

// Documents are the starter documents of the development clinic.
var Documents = []document.CreateInput{
	{
		Title:    "Infection Control Policy",
		Category: document.CategoryPolicies,
		Tags:     []string{"OSHA", "sterilization"},
		Content: "# Infection Control Policy\n\n" +
			"All instruments are **sterilized** after every patient.\n\n" +
			"## Hand hygiene\n" +
			"- Wash hands before and after each patient\n" +
			"- Use gloves for every procedure\n",
	},
	{
		Title:      "New Patient Intake Form",
		Category:   document.CategoryForms,
		Tags:       []string{"intake"},
		IsTemplate: boolPtr(true),
		Content: "# New Patient Intake\n\n" +
			"1. Full name\n2. Date of birth\n3. Insurance provider\n4. Current medications\n",
	},
	{
		Title:                "Post-Extraction Care",
		Category:             document.CategoryInstructions,
		Tags:                 []string{"surgery", "aftercare"},
		IsSharedWithPatients: boolPtr(true),
		Content: "# After your extraction\n\n" +
			"- Bite on gauze for *30 minutes*\n" +
			"- Avoid straws for 24 hours\n" +
			"- Call us if bleeding continues\n",
	},
}

// Profiles upserts the clinic and the mock accounts.
func Profiles(ctx context.Context, repo profiles.Repository) error {
	c := Clinic
	if err := repo.UpsertClinic(ctx, &c); err != nil {
		return fmt.Errorf("seed clinic: %w", err)
	}
	for _, u := range MockUsers {
		rec := u.Record
		if _, err := repo.UpsertProfile(ctx, &rec); err != nil {
			return fmt.Errorf("seed profile %s: %w", rec.ID, err)
		}
	}
	return nil
}

// Run seeds profiles and, when the clinic has no documents yet, the starter
// documents. It returns the number of documents created.
func Run(ctx context.Context, repo profiles.Repository, docs service.Repository) (int, error) {
	if err := Profiles(ctx, repo); err != nil {
		return 0, err
	}
	existing, err := docs.List(ctx, ClinicID, "", "")
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		logger.Infof("seed: clinic %s already has %d documents", ClinicID, len(existing))
		return 0, nil
	}
	for _, in := range Documents {
		in.ClinicID = ClinicID
		in.CreatedBy = DoctorID
		if _, err := docs.Create(ctx, in); err != nil {
			return 0, fmt.Errorf("seed document %q: %w", in.Title, err)
		}
	}
	logger.Infof("seed: created %d documents for clinic %s", len(Documents), ClinicID)
	return len(Documents), nil
}
