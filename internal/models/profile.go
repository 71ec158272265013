package models

import "time"

// Clinic is the tenant boundary; every document belongs to exactly one.
type Clinic struct {
	ID           string    `bson:"_id" json:"id"`
	Name         string    `bson:"name" json:"name"`
	Address      string    `bson:"address,omitempty" json:"address,omitempty"`
	Phone        string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Email        string    `bson:"email,omitempty" json:"email,omitempty"`
	LogoURL      string    `bson:"logo_url,omitempty" json:"logo_url,omitempty"`
	PrimaryColor string    `bson:"primary_color" json:"primary_color"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`
}

// DoctorDetails holds the doctor-only columns of a profile.
type DoctorDetails struct {
	ClinicID      string `bson:"clinic_id,omitempty" json:"clinic_id,omitempty"`
	LicenseNumber string `bson:"license_number,omitempty" json:"license_number,omitempty"`
	Specialty     string `bson:"specialty,omitempty" json:"specialty,omitempty"`
}

// PatientDetails holds the patient-only columns of a profile.
type PatientDetails struct {
	DateOfBirth       string `bson:"date_of_birth,omitempty" json:"date_of_birth,omitempty"`
	InsuranceProvider string `bson:"insurance_provider,omitempty" json:"insurance_provider,omitempty"`
}

// ProfileRecord is the stored shape of a profile (mapped from identity
// claims). Exactly one of Doctor and Patient is set, matching Role.
type ProfileRecord struct {
	ID        string          `bson:"_id" json:"id"`
	Role      string          `bson:"role" json:"role"`
	Email     string          `bson:"email" json:"email"`
	FullName  string          `bson:"full_name" json:"full_name"`
	Phone     string          `bson:"phone,omitempty" json:"phone,omitempty"`
	Doctor    *DoctorDetails  `bson:"doctor,omitempty" json:"doctor,omitempty"`
	Patient   *PatientDetails `bson:"patient,omitempty" json:"patient,omitempty"`
	CreatedAt time.Time       `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time       `bson:"updated_at" json:"updated_at"`
}

// Profile is a tagged variant over DoctorProfile and PatientProfile.
type Profile interface {
	ProfileRole() string
	UserID() string
}

// DoctorProfile is a clinic staff member joined with their clinic.
type DoctorProfile struct {
	ID            string  `json:"id"`
	Email         string  `json:"email"`
	FullName      string  `json:"full_name"`
	Phone         string  `json:"phone,omitempty"`
	LicenseNumber string  `json:"license_number,omitempty"`
	Specialty     string  `json:"specialty,omitempty"`
	ClinicID      string  `json:"clinic_id,omitempty"`
	Clinic        *Clinic `json:"clinic,omitempty"`
}

// PatientProfile is a patient of one or more clinics.
type PatientProfile struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	FullName          string `json:"full_name"`
	Phone             string `json:"phone,omitempty"`
	DateOfBirth       string `json:"date_of_birth,omitempty"`
	InsuranceProvider string `json:"insurance_provider,omitempty"`
}

func (p *DoctorProfile) ProfileRole() string  { return "doctor" }
func (p *DoctorProfile) UserID() string       { return p.ID }
func (p *PatientProfile) ProfileRole() string { return "patient" }
func (p *PatientProfile) UserID() string      { return p.ID }
