package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/pawmart/api/internal/domain"
	pfirestore "github.com/pawmart/api/internal/platform/firestore"
	"github.com/pawmart/api/internal/repositories"
)

const doctorCollection = "doctors"

// DoctorRepository persists doctor profiles within Firestore.
type DoctorRepository struct {
	base     *pfirestore.BaseRepository[doctorDocument]
	provider *pfirestore.Provider
}

// NewDoctorRepository constructs a Firestore-backed doctor repository.
func NewDoctorRepository(provider *pfirestore.Provider) (*DoctorRepository, error) {
	if provider == nil {
		return nil, errors.New("doctor repository requires firestore provider")
	}
	return &DoctorRepository{
		base:     pfirestore.NewBaseRepository[doctorDocument](provider, doctorCollection, nil, nil),
		provider: provider,
	}, nil
}

// FindByID loads a single doctor profile.
func (r *DoctorRepository) FindByID(ctx context.Context, doctorID string) (domain.Doctor, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(doctorID))
	if err != nil {
		return domain.Doctor{}, err
	}
	return doctorFromDocument(doc.ID, doc.Data), nil
}

// List returns doctors ordered by name, optionally only verified ones.
func (r *DoctorRepository) List(ctx context.Context, onlyVerified bool) ([]domain.Doctor, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if onlyVerified {
			q = q.Where("isVerified", "==", true)
		}
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	doctors := make([]domain.Doctor, 0, len(docs))
	for _, doc := range docs {
		doctors = append(doctors, doctorFromDocument(doc.ID, doc.Data))
	}
	return doctors, nil
}

// Insert writes a new doctor document.
func (r *DoctorRepository) Insert(ctx context.Context, doctor domain.Doctor) error {
	id := strings.TrimSpace(doctor.ID)
	if id == "" {
		return errors.New("doctor repository: doctor id is required")
	}
	_, err := r.base.Create(ctx, id, doctorToDocument(doctor))
	return err
}

// Update rewrites the doctor document.
func (r *DoctorRepository) Update(ctx context.Context, doctor domain.Doctor) error {
	id := strings.TrimSpace(doctor.ID)
	if id == "" {
		return errors.New("doctor repository: doctor id is required")
	}
	_, err := r.base.Set(ctx, id, doctorToDocument(doctor))
	return err
}

// IncrementPatients adds one to the consult counter transactionally.
func (r *DoctorRepository) IncrementPatients(ctx context.Context, doctorID string) (domain.Doctor, error) {
	doctorID = strings.TrimSpace(doctorID)
	ref, err := r.base.DocumentRef(ctx, doctorID)
	if err != nil {
		return domain.Doctor{}, err
	}

	var updated domain.Doctor
	err = r.provider.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("doctors.increment", err)
		}
		var doc doctorDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("doctor repository: decode %s: %w", doctorID, err)
		}
		doc.TotalPatients++
		doc.UpdatedAt = time.Now().UTC()
		if err := tx.Set(ref, doc); err != nil {
			return pfirestore.WrapError("doctors.increment", err)
		}
		updated = doctorFromDocument(doctorID, doc)
		return nil
	})
	if err != nil {
		return domain.Doctor{}, err
	}
	return updated, nil
}

func doctorToDocument(doctor domain.Doctor) doctorDocument {
	doc := doctorDocument{
		Name:            strings.TrimSpace(doctor.Name),
		Specialization:  strings.TrimSpace(doctor.Specialization),
		Biography:       strings.TrimSpace(doctor.Biography),
		ConsultationFee: doctor.ConsultationFee,
		TotalPatients:   doctor.TotalPatients,
		Rating:          doctor.Rating,
		IsOnline:        doctor.IsOnline,
		IsVerified:      doctor.IsVerified,
		CreatedAt:       doctor.CreatedAt.UTC(),
		UpdatedAt:       doctor.UpdatedAt.UTC(),
	}
	for _, slot := range doctor.WorkingHours {
		doc.WorkingHours = append(doc.WorkingHours, workingHourDocument{
			Day:   int(slot.Day),
			Start: slot.Start,
			End:   slot.End,
			Full:  slot.Full,
		})
	}
	return doc
}

func doctorFromDocument(id string, doc doctorDocument) domain.Doctor {
	doctor := domain.Doctor{
		ID:              id,
		Name:            doc.Name,
		Specialization:  doc.Specialization,
		Biography:       doc.Biography,
		ConsultationFee: doc.ConsultationFee,
		TotalPatients:   doc.TotalPatients,
		Rating:          doc.Rating,
		IsOnline:        doc.IsOnline,
		IsVerified:      doc.IsVerified,
		CreatedAt:       doc.CreatedAt,
		UpdatedAt:       doc.UpdatedAt,
	}
	for _, slot := range doc.WorkingHours {
		doctor.WorkingHours = append(doctor.WorkingHours, domain.WorkingHour{
			Day:   time.Weekday(slot.Day),
			Start: slot.Start,
			End:   slot.End,
			Full:  slot.Full,
		})
	}
	return doctor
}

type doctorDocument struct {
	Name            string                `firestore:"name"`
	Specialization  string                `firestore:"specialization,omitempty"`
	Biography       string                `firestore:"biography,omitempty"`
	ConsultationFee int64                 `firestore:"consultationFee"`
	TotalPatients   int                   `firestore:"totalPatients"`
	Rating          float64               `firestore:"rating"`
	WorkingHours    []workingHourDocument `firestore:"workingHours,omitempty"`
	IsOnline        bool                  `firestore:"isOnline"`
	IsVerified      bool                  `firestore:"isVerified"`
	CreatedAt       time.Time             `firestore:"createdAt"`
	UpdatedAt       time.Time             `firestore:"updatedAt"`
}

type workingHourDocument struct {
	Day   int    `firestore:"day"`
	Start string `firestore:"startTime"`
	End   string `firestore:"endTime"`
	Full  bool   `firestore:"isFull"`
}

var _ repositories.DoctorRepository = (*DoctorRepository)(nil)
