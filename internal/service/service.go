package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"jobjunction/m/domain"
	"jobjunction/m/internal/notify"
)

// timeLayout is a fixed-width UTC layout so lexicographic ordering in the
// store matches chronological ordering.
const timeLayout = "2006-01-02 15:04:05.000"

// Notifier receives best-effort messages. Enqueue must not block; delivery
// outcome is never reported back to the caller.
type Notifier interface {
	Enqueue(msg notify.Message)
}

// Service implements the job board business rules independent of transport.
type Service struct {
	db       *sqlx.DB
	notifier Notifier
}

// New constructs a Service. notifier may be nil, which disables notifications.
func New(db *sqlx.DB, notifier Notifier) *Service {
	return &Service{db: db, notifier: notifier}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	ImageRef *string
}

// Register creates a new user. The credential is stored as a bcrypt hash,
// never verbatim. A taken email yields ErrEmailTaken.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: name, email and password are required", ErrValidation)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	var id int64
	err = s.db.QueryRowxContext(ctx,
		`INSERT INTO users (name, email, password, profile_image) VALUES ($1, $2, $3, $4) RETURNING id`,
		in.Name, email, string(hashed), in.ImageRef).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return s.userByID(ctx, id)
}

// Login returns the user matching email and password. Unknown email and wrong
// password are indistinguishable to the caller. The returned record never
// carries the credential.
func (s *Service) Login(ctx context.Context, email, password string) (*domain.User, error) {
	var user domain.User
	err := s.db.GetContext(ctx, &user,
		`SELECT id, name, email, password, profile_image, created_at FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	user.Password = ""
	return &user, nil
}

// ListJobs returns every job, most recent posting first.
func (s *Service) ListJobs(ctx context.Context) ([]domain.Job, error) {
	jobs := []domain.Job{}
	err := s.db.SelectContext(ctx, &jobs,
		`SELECT id, title, company, website, location, description, posted_date
         FROM jobs ORDER BY posted_date DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

type AddJobInput struct {
	Title       string
	Company     string
	Website     *string
	Location    string
	Description string
}

// AddJob creates a posting. The posting timestamp is assigned here; jobs are
// immutable afterwards.
func (s *Service) AddJob(ctx context.Context, in AddJobInput) (*domain.Job, error) {
	if in.Title == "" || in.Company == "" || in.Location == "" || in.Description == "" {
		return nil, fmt.Errorf("%w: title, company, location and description are required", ErrValidation)
	}

	posted := time.Now().UTC().Format(timeLayout)
	var id int64
	err := s.db.QueryRowxContext(ctx,
		`INSERT INTO jobs (title, company, website, location, description, posted_date)
         VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		in.Title, in.Company, in.Website, in.Location, in.Description, posted).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}

	return &domain.Job{
		ID:          id,
		Title:       in.Title,
		Company:     in.Company,
		Website:     in.Website,
		Location:    in.Location,
		Description: in.Description,
		PostedDate:  posted,
	}, nil
}

type ApplyInput struct {
	UserID int64
	JobID  int64
	Phone  *string
	Email  *string
}

// Apply records an application for a job. At most one application may exist
// per (user, job) pair; a repeat yields ErrAlreadyApplied. On success a
// confirmation mail is handed to the notifier; its outcome never affects the
// result or rolls back the insert.
func (s *Service) Apply(ctx context.Context, in ApplyInput) (*domain.Application, error) {
	user, err := s.userByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	var job domain.Job
	err = s.db.GetContext(ctx, &job,
		`SELECT id, title, company, website, location, description, posted_date FROM jobs WHERE id = $1`,
		in.JobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: job %d", ErrNotFound, in.JobID)
		}
		return nil, fmt.Errorf("look up job: %w", err)
	}

	applied := time.Now().UTC().Format(timeLayout)
	var id int64
	err = s.db.QueryRowxContext(ctx,
		`INSERT INTO applications (user_id, job_id, phone, email, applied_date)
         VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		in.UserID, in.JobID, in.Phone, in.Email, applied).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyApplied
		}
		return nil, fmt.Errorf("insert application: %w", err)
	}

	if s.notifier != nil {
		to := user.Email
		if in.Email != nil && *in.Email != "" {
			to = *in.Email
		}
		s.notifier.Enqueue(notify.Message{
			To:      to,
			Subject: fmt.Sprintf("Application Received - %s", job.Title),
			Body: fmt.Sprintf("Hi! Your application for %s at %s has been received.\n\nThank you for using Job Junction!",
				job.Title, job.Company),
		})
	}

	return &domain.Application{
		ID:          id,
		UserID:      in.UserID,
		JobID:       in.JobID,
		Phone:       in.Phone,
		Email:       in.Email,
		AppliedDate: applied,
	}, nil
}

// Withdraw deletes an application. A missing id is treated as success so the
// operation stays idempotent; an application owned by a different user yields
// ErrNotOwner.
func (s *Service) Withdraw(ctx context.Context, appID, requesterID int64) error {
	var ownerID int64
	err := s.db.GetContext(ctx, &ownerID, `SELECT user_id FROM applications WHERE id = $1`, appID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("look up application: %w", err)
	}
	if ownerID != requesterID {
		return ErrNotOwner
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, appID); err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	return nil
}

// Profile returns the user plus all of their applications joined with job
// display fields, newest application first.
func (s *Service) Profile(ctx context.Context, userID int64) (*domain.User, []domain.ApplicationDetail, error) {
	user, err := s.userByID(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	apps := []domain.ApplicationDetail{}
	err = s.db.SelectContext(ctx, &apps,
		`SELECT a.id AS app_id, a.job_id, j.title, j.company, j.location, a.applied_date
         FROM applications a JOIN jobs j ON a.job_id = j.id
         WHERE a.user_id = $1 ORDER BY a.applied_date DESC, a.id DESC`,
		userID)
	if err != nil {
		return nil, nil, fmt.Errorf("list applications: %w", err)
	}

	return user, apps, nil
}

type UpdateProfileInput struct {
	ID       int64
	Name     string
	Password string
	ImageRef *string
}

// UpdateProfile updates only the supplied fields and returns the updated
// user. A new password is re-hashed before storage.
func (s *Service) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*domain.User, error) {
	if _, err := s.userByID(ctx, in.ID); err != nil {
		return nil, err
	}

	sets := []string{}
	args := []any{}
	if in.Name != "" {
		args = append(args, in.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if in.Password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		args = append(args, string(hashed))
		sets = append(sets, fmt.Sprintf("password = $%d", len(args)))
	}
	if in.ImageRef != nil {
		args = append(args, *in.ImageRef)
		sets = append(sets, fmt.Sprintf("profile_image = $%d", len(args)))
	}

	if len(sets) > 0 {
		args = append(args, in.ID)
		query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
	}

	return s.userByID(ctx, in.ID)
}

func (s *Service) userByID(ctx context.Context, id int64) (*domain.User, error) {
	var user domain.User
	err := s.db.GetContext(ctx, &user,
		`SELECT id, name, email, password, profile_image, created_at FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("look up user: %w", err)
	}
	user.Password = ""
	return &user, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
