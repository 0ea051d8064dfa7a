package service

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/agencydesk/internal/audit/domain"
	authdomain "github.com/smallbiznis/agencydesk/internal/auth/domain"
	"github.com/smallbiznis/agencydesk/internal/authorization"
	"github.com/smallbiznis/agencydesk/internal/clock"
	"github.com/smallbiznis/agencydesk/internal/observability/metrics"
	"github.com/smallbiznis/agencydesk/internal/registration/domain"
	rosterdomain "github.com/smallbiznis/agencydesk/internal/roster/domain"
	"github.com/smallbiznis/agencydesk/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	MaxAvatarBytes  = 2 << 20
	maxFieldLength  = 10000
	avatarURIPrefix = "data:image/"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Repo     domain.Repository
	GenID    *snowflake.Node
	Clock    clock.Clock
	Authz    authorization.Service
	AuditSvc auditdomain.Service `optional:"true"`
	Metrics  *metrics.Metrics    `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	repo     domain.Repository
	genID    *snowflake.Node
	clock    clock.Clock
	authz    authorization.Service
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("registration.service"),
		repo:     p.Repo,
		genID:    p.GenID,
		clock:    p.Clock,
		authz:    p.Authz,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
}

func (s *Service) Submit(ctx context.Context, req domain.SubmitRequest) (reg *domain.Registration, err error) {
	defer func() { s.metrics.RecordRegistrationTransition("submit", err) }()

	req, email, err := validateSubmission(req)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	activeEmail := email
	reg = &domain.Registration{
		ID:           s.genID.Generate(),
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        email,
		ActiveEmail:  &activeEmail,
		Phone:        req.Phone,
		Position:     req.Position,
		Experience:   req.Experience,
		Skills:       req.Skills,
		CoverLetter:  req.CoverLetter,
		Availability: req.Availability,
		PortfolioURL: req.PortfolioURL,
		LinkedInURL:  req.LinkedInURL,
		GitHubURL:    req.GitHubURL,
		Avatar:       req.Avatar,
		Status:       domain.StatusPending,
		SubmittedAt:  now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, reg); err != nil {
		return nil, err
	}

	_ = s.audit(ctx, auditdomain.Actor{Type: auditdomain.ActorTypeApplicant, Email: email}, "registration.submit", reg.ID, map[string]any{
		"position": reg.Position,
	})
	s.log.Info("registration submitted", zap.String("registration_id", reg.ID.String()))
	return reg, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Registration, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	status := domain.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	if status != "" && !status.Valid() {
		return domain.ListResponse{}, domain.ErrInvalidStatus
	}

	sortBy := domain.SortField(strings.TrimSpace(req.SortBy))
	switch sortBy {
	case "":
		sortBy = domain.SortSubmittedAt
	case domain.SortSubmittedAt, domain.SortName, domain.SortEmail, domain.SortStatus:
	default:
		return domain.ListResponse{}, domain.ErrInvalidSort
	}

	var desc bool
	switch strings.ToLower(strings.TrimSpace(req.SortOrder)) {
	case "":
		desc = sortBy == domain.SortSubmittedAt
	case "desc":
		desc = true
	case "asc":
	default:
		return domain.ListResponse{}, domain.ErrInvalidSort
	}

	page := req.Pagination.Normalize()
	items, total, err := s.repo.List(ctx, domain.ListFilter{
		Status:     status,
		Position:   strings.TrimSpace(req.Position),
		Experience: strings.TrimSpace(req.Experience),
		Search:     req.Search,
		SortBy:     sortBy,
		SortDesc:   desc,
		Offset:     page.Offset(),
		Limit:      page.Limit,
	})
	if err != nil {
		return domain.ListResponse{}, err
	}
	return domain.ListResponse{
		Registrations: items,
		PageInfo:      pagination.BuildPageInfo(page, total),
	}, nil
}

func (s *Service) UpdateNotes(ctx context.Context, actor rosterdomain.Actor, id snowflake.ID, notes string) (*domain.Registration, error) {
	if err := s.authz.Authorize(ctx, string(actor.Role), authorization.ObjectRegistration, authorization.ActionRegistrationAnnotate); err != nil {
		return nil, err
	}
	notes, err := domain.NormalizeNotes(notes)
	if err != nil {
		return nil, err
	}

	// Reviewed records only change through approve or reject.
	if err := s.repo.Transition(ctx, id, domain.StatusPending, domain.StatusPending, map[string]any{
		"notes":      notes,
		"updated_at": s.clock.Now(),
	}); err != nil {
		return nil, err
	}

	_ = s.audit(ctx, actor.Audit(), "registration.annotate", id, nil)
	return s.repo.FindByID(ctx, id)
}

func (s *Service) audit(ctx context.Context, actor auditdomain.Actor, action string, id snowflake.ID, metadata map[string]any) error {
	if s.auditSvc == nil {
		return nil
	}
	return s.auditSvc.AuditLog(ctx, actor, action, "registration", id.String(), metadata)
}

// validateSubmission trims every field and returns the normalised email.
func validateSubmission(req domain.SubmitRequest) (domain.SubmitRequest, string, error) {
	trim := func(v *string) { *v = strings.TrimSpace(*v) }
	for _, v := range []*string{
		&req.FirstName, &req.LastName, &req.Email, &req.Phone, &req.Position,
		&req.Experience, &req.Skills, &req.CoverLetter, &req.Availability,
		&req.PortfolioURL, &req.LinkedInURL, &req.GitHubURL, &req.Avatar,
	} {
		trim(v)
	}

	verr := &domain.ValidationError{}
	required := []struct {
		field string
		value string
	}{
		{"firstName", req.FirstName},
		{"lastName", req.LastName},
		{"email", req.Email},
		{"position", req.Position},
		{"experience", req.Experience},
		{"skills", req.Skills},
		{"coverLetter", req.CoverLetter},
	}
	for _, f := range required {
		if f.value == "" {
			verr.Add(f.field, domain.CodeRequired)
		} else if utf8.RuneCountInString(f.value) > maxFieldLength {
			verr.Add(f.field, domain.CodeTooLong)
		}
	}

	var email string
	if req.Email != "" {
		normalized, err := authdomain.NormalizeEmail(req.Email)
		if err != nil {
			verr.Add("email", domain.CodeInvalidEmail)
		}
		email = normalized
	}

	links := []struct {
		field string
		value string
	}{
		{"portfolioUrl", req.PortfolioURL},
		{"linkedinUrl", req.LinkedInURL},
		{"githubUrl", req.GitHubURL},
	}
	for _, l := range links {
		if l.value != "" && !isHTTPURL(l.value) {
			verr.Add(l.field, domain.CodeInvalidURL)
		}
	}

	if req.Avatar != "" {
		if code := checkAvatar(req.Avatar); code != "" {
			verr.Add("avatar", code)
		}
	}

	return req, email, verr.OrNil()
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// checkAvatar accepts only base64 image data URIs whose decoded payload fits
// within MaxAvatarBytes.
func checkAvatar(raw string) string {
	if !strings.HasPrefix(raw, avatarURIPrefix) {
		return domain.CodeInvalidAvatar
	}
	meta, payload, ok := strings.Cut(raw, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return domain.CodeInvalidAvatar
	}
	mediaType := strings.TrimSuffix(strings.TrimPrefix(meta, "data:"), ";base64")
	if _, sub, _ := strings.Cut(mediaType, "/"); sub == "" {
		return domain.CodeInvalidAvatar
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > MaxAvatarBytes+2 {
		return domain.CodeAvatarTooBig
	}
	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return domain.CodeInvalidAvatar
	}
	if len(decoded) > MaxAvatarBytes {
		return domain.CodeAvatarTooBig
	}
	return ""
}
