package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	userrepo "github.com/agrobridge/backend/internal/data/repos/user"
	types "github.com/agrobridge/backend/internal/domain"
	"github.com/agrobridge/backend/internal/domain/user"
	"github.com/agrobridge/backend/internal/pkg/ctxutil"
	"github.com/agrobridge/backend/internal/pkg/dbctx"
	apperr "github.com/agrobridge/backend/internal/pkg/errors"
	"github.com/agrobridge/backend/internal/pkg/logger"
)

type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Role     string
	Org      string
}

type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *types.User `json:"user"`
}

type AuthService interface {
	Register(c dbctx.Context, input RegisterInput) (*types.User, error)
	Login(c dbctx.Context, email, password string) (*LoginResult, error)
	// ContextFromToken validates a bearer token and attaches the actor's
	// request data to the returned context.
	ContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	GetUser(c dbctx.Context, id uuid.UUID) (*types.User, error)
}

type authService struct {
	db        *gorm.DB
	log       *logger.Logger
	userRepo  userrepo.UserRepo
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewAuthService(
	db *gorm.DB,
	baseLog *logger.Logger,
	userRepo userrepo.UserRepo,
	jwtSecret string,
	tokenTTL time.Duration,
) AuthService {
	return &authService{
		db:        db,
		log:       baseLog.With("service", "AuthService"),
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}

func (s *authService) Register(c dbctx.Context, input RegisterInput) (*types.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", apperr.ErrInvalidArgument)
	}
	if len(input.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", apperr.ErrInvalidArgument)
	}
	role := input.Role
	if role == "" {
		role = user.RoleProducer
	}
	if !user.ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", apperr.ErrInvalidArgument, role)
	}

	exists, err := s.userRepo.EmailExists(c, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: email already registered", apperr.ErrInvalidArgument)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &types.User{
		ID:       uuid.New(),
		Email:    email,
		Password: string(hashed),
		FullName: strings.TrimSpace(input.FullName),
		Role:     role,
		Org:      strings.TrimSpace(input.Org),
	}
	if _, err := s.userRepo.Create(c, []*types.User{u}); err != nil {
		s.log.Warn("Register: create failed", "error", err, "email", email)
		return nil, err
	}
	s.log.Info("user registered", "user_id", u.ID, "role", u.Role)
	return u, nil
}

func (s *authService) Login(c dbctx.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	users, err := s.userRepo.GetByEmails(c, []string{email})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 || users[0] == nil {
		return nil, apperr.ErrUnauthorized
	}
	u := users[0]
	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return nil, apperr.ErrUnauthorized
	}

	expiresAt := time.Now().Add(s.tokenTTL)
	claims := jwt.MapClaims{
		"sub":  u.ID.String(),
		"role": u.Role,
		"iat":  time.Now().Unix(),
		"exp":  expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: u}, nil
}

func (s *authService) ContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return ctx, apperr.ErrUnauthorized
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ctx, apperr.ErrUnauthorized
	}
	sub, _ := claims["sub"].(string)
	uid, err := uuid.Parse(sub)
	if err != nil {
		return ctx, apperr.ErrUnauthorized
	}
	role, _ := claims["role"].(string)
	if !user.ValidRole(role) {
		return ctx, apperr.ErrUnauthorized
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: uid, Role: role}), nil
}

func (s *authService) GetUser(c dbctx.Context, id uuid.UUID) (*types.User, error) {
	users, err := s.userRepo.GetByIDs(c, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 || users[0] == nil {
		return nil, &apperr.NotFoundError{Kind: "user", ID: id}
	}
	return users[0], nil
}
