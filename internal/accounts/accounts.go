package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"converse-backend/internal/apperr"
	"converse-backend/internal/database"
	"converse-backend/internal/metrics"
	"converse-backend/internal/models"
	"converse-backend/internal/snowflake"
	"converse-backend/internal/validator"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultAvatar = "/ConverseX.jpg"
	DefaultCost   = 12
)

type Service struct {
	sugar      *zap.SugaredLogger
	store      *database.Store
	bcryptCost int
	now        func() time.Time
}

// New creates the account service. A bcryptCost of 0 means DefaultCost.
func New(sugar *zap.SugaredLogger, store *database.Store, bcryptCost int) *Service {
	if bcryptCost == 0 {
		bcryptCost = DefaultCost
	}
	return &Service{
		sugar:      sugar,
		store:      store,
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ProfileUpdate struct {
	Username *string            `json:"username"`
	Avatar   *string            `json:"avatar"`
	Status   *models.UserStatus `json:"status"`
}

func (s *Service) Register(ctx context.Context, reg Registration) (models.User, error) {
	reg.Username = strings.TrimSpace(reg.Username)
	reg.Email = strings.ToLower(strings.TrimSpace(reg.Email))

	if err := validator.Username(reg.Username); err != nil {
		return models.User{}, apperr.Wrap(apperr.Validation, "Invalid username", err)
	}
	if err := validator.Email(reg.Email); err != nil {
		return models.User{}, apperr.Wrap(apperr.Validation, "Invalid email", err)
	}
	if err := validator.Password(reg.Password); err != nil {
		return models.User{}, apperr.Wrap(apperr.Validation, "Password must be 6 to 32 characters with a lowercase letter, an uppercase letter and a number", err)
	}

	userID, err := snowflake.Generate()
	if err != nil {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), s.bcryptCost)
	if err != nil {
		return models.User{}, fmt.Errorf("hashing password: %w", err)
	}

	user := models.User{
		ID:          userID,
		Username:    reg.Username,
		Email:       reg.Email,
		Password:    hash,
		Avatar:      DefaultAvatar,
		Status:      models.StatusOnline,
		Preferences: models.DefaultPreferences(),
		Communities: models.IDList{},
		CreatedAt:   s.now(),
	}

	err = s.store.InsertUser(ctx, user)
	if errors.Is(err, database.ErrDuplicate) {
		return models.User{}, apperr.New(apperr.Conflict, "User with this email or username already exists")
	} else if err != nil {
		return models.User{}, fmt.Errorf("saving user: %w", err)
	}

	s.sugar.Debugf("Registered user ID [%d] as [%s]", userID, user.Username)
	metrics.UsersRegistered.Inc()
	return user, nil
}

// Login checks the credentials and marks the user online. Unknown email and
// wrong password fail the same way.
func (s *Service) Login(ctx context.Context, email string, password string) (models.User, error) {
	invalid := apperr.New(apperr.Unauthenticated, "Invalid email or password")

	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, database.ErrNotFound) {
		return models.User{}, invalid
	} else if err != nil {
		return models.User{}, fmt.Errorf("loading user by email: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(user.Password, []byte(password)); err != nil {
		s.sugar.Debugf("Failed login for user ID [%d]", user.ID)
		return models.User{}, invalid
	}

	if err := s.store.UpdateUserStatus(ctx, user.ID, models.StatusOnline); err != nil {
		return models.User{}, fmt.Errorf("updating status of user %d: %w", user.ID, err)
	}
	user.Status = models.StatusOnline
	return user, nil
}

func (s *Service) Logout(ctx context.Context, userID int64) error {
	err := s.store.UpdateUserStatus(ctx, userID, models.StatusOffline)
	if errors.Is(err, database.ErrNotFound) {
		return apperr.New(apperr.Unauthenticated, "User not found")
	}
	return err
}

func (s *Service) Me(ctx context.Context, userID int64) (models.User, error) {
	user, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return user, apperr.New(apperr.Unauthenticated, "User not found")
	} else if err != nil {
		return user, fmt.Errorf("loading user %d: %w", userID, err)
	}
	return user, nil
}

// UpdateProfile changes only the fields that are set.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, update ProfileUpdate) (models.User, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return user, err
	}

	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		if err := validator.Username(username); err != nil {
			return models.User{}, apperr.Wrap(apperr.Validation, "Invalid username", err)
		}
		user.Username = username
	}
	if update.Avatar != nil {
		avatar := strings.TrimSpace(*update.Avatar)
		if len(avatar) > 2048 {
			return models.User{}, apperr.New(apperr.Validation, "avatar can't be longer than 2048 characters")
		}
		if avatar == "" {
			avatar = DefaultAvatar
		}
		user.Avatar = avatar
	}
	if update.Status != nil {
		if !update.Status.Valid() {
			return models.User{}, apperr.New(apperr.Validation, "Invalid status")
		}
		user.Status = *update.Status
	}

	err = s.store.UpdateUserProfile(ctx, user)
	if errors.Is(err, database.ErrDuplicate) {
		return models.User{}, apperr.New(apperr.Conflict, "Username is already taken")
	} else if errors.Is(err, database.ErrNotFound) {
		return models.User{}, apperr.New(apperr.Unauthenticated, "User not found")
	} else if err != nil {
		return models.User{}, fmt.Errorf("updating profile of user %d: %w", userID, err)
	}
	return user, nil
}

// UpdatePreferences replaces one preference section with the JSON object in
// raw.
func (s *Service) UpdatePreferences(ctx context.Context, userID int64, section models.PreferenceSection, raw []byte) (models.User, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return user, err
	}

	if err := user.ApplySection(section, raw); errors.Is(err, models.ErrUnknownSection) {
		return models.User{}, apperr.Wrap(apperr.Validation, "Invalid preference section", err)
	} else if err != nil {
		return models.User{}, apperr.Wrap(apperr.Validation, "Invalid preferences", err)
	}

	err = s.store.UpdateUserPreferences(ctx, user)
	if errors.Is(err, database.ErrNotFound) {
		return models.User{}, apperr.New(apperr.Unauthenticated, "User not found")
	} else if err != nil {
		return models.User{}, fmt.Errorf("updating preferences of user %d: %w", userID, err)
	}
	return user, nil
}
