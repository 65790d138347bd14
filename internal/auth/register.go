package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/elskow/scribe/internal/events"
	"github.com/elskow/scribe/internal/mailer"
)

var errPasswordChangedNotice = errors.New("password change notice not delivered")

type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
	RememberMe  bool
}

func (s *Service) Register(ctx context.Context, req RegisterRequest, meta ClientMeta) (*TokenPair, error) {
	current, err := s.settings.Current(ctx)
	if err != nil {
		return nil, err
	}
	if !current.RegistrationOpen {
		return nil, ErrRegistrationClosed
	}

	hash, err := s.passwords.Hash(ctx, req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &User{
		ID:           uuid.NewString(),
		Email:        normalizeIdentifier(req.Email),
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
		Role:         RoleMember,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	createCtx, cancel := s.storeCtx(ctx)
	err = s.stores.Credentials.Create(createCtx, user)
	cancel()
	if err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, ErrIdentifierTaken
		}
		return nil, err
	}

	tokens, err := s.issueSession(ctx, user, req.RememberMe, meta)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.UserRegistered, user.ID, meta.OriginAddress, nil)
	return tokens, nil
}

// ChangePassword signs the user out everywhere, trusted devices included.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.confirmPassword(ctx, user, current); err != nil {
		return err
	}

	hash, err := s.passwords.Hash(ctx, next)
	if err != nil {
		return err
	}

	updateCtx, cancel := s.storeCtx(ctx)
	err = s.stores.Credentials.UpdateHash(updateCtx, user.ID, hash)
	cancel()
	if err != nil {
		return err
	}

	s.revokeEverything(ctx, user.ID)
	s.publish(ctx, events.PasswordChanged, user.ID, "", nil)

	email, name := user.Email, user.DisplayName
	s.tasks.Go("password-changed-email", func(ctx context.Context) error {
		if !s.mailer.Send(ctx, email, mailer.TemplatePasswordChanged, map[string]string{"name": name}) {
			return errPasswordChangedNotice
		}
		return nil
	})
	return nil
}
